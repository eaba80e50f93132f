// strainprep: a pipeline runner for bacterial genome assembly and annotation.
// Copyright (c) 2022-2024 StrainLab vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/strainlab/strainprep/blob/master/LICENSE.txt>.

package fasta

import (
	"strings"

	"github.com/exascience/pargo/pipeline"

	"github.com/strainlab/strainprep/internal"
)

// A RecordFilter is a predicate that decides whether a record is kept.
type RecordFilter func(*Record) bool

// MinLength returns a filter that keeps records whose sequence is
// strictly longer than n.
func MinLength(n int) RecordFilter {
	return func(rec *Record) bool {
		return len(rec.Seq) > n
	}
}

// Rename rewrites a record identifier to its curated form: the marker,
// followed by fields 1 to 3 of the original identifier split on
// underscores. An assembler id like NODE_3_length_5000_cov_12.3
// becomes C_3_length_5000 for marker C. The rewrite is idempotent: a
// curated id runs through it unchanged. The description is cleared.
func Rename(rec *Record, marker string) {
	fields := strings.Split(rec.ID, "_")
	end := 4
	if end > len(fields) {
		end = len(fields)
	}
	rec.ID = marker + "_" + strings.Join(fields[1:end], "_")
	rec.Description = ""
}

// CurateRecords filters records through keep and renames the survivors
// with marker. The records slice is reused; batches run in parallel.
func CurateRecords(records []*Record, keep RecordFilter, marker string) []*Record {
	var curated []*Record
	var p pipeline.Pipeline
	p.Source(records)
	p.Add(
		pipeline.LimitedPar(0, pipeline.Receive(func(_ int, data interface{}) interface{} {
			recs := data.([]*Record)
			kept := recs[:0]
			for _, rec := range recs {
				if keep(rec) {
					Rename(rec, marker)
					kept = append(kept, rec)
				}
			}
			return kept
		})),
		pipeline.StrictOrd(pipeline.Slice(&curated)),
	)
	internal.RunPipeline(&p)
	return curated
}

// CurateFile curates the contigs in the input file and writes the
// survivors to the output file, which is fully replaced. Records not
// strictly longer than minLength are dropped; surviving identifiers
// are renamed with marker. When nothing survives, an empty output file
// is still written. The input is parsed completely before the output
// is created, so a malformed input never leaves partial output behind.
func CurateFile(input, output string, minLength int, marker string) error {
	records, err := ParseRecords(input)
	if err != nil {
		return err
	}
	curated := CurateRecords(records, MinLength(minLength), marker)
	return WriteRecords(output, curated)
}

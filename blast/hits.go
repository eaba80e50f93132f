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

// Package blast post-processes the tabular output of the protein
// homology search: weak hits are dropped and two derived columns are
// inserted, the query protein length and the fraction of that length
// the hit spans.
package blast

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/exascience/pargo/pipeline"

	"github.com/strainlab/strainprep/fasta"
	"github.com/strainlab/strainprep/layout"
)

// HitColumns are the column titles of the raw search table, in the
// order the search tool emits them.
var HitColumns = []string{
	"qseqid", "sseqid", "pident", "length", "mismatch", "gapopen",
	"qstart", "qend", "sstart", "send", "evalue", "bitscore", "sseq",
}

// ProcessedColumns are the column titles of the enriched table: the
// derived columns sit immediately after the subject id.
var ProcessedColumns = []string{
	"qseqid", "sseqid", "qlen", "prot_cov", "pident", "length", "mismatch", "gapopen",
	"qstart", "qend", "sstart", "send", "evalue", "bitscore", "sseq",
}

// Raw table column indices the processor interprets. All other columns
// pass through verbatim.
const (
	sseqidColumn = 1
	pidentColumn = 2
	qstartColumn = 6
	qendColumn   = 7
)

// PidentThreshold is the percent identity a hit must exceed to
// survive post-processing.
const PidentThreshold = 50.0

// Coverage computes the protein coverage percentage of a hit: the
// span of the 1-based inclusive query coordinates over the query
// length. Hits covering a protein more than once exceed 100; that is
// reported as is, never clamped.
func Coverage(qstart, qend, qlen int) float64 {
	return float64(qend-qstart+1) / float64(qlen) * 100
}

// enrich filters one raw table row and computes its derived columns.
// It returns the enriched row, or nil when the row is dropped.
func enrich(fields []string, lengths map[string]int, proteinsFile string) ([]string, error) {
	if len(fields) != len(HitColumns) {
		return nil, fmt.Errorf("invalid hits line with %v columns: %v", len(fields), strings.Join(fields, "\t"))
	}
	pident, err := strconv.ParseFloat(fields[pidentColumn], 64)
	if err != nil {
		return nil, fmt.Errorf("%v, while parsing percent identity in hits line %v", err, strings.Join(fields, "\t"))
	}
	if pident <= PidentThreshold {
		return nil, nil
	}
	qstart, err := strconv.Atoi(fields[qstartColumn])
	if err != nil {
		return nil, fmt.Errorf("%v, while parsing query start in hits line %v", err, strings.Join(fields, "\t"))
	}
	qend, err := strconv.Atoi(fields[qendColumn])
	if err != nil {
		return nil, fmt.Errorf("%v, while parsing query end in hits line %v", err, strings.Join(fields, "\t"))
	}
	qlen, ok := lengths[fields[0]]
	if !ok {
		return nil, fmt.Errorf("query id %v absent from protein database %v", fields[0], proteinsFile)
	}
	row := make([]string, 0, len(ProcessedColumns))
	row = append(row, fields[:sseqidColumn+1]...)
	row = append(row, strconv.Itoa(qlen), strconv.FormatFloat(Coverage(qstart, qend, qlen), 'f', 2, 64))
	row = append(row, fields[sseqidColumn+1:]...)
	return row, nil
}

// Process reads the raw homology-search table, drops every hit with
// percent identity at or below the threshold, inserts the query
// length and protein coverage columns, and writes the enriched table
// to its fixed filename in targetDir. The written path is returned.
// A query id missing from the protein database is an error: skipping
// such hits would silently corrupt the coverage statistics.
func Process(hitsFile, proteinsFile, targetDir string) (outPath string, err error) {
	lengths, err := fasta.SequenceLengths(proteinsFile)
	if err != nil {
		return "", err
	}
	pathname, err := filepath.Abs(hitsFile)
	if err != nil {
		return "", err
	}
	in, err := os.Open(pathname)
	if err != nil {
		return "", err
	}
	defer func() {
		if nerr := in.Close(); nerr != nil {
			if err == nil {
				outPath = ""
				err = nerr
			}
		}
	}()
	input := bufio.NewReader(in)
	header, err := input.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("%v is not a hits table - missing header", hitsFile)
	}
	if strings.TrimRight(header, "\r\n") != strings.Join(HitColumns, "\t") {
		return "", fmt.Errorf("%v is not a hits table - invalid header", hitsFile)
	}
	var lines []string
	var p pipeline.Pipeline
	p.Source(pipeline.NewScanner(input))
	p.Add(
		pipeline.LimitedPar(0, pipeline.Receive(func(_ int, data interface{}) interface{} {
			strs := data.([]string)
			enriched := strs[:0]
			for _, str := range strs {
				if str == "" {
					continue
				}
				row, err := enrich(strings.Split(str, "\t"), lengths, proteinsFile)
				if err != nil {
					p.SetErr(err)
					return enriched
				}
				if row != nil {
					enriched = append(enriched, strings.Join(row, "\t"))
				}
			}
			return enriched
		})),
		pipeline.StrictOrd(pipeline.Slice(&lines)),
	)
	p.Run()
	if err = p.Err(); err != nil {
		return "", err
	}
	outPath = filepath.Join(targetDir, layout.HomologyReportName)
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer func() {
		if nerr := out.Close(); nerr != nil {
			if err == nil {
				err = nerr
			}
		}
	}()
	w := bufio.NewWriter(out)
	fmt.Fprintln(w, strings.Join(ProcessedColumns, "\t"))
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return outPath, nil
}

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

// Package fasta implements FASTA record IO and the contig curation
// transformation that runs between assembly and annotation.
package fasta

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// A Record is one FASTA sequence record.
type Record struct {
	ID          string
	Description string
	Seq         []byte
}

// seqLineWidth is the column at which sequence lines are wrapped on
// output.
const seqLineWidth = 60

// parseHeader splits a header line (starting with '>') into the
// identifier and the description. The identifier runs up to the first
// non-printable or whitespace byte.
func parseHeader(b []byte) (id, description string) {
	i := 1
	for ; i < len(b); i++ {
		if c := b[i]; c >= '!' && c <= '~' {
			break
		}
	}
	j := i + 1
	for ; j < len(b); j++ {
		if c := b[j]; c < '!' || c > '~' {
			break
		}
	}
	id = string(b[i:j])
	if j < len(b) {
		description = strings.TrimSpace(string(b[j:]))
	}
	return id, description
}

// ParseRecords parses all records of a FASTA file. Sequence data
// before the first header is an error. An empty file yields zero
// records.
func ParseRecords(filename string) (records []*Record, err error) {
	pathname, err := filepath.Abs(filename)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(pathname)
	if err != nil {
		return nil, err
	}
	defer func() {
		if nerr := f.Close(); nerr != nil {
			if err == nil {
				records = nil
				err = nerr
			}
		}
	}()
	scanner := bufio.NewScanner(bufio.NewReader(f))
	var rec *Record
	for scanner.Scan() {
		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		if b[0] == '>' {
			rec = new(Record)
			rec.ID, rec.Description = parseHeader(b)
			records = append(records, rec)
			continue
		}
		if rec == nil {
			return nil, fmt.Errorf("invalid fasta file %v - sequence data before first header", filename)
		}
		rec.Seq = append(rec.Seq, b...)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// WriteRecords writes records to a FASTA file, fully replacing any
// previous contents. Sequences are wrapped at 60 columns.
func WriteRecords(filename string, records []*Record) (err error) {
	pathname, err := filepath.Abs(filename)
	if err != nil {
		return err
	}
	f, err := os.Create(pathname)
	if err != nil {
		return err
	}
	defer func() {
		if nerr := f.Close(); nerr != nil {
			if err == nil {
				err = nerr
			}
		}
	}()
	out := bufio.NewWriter(f)
	for _, rec := range records {
		if rec.Description != "" {
			fmt.Fprintf(out, ">%s %s\n", rec.ID, rec.Description)
		} else {
			fmt.Fprintf(out, ">%s\n", rec.ID)
		}
		for seq := rec.Seq; len(seq) > 0; {
			n := seqLineWidth
			if n > len(seq) {
				n = len(seq)
			}
			if _, err := out.Write(seq[:n]); err != nil {
				return err
			}
			if err := out.WriteByte('\n'); err != nil {
				return err
			}
			seq = seq[n:]
		}
	}
	return out.Flush()
}

// SequenceLengths scans a FASTA file once and returns the sequence
// length per identifier. Used to look up query lengths when
// post-processing homology-search tables.
func SequenceLengths(filename string) (lengths map[string]int, err error) {
	pathname, err := filepath.Abs(filename)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(pathname)
	if err != nil {
		return nil, err
	}
	defer func() {
		if nerr := f.Close(); nerr != nil {
			if err == nil {
				lengths = nil
				err = nerr
			}
		}
	}()
	lengths = make(map[string]int)
	scanner := bufio.NewScanner(bufio.NewReader(f))
	id := ""
	seen := false
	for scanner.Scan() {
		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		if b[0] == '>' {
			id, _ = parseHeader(b)
			lengths[id] = 0
			seen = true
			continue
		}
		if !seen {
			return nil, fmt.Errorf("invalid fasta file %v - sequence data before first header", filename)
		}
		lengths[id] += len(b)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lengths, nil
}

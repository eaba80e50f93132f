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

package workflow

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/strainlab/strainprep/layout"
)

// A Sample is one sequenced isolate: its identifier and its paired
// raw read files. Samples are parsed once at startup and stay fixed
// for the duration of a run.
type Sample struct {
	ID string
	R1 string
	R2 string
}

// ParseSampleManifest reads a tab-delimited sample manifest. The
// header row names the columns Read1, Read2 and Samples in any order;
// every following row adds one sample. Malformed rows, invalid sample
// identifiers and duplicate samples are errors.
func ParseSampleManifest(filename string) (samples []Sample, err error) {
	filename, err = filepath.Abs(filename)
	if err != nil {
		return nil, err
	}
	in, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		if nerr := in.Close(); nerr != nil {
			if err == nil {
				samples = nil
				err = nerr
			}
		}
	}()
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%v is not a sample manifest - missing header", filename)
	}
	columns := strings.Split(strings.TrimRight(scanner.Text(), "\r"), "\t")
	read1, read2, id := -1, -1, -1
	for i, column := range columns {
		switch column {
		case "Read1":
			read1 = i
		case "Read2":
			read2 = i
		case "Samples":
			id = i
		}
	}
	if read1 < 0 || read2 < 0 || id < 0 {
		return nil, fmt.Errorf("%v is not a sample manifest - the header must name Read1, Read2 and Samples", filename)
	}
	seen := make(map[string]bool)
	for row := 2; scanner.Scan(); row++ {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != len(columns) {
			return nil, fmt.Errorf("invalid row %v in sample manifest %v", row, filename)
		}
		sample := Sample{ID: fields[id], R1: fields[read1], R2: fields[read2]}
		if err := layout.ValidateSampleID(sample.ID); err != nil {
			return nil, fmt.Errorf("row %v in sample manifest %v: %v", row, filename, err)
		}
		if seen[sample.ID] {
			return nil, fmt.Errorf("duplicate sample %v in sample manifest %v", sample.ID, filename)
		}
		if sample.R1 == "" || sample.R2 == "" {
			return nil, fmt.Errorf("row %v in sample manifest %v: missing read file", row, filename)
		}
		seen[sample.ID] = true
		samples = append(samples, sample)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples in sample manifest %v", filename)
	}
	return samples, nil
}

// Routes are the auxiliary input files of a run: the adapter
// sequences for trimming, an optional reference genome to fold into
// the pan-genome, and the protein database for the homology search.
type Routes struct {
	Adapters          string
	ReferenceGenome   string
	ReferenceProteins string
}

// ParseRoutes reads a tab-delimited routes manifest: three rows in
// fixed order giving the adapter sequences, the reference genome and
// the reference protein database. The first column labels the row for
// the reader and is not interpreted; the last column is the path. A
// path that is empty or "-" leaves the route unset.
func ParseRoutes(filename string) (routes Routes, err error) {
	filename, err = filepath.Abs(filename)
	if err != nil {
		return Routes{}, err
	}
	in, err := os.Open(filename)
	if err != nil {
		return Routes{}, err
	}
	defer func() {
		if nerr := in.Close(); nerr != nil {
			if err == nil {
				routes = Routes{}
				err = nerr
			}
		}
	}()
	targets := []*string{&routes.Adapters, &routes.ReferenceGenome, &routes.ReferenceProteins}
	row := 0
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if row == len(targets) {
			return Routes{}, fmt.Errorf("%v is not a routes manifest - more than three rows", filename)
		}
		fields := strings.Split(line, "\t")
		path := ""
		if len(fields) > 1 {
			path = fields[len(fields)-1]
		}
		if path == "-" {
			path = ""
		}
		*targets[row] = path
		row++
	}
	if err := scanner.Err(); err != nil {
		return Routes{}, err
	}
	if row != len(targets) {
		return Routes{}, fmt.Errorf("%v is not a routes manifest - three rows required, got %v", filename, row)
	}
	return routes, nil
}

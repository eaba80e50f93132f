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

// Package pangenome summarizes the gene presence/absence matrix that
// the pan-genome stage writes for the full sample set of a run.
package pangenome

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/exascience/pargo/pipeline"
	"github.com/willf/bitset"
)

// MatrixName is the file name of the tab-separated presence/absence
// matrix inside the pan-genome output directory.
const MatrixName = "gene_presence_absence.Rtab"

// A Summary partitions the gene clusters of a pan-genome by how many
// samples carry them. The partition follows the usual pan-genome
// convention: core in at least 99% of the samples, soft-core in at
// least 95%, shell in at least 15%, cloud below that.
type Summary struct {
	Samples    []string
	GeneCounts []int
	Core       int
	SoftCore   int
	Shell      int
	Cloud      int
}

// TotalGenes is the number of gene clusters in the matrix.
func (s *Summary) TotalGenes() int {
	return s.Core + s.SoftCore + s.Shell + s.Cloud
}

func (s *Summary) addGene(row *bitset.BitSet) {
	frac := float64(row.Count()) / float64(len(s.Samples))
	switch {
	case frac >= 0.99:
		s.Core++
	case frac >= 0.95:
		s.SoftCore++
	case frac >= 0.15:
		s.Shell++
	default:
		s.Cloud++
	}
	for i, e := row.NextSet(0); e; i, e = row.NextSet(i + 1) {
		s.GeneCounts[i]++
	}
}

// FromRtabFile parses a presence/absence matrix and returns its
// summary. The matrix has a header row naming the samples, then one
// row per gene cluster with a 0/1 flag per sample.
func FromRtabFile(filename string) (s *Summary, err error) {
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
				s = nil
				err = nerr
			}
		}
	}()
	input := bufio.NewReader(in)
	header, err := input.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("%v is not a presence/absence matrix - missing header", filename)
	}
	fields := strings.Split(strings.TrimRight(header, "\r\n"), "\t")
	if len(fields) < 2 || fields[0] != "Gene" {
		return nil, fmt.Errorf("%v is not a presence/absence matrix - invalid header", filename)
	}
	samples := fields[1:]
	nSamples := uint(len(samples))
	s = &Summary{Samples: samples, GeneCounts: make([]int, len(samples))}
	var p pipeline.Pipeline
	p.Source(pipeline.NewScanner(input))
	p.Add(
		pipeline.LimitedPar(0, pipeline.Receive(func(_ int, data interface{}) interface{} {
			lines := data.([]string)
			rows := make([]*bitset.BitSet, 0, len(lines))
			for _, line := range lines {
				if line == "" {
					continue
				}
				fields := strings.Split(line, "\t")
				if uint(len(fields)) != nSamples+1 {
					p.SetErr(fmt.Errorf("invalid presence/absence row for gene %v: %v flags for %v samples", fields[0], len(fields)-1, nSamples))
					return rows
				}
				row := bitset.New(nSamples)
				for i, flag := range fields[1:] {
					switch flag {
					case "0":
					case "1":
						row.Set(uint(i))
					default:
						p.SetErr(fmt.Errorf("invalid presence flag %v for gene %v", flag, fields[0]))
						return rows
					}
				}
				rows = append(rows, row)
			}
			return rows
		})),
		pipeline.Ord(pipeline.Receive(func(_ int, data interface{}) interface{} {
			for _, row := range data.([]*bitset.BitSet) {
				s.addGene(row)
			}
			return data
		})),
	)
	p.Run()
	if err = p.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

// WriteFile writes the summary as a small report: the partition table
// in the layout the pan-genome tool itself uses for its statistics,
// followed by the number of genes found in each sample.
func (s *Summary) WriteFile(filename string) (err error) {
	out, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if nerr := out.Close(); nerr != nil {
			if err == nil {
				err = nerr
			}
		}
	}()
	w := bufio.NewWriter(out)
	fmt.Fprintf(w, "Core genes\t(99%% <= strains <= 100%%)\t%v\n", s.Core)
	fmt.Fprintf(w, "Soft core genes\t(95%% <= strains < 99%%)\t%v\n", s.SoftCore)
	fmt.Fprintf(w, "Shell genes\t(15%% <= strains < 95%%)\t%v\n", s.Shell)
	fmt.Fprintf(w, "Cloud genes\t(0%% <= strains < 15%%)\t%v\n", s.Cloud)
	fmt.Fprintf(w, "Total genes\t(0%% <= strains <= 100%%)\t%v\n", s.TotalGenes())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Genes per sample:")
	for i, sample := range s.Samples {
		fmt.Fprintf(w, "%v\t%v\n", sample, s.GeneCounts[i])
	}
	return w.Flush()
}

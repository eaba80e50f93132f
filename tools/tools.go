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

// Package tools builds the command lines for the external programs the
// pipeline drives, and runs them.
package tools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/strainlab/strainprep/blast"
)

// A Tool is one external pipeline step: the program to execute, its
// arguments, and where its output goes.
type Tool struct {
	// Name is the program name, looked up on PATH.
	Name string
	Args []string
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Stdout names a file to (re)create for the program's standard
	// output. Empty means standard output is inherited.
	Stdout string
	// Header is an optional line written to Stdout before the program
	// starts, for programs that emit tables without their own header.
	Header string
}

func (t Tool) String() string {
	return strings.Join(append([]string{t.Name}, t.Args...), " ")
}

// A Runner executes tools. The pipeline uses a single runner for a
// whole run so that tests can substitute a scripted one.
type Runner interface {
	Run(ctx context.Context, t Tool) error
}

// ExecRunner runs tools as operating system processes. Standard error
// always goes to the log.
type ExecRunner struct{}

// Run executes the tool and waits for it. A failure is reported as the
// program name with the underlying error.
func (ExecRunner) Run(ctx context.Context, t Tool) (err error) {
	cmd := exec.CommandContext(ctx, t.Name, t.Args...)
	cmd.Dir = t.Dir
	cmd.Stderr = os.Stderr
	if t.Stdout == "" {
		cmd.Stdout = os.Stdout
	} else {
		out, cerr := os.Create(t.Stdout)
		if cerr != nil {
			return fmt.Errorf("%v: %v", t.Name, cerr)
		}
		defer func() {
			if nerr := out.Close(); nerr != nil {
				if err == nil {
					err = fmt.Errorf("%v: %v", t.Name, nerr)
				}
			}
		}()
		if t.Header != "" {
			fmt.Fprintln(out, t.Header)
		}
		cmd.Stdout = out
	}
	if rerr := cmd.Run(); rerr != nil {
		return fmt.Errorf("%v: %v", t.Name, rerr)
	}
	return nil
}

// Trimmomatic trims adapter sequences off a paired-end read set. The
// output order follows the tool's convention: paired and unpaired
// forward reads, then paired and unpaired reverse reads.
func Trimmomatic(r1, r2, pairedR1, unpairedR1, pairedR2, unpairedR2, adapters string) Tool {
	return Tool{
		Name: "trimmomatic",
		Args: []string{
			"PE", "-phred33", r1, r2,
			pairedR1, unpairedR1, pairedR2, unpairedR2,
			"ILLUMINACLIP:" + adapters + ":1:30:11",
		},
	}
}

// Prinseq filters a paired-end read set on length and quality. Reads
// that fail the filter are discarded rather than diverted, and the
// tool names its own output files next to the input.
func Prinseq(r1, r2 string, minLength, minMeanQuality, trimQuality, trimQualityWindow int, logFile string) Tool {
	return Tool{
		Name: "prinseq-lite.pl",
		Args: []string{
			"-verbose", "-fastq", r1, "-fastq2", r2,
			"-min_len", strconv.Itoa(minLength),
			"-min_qual_mean", strconv.Itoa(minMeanQuality),
			"-trim_qual_right", strconv.Itoa(trimQuality),
			"-trim_qual_window", strconv.Itoa(trimQualityWindow),
			"-trim_qual_type", "mean",
			"-out_format", "3",
			"-out_bad", "null",
			"-log", logFile,
		},
	}
}

// Spades assembles a filtered paired-end read set into contigs under
// outDir.
func Spades(r1, r2, outDir string) Tool {
	return Tool{
		Name: "spades.py",
		Args: []string{"-1", r1, "-2", r2, "--careful", "-o", outDir},
	}
}

// Quast computes assembly statistics for a contig file.
func Quast(contigs, outDir string, minContig int) Tool {
	return Tool{
		Name: "quast",
		Args: []string{contigs, "-o", outDir, "--min-contig", strconv.Itoa(minContig), "--no-icarus", "--silent"},
	}
}

// Prokka annotates a curated assembly. The tool creates outDir itself
// and refuses to overwrite an existing one.
func Prokka(contigs, outDir, sample string) Tool {
	return Tool{
		Name: "prokka",
		Args: []string{
			"--locustag", sample + "_L",
			"--outdir", outDir,
			"--prefix", sample,
			"--kingdom", "Bacteria",
			"--gcode", "11",
			contigs,
		},
	}
}

// Dfast annotates a curated assembly with the alternative annotator.
// Its outputs keep fixed names under outDir.
func Dfast(contigs, outDir, sample string) Tool {
	return Tool{
		Name: "dfast",
		Args: []string{
			"--genome", contigs,
			"--out", outDir,
			"--minimum_length", "0",
			"--use_original_name", "true",
			"--locus_tag_prefix", sample + "_L",
		},
	}
}

// MLST types all assemblies in one pass; the tool prints its report
// on standard output.
func MLST(contigs []string, report string) Tool {
	return Tool{
		Name:   "mlst",
		Args:   contigs,
		Stdout: report,
	}
}

// Abricate screens all assemblies against a gene database; the tool
// prints its report on standard output.
func Abricate(contigs []string, database, report string) Tool {
	return Tool{
		Name:   "abricate",
		Args:   append(append([]string{}, contigs...), "--db", database),
		Stdout: report,
	}
}

// MakeBlastDB builds a nucleotide database from a contig file.
func MakeBlastDB(contigs, db string) Tool {
	return Tool{
		Name: "makeblastdb",
		Args: []string{"-in", contigs, "-dbtype", "nucl", "-out", db},
	}
}

// TBlastn searches a protein set against a nucleotide database and
// writes the tabular hits, under their column header, to rawHits.
func TBlastn(proteins, db string, evalue float64, rawHits string) Tool {
	return Tool{
		Name: "tblastn",
		Args: []string{
			"-query", proteins,
			"-db", db,
			"-evalue", strconv.FormatFloat(evalue, 'g', -1, 64),
			"-outfmt", "6 " + strings.Join(blast.HitColumns, " "),
		},
		Stdout: rawHits,
		Header: strings.Join(blast.HitColumns, "\t"),
	}
}

// Roary computes the pan-genome over a set of annotations. The tool
// insists on creating outDir itself.
func Roary(outDir string, gffs []string) Tool {
	return Tool{
		Name: "roary",
		Args: append([]string{"-f", outDir, "-e", "-n"}, gffs...),
	}
}

// RoaryPlots draws the pan-genome plots into plotsDir from the
// pan-genome tree and the presence/absence table.
func RoaryPlots(pangenomeDir, plotsDir string) Tool {
	return Tool{
		Name: "roary_plots.py",
		Args: []string{
			filepath.Join(pangenomeDir, "accessory_binary_genes.fa.newick"),
			filepath.Join(pangenomeDir, "gene_presence_absence.csv"),
		},
		Dir: plotsDir,
	}
}

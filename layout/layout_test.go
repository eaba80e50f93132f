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

package layout

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// domainPaths enumerates every artifact path the layout defines for a
// set of samples.
func domainPaths(l Layout, samples []string) []string {
	var paths []string
	for _, sample := range samples {
		for _, role := range []Role{R1Paired, R2Paired, R1Unpaired, R2Unpaired} {
			paths = append(paths, l.PathFor(Trim, sample, role))
		}
		paths = append(paths,
			l.PathFor(Assemble, sample, ContigsRaw),
			l.PathFor(CurateContigs, sample, ContigsCurated),
			l.PathFor(Annotate, sample, AnnotationGFF),
		)
	}
	paths = append(paths,
		l.PathFor(Typing, "", TypingReport),
		l.PathFor(Virulence, "", VirulenceReport),
		l.PathFor(Resistance, "", ResistanceReport),
		l.PathFor(HomologySearch, "", HomologyReport),
		l.RawHitsFile(),
		l.PangenomeSummaryFile(),
		LedgerFile(l.Root),
	)
	return paths
}

func TestPathForDeterminism(t *testing.T) {
	l := New("/runs/out", ProkkaAnnotator)
	if l.PathFor(Trim, "S1", R1Paired) != l.PathFor(Trim, "S1", R1Paired) {
		t.Error("PathFor determinism failed")
	}
	if l.PathFor(CurateContigs, "S1", ContigsCurated) != filepath.Join("/runs/out", "Contigs_renamed_shorten", "S1_contigs.fasta") {
		t.Error("PathFor curated contig naming failed")
	}
	if l.PathFor(Annotate, "S1", AnnotationGFF) != filepath.Join("/runs/out", "Prokka_annotation", "S1", "S1.gff") {
		t.Error("PathFor annotation naming failed")
	}
}

func TestPathForDistinct(t *testing.T) {
	l := New("/runs/out", ProkkaAnnotator)
	samples := []string{"S1", "S2", "S1_R1", "S2-b"}
	paths := domainPaths(l, samples)
	seen := make(map[string]bool)
	for _, path := range paths {
		if seen[path] {
			t.Error("PathFor distinctness failed for", path)
		}
		seen[path] = true
	}
	if len(seen) != len(paths) {
		t.Error("PathFor produced colliding paths")
	}
}

func TestDirForNesting(t *testing.T) {
	l := New("/runs/out", ProkkaAnnotator)
	if l.DirFor(Stats, "S1") != filepath.Join("/runs/out", "SPAdes_assembly", "S1", "Sample_assembly_statistics") {
		t.Error("DirFor stats nesting failed")
	}
	if l.DirFor(Filter, "S1") != filepath.Join("/runs/out", "Prinseq_filtering2", "S1") {
		t.Error("DirFor filter nesting failed")
	}
	if l.DirFor(Pangenome, "") != filepath.Join("/runs/out", "Roary_pangenome") {
		t.Error("DirFor pangenome naming failed")
	}
}

func TestDfastLayout(t *testing.T) {
	l := New("/runs/out", DfastAnnotator)
	if l.PathFor(Annotate, "S1", AnnotationGFF) != filepath.Join("/runs/out", "DFAST_annotation", "S1", "genome.gff") {
		t.Error("dfast annotation naming failed")
	}
	if l.PathFor(Annotate, "S1", AnnotationGFF) == l.PathFor(Annotate, "S2", AnnotationGFF) {
		t.Error("dfast annotation distinctness failed")
	}
}

func TestValidateSampleID(t *testing.T) {
	for _, sample := range []string{"S1", "sample-7", "ST398_isolate2"} {
		if err := ValidateSampleID(sample); err != nil {
			t.Error("ValidateSampleID rejected", sample)
		}
	}
	for _, sample := range []string{"", ".", "..", "a/b", "a\\b", "reference", "x\x00y"} {
		if err := ValidateSampleID(sample); err == nil {
			t.Error("ValidateSampleID accepted", sample)
		}
	}
}

func TestRunRootName(t *testing.T) {
	id := uuid.MustParse("a81b8402-7d0b-4c0e-8d3a-000000000000")
	at := time.Date(2024, 3, 1, 13, 45, 9, 0, time.UTC)
	name := RunRootName(at, id)
	if name != "Workflow_OUTPUT_2024-03-01_13-45-09_a81b8402" {
		t.Error("RunRootName failed")
	}
	if RunRootName(at, id) != name {
		t.Error("RunRootName determinism failed")
	}
}

func TestStageDirs(t *testing.T) {
	l := New("/runs/out", ProkkaAnnotator)
	dirs := l.StageDirs(true)
	withBlast := len(dirs)
	if len(l.StageDirs(false)) != withBlast-1 {
		t.Error("StageDirs homology toggle failed")
	}
	for _, dir := range dirs {
		if !strings.HasPrefix(dir, "/runs/out") {
			t.Error("StageDirs escaped the run root")
		}
		if filepath.Base(dir) == "Roary_pangenome" {
			t.Error("StageDirs must not pre-create the pan-genome directory")
		}
	}
}

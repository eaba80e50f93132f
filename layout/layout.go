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

// Package layout defines the artifact naming scheme of a pipeline run:
// deterministic mappings from (stage, sample, role) to paths under a
// single run root. Every other package resolves paths through this one,
// so two distinct artifacts can never end up at the same path.
package layout

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stage names one step of the pipeline.
type Stage string

// The pipeline stages, in execution order. The first six run once per
// sample; the remaining six run once over the full sample set.
const (
	Trim           Stage = "trim"
	Filter         Stage = "filter"
	Assemble       Stage = "assemble"
	CurateContigs  Stage = "curate_contigs"
	Stats          Stage = "stats"
	Annotate       Stage = "annotate"
	Typing         Stage = "cross_sample_typing"
	Virulence      Stage = "cross_sample_virulence"
	Resistance     Stage = "cross_sample_resistance"
	HomologySearch Stage = "homology_search"
	Pangenome      Stage = "pangenome"
	PangenomePlots Stage = "pangenome_plots"
)

// SampleStages lists the per-sample stages in execution order.
var SampleStages = []Stage{Trim, Filter, Assemble, CurateContigs, Stats, Annotate}

// Role tags an artifact within a stage.
type Role string

// The artifact roles.
const (
	R1Paired         Role = "R1_paired"
	R2Paired         Role = "R2_paired"
	R1Unpaired       Role = "R1_unpaired"
	R2Unpaired       Role = "R2_unpaired"
	ContigsRaw       Role = "contigs_raw"
	ContigsCurated   Role = "contigs_curated"
	AnnotationGFF    Role = "annotation_gff"
	TypingReport     Role = "typing_report"
	VirulenceReport  Role = "virulence_report"
	ResistanceReport Role = "resistance_report"
	HomologyReport   Role = "homology_report"
)

// Annotator variants.
const (
	ProkkaAnnotator = "prokka"
	DfastAnnotator  = "dfast"
)

// Stage directory names under the run root. The names are kept stable
// across releases because downstream scripts address reports by path.
const (
	trimDir       = "Trimmomatic_filtering1"
	filterDir     = "Prinseq_filtering2"
	assemblyDir   = "SPAdes_assembly"
	statsDir      = "Sample_assembly_statistics"
	curatedDir    = "Contigs_renamed_shorten"
	typingDir     = "MLST"
	virulenceDir  = "ABRicate_virulence_genes"
	resistanceDir = "ABRicateAntibioticResistanceGenes"
	homologyDir   = "BLAST_proteins_screening"
	prokkaDir     = "Prokka_annotation"
	dfastDir      = "DFAST_annotation"
	pangenomeDir  = "Roary_pangenome"
	plotsDir      = "Roary_pangenome_plots"
)

// Fixed report file names.
const (
	TypingReportName     = "MLST.txt"
	VirulenceReportName  = "SampleVirulenceGenes.tab"
	ResistanceReportName = "SampleAntibioticResistanceGenes.tab"
	RawHitsName          = "ProteinScreening.tab"
	HomologyReportName   = "ProteinScreeningCoverage.tab"
	PangenomeSummaryName = "PangenomeSummary.txt"
)

// ReferenceSample is the pseudo-sample id under which an optional
// reference genome is annotated and folded into the pan-genome input
// set. The manifest parser refuses it for real samples.
const ReferenceSample = "reference"

// ValidateSampleID checks that a sample identifier from a manifest can
// be used as a single path component. Identifiers that could escape
// the run root or collide with another sample's subtree are refused.
func ValidateSampleID(sample string) error {
	switch {
	case sample == "":
		return fmt.Errorf("empty sample identifier")
	case sample == ReferenceSample:
		return fmt.Errorf("sample identifier %v is reserved", sample)
	case strings.ContainsAny(sample, "/\\"):
		return fmt.Errorf("invalid sample identifier %v: path separators not allowed", sample)
	case sample == "." || sample == "..":
		return fmt.Errorf("invalid sample identifier %v", sample)
	case strings.ContainsRune(sample, 0):
		return fmt.Errorf("invalid sample identifier: NUL byte")
	}
	return nil
}

// checkSample guards the layout methods against identifiers that never
// passed ValidateSampleID. The reference pseudo-sample is allowed here.
func checkSample(sample string) {
	if sample == "" || sample == "." || sample == ".." ||
		strings.ContainsAny(sample, "/\\") || strings.ContainsRune(sample, 0) {
		log.Panicf("invalid sample identifier %v in layout", sample)
	}
}

// RunRootName returns the directory name for a new run root. The
// timestamp keeps roots sorted and readable; the id fragment keeps two
// runs started in the same second apart.
func RunRootName(t time.Time, id uuid.UUID) string {
	return fmt.Sprintf("Workflow_OUTPUT_%s_%s", t.Format("2006-01-02_15-04-05"), id.String()[:8])
}

// A Layout resolves artifact paths under one run root. The annotation
// directory depends on the annotator variant, which is fixed for the
// duration of a run, so all methods are deterministic.
type Layout struct {
	Root          string
	annotationDir string
	gffBase       func(sample string) string
}

// New returns the layout for a run root and annotator variant.
func New(root, annotator string) Layout {
	l := Layout{Root: root}
	switch annotator {
	case ProkkaAnnotator:
		l.annotationDir = prokkaDir
		l.gffBase = func(sample string) string { return sample + ".gff" }
	case DfastAnnotator:
		l.annotationDir = dfastDir
		l.gffBase = func(string) string { return "genome.gff" }
	default:
		log.Panicf("unknown annotator %v", annotator)
	}
	return l
}

// DirFor returns the directory a stage writes into. Per-sample stages
// take the sample id; cross-sample stages take the empty string. The
// trim and curation stages write all samples into one flat directory.
func (l Layout) DirFor(stage Stage, sample string) string {
	switch stage {
	case Trim:
		return filepath.Join(l.Root, trimDir)
	case CurateContigs:
		return filepath.Join(l.Root, curatedDir)
	case Filter:
		checkSample(sample)
		return filepath.Join(l.Root, filterDir, sample)
	case Assemble:
		checkSample(sample)
		return filepath.Join(l.Root, assemblyDir, sample)
	case Stats:
		checkSample(sample)
		return filepath.Join(l.Root, assemblyDir, sample, statsDir)
	case Annotate:
		checkSample(sample)
		return filepath.Join(l.Root, l.annotationDir, sample)
	}
	if sample != "" {
		log.Panicf("no per-sample directory for stage %v", stage)
	}
	switch stage {
	case Typing:
		return filepath.Join(l.Root, typingDir)
	case Virulence:
		return filepath.Join(l.Root, virulenceDir)
	case Resistance:
		return filepath.Join(l.Root, resistanceDir)
	case HomologySearch:
		return filepath.Join(l.Root, homologyDir)
	case Pangenome:
		return filepath.Join(l.Root, pangenomeDir)
	case PangenomePlots:
		return filepath.Join(l.Root, plotsDir)
	}
	log.Panicf("unknown stage %v", stage)
	return ""
}

// PathFor returns the canonical path of an artifact. It is defined for
// the roles a stage deterministically produces; asking for anything
// else is a programming error and panics. Filter-stage read files keep
// the names the filter tool gave them and are addressed through the
// role map returned by the reclassifier instead.
func (l Layout) PathFor(stage Stage, sample string, role Role) string {
	switch stage {
	case Trim:
		checkSample(sample)
		switch role {
		case R1Paired:
			return filepath.Join(l.DirFor(Trim, sample), sample+"_R1_paired.fastq")
		case R2Paired:
			return filepath.Join(l.DirFor(Trim, sample), sample+"_R2_paired.fastq")
		case R1Unpaired:
			return filepath.Join(l.DirFor(Trim, sample), sample+"_R1_unpaired.fastq")
		case R2Unpaired:
			return filepath.Join(l.DirFor(Trim, sample), sample+"_R2_unpaired.fastq")
		}
	case Assemble:
		if role == ContigsRaw {
			return filepath.Join(l.DirFor(Assemble, sample), "contigs.fasta")
		}
	case CurateContigs:
		if role == ContigsCurated {
			checkSample(sample)
			return filepath.Join(l.DirFor(CurateContigs, sample), sample+"_contigs.fasta")
		}
	case Annotate:
		if role == AnnotationGFF {
			return filepath.Join(l.DirFor(Annotate, sample), l.gffBase(sample))
		}
	case Typing:
		if role == TypingReport && sample == "" {
			return filepath.Join(l.DirFor(Typing, ""), TypingReportName)
		}
	case Virulence:
		if role == VirulenceReport && sample == "" {
			return filepath.Join(l.DirFor(Virulence, ""), VirulenceReportName)
		}
	case Resistance:
		if role == ResistanceReport && sample == "" {
			return filepath.Join(l.DirFor(Resistance, ""), ResistanceReportName)
		}
	case HomologySearch:
		if role == HomologyReport && sample == "" {
			return filepath.Join(l.DirFor(HomologySearch, ""), HomologyReportName)
		}
	}
	log.Panicf("no artifact path for stage %v, sample %q, role %v", stage, sample, role)
	return ""
}

// RawHitsFile is the unprocessed homology-search table the search tool
// writes before post-processing.
func (l Layout) RawHitsFile() string {
	return filepath.Join(l.DirFor(HomologySearch, ""), RawHitsName)
}

// PangenomeSummaryFile is the presence/absence summary written next to
// the plotting outputs.
func (l Layout) PangenomeSummaryFile() string {
	return filepath.Join(l.DirFor(PangenomePlots, ""), PangenomeSummaryName)
}

// LedgerFile is the run ledger database inside a run root. It is a
// function of the root alone so that a resumed run can consult the
// ledger before the rest of the layout is known.
func LedgerFile(root string) string {
	return filepath.Join(root, "run.db")
}

// StageDirs lists the directories to create before any stage runs. The
// pan-genome directory is absent: that tool insists on creating its
// own output directory.
func (l Layout) StageDirs(homologySearch bool) []string {
	dirs := []string{
		filepath.Join(l.Root, trimDir),
		filepath.Join(l.Root, filterDir),
		filepath.Join(l.Root, assemblyDir),
		filepath.Join(l.Root, curatedDir),
		filepath.Join(l.Root, typingDir),
		filepath.Join(l.Root, virulenceDir),
		filepath.Join(l.Root, resistanceDir),
		filepath.Join(l.Root, l.annotationDir),
		filepath.Join(l.Root, plotsDir),
	}
	if homologySearch {
		dirs = append(dirs, filepath.Join(l.Root, homologyDir))
	}
	return dirs
}

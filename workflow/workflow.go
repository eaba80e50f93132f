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

// Package workflow drives a full pipeline run: the per-sample chain
// from raw reads to an annotated assembly, then the cross-sample
// stages over the complete sample set. A failed stage ends its
// sample's chain; it is never retried.
package workflow

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strainlab/strainprep/blast"
	"github.com/strainlab/strainprep/fasta"
	"github.com/strainlab/strainprep/layout"
	"github.com/strainlab/strainprep/ledger"
	"github.com/strainlab/strainprep/pangenome"
	"github.com/strainlab/strainprep/reads"
	"github.com/strainlab/strainprep/tools"
)

// contigMarker replaces the assembler's node prefix in curated contig
// identifiers.
const contigMarker = "C"

// A Config collects the settings of a pipeline run.
type Config struct {
	OutputDir         string
	Annotator         string
	SkipTrimming      bool
	RunBlast          bool
	MinContigLength   int
	MinReadLength     int
	MinMeanQuality    int
	TrimQuality       int
	TrimQualityWindow int
	BlastEvalue       float64
	VirulenceDB       string
	ResistanceDB      string
	// Workers bounds how many samples run their chains at the same
	// time. Values below 1 mean one.
	Workers int
	// Resume names an existing run root to pick up instead of
	// creating a new one. Samples that reached annotation are then
	// skipped; cross-sample stages always run again.
	Resume string
	// Runner executes the external tools. Nil means running them as
	// operating system processes.
	Runner tools.Runner
}

type workflow struct {
	config    Config
	routes    Routes
	layout    layout.Layout
	ledger    *ledger.Ledger
	runner    tools.Runner
	annotator Annotator
	runID     string
	skip      map[string]bool
}

// Run executes the pipeline for a sample set and returns the run
// root.
func Run(ctx context.Context, config Config, samples []Sample, routes Routes) (root string, err error) {
	w, err := prepare(config, routes)
	if err != nil {
		return "", err
	}
	defer func() {
		if nerr := w.ledger.Close(); nerr != nil {
			if err == nil {
				err = nerr
			}
		}
	}()
	root = w.layout.Root
	log.Printf("run root %v", root)
	if err := w.runSamples(ctx, samples); err != nil {
		return root, err
	}
	if err := w.annotateReference(ctx); err != nil {
		return root, err
	}
	if err := w.runCrossSample(ctx, samples); err != nil {
		return root, err
	}
	log.Println("pipeline finished")
	return root, nil
}

func prepare(config Config, routes Routes) (*workflow, error) {
	w := &workflow{config: config, routes: routes, runner: config.Runner}
	if w.runner == nil {
		w.runner = tools.ExecRunner{}
	}
	if config.Resume == "" {
		id := uuid.New()
		now := time.Now()
		// The root is recorded in the ledger and looked up again on
		// resume, so it is stored in absolute form.
		root, err := filepath.Abs(filepath.Join(config.OutputDir, layout.RunRootName(now, id)))
		if err != nil {
			return nil, err
		}
		w.layout = layout.New(root, config.Annotator)
		w.annotator = newAnnotator(config.Annotator, w.layout)
		w.runID = id.String()
		w.skip = make(map[string]bool)
		if err := w.makeStageDirs(); err != nil {
			return nil, err
		}
		led, err := ledger.Open(layout.LedgerFile(root))
		if err != nil {
			return nil, err
		}
		run := ledger.Run{ID: w.runID, Root: root, Annotator: config.Annotator, StartedAt: now}
		if err := led.CreateRun(run); err != nil {
			_ = led.Close()
			return nil, err
		}
		w.ledger = led
		return w, nil
	}
	root, err := filepath.Abs(config.Resume)
	if err != nil {
		return nil, err
	}
	led, err := ledger.Open(layout.LedgerFile(root))
	if err != nil {
		return nil, err
	}
	run, err := led.FindRun(root)
	if err != nil {
		_ = led.Close()
		return nil, err
	}
	// The recorded annotator wins over the configured one: the run
	// root's layout is already committed to it.
	w.layout = layout.New(root, run.Annotator)
	w.annotator = newAnnotator(run.Annotator, w.layout)
	w.runID = run.ID
	skip, err := led.AnnotatedSamples(run.ID)
	if err != nil {
		_ = led.Close()
		return nil, err
	}
	w.skip = skip
	w.ledger = led
	if err := w.makeStageDirs(); err != nil {
		_ = led.Close()
		return nil, err
	}
	log.Printf("resuming run %v with annotator %v", run.ID, run.Annotator)
	return w, nil
}

func (w *workflow) makeStageDirs() error {
	for _, dir := range w.layout.StageDirs(w.config.RunBlast) {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	return nil
}

func (w *workflow) mark(stage layout.Stage, sample string) error {
	return w.ledger.MarkStage(w.runID, sample, stage, time.Now())
}

func stageError(stage layout.Stage, sample string, err error) error {
	if sample == "" {
		return fmt.Errorf("%v: %v", stage, err)
	}
	return fmt.Errorf("%v sample %v: %v", stage, sample, err)
}

// requireArtifacts checks that the artifacts a stage consumes exist
// before the stage runs.
func requireArtifacts(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return err
		}
	}
	return nil
}

// runSamples runs the per-sample chains through a bounded worker
// pool. The first failure cancels the remaining work; chains that are
// already running finish their current stage and stop.
func (w *workflow) runSamples(ctx context.Context, samples []Sample) error {
	workers := w.config.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(samples) {
		workers = len(samples)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	jobs := make(chan Sample)
	var wg sync.WaitGroup
	var mutex sync.Mutex
	var firstErr error
	fail := func(err error) {
		mutex.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mutex.Unlock()
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sample := range jobs {
				if ctx.Err() != nil {
					return
				}
				if err := w.runSample(ctx, sample); err != nil {
					fail(err)
					return
				}
			}
		}()
	}
	for _, sample := range samples {
		select {
		case jobs <- sample:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()
	if firstErr == nil {
		firstErr = ctx.Err()
	}
	return firstErr
}

func (w *workflow) runSample(ctx context.Context, sample Sample) error {
	if w.skip[sample.ID] {
		log.Printf("sample %v already annotated, skipping", sample.ID)
		return nil
	}
	log.Printf("processing sample %v", sample.ID)
	filteredR1, filteredR2, err := w.filterReads(ctx, sample)
	if err != nil {
		return err
	}
	contigs, err := w.assemble(ctx, sample, filteredR1, filteredR2)
	if err != nil {
		return err
	}
	curated, err := w.curate(sample, contigs)
	if err != nil {
		return err
	}
	if err := w.stats(ctx, sample, curated); err != nil {
		return err
	}
	return w.annotate(ctx, sample, curated)
}

// filterReads trims and quality-filters a sample's raw reads and
// returns the filtered pair the assembler consumes. The filter tool
// names its outputs itself and drops them next to its inputs, so they
// are reclassified into the sample's filter directory afterwards.
func (w *workflow) filterReads(ctx context.Context, sample Sample) (string, string, error) {
	inR1, inR2 := sample.R1, sample.R2
	if w.config.SkipTrimming {
		log.Printf("sample %v: trimming disabled", sample.ID)
	} else {
		if err := requireArtifacts(inR1, inR2); err != nil {
			return "", "", stageError(layout.Trim, sample.ID, err)
		}
		pairedR1 := w.layout.PathFor(layout.Trim, sample.ID, layout.R1Paired)
		pairedR2 := w.layout.PathFor(layout.Trim, sample.ID, layout.R2Paired)
		trim := tools.Trimmomatic(inR1, inR2,
			pairedR1,
			w.layout.PathFor(layout.Trim, sample.ID, layout.R1Unpaired),
			pairedR2,
			w.layout.PathFor(layout.Trim, sample.ID, layout.R2Unpaired),
			w.routes.Adapters)
		if err := w.runner.Run(ctx, trim); err != nil {
			return "", "", stageError(layout.Trim, sample.ID, err)
		}
		if err := requireArtifacts(pairedR1, pairedR2); err != nil {
			return "", "", stageError(layout.Trim, sample.ID, err)
		}
		if err := w.mark(layout.Trim, sample.ID); err != nil {
			return "", "", err
		}
		inR1, inR2 = pairedR1, pairedR2
	}
	filterDir := w.layout.DirFor(layout.Filter, sample.ID)
	if err := os.MkdirAll(filterDir, 0700); err != nil {
		return "", "", stageError(layout.Filter, sample.ID, err)
	}
	logFile := filepath.Join(filterDir, sample.ID+".log")
	filter := tools.Prinseq(inR1, inR2,
		w.config.MinReadLength, w.config.MinMeanQuality,
		w.config.TrimQuality, w.config.TrimQualityWindow, logFile)
	if err := w.runner.Run(ctx, filter); err != nil {
		return "", "", stageError(layout.Filter, sample.ID, err)
	}
	roles, err := reads.Refile(filepath.Dir(inR1), filterDir, sample.ID)
	if err != nil {
		return "", "", stageError(layout.Filter, sample.ID, err)
	}
	filteredR1, ok := roles[layout.R1Paired]
	if !ok {
		return "", "", stageError(layout.Filter, sample.ID, fmt.Errorf("no filtered forward reads"))
	}
	filteredR2, ok := roles[layout.R2Paired]
	if !ok {
		return "", "", stageError(layout.Filter, sample.ID, fmt.Errorf("no filtered reverse reads"))
	}
	if err := w.mark(layout.Filter, sample.ID); err != nil {
		return "", "", err
	}
	return filteredR1, filteredR2, nil
}

func (w *workflow) assemble(ctx context.Context, sample Sample, r1, r2 string) (string, error) {
	if err := requireArtifacts(r1, r2); err != nil {
		return "", stageError(layout.Assemble, sample.ID, err)
	}
	dir := w.layout.DirFor(layout.Assemble, sample.ID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", stageError(layout.Assemble, sample.ID, err)
	}
	if err := w.runner.Run(ctx, tools.Spades(r1, r2, dir)); err != nil {
		return "", stageError(layout.Assemble, sample.ID, err)
	}
	contigs := w.layout.PathFor(layout.Assemble, sample.ID, layout.ContigsRaw)
	if err := requireArtifacts(contigs); err != nil {
		return "", stageError(layout.Assemble, sample.ID, fmt.Errorf("assembler produced no contigs: %v", err))
	}
	if err := w.mark(layout.Assemble, sample.ID); err != nil {
		return "", err
	}
	return contigs, nil
}

func (w *workflow) curate(sample Sample, contigs string) (string, error) {
	curated := w.layout.PathFor(layout.CurateContigs, sample.ID, layout.ContigsCurated)
	if err := fasta.CurateFile(contigs, curated, w.config.MinContigLength, contigMarker); err != nil {
		return "", stageError(layout.CurateContigs, sample.ID, err)
	}
	if err := w.mark(layout.CurateContigs, sample.ID); err != nil {
		return "", err
	}
	return curated, nil
}

func (w *workflow) stats(ctx context.Context, sample Sample, curated string) error {
	dir := w.layout.DirFor(layout.Stats, sample.ID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return stageError(layout.Stats, sample.ID, err)
	}
	if err := w.runner.Run(ctx, tools.Quast(curated, dir, w.config.MinContigLength)); err != nil {
		return stageError(layout.Stats, sample.ID, err)
	}
	return w.mark(layout.Stats, sample.ID)
}

func (w *workflow) annotate(ctx context.Context, sample Sample, curated string) error {
	if _, err := w.annotator.Annotate(ctx, w.runner, sample.ID, curated); err != nil {
		return stageError(layout.Annotate, sample.ID, err)
	}
	return w.mark(layout.Annotate, sample.ID)
}

// annotateReference pushes the optional reference genome through the
// annotation stage so the pan-genome stage sees it as one more
// sample.
func (w *workflow) annotateReference(ctx context.Context) error {
	if w.routes.ReferenceGenome == "" {
		return nil
	}
	if w.skip[layout.ReferenceSample] {
		log.Println("reference genome already annotated, skipping")
		return nil
	}
	if err := requireArtifacts(w.routes.ReferenceGenome); err != nil {
		return stageError(layout.Annotate, layout.ReferenceSample, err)
	}
	log.Println("annotating the reference genome")
	if _, err := w.annotator.Annotate(ctx, w.runner, layout.ReferenceSample, w.routes.ReferenceGenome); err != nil {
		return stageError(layout.Annotate, layout.ReferenceSample, err)
	}
	return w.mark(layout.Annotate, layout.ReferenceSample)
}

func (w *workflow) runCrossSample(ctx context.Context, samples []Sample) error {
	contigs := make([]string, 0, len(samples))
	for _, sample := range samples {
		contigs = append(contigs, w.layout.PathFor(layout.CurateContigs, sample.ID, layout.ContigsCurated))
	}
	if err := requireArtifacts(contigs...); err != nil {
		return stageError(layout.Typing, "", err)
	}
	log.Println("typing all samples")
	typing := tools.MLST(contigs, w.layout.PathFor(layout.Typing, "", layout.TypingReport))
	if err := w.runner.Run(ctx, typing); err != nil {
		return stageError(layout.Typing, "", err)
	}
	if err := w.mark(layout.Typing, ""); err != nil {
		return err
	}
	log.Println("screening virulence genes")
	virulence := tools.Abricate(contigs, w.config.VirulenceDB, w.layout.PathFor(layout.Virulence, "", layout.VirulenceReport))
	if err := w.runner.Run(ctx, virulence); err != nil {
		return stageError(layout.Virulence, "", err)
	}
	if err := w.mark(layout.Virulence, ""); err != nil {
		return err
	}
	log.Println("screening antibiotic resistance genes")
	resistance := tools.Abricate(contigs, w.config.ResistanceDB, w.layout.PathFor(layout.Resistance, "", layout.ResistanceReport))
	if err := w.runner.Run(ctx, resistance); err != nil {
		return stageError(layout.Resistance, "", err)
	}
	if err := w.mark(layout.Resistance, ""); err != nil {
		return err
	}
	if w.config.RunBlast {
		if err := w.screenProteins(ctx, contigs); err != nil {
			return err
		}
	}
	return w.runPangenome(ctx, samples)
}

// screenProteins searches the reference proteins against a database
// built from all curated assemblies, then turns the raw hit table
// into the coverage report.
func (w *workflow) screenProteins(ctx context.Context, contigs []string) error {
	dir := w.layout.DirFor(layout.HomologySearch, "")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return stageError(layout.HomologySearch, "", err)
	}
	all := filepath.Join(dir, "AllContigs.fasta")
	if err := concatenateFiles(contigs, all); err != nil {
		return stageError(layout.HomologySearch, "", err)
	}
	db := filepath.Join(dir, "contigs_db")
	if err := w.runner.Run(ctx, tools.MakeBlastDB(all, db)); err != nil {
		return stageError(layout.HomologySearch, "", err)
	}
	rawHits := w.layout.RawHitsFile()
	log.Println("screening the reference proteins")
	search := tools.TBlastn(w.routes.ReferenceProteins, db, w.config.BlastEvalue, rawHits)
	if err := w.runner.Run(ctx, search); err != nil {
		return stageError(layout.HomologySearch, "", err)
	}
	report, err := blast.Process(rawHits, w.routes.ReferenceProteins, dir)
	if err != nil {
		return stageError(layout.HomologySearch, "", err)
	}
	log.Printf("protein screening report written to %v", report)
	return w.mark(layout.HomologySearch, "")
}

func concatenateFiles(files []string, target string) (err error) {
	out, err := os.Create(target)
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
	for _, file := range files {
		in, err := os.Open(file)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			_ = in.Close()
			return err
		}
		if err := in.Close(); err != nil {
			return err
		}
	}
	return nil
}

// runPangenome infers the pan-genome over all annotated samples, then
// draws the plots and writes the presence/absence summary.
func (w *workflow) runPangenome(ctx context.Context, samples []Sample) error {
	gffs := make([]string, 0, len(samples)+1)
	for _, sample := range samples {
		gffs = append(gffs, w.layout.PathFor(layout.Annotate, sample.ID, layout.AnnotationGFF))
	}
	if w.routes.ReferenceGenome != "" {
		gffs = append(gffs, w.layout.PathFor(layout.Annotate, layout.ReferenceSample, layout.AnnotationGFF))
	}
	if err := requireArtifacts(gffs...); err != nil {
		return stageError(layout.Pangenome, "", err)
	}
	dir := w.layout.DirFor(layout.Pangenome, "")
	// The pan-genome tool will not write into an existing directory.
	if err := os.RemoveAll(dir); err != nil {
		return stageError(layout.Pangenome, "", err)
	}
	log.Println("inferring the pan-genome")
	if err := w.runner.Run(ctx, tools.Roary(dir, gffs)); err != nil {
		return stageError(layout.Pangenome, "", err)
	}
	matrix := filepath.Join(dir, pangenome.MatrixName)
	if err := requireArtifacts(matrix); err != nil {
		return stageError(layout.Pangenome, "", err)
	}
	if err := w.mark(layout.Pangenome, ""); err != nil {
		return err
	}
	plotsDir := w.layout.DirFor(layout.PangenomePlots, "")
	if err := os.MkdirAll(plotsDir, 0700); err != nil {
		return stageError(layout.PangenomePlots, "", err)
	}
	if err := w.runner.Run(ctx, tools.RoaryPlots(dir, plotsDir)); err != nil {
		return stageError(layout.PangenomePlots, "", err)
	}
	summary, err := pangenome.FromRtabFile(matrix)
	if err != nil {
		return stageError(layout.PangenomePlots, "", err)
	}
	if err := summary.WriteFile(w.layout.PangenomeSummaryFile()); err != nil {
		return stageError(layout.PangenomePlots, "", err)
	}
	if err := w.mark(layout.PangenomePlots, ""); err != nil {
		return err
	}
	log.Printf("pan-genome summary written to %v", w.layout.PangenomeSummaryFile())
	return nil
}

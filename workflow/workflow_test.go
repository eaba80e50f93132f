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
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/strainlab/strainprep/blast"
	"github.com/strainlab/strainprep/layout"
	"github.com/strainlab/strainprep/ledger"
	"github.com/strainlab/strainprep/pangenome"
	"github.com/strainlab/strainprep/tools"
)

// fakeRunner simulates the external tools by creating the artifacts
// they would produce.
type fakeRunner struct {
	mutex sync.Mutex
	calls []string
	fail  map[string]error
}

func (r *fakeRunner) record(name string) {
	r.mutex.Lock()
	r.calls = append(r.calls, name)
	r.mutex.Unlock()
}

func (r *fakeRunner) count(name string) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	n := 0
	for _, call := range r.calls {
		if call == name {
			n++
		}
	}
	return n
}

func (r *fakeRunner) snapshot() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]string{}, r.calls...)
}

func writeFakeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0600)
}

func fakeReport(tool tools.Tool, body string) error {
	if tool.Header != "" {
		body = tool.Header + "\n" + body
	}
	return writeFakeFile(tool.Stdout, body)
}

func (r *fakeRunner) Run(_ context.Context, tool tools.Tool) error {
	r.record(tool.Name)
	r.mutex.Lock()
	err := r.fail[tool.Name]
	r.mutex.Unlock()
	if err != nil {
		return fmt.Errorf("%v: %v", tool.Name, err)
	}
	switch tool.Name {
	case "trimmomatic":
		for _, out := range tool.Args[4:8] {
			if err := writeFakeFile(out, "@r\nACGT\n+\nFFFF\n"); err != nil {
				return err
			}
		}
		return nil
	case "prinseq-lite.pl":
		for _, in := range []string{tool.Args[2], tool.Args[4]} {
			base := strings.TrimSuffix(in, ".fastq")
			if err := writeFakeFile(base+"_prinseq_good_0001.fastq", "@r\nACGT\n+\nFFFF\n"); err != nil {
				return err
			}
		}
		singletons := strings.TrimSuffix(tool.Args[2], ".fastq") + "_prinseq_good_singletons_0001.fastq"
		return writeFakeFile(singletons, "@r\nACGT\n+\nFFFF\n")
	case "spades.py":
		contigs := ">NODE_1_length_300_cov_12.5\n" + strings.Repeat("ACGTACGTAC", 30) + "\n" +
			">NODE_2_length_50_cov_3.1\n" + strings.Repeat("ACGTA", 10) + "\n"
		return writeFakeFile(filepath.Join(tool.Args[6], "contigs.fasta"), contigs)
	case "quast":
		return writeFakeFile(filepath.Join(tool.Args[2], "report.txt"), "Assembly\tstatistics\n")
	case "prokka":
		dir, prefix := tool.Args[3], tool.Args[5]
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
		return writeFakeFile(filepath.Join(dir, prefix+".gff"), "##gff-version 3\n")
	case "dfast":
		if err := os.MkdirAll(tool.Args[3], 0700); err != nil {
			return err
		}
		return writeFakeFile(filepath.Join(tool.Args[3], "genome.gff"), "##gff-version 3\n")
	case "mlst":
		return fakeReport(tool, "S1_contigs.fasta\tsenterica\t11\n")
	case "abricate":
		return fakeReport(tool, "#FILE\tSEQUENCE\tSTART\tEND\tGENE\n")
	case "makeblastdb":
		return nil
	case "tblastn":
		return fakeReport(tool,
			"prot1\tC_1_length_300\t99.0\t75\t1\t0\t1\t75\t100\t324\t1e-50\t200\tMKV\n"+
				"prot1\tC_1_length_300\t40.0\t75\t40\t0\t1\t75\t100\t324\t1e-10\t80\tMKV\n")
	case "roary":
		dir := tool.Args[1]
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
		names := make([]string, 0, len(tool.Args)-4)
		for _, gff := range tool.Args[4:] {
			names = append(names, strings.TrimSuffix(filepath.Base(gff), ".gff"))
		}
		matrix := "Gene\t" + strings.Join(names, "\t") + "\n" +
			"groEL" + strings.Repeat("\t1", len(names)) + "\n" +
			"accA\t1" + strings.Repeat("\t0", len(names)-1) + "\n"
		return writeFakeFile(filepath.Join(dir, pangenome.MatrixName), matrix)
	case "roary_plots.py":
		return writeFakeFile(filepath.Join(tool.Dir, "pangenome_matrix.png"), "png\n")
	}
	return fmt.Errorf("unexpected tool %v", tool.Name)
}

type testFixture struct {
	tmp     string
	cfg     Config
	samples []Sample
	routes  Routes
	runner  *fakeRunner
}

func writeTestFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatal(err)
	}
}

func newTestFixture(t *testing.T, sampleIDs ...string) *testFixture {
	t.Helper()
	tmp := t.TempDir()
	rawDir := filepath.Join(tmp, "raw")
	if err := os.MkdirAll(rawDir, 0700); err != nil {
		t.Fatal(err)
	}
	var samples []Sample
	for _, id := range sampleIDs {
		r1 := filepath.Join(rawDir, id+"_R1.fastq")
		r2 := filepath.Join(rawDir, id+"_R2.fastq")
		writeTestFile(t, r1, "@r1\nACGT\n+\nFFFF\n")
		writeTestFile(t, r2, "@r2\nACGT\n+\nFFFF\n")
		samples = append(samples, Sample{ID: id, R1: r1, R2: r2})
	}
	adapters := filepath.Join(tmp, "adapters.fa")
	writeTestFile(t, adapters, ">adapter\nACGTACGT\n")
	runner := &fakeRunner{fail: make(map[string]error)}
	return &testFixture{
		tmp: tmp,
		cfg: Config{
			OutputDir:         filepath.Join(tmp, "runs"),
			Annotator:         layout.ProkkaAnnotator,
			MinContigLength:   200,
			MinReadLength:     40,
			MinMeanQuality:    25,
			TrimQuality:       25,
			TrimQualityWindow: 15,
			BlastEvalue:       1e-3,
			VirulenceDB:       "vfdb",
			ResistanceDB:      "resfinder",
			Workers:           1,
			Runner:            runner,
		},
		samples: samples,
		routes:  Routes{Adapters: adapters},
		runner:  runner,
	}
}

func TestRunPipeline(t *testing.T) {
	f := newTestFixture(t, "S1", "S2")
	proteins := filepath.Join(f.tmp, "proteins.faa")
	writeTestFile(t, proteins, ">prot1 toxin\n"+strings.Repeat("M", 150)+"\n")
	f.routes.ReferenceProteins = proteins
	f.cfg.RunBlast = true
	reference := filepath.Join(f.tmp, "reference.fasta")
	writeTestFile(t, reference, ">chr1\nACGTACGT\n")
	f.routes.ReferenceGenome = reference
	f.cfg.Workers = 2

	root, err := Run(context.Background(), f.cfg, f.samples, f.routes)
	if err != nil {
		t.Fatal(err)
	}
	lay := layout.New(root, layout.ProkkaAnnotator)

	curated, err := os.ReadFile(lay.PathFor(layout.CurateContigs, "S1", layout.ContigsCurated))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(curated), ">C_1_length_300") {
		t.Error("curation renaming failed")
	}
	if strings.Contains(string(curated), "NODE_2") {
		t.Error("curation length filter failed")
	}

	for _, path := range []string{
		lay.PathFor(layout.Typing, "", layout.TypingReport),
		lay.PathFor(layout.Virulence, "", layout.VirulenceReport),
		lay.PathFor(layout.Resistance, "", layout.ResistanceReport),
		lay.PathFor(layout.HomologySearch, "", layout.HomologyReport),
		lay.PathFor(layout.Annotate, layout.ReferenceSample, layout.AnnotationGFF),
		lay.PangenomeSummaryFile(),
		filepath.Join(lay.DirFor(layout.Filter, "S1"), "S1_R1_paired_prinseq_good_0001.fastq"),
	} {
		if _, err := os.Stat(path); err != nil {
			t.Error("missing artifact:", err)
		}
	}
	singletons := filepath.Join(lay.DirFor(layout.Trim, ""), "S1_R1_paired_prinseq_good_singletons_0001.fastq")
	if _, err := os.Stat(singletons); !os.IsNotExist(err) {
		t.Error("singleton reads not deleted")
	}

	report, err := os.ReadFile(lay.PathFor(layout.HomologySearch, "", layout.HomologyReport))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(report), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatal("screening report row count failed:", len(lines))
	}
	if lines[0] != strings.Join(blast.ProcessedColumns, "\t") {
		t.Error("screening report header failed")
	}
	if lines[1] != "prot1\tC_1_length_300\t150\t50.00\t99.0\t75\t1\t0\t1\t75\t100\t324\t1e-50\t200\tMKV" {
		t.Error("screening report row failed:", lines[1])
	}

	summary, err := os.ReadFile(lay.PangenomeSummaryFile())
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Core genes", "S1\t2", "reference\t1"} {
		if !strings.Contains(string(summary), want) {
			t.Error("pan-genome summary misses", want)
		}
	}

	for name, want := range map[string]int{
		"trimmomatic":     2,
		"prinseq-lite.pl": 2,
		"spades.py":       2,
		"quast":           2,
		"prokka":          3,
		"mlst":            1,
		"abricate":        2,
		"makeblastdb":     1,
		"tblastn":         1,
		"roary":           1,
		"roary_plots.py":  1,
	} {
		if got := f.runner.count(name); got != want {
			t.Errorf("tool %v ran %v times, want %v", name, got, want)
		}
	}

	led, err := ledger.Open(layout.LedgerFile(root))
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := led.Close(); err != nil {
			t.Error(err)
		}
	}()
	run, err := led.FindRun(root)
	if err != nil {
		t.Fatal(err)
	}
	annotated, err := led.AnnotatedSamples(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(annotated) != 3 || !annotated["S1"] || !annotated["S2"] || !annotated[layout.ReferenceSample] {
		t.Error("annotation ledger failed:", annotated)
	}
	cross, err := led.ReachedStages(run.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(cross) != 6 {
		t.Error("cross-sample ledger failed:", cross)
	}
}

func TestRunStageFailure(t *testing.T) {
	f := newTestFixture(t, "S1", "S2")
	f.runner.fail["spades.py"] = errors.New("exit status 1")
	root, err := Run(context.Background(), f.cfg, f.samples, f.routes)
	if err == nil {
		t.Fatal("Run accepted a failing assembly")
	}
	if err.Error() != "assemble sample S1: spades.py: exit status 1" {
		t.Error("stage error failed:", err)
	}
	if f.runner.count("spades.py") != 1 {
		t.Error("failed stage was retried")
	}
	if f.runner.count("mlst") != 0 {
		t.Error("cross-sample stage ran after a failed chain")
	}
	lay := layout.New(root, layout.ProkkaAnnotator)
	if _, err := os.Stat(lay.PathFor(layout.Trim, "S2", layout.R1Paired)); !os.IsNotExist(err) {
		t.Error("later sample was started after the failure")
	}
	led, err := ledger.Open(layout.LedgerFile(root))
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := led.Close(); err != nil {
			t.Error(err)
		}
	}()
	run, err := led.FindRun(root)
	if err != nil {
		t.Fatal(err)
	}
	stages, err := led.ReachedStages(run.ID, "S1")
	if err != nil {
		t.Fatal(err)
	}
	if !stages[layout.Trim] || !stages[layout.Filter] || stages[layout.Assemble] {
		t.Error("stage ledger after failure failed:", stages)
	}
}

func TestRunSkipTrimming(t *testing.T) {
	f := newTestFixture(t, "S3")
	f.cfg.SkipTrimming = true
	root, err := Run(context.Background(), f.cfg, f.samples, f.routes)
	if err != nil {
		t.Fatal(err)
	}
	if f.runner.count("trimmomatic") != 0 {
		t.Error("trimming ran although disabled")
	}
	lay := layout.New(root, layout.ProkkaAnnotator)
	filtered := filepath.Join(lay.DirFor(layout.Filter, "S3"), "S3_R1_prinseq_good_0001.fastq")
	if _, err := os.Stat(filtered); err != nil {
		t.Error("filtered reads not reclassified:", err)
	}
	leftover := filepath.Join(f.tmp, "raw", "S3_R1_prinseq_good_0001.fastq")
	if _, err := os.Stat(leftover); !os.IsNotExist(err) {
		t.Error("filter output left next to the raw reads")
	}
}

func TestRunResume(t *testing.T) {
	f := newTestFixture(t, "S1", "S2")
	f.runner.fail["mlst"] = errors.New("exit status 2")
	root, err := Run(context.Background(), f.cfg, f.samples, f.routes)
	if err == nil {
		t.Fatal("Run accepted a failing typing stage")
	}
	if !strings.Contains(err.Error(), "cross_sample_typing: mlst") {
		t.Error("cross-sample stage error failed:", err)
	}
	delete(f.runner.fail, "mlst")
	before := len(f.runner.snapshot())

	resumed := f.cfg
	resumed.Resume = root
	root2, err := Run(context.Background(), resumed, f.samples, f.routes)
	if err != nil {
		t.Fatal(err)
	}
	if root2 != root {
		t.Error("resume moved the run root:", root2)
	}
	tail := f.runner.snapshot()[before:]
	want := "mlst abricate abricate roary roary_plots.py"
	if strings.Join(tail, " ") != want {
		t.Errorf("resume reran the wrong tools: got %v, want %v", strings.Join(tail, " "), want)
	}
}

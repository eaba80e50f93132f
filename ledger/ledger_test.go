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

package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/strainlab/strainprep/layout"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "run.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := l.Close(); err != nil {
			t.Error(err)
		}
	})
	return l
}

func TestCreateAndFindRun(t *testing.T) {
	l := openTestLedger(t)
	run := Run{
		ID:        "a81b8402",
		Root:      "/runs/Workflow_OUTPUT_x",
		Annotator: layout.ProkkaAnnotator,
		StartedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := l.CreateRun(run); err != nil {
		t.Fatal(err)
	}
	found, err := l.FindRun(run.Root)
	if err != nil {
		t.Fatal(err)
	}
	if found.ID != run.ID || found.Annotator != run.Annotator || !found.StartedAt.Equal(run.StartedAt) {
		t.Error("FindRun failed:", found)
	}
	if _, err := l.FindRun("/runs/absent"); err == nil {
		t.Error("FindRun accepted an unknown run root")
	}
}

func TestRunsOrder(t *testing.T) {
	l := openTestLedger(t)
	older := Run{ID: "r1", Root: "/a", Annotator: layout.ProkkaAnnotator, StartedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	newer := Run{ID: "r2", Root: "/b", Annotator: layout.DfastAnnotator, StartedAt: time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)}
	if err := l.CreateRun(older); err != nil {
		t.Fatal(err)
	}
	if err := l.CreateRun(newer); err != nil {
		t.Fatal(err)
	}
	runs, err := l.Runs()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "r2" || runs[1].ID != "r1" {
		t.Error("Runs order failed")
	}
}

func TestMarkStage(t *testing.T) {
	l := openTestLedger(t)
	at := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	for _, stage := range []layout.Stage{layout.Trim, layout.Filter} {
		if err := l.MarkStage("r1", "S1", stage, at); err != nil {
			t.Fatal(err)
		}
	}
	// Remarking must not conflict.
	if err := l.MarkStage("r1", "S1", layout.Filter, at.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := l.MarkStage("r1", "", layout.Typing, at); err != nil {
		t.Fatal(err)
	}
	stages, err := l.ReachedStages("r1", "S1")
	if err != nil {
		t.Fatal(err)
	}
	if len(stages) != 2 || !stages[layout.Trim] || !stages[layout.Filter] {
		t.Error("ReachedStages failed:", stages)
	}
	cross, err := l.ReachedStages("r1", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(cross) != 1 || !cross[layout.Typing] {
		t.Error("ReachedStages cross-sample failed:", cross)
	}
	if other, err := l.ReachedStages("r2", "S1"); err != nil || len(other) != 0 {
		t.Error("ReachedStages leaked across runs")
	}
}

func TestAnnotatedSamples(t *testing.T) {
	l := openTestLedger(t)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, stage := range layout.SampleStages {
		if err := l.MarkStage("r1", "S1", stage, at); err != nil {
			t.Fatal(err)
		}
	}
	if err := l.MarkStage("r1", "S2", layout.Assemble, at); err != nil {
		t.Fatal(err)
	}
	samples, err := l.AnnotatedSamples("r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 1 || !samples["S1"] {
		t.Error("AnnotatedSamples failed:", samples)
	}
}

func TestStageLog(t *testing.T) {
	l := openTestLedger(t)
	at := time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)
	if err := l.MarkStage("r1", "S1", layout.Trim, at); err != nil {
		t.Fatal(err)
	}
	if err := l.MarkStage("r1", "S1", layout.Filter, at.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	entries, err := l.StageLog("r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Stage != layout.Trim || entries[1].Stage != layout.Filter {
		t.Error("StageLog failed:", entries)
	}
	if !entries[1].CompletedAt.After(entries[0].CompletedAt) {
		t.Error("StageLog order failed")
	}
}

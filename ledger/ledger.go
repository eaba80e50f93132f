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

// Package ledger records which stages completed for which samples in a
// small database inside the run root, so that interrupted runs can be
// resumed and inspected.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/strainlab/strainprep/layout"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	root TEXT NOT NULL,
	annotator TEXT NOT NULL,
	started_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS sample_stages (
	run_id TEXT NOT NULL,
	sample TEXT NOT NULL,
	stage TEXT NOT NULL,
	completed_at TEXT NOT NULL,
	PRIMARY KEY (run_id, sample, stage)
);`

// A Ledger is an open run ledger.
type Ledger struct {
	db *sql.DB
}

// Open opens the ledger database at path, creating it and its tables
// when absent.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Stage marks arrive from multiple workers; a single connection
	// keeps the writes serialized.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Ledger{db: db}, nil
}

// Close closes the ledger database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// A Run is one recorded pipeline run.
type Run struct {
	ID        string
	Root      string
	Annotator string
	StartedAt time.Time
}

// CreateRun records a new run. The run id must be unused.
func (l *Ledger) CreateRun(run Run) error {
	_, err := l.db.Exec(
		`INSERT INTO runs (id, root, annotator, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Root, run.Annotator, run.StartedAt.UTC().Format(time.RFC3339))
	return err
}

// FindRun returns the most recently started run recorded for a run
// root.
func (l *Ledger) FindRun(root string) (Run, error) {
	row := l.db.QueryRow(
		`SELECT id, root, annotator, started_at FROM runs WHERE root = ? ORDER BY started_at DESC LIMIT 1`,
		root)
	var run Run
	var started string
	if err := row.Scan(&run.ID, &run.Root, &run.Annotator, &started); err != nil {
		if err == sql.ErrNoRows {
			return Run{}, fmt.Errorf("no recorded run for run root %v", root)
		}
		return Run{}, err
	}
	var err error
	run.StartedAt, err = time.Parse(time.RFC3339, started)
	return run, err
}

// Runs lists all recorded runs, most recently started first.
func (l *Ledger) Runs() ([]Run, error) {
	rows, err := l.db.Query(
		`SELECT id, root, annotator, started_at FROM runs ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var runs []Run
	for rows.Next() {
		var run Run
		var started string
		if err := rows.Scan(&run.ID, &run.Root, &run.Annotator, &started); err != nil {
			return nil, err
		}
		if run.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// MarkStage records that a stage completed for a sample. Cross-sample
// stages are recorded under the empty sample. Remarking a stage keeps
// the latest timestamp.
func (l *Ledger) MarkStage(runID, sample string, stage layout.Stage, at time.Time) error {
	_, err := l.db.Exec(
		`INSERT OR REPLACE INTO sample_stages (run_id, sample, stage, completed_at) VALUES (?, ?, ?, ?)`,
		runID, sample, string(stage), at.UTC().Format(time.RFC3339))
	return err
}

// ReachedStages returns the set of stages recorded as completed for a
// sample.
func (l *Ledger) ReachedStages(runID, sample string) (map[layout.Stage]bool, error) {
	rows, err := l.db.Query(
		`SELECT stage FROM sample_stages WHERE run_id = ? AND sample = ?`,
		runID, sample)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	stages := make(map[layout.Stage]bool)
	for rows.Next() {
		var stage string
		if err := rows.Scan(&stage); err != nil {
			return nil, err
		}
		stages[layout.Stage(stage)] = true
	}
	return stages, rows.Err()
}

// AnnotatedSamples returns the samples whose per-sample chain ran to
// completion, which is what a resumed run may skip.
func (l *Ledger) AnnotatedSamples(runID string) (map[string]bool, error) {
	rows, err := l.db.Query(
		`SELECT sample FROM sample_stages WHERE run_id = ? AND stage = ?`,
		runID, string(layout.Annotate))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	samples := make(map[string]bool)
	for rows.Next() {
		var sample string
		if err := rows.Scan(&sample); err != nil {
			return nil, err
		}
		samples[sample] = true
	}
	return samples, rows.Err()
}

// A StageEntry is one completed stage of a run.
type StageEntry struct {
	Sample      string
	Stage       layout.Stage
	CompletedAt time.Time
}

// StageLog lists the completed stages of a run in completion order.
func (l *Ledger) StageLog(runID string) ([]StageEntry, error) {
	rows, err := l.db.Query(
		`SELECT sample, stage, completed_at FROM sample_stages WHERE run_id = ? ORDER BY completed_at, sample, stage`,
		runID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var entries []StageEntry
	for rows.Next() {
		var entry StageEntry
		var stage, completed string
		if err := rows.Scan(&entry.Sample, &stage, &completed); err != nil {
			return nil, err
		}
		entry.Stage = layout.Stage(stage)
		if entry.CompletedAt, err = time.Parse(time.RFC3339, completed); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

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
	"fmt"
	"os"

	"github.com/strainlab/strainprep/layout"
	"github.com/strainlab/strainprep/tools"
)

// An Annotator turns one genome into one annotation record file. Both
// variants expose the same contract so everything downstream of the
// annotation stage is variant-agnostic.
type Annotator interface {
	Name() string
	// Annotate annotates the genome in contigs and returns the path
	// of the annotation record file it produced for the sample.
	Annotate(ctx context.Context, runner tools.Runner, sample, contigs string) (string, error)
}

// newAnnotator returns the annotator variant for a name that already
// passed configuration checks.
func newAnnotator(name string, lay layout.Layout) Annotator {
	switch name {
	case layout.ProkkaAnnotator:
		return prokkaAnnotator{lay}
	case layout.DfastAnnotator:
		return dfastAnnotator{lay}
	}
	panic(fmt.Sprintf("unknown annotator %v", name))
}

type prokkaAnnotator struct {
	layout layout.Layout
}

func (a prokkaAnnotator) Name() string {
	return layout.ProkkaAnnotator
}

func (a prokkaAnnotator) Annotate(ctx context.Context, runner tools.Runner, sample, contigs string) (string, error) {
	dir := a.layout.DirFor(layout.Annotate, sample)
	// The tool refuses an existing output directory, so a leftover
	// from an aborted attempt is cleared first.
	if err := os.RemoveAll(dir); err != nil {
		return "", err
	}
	if err := runner.Run(ctx, tools.Prokka(contigs, dir, sample)); err != nil {
		return "", err
	}
	return annotationRecord(a.layout, sample)
}

type dfastAnnotator struct {
	layout layout.Layout
}

func (a dfastAnnotator) Name() string {
	return layout.DfastAnnotator
}

func (a dfastAnnotator) Annotate(ctx context.Context, runner tools.Runner, sample, contigs string) (string, error) {
	dir := a.layout.DirFor(layout.Annotate, sample)
	if err := os.RemoveAll(dir); err != nil {
		return "", err
	}
	if err := runner.Run(ctx, tools.Dfast(contigs, dir, sample)); err != nil {
		return "", err
	}
	return annotationRecord(a.layout, sample)
}

// annotationRecord checks that the annotation stage delivered its
// record file and returns its path.
func annotationRecord(lay layout.Layout, sample string) (string, error) {
	gff := lay.PathFor(layout.Annotate, sample, layout.AnnotationGFF)
	if _, err := os.Stat(gff); err != nil {
		return "", fmt.Errorf("annotation record for sample %v missing: %v", sample, err)
	}
	return gff, nil
}

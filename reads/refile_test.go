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

package reads

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/strainlab/strainprep/layout"
)

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("@read\nACGT\n+\nIIII\n"), 0666); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRefile(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	touch(t, src, "S1_R1_paired.prinseq.fastq")
	touch(t, src, "S1_R2_paired.prinseq.fastq")
	singleton := touch(t, src, "S1_R1_singletons.prinseq.fastq")
	untouched := touch(t, src, "S1_R1_paired.fastq")

	roles, err := Refile(src, dest, "S1")
	if err != nil {
		t.Fatal(err)
	}
	if len(roles) != 2 {
		t.Fatal("Refile role count failed")
	}
	if roles[layout.R1Paired] != filepath.Join(dest, "S1_R1_paired.prinseq.fastq") {
		t.Error("Refile R1 classification failed")
	}
	if roles[layout.R2Paired] != filepath.Join(dest, "S1_R2_paired.prinseq.fastq") {
		t.Error("Refile R2 classification failed")
	}
	if _, err := os.Stat(roles[layout.R1Paired]); err != nil {
		t.Error("Refile move failed")
	}
	if _, err := os.Stat(singleton); !os.IsNotExist(err) {
		t.Error("Refile singleton deletion failed")
	}
	if _, err := os.Stat(untouched); err != nil {
		t.Error("Refile touched a file without the filter marker")
	}
}

func TestRefileMissingRole(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	touch(t, src, "S1_R1_paired.prinseq.fastq")

	roles, err := Refile(src, dest, "S1")
	if err != nil {
		t.Fatal(err)
	}
	if len(roles) != 1 {
		t.Fatal("Refile partial role count failed")
	}
	if _, ok := roles[layout.R2Paired]; ok {
		t.Error("Refile reported a role it never saw")
	}
}

func TestRefileLeavesSiblingSamples(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	touch(t, src, "S1_R1_paired.prinseq.fastq")
	sibling := touch(t, src, "S2_R1_paired.prinseq.fastq")

	roles, err := Refile(src, dest, "S1")
	if err != nil {
		t.Fatal(err)
	}
	if len(roles) != 1 {
		t.Fatal("Refile role count failed")
	}
	if _, err := os.Stat(sibling); err != nil {
		t.Error("Refile moved another sample's file")
	}
}

func TestRefileUnclassifiedStillMoved(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	touch(t, src, "S1_prinseq_odd.fastq")

	roles, err := Refile(src, dest, "S1")
	if err != nil {
		t.Fatal(err)
	}
	if len(roles) != 0 {
		t.Error("Refile role map should be empty")
	}
	if _, err := os.Stat(filepath.Join(dest, "S1_prinseq_odd.fastq")); err != nil {
		t.Error("Refile unclassified move failed")
	}
}

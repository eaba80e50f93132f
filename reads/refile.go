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

// Package reads sorts the output files of the read filtering tool into
// the per-sample output tree. The filter tool writes its results next
// to its inputs under generated names, so the only handle on them is
// the name itself: a marker substring identifies filter output, a
// second marker identifies low-quality singletons, and a sample-id
// prefix identifies the mate. The matching rules are declared in a
// pattern table rather than spread over the walking code.
package reads

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/strainlab/strainprep/layout"
)

// Name markers of the filter tool's output files.
const (
	FilteredMarker  = "prinseq"
	SingletonMarker = "singletons"
)

// A RolePattern maps a produced file name to an artifact role. A file
// matches when its name starts with the sample id followed by the
// infix. Matching is by prefix, never exact equality: the filter tool
// appends unpredictable fragments to the names it generates.
type RolePattern struct {
	Role  layout.Role
	Infix string
}

// RolePatterns declares the read roles the filter stage produces.
var RolePatterns = []RolePattern{
	{Role: layout.R1Paired, Infix: "_R1"},
	{Role: layout.R2Paired, Infix: "_R2"},
}

// Matches reports whether a file name fits the pattern for a sample.
func (p RolePattern) Matches(sample, name string) bool {
	return strings.HasPrefix(name, sample+p.Infix)
}

// Refile walks srcDir for the sample's filter output: files whose name
// starts with the sample id and contains the filtered marker. Files
// that also carry the singleton marker are deleted; all others move
// into destDir. The returned map holds, per role of RolePatterns, the
// destination path of the file that matched it, with entries only for
// the roles actually found. Callers must treat a missing paired role
// as a failed filter stage. Files of other samples sharing srcDir are
// left alone.
func Refile(srcDir, destDir, sample string) (roles map[layout.Role]string, err error) {
	roles = make(map[layout.Role]string)
	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if !strings.HasPrefix(name, sample+"_") || !strings.Contains(name, FilteredMarker) {
			return nil
		}
		if strings.Contains(name, SingletonMarker) {
			return os.Remove(path)
		}
		dest := filepath.Join(destDir, name)
		if err := os.Rename(path, dest); err != nil {
			return err
		}
		for _, p := range RolePatterns {
			if p.Matches(sample, name) {
				roles[p.Role] = dest
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return roles, nil
}

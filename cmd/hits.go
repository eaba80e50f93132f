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

package cmd

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/strainlab/strainprep/blast"
	"github.com/strainlab/strainprep/layout"
)

// AnnotateHitsHelp is the help string for this command.
const AnnotateHitsHelp = "\nannotate-hits parameters:\n" +
	"strainprep annotate-hits hits-table protein-database\n" +
	"[--target-dir dir]\n" +
	"[--nr-of-threads nr]\n" +
	"[--timed]\n" +
	"[--log-path path]\n"

// AnnotateHits implements the strainprep annotate-hits command.
func AnnotateHits() error {
	var (
		targetDir   string
		nrOfThreads int
		timed       bool
		profile     string
		logPath     string
	)

	var flags flag.FlagSet

	flags.StringVar(&targetDir, "target-dir", ".", "directory in which the coverage report is written")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 4, AnnotateHitsHelp)

	hitsFile := getFilename(os.Args[2], AnnotateHitsHelp)
	proteinsFile := getFilename(os.Args[3], AnnotateHitsHelp)

	setLogOutput(logPath)

	// sanity checks

	var sanityChecksFailed bool

	if !checkExist("", hitsFile) {
		sanityChecksFailed = true
	}
	if !checkExist("", proteinsFile) {
		sanityChecksFailed = true
	}
	if !checkCreate("--target-dir", filepath.Join(targetDir, layout.HomologyReportName)) {
		sanityChecksFailed = true
	}
	if profile != "" && !checkCreate("--profile", profile) {
		sanityChecksFailed = true
	}
	if nrOfThreads < 0 {
		sanityChecksFailed = true
		log.Println("Error: Invalid nr-of-threads: ", nrOfThreads)
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, AnnotateHitsHelp)
		os.Exit(1)
	}

	if nrOfThreads > 0 {
		runtime.GOMAXPROCS(nrOfThreads)
	}

	log.Println("Executing command:\n", os.Args[0], "annotate-hits", hitsFile, proteinsFile)

	var runErr error
	timedRun(timed, profile, "Annotating homology search hits.", 1, func() {
		var report string
		if report, runErr = blast.Process(hitsFile, proteinsFile, targetDir); runErr == nil {
			log.Println("Coverage report written to", report)
		}
	})
	return runErr
}

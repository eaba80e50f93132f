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
	"runtime"

	"github.com/strainlab/strainprep/fasta"
)

// CurateContigsHelp is the help string for this command.
const CurateContigsHelp = "\ncurate-contigs parameters:\n" +
	"strainprep curate-contigs fasta-input fasta-output\n" +
	"[--min-length length]\n" +
	"[--marker marker]\n" +
	"[--nr-of-threads nr]\n" +
	"[--timed]\n" +
	"[--log-path path]\n"

// CurateContigs implements the strainprep curate-contigs command.
func CurateContigs() error {
	var (
		minLength   int
		marker      string
		nrOfThreads int
		timed       bool
		profile     string
		logPath     string
	)

	var flags flag.FlagSet

	flags.IntVar(&minLength, "min-length", 200, "minimum length of contigs kept")
	flags.StringVar(&marker, "marker", "C", "identifier prefix for the kept contigs")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 4, CurateContigsHelp)

	input := getFilename(os.Args[2], CurateContigsHelp)
	output := getFilename(os.Args[3], CurateContigsHelp)

	setLogOutput(logPath)

	// sanity checks

	var sanityChecksFailed bool

	if !checkExist("", input) {
		sanityChecksFailed = true
	}
	if !checkCreate("", output) {
		sanityChecksFailed = true
	}
	if marker == "" {
		sanityChecksFailed = true
		log.Println("Error: Missing identifier prefix for the kept contigs.")
	}
	if profile != "" && !checkCreate("--profile", profile) {
		sanityChecksFailed = true
	}
	if nrOfThreads < 0 {
		sanityChecksFailed = true
		log.Println("Error: Invalid nr-of-threads: ", nrOfThreads)
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, CurateContigsHelp)
		os.Exit(1)
	}

	if nrOfThreads > 0 {
		runtime.GOMAXPROCS(nrOfThreads)
	}

	log.Println("Executing command:\n", os.Args[0], "curate-contigs", input, output)

	var runErr error
	timedRun(timed, profile, "Curating contigs.", 1, func() {
		runErr = fasta.CurateFile(input, output, minLength, marker)
	})
	return runErr
}

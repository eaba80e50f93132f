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
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/strainlab/strainprep/workflow"
)

// RunHelp is the help string for this command.
const RunHelp = "\nrun parameters:\n" +
	"strainprep run samples-manifest routes-manifest\n" +
	"[--output-dir dir]\n" +
	"[--annotator [prokka | dfast]]\n" +
	"[--skip-trimming]\n" +
	"[--run-blast [true | false]]\n" +
	"[--workers nr]\n" +
	"[--min-contig-length length]\n" +
	"[--min-read-length length]\n" +
	"[--min-mean-quality quality]\n" +
	"[--trim-quality quality]\n" +
	"[--trim-quality-window length]\n" +
	"[--blast-evalue evalue]\n" +
	"[--virulence-db name]\n" +
	"[--resistance-db name]\n" +
	"[--resume run-root]\n" +
	"[--nr-of-threads nr]\n" +
	"[--timed]\n" +
	"[--log-path path]\n"

// Run implements the strainprep run command.
func Run() error {
	var (
		outputDir         string
		annotator         string
		skipTrimming      bool
		runBlast          bool
		workers           int
		minContigLength   int
		minReadLength     int
		minMeanQuality    int
		trimQuality       int
		trimQualityWindow int
		blastEvalue       float64
		virulenceDB       string
		resistanceDB      string
		resume            string
		nrOfThreads       int
		timed             bool
		profile           string
		logPath           string
	)

	var flags flag.FlagSet

	flags.StringVar(&outputDir, "output-dir", ".", "directory in which the run root is created")
	flags.StringVar(&annotator, "annotator", "prokka", "annotate the assemblies with prokka or dfast")
	flags.BoolVar(&skipTrimming, "skip-trimming", false, "feed the raw reads to the quality filter unchanged")
	flags.BoolVar(&runBlast, "run-blast", true, "screen the reference proteins against all assemblies")
	flags.IntVar(&workers, "workers", 1, "number of samples processed at the same time")
	flags.IntVar(&minContigLength, "min-contig-length", 200, "minimum length of contigs kept by curation")
	flags.IntVar(&minReadLength, "min-read-length", 40, "minimum length of reads kept by the quality filter")
	flags.IntVar(&minMeanQuality, "min-mean-quality", 25, "minimum mean quality of reads kept by the quality filter")
	flags.IntVar(&trimQuality, "trim-quality", 25, "quality threshold for trimming read tails")
	flags.IntVar(&trimQualityWindow, "trim-quality-window", 15, "window size for trimming read tails")
	flags.Float64Var(&blastEvalue, "blast-evalue", 1e-3, "e-value cutoff for the protein screening")
	flags.StringVar(&virulenceDB, "virulence-db", "vfdb", "database for the virulence gene scan")
	flags.StringVar(&resistanceDB, "resistance-db", "resfinder", "database for the antibiotic resistance gene scan")
	flags.StringVar(&resume, "resume", "", "existing run root to resume into")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 4, RunHelp)

	samplesFile := getFilename(os.Args[2], RunHelp)
	routesFile := getFilename(os.Args[3], RunHelp)

	setLogOutput(logPath)

	// sanity checks

	var sanityChecksFailed bool

	var samples []workflow.Sample
	if checkExist("", samplesFile) {
		s, err := workflow.ParseSampleManifest(samplesFile)
		if err != nil {
			log.Printf("Error: %v.\n", err)
			sanityChecksFailed = true
		} else {
			samples = s
		}
	} else {
		sanityChecksFailed = true
	}

	var routes workflow.Routes
	if checkExist("", routesFile) {
		r, err := workflow.ParseRoutes(routesFile)
		if err != nil {
			log.Printf("Error: %v.\n", err)
			sanityChecksFailed = true
		} else {
			routes = r
		}
	} else {
		sanityChecksFailed = true
	}

	for _, sample := range samples {
		if !checkExist("", sample.R1) {
			sanityChecksFailed = true
		}
		if !checkExist("", sample.R2) {
			sanityChecksFailed = true
		}
	}

	if !checkAnnotator(annotator) {
		sanityChecksFailed = true
	}
	if !checkTrimOptions(skipTrimming, routes.Adapters) {
		sanityChecksFailed = true
	}
	if !checkBlastOptions(runBlast, routes.ReferenceProteins) {
		sanityChecksFailed = true
	}
	if routes.ReferenceGenome != "" && !checkExist("", routes.ReferenceGenome) {
		sanityChecksFailed = true
	}
	if resume != "" && !checkExist("--resume", resume) {
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
		fmt.Fprint(os.Stderr, RunHelp)
		os.Exit(1)
	}

	// building commandline arguments and output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " run ", samplesFile, " ", routesFile)
	fmt.Fprint(&command, " --output-dir ", outputDir)
	fmt.Fprint(&command, " --annotator ", annotator)

	if skipTrimming {
		fmt.Fprint(&command, " --skip-trimming")
	}

	if !runBlast {
		fmt.Fprint(&command, " --run-blast=false")
	}

	if workers > 1 {
		fmt.Fprint(&command, " --workers ", workers)
	}

	fmt.Fprint(&command, " --min-contig-length ", minContigLength)
	fmt.Fprint(&command, " --min-read-length ", minReadLength)
	fmt.Fprint(&command, " --min-mean-quality ", minMeanQuality)
	fmt.Fprint(&command, " --trim-quality ", trimQuality)
	fmt.Fprint(&command, " --trim-quality-window ", trimQualityWindow)
	fmt.Fprint(&command, " --blast-evalue ", blastEvalue)
	fmt.Fprint(&command, " --virulence-db ", virulenceDB)
	fmt.Fprint(&command, " --resistance-db ", resistanceDB)

	if resume != "" {
		fmt.Fprint(&command, " --resume ", resume)
	}

	if nrOfThreads > 0 {
		runtime.GOMAXPROCS(nrOfThreads)
		fmt.Fprint(&command, " --nr-of-threads ", nrOfThreads)
	}

	if timed {
		fmt.Fprint(&command, " --timed")
	}

	if profile != "" {
		fmt.Fprint(&command, " --profile ", profile)
	}

	if logPath != "" {
		fmt.Fprint(&command, " --log-path ", logPath)
	}

	// executing command

	log.Println("Executing command:\n", command.String())

	config := workflow.Config{
		OutputDir:         outputDir,
		Annotator:         annotator,
		SkipTrimming:      skipTrimming,
		RunBlast:          runBlast,
		MinContigLength:   minContigLength,
		MinReadLength:     minReadLength,
		MinMeanQuality:    minMeanQuality,
		TrimQuality:       trimQuality,
		TrimQualityWindow: trimQualityWindow,
		BlastEvalue:       blastEvalue,
		VirulenceDB:       virulenceDB,
		ResistanceDB:      resistanceDB,
		Workers:           workers,
		Resume:            resume,
	}

	var runErr error
	timedRun(timed, profile, "Running the assembly and annotation pipeline.", 1, func() {
		_, runErr = workflow.Run(context.Background(), config, samples, routes)
	})
	return runErr
}

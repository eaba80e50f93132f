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

// strainprep runs assembly and annotation pipelines for collections
// of bacterial isolates: per sample read trimming, quality filtering,
// assembly, contig curation and annotation, followed by typing, gene
// screening and pan-genome analysis over the whole collection.
//
// Please see https://github.com/strainlab/strainprep for a
// documentation of the tool.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/strainlab/strainprep/cmd"
)

func printHelp() {
	fmt.Fprintln(os.Stderr, "Available commands: run, curate-contigs, annotate-hits, status")
	fmt.Fprint(os.Stderr, "\n", cmd.RunHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.CurateContigsHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.AnnotateHitsHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.StatusHelp)
}

func main() {
	fmt.Fprintln(os.Stderr, cmd.ProgramMessage)
	if len(os.Args) < 2 {
		log.Println("Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, cmd.HelpMessage, "\n")
		printHelp()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = cmd.Run()
	case "curate-contigs":
		err = cmd.CurateContigs()
	case "annotate-hits":
		err = cmd.AnnotateHits()
	case "status":
		err = cmd.Status()
	case "help", "-help", "--help", "-h", "--h":
		printHelp()
	default:
		log.Println("Unknown command:", os.Args[1])
		printHelp()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}

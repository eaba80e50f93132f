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
	"os"
	"path/filepath"
	"time"

	"github.com/strainlab/strainprep/layout"
	"github.com/strainlab/strainprep/ledger"
)

// StatusHelp is the help string for this command.
const StatusHelp = "\nstatus parameters:\n" +
	"strainprep status run-root\n"

// Status implements the strainprep status command. It prints the
// recorded stage completions of the most recent run in a run root.
func Status() (err error) {
	var flags flag.FlagSet

	parseFlags(flags, 3, StatusHelp)

	root := getFilename(os.Args[2], StatusHelp)

	if !checkExist("", root) {
		fmt.Fprint(os.Stderr, StatusHelp)
		os.Exit(1)
	}

	root, err = filepath.Abs(root)
	if err != nil {
		return err
	}
	led, err := ledger.Open(layout.LedgerFile(root))
	if err != nil {
		return err
	}
	defer func() {
		if nerr := led.Close(); nerr != nil {
			if err == nil {
				err = nerr
			}
		}
	}()
	run, err := led.FindRun(root)
	if err != nil {
		return err
	}
	fmt.Println("run:", run.ID)
	fmt.Println("root:", run.Root)
	fmt.Println("annotator:", run.Annotator)
	fmt.Println("started:", run.StartedAt.Format(time.RFC3339))
	entries, err := led.StageLog(run.ID)
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Println("sample\tstage\tcompleted")
	for _, entry := range entries {
		sample := entry.Sample
		if sample == "" {
			sample = "-"
		}
		fmt.Printf("%v\t%v\t%v\n", sample, entry.Stage, entry.CompletedAt.Format(time.RFC3339))
	}
	return nil
}

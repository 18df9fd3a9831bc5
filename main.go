// capice2vcf: convert CAPICE variant predictions to block-compressed VCF.
// Copyright (c) 2021 imec vzw.

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
// <https://github.com/ExaScience/capice2vcf/blob/master/LICENSE.txt>.

// capice2vcf converts CAPICE variant pathogenicity predictions into
// coordinate-sorted, block-compressed VCF files.
//
// Please see https://github.com/exascience/capice2vcf for a
// documentation of the tool.
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/exascience/capice2vcf/cmd"
)

func printHelp() {
	fmt.Fprintln(os.Stderr, "Available commands: predictions, precomputed-scores, sort-tsv, version")
	fmt.Fprint(os.Stderr, "\n", cmd.PredictionsHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.PrecomputedScoresHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.SortTsvHelp)
}

func main() {
	fmt.Fprintln(os.Stderr, cmd.ProgramMessage)
	if len(os.Args) < 2 {
		log.Println("Incorrect number of parameters.")
		fmt.Fprintln(os.Stderr, cmd.HelpMessage)
		printHelp()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "predictions":
		err = cmd.Predictions()
	case "precomputed-scores", "precomputed_scores":
		err = cmd.PrecomputedScores()
	case "sort-tsv":
		err = cmd.SortTsv()
	case "version", "-version", "--version":
	case "help", "-help", "--help", "-h", "--h":
		printHelp()
	default:
		log.Printf("Unknown command %v.\n", os.Args[1])
		printHelp()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}

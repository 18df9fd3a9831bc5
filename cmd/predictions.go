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

package cmd

import (
	"flag"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/exascience/capice2vcf/convert"
)

// PredictionsHelp is the help string for this command.
const PredictionsHelp = "predictions parameters:\n" +
	"capice2vcf predictions capice-tsv-file [vcf-file]\n" +
	"[--score-column nr]\n" +
	SortFlagsHelp + CommonFlagsHelp

// PrecomputedScoresHelp is the help string for this command.
const PrecomputedScoresHelp = "precomputed-scores parameters:\n" +
	"capice2vcf precomputed-scores capice-tsv-file[.gz] [vcf-file]\n" +
	"[--score-column nr]\n" +
	"[--check-order]\n" +
	CommonFlagsHelp

// Predictions implements the capice2vcf predictions command.
func Predictions() error {
	return convertCommand(convert.Predictions, PredictionsHelp)
}

// PrecomputedScores implements the capice2vcf precomputed-scores command.
func PrecomputedScores() error {
	return convertCommand(convert.PrecomputedScores, PrecomputedScoresHelp)
}

func convertCommand(mode convert.InputMode, help string) error {
	var (
		common      commonFlags
		sorting     sortFlags
		scoreColumn int
		checkOrder  bool
	)

	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}

	input := getFilename(os.Args[2], help)
	output, firstFlag := getOptionalFilename(3, convert.DefaultOutput(input), help)

	settings := convert.DefaultSettings(input, output)
	settings.Mode = mode

	var flags flag.FlagSet
	common.register(&flags)
	flags.IntVar(&scoreColumn, "score-column", settings.ScoreColumn, "index of the column holding the CAPICE score")
	if mode == convert.Predictions {
		sorting.register(&flags)
	} else {
		flags.BoolVar(&checkOrder, "check-order", false, "verify that the input is sorted by position")
	}
	parseFlags(&flags, firstFlag, help)

	common.apply()

	// sanity checks

	sanityChecksFailed := !common.check()

	if !checkExist("", input) {
		sanityChecksFailed = true
	}

	if scoreColumn < 0 || scoreColumn == settings.PositionColumn {
		log.Println("Error: Invalid score-column: ", scoreColumn)
		sanityChecksFailed = true
	}

	if mode == convert.Predictions {
		options, ok := sorting.options()
		if !ok {
			sanityChecksFailed = true
		}
		settings.Sort = options
	}

	if !checkCreate("", output, common.force) {
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, help)
		os.Exit(1)
	}

	settings.ScoreColumn = scoreColumn
	settings.CheckOrder = checkOrder

	// building output command line

	var command strings.Builder
	fmt.Fprint(&command, os.Args[0], " ", mode, " ", input, " ", output)
	fmt.Fprint(&command, " --score-column ", scoreColumn)
	if mode == convert.Predictions {
		sorting.command(&command)
	} else if checkOrder {
		command.WriteString(" --check-order")
	}
	common.command(&command)

	// executing command

	log.Println("Executing command:\n", command.String())

	if err := removeExisting(output, common.force); err != nil {
		return err
	}

	var err error
	if settings.Input, err = fullPathname(input); err != nil {
		return err
	}
	if settings.Output, err = fullPathname(output); err != nil {
		return err
	}

	return timedRun(common.timed, common.profile, "Converting CAPICE "+mode.String()+" to VCF.", 1, func() error {
		return convert.ConvertFile(settings)
	})
}

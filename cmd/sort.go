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

	"github.com/exascience/capice2vcf/capice"
	"github.com/exascience/capice2vcf/extsort"
	"github.com/exascience/capice2vcf/tsv"
)

// SortTsvHelp is the help string for this command.
const SortTsvHelp = "sort-tsv parameters:\n" +
	"capice2vcf sort-tsv capice-tsv-file sorted-tsv-file\n" +
	"[--key-column nr]\n" +
	SortFlagsHelp + CommonFlagsHelp

// SortTsv implements the capice2vcf sort-tsv command.
func SortTsv() error {
	var (
		common    commonFlags
		sorting   sortFlags
		keyColumn int
	)

	var flags flag.FlagSet
	common.register(&flags)
	sorting.register(&flags)
	flags.IntVar(&keyColumn, "key-column", capice.PositionColumn, "index of the column holding the CHROM_POS_REF_ALT key")
	parseFlags(&flags, 4, SortTsvHelp)

	input := getFilename(os.Args[2], SortTsvHelp)
	output := getFilename(os.Args[3], SortTsvHelp)

	common.apply()

	// sanity checks

	sanityChecksFailed := !common.check()

	if !checkExist("", input) {
		sanityChecksFailed = true
	}

	if keyColumn < 0 {
		log.Println("Error: Invalid key-column: ", keyColumn)
		sanityChecksFailed = true
	}

	options, ok := sorting.options()
	if !ok {
		sanityChecksFailed = true
	}
	options.KeyColumn = keyColumn

	if !checkCreate("", output, common.force) {
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, SortTsvHelp)
		os.Exit(1)
	}

	// building output command line

	var command strings.Builder
	fmt.Fprint(&command, os.Args[0], " sort-tsv ", input, " ", output)
	fmt.Fprint(&command, " --key-column ", keyColumn)
	sorting.command(&command)
	common.command(&command)

	// executing command

	log.Println("Executing command:\n", command.String())

	if err := removeExisting(output, common.force); err != nil {
		return err
	}

	fullInput, err := fullPathname(input)
	if err != nil {
		return err
	}
	fullOutput, err := fullPathname(output)
	if err != nil {
		return err
	}

	return timedRun(common.timed, common.profile, "Sorting CAPICE rows.", 1, func() error {
		return sortFile(fullInput, fullOutput, options)
	})
}

func sortFile(input, output string, options extsort.Options) (funcErr error) {
	in, err := tsv.Open(input, true)
	if err != nil {
		return capice.NewIOError("opening input", input, err)
	}
	defer func() {
		if err := in.Close(); funcErr == nil {
			funcErr = capice.NewIOError("closing input", input, err)
		}
	}()
	out, err := tsv.Create(output)
	if err != nil {
		return capice.NewIOError("creating output", output, err)
	}
	defer func() {
		if err := out.Close(); funcErr == nil {
			funcErr = capice.NewIOError("closing output", output, err)
		}
	}()
	return extsort.New(options).Sort(in, out)
}

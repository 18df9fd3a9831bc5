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

// Package convert turns CAPICE prediction files into coordinate-sorted
// VCF files.
package convert

import (
	"fmt"
	"io"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/exascience/capice2vcf/capice"
	"github.com/exascience/capice2vcf/extsort"
	"github.com/exascience/capice2vcf/tsv"
	"github.com/exascience/capice2vcf/utils"
	"github.com/exascience/capice2vcf/vcf"
)

// InputMode tells whether the input still needs to be sorted.
type InputMode uint8

const (
	// Predictions are CAPICE output rows in arbitrary order. They are
	// sorted by position before conversion.
	Predictions InputMode = iota
	// PrecomputedScores are rows that are already in coordinate order,
	// possibly gzip or BGZF compressed. They are converted as they are
	// read.
	PrecomputedScores
)

// ParseInputMode parses "predictions" or "precomputed-scores". The
// underscore forms of these names are also accepted.
func ParseInputMode(s string) (InputMode, error) {
	switch strings.ReplaceAll(strings.ToLower(s), "_", "-") {
	case "predictions":
		return Predictions, nil
	case "precomputed-scores":
		return PrecomputedScores, nil
	default:
		return Predictions, fmt.Errorf("unknown input mode %v", s)
	}
}

func (mode InputMode) String() string {
	switch mode {
	case Predictions:
		return "predictions"
	case PrecomputedScores:
		return "precomputed-scores"
	default:
		return fmt.Sprintf("InputMode(%d)", uint8(mode))
	}
}

// StaleSpillAge is the age after which spill directories left behind
// by earlier runs are removed.
const StaleSpillAge = 24 * time.Hour

// Settings configure a conversion.
type Settings struct {
	Input, Output string
	Mode          InputMode

	// AppName and AppVersion are recorded in the VCF header.
	AppName, AppVersion string

	PositionColumn, ScoreColumn int

	// Sort configures the external sort of Predictions input. Its
	// KeyColumn is overridden by PositionColumn.
	Sort extsort.Options

	// CheckOrder verifies that PrecomputedScores input is sorted.
	CheckOrder bool
}

// DefaultSettings returns the settings for converting CAPICE
// predictions from input to output.
func DefaultSettings(input, output string) Settings {
	return Settings{
		Input:          input,
		Output:         output,
		Mode:           Predictions,
		AppName:        utils.ProgramName,
		AppVersion:     utils.ProgramVersion,
		PositionColumn: capice.PositionColumn,
		ScoreColumn:    capice.ScoreColumn,
		Sort:           extsort.DefaultOptions(),
	}
}

// DefaultOutput returns the output filename used when none is given.
func DefaultOutput(input string) string {
	return input + vcf.VcfExt + vcf.GzExt
}

// A VariantWriter consumes the VCF header followed by the variants.
// *vcf.OutputFile is a VariantWriter.
type VariantWriter interface {
	WriteHeader(header *vcf.Header) error
	WriteVariant(variant *vcf.Variant) error
	Close() error
}

// variantSink maps sorted rows to variants. The VCF header is written
// on the first call, so it is written exactly once even for input
// without a header line.
type variantSink struct {
	out           VariantWriter
	header        *vcf.Header
	mapper        *capice.Mapper
	headerWritten bool
	variants      int64
}

func (sink *variantSink) writeHeader() error {
	if sink.headerWritten {
		return nil
	}
	sink.headerWritten = true
	return capice.NewIOError("writing VCF header", "", sink.out.WriteHeader(sink.header))
}

func (sink *variantSink) WriteHeader(string) error {
	return sink.writeHeader()
}

func (sink *variantSink) WriteRow(row *tsv.Row) error {
	if err := sink.writeHeader(); err != nil {
		return err
	}
	variant, err := sink.mapper.MapRow(row)
	if err != nil {
		return err
	}
	sink.variants++
	return capice.NewIOError("writing VCF variant", "", sink.out.WriteVariant(variant))
}

/*
Run converts the CAPICE input named in settings, and writes the
resulting VCF header and variants to out.

Predictions input is sorted by position first. PrecomputedScores input
is converted in input order; with settings.CheckOrder, a row that sorts
before its predecessor aborts the conversion with a
*capice.UnsortedInputError.

Run closes out exactly once, whether the conversion succeeds or not.
A close error is returned only if no earlier error occurred.
*/
func Run(settings Settings, out VariantWriter) (funcErr error) {
	defer func() {
		if err := out.Close(); funcErr == nil {
			funcErr = capice.NewIOError("closing output", settings.Output, err)
		}
	}()
	sink := &variantSink{
		out:    out,
		header: capice.NewHeader(settings.AppName, settings.AppVersion),
		mapper: capice.NewMapper(settings.PositionColumn, settings.ScoreColumn),
	}
	var err error
	switch settings.Mode {
	case Predictions:
		err = runPredictions(settings, sink)
	case PrecomputedScores:
		err = runPrecomputedScores(settings, sink)
	default:
		return fmt.Errorf("unknown input mode %v", settings.Mode)
	}
	if err != nil {
		return err
	}
	if err := sink.writeHeader(); err != nil {
		return err
	}
	log.Debugf("Wrote %v variants.", sink.variants)
	return nil
}

func openInput(name string) (*tsv.InputFile, error) {
	input, err := tsv.Open(name, true)
	return input, capice.NewIOError("opening input", name, err)
}

func closeInput(input *tsv.InputFile, name string, funcErr *error) {
	if err := input.Close(); *funcErr == nil {
		*funcErr = capice.NewIOError("closing input", name, err)
	}
}

func runPredictions(settings Settings, sink *variantSink) (funcErr error) {
	options := settings.Sort
	options.KeyColumn = settings.PositionColumn
	sorter := extsort.New(options)
	if n, err := extsort.RemoveStale(sorter.Options().TempDir, StaleSpillAge); err != nil {
		log.Warnf("Could not remove stale spill directories: %v", err)
	} else if n > 0 {
		log.Debugf("Removed %v stale spill directories.", n)
	}
	input, err := openInput(settings.Input)
	if err != nil {
		return err
	}
	defer closeInput(input, settings.Input, &funcErr)
	return sorter.Sort(input, sink)
}

func runPrecomputedScores(settings Settings, sink *variantSink) (funcErr error) {
	input, err := openInput(settings.Input)
	if err != nil {
		return err
	}
	defer closeInput(input, settings.Input, &funcErr)
	if err := sink.writeHeader(); err != nil {
		return err
	}
	var previous capice.Position
	havePrevious := false
	for {
		row, err := input.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return capice.NewIOError("reading input", settings.Input, err)
		}
		if settings.CheckOrder {
			key, ok := row.Field(settings.PositionColumn)
			if !ok {
				return &capice.MalformedRowError{Line: row.Line, PositionColumn: settings.PositionColumn, ScoreColumn: settings.ScoreColumn}
			}
			current, err := capice.ParsePosition(key)
			if err != nil {
				return err
			}
			if havePrevious && capice.ComparePositions(current, previous) < 0 {
				return &capice.UnsortedInputError{Line: row.Line, Previous: previous.Key(), Current: key}
			}
			previous, havePrevious = current, true
		}
		if err := sink.WriteRow(row); err != nil {
			return err
		}
	}
}

// ConvertFile creates the VCF output file named in settings, which is
// BGZF-compressed if its name ends in .gz, and runs the conversion.
func ConvertFile(settings Settings) error {
	out, err := vcf.Create(settings.Output)
	if err != nil {
		return capice.NewIOError("creating output", settings.Output, err)
	}
	return Run(settings, out)
}

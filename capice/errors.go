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

package capice

import "fmt"

type (
	// PositionFormatError is returned when a position key does not have
	// the form CHROM_POS_REF_ALT, or when its position is not a valid
	// non-negative integer.
	PositionFormatError struct {
		Position string
	}

	// MalformedRowError is returned when a row lacks the position or the
	// score column. Position is the position key of the row, or empty if
	// the row lacks it.
	MalformedRowError struct {
		Line           int64
		Position       string
		PositionColumn int
		ScoreColumn    int
	}

	// ScoreFormatError is returned when the score column of a row cannot
	// be parsed as a floating-point number.
	ScoreFormatError struct {
		Line     int64
		Position string
		Value    string
	}

	// UnsortedInputError is returned when input that is required to be
	// in coordinate order is not.
	UnsortedInputError struct {
		Line              int64
		Previous, Current string
	}

	// IOError is returned for failures while reading input, spilling or
	// merging sorted batches, or writing output.
	IOError struct {
		Op   string
		Path string
		Err  error
	}
)

func (e *PositionFormatError) Error() string {
	return fmt.Sprintf("Position '%s' could not be parsed, expecting a position in the format 'CHROM_POS_REF_ALT' e.g. 'X_123456789_C_G'", e.Position)
}

func (e *MalformedRowError) Error() string {
	msg := fmt.Sprintf("Invalid CAPICE input on line %d, expecting a position in column %d and a score in column %d", e.Line, e.PositionColumn, e.ScoreColumn)
	if e.Position != "" {
		msg += fmt.Sprintf(" (position '%s')", e.Position)
	}
	return msg
}

func (e *ScoreFormatError) Error() string {
	return fmt.Sprintf("Invalid CAPICE score '%s' for position '%s' on line %d, expecting a floating-point number", e.Value, e.Position, e.Line)
}

func (e *UnsortedInputError) Error() string {
	return fmt.Sprintf("Input is not sorted by position on line %d: '%s' follows '%s'", e.Line, e.Current, e.Previous)
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%v, while %s", e.Err, e.Op)
	}
	return fmt.Sprintf("%v, while %s %s", e.Err, e.Op, e.Path)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError wraps err in an IOError, unless err is nil or already an
// error of one of the kinds defined in this package.
func NewIOError(op, path string, err error) error {
	switch err.(type) {
	case nil:
		return nil
	case *IOError, *PositionFormatError, *MalformedRowError, *ScoreFormatError, *UnsortedInputError:
		return err
	}
	return &IOError{Op: op, Path: path, Err: err}
}

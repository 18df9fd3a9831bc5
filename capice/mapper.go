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

import (
	"strconv"

	"github.com/exascience/capice2vcf/tsv"
	"github.com/exascience/capice2vcf/utils"
	"github.com/exascience/capice2vcf/vcf"
)

// Default column indices of CAPICE prediction files.
const (
	PositionColumn = 0
	ScoreColumn    = 4
)

// InfoID is the INFO field that carries the CAPICE score.
const InfoID = "CAP"

// InfoDescription describes the INFO field in the VCF header.
const InfoDescription = "CAPICE pathogenicity prediction"

// CAP is the interned INFO identifier for CAPICE scores.
var CAP = utils.Intern(InfoID)

// A Mapper converts CAPICE rows to VCF variants.
type Mapper struct {
	PositionColumn int
	ScoreColumn    int
}

// NewMapper returns a Mapper that reads position keys and scores from
// the given columns.
func NewMapper(positionColumn, scoreColumn int) *Mapper {
	return &Mapper{PositionColumn: positionColumn, ScoreColumn: scoreColumn}
}

/*
MapRow converts a row to a variant.

The row must have both a position and a score column, otherwise a
*MalformedRowError is returned. Errors name the line number of the row
and, where present, its position key. Rows that went through the
sorter are numbered in sorted order. The position key is parsed with
ParsePosition, and the score must parse as a floating-point number,
otherwise a *ScoreFormatError is returned.

The variant starts at the parsed position, and ends at
start + len(ref) - 1. The score is stored as the single value of the
CAP INFO field.
*/
func (mapper *Mapper) MapRow(row *tsv.Row) (*vcf.Variant, error) {
	key, ok := row.Field(mapper.PositionColumn)
	if !ok {
		return nil, &MalformedRowError{row.Line, "", mapper.PositionColumn, mapper.ScoreColumn}
	}
	value, ok := row.Field(mapper.ScoreColumn)
	if !ok {
		return nil, &MalformedRowError{row.Line, key, mapper.PositionColumn, mapper.ScoreColumn}
	}
	position, err := ParsePosition(key)
	if err != nil {
		return nil, err
	}
	score, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, &ScoreFormatError{row.Line, key, value}
	}
	variant := &vcf.Variant{
		Chrom: position.Chrom,
		Pos:   position.Pos,
		Ref:   position.Ref,
		Alt:   []string{position.Alt},
	}
	variant.Info.Set(CAP, []interface{}{score})
	return variant, nil
}

// NewHeader returns the VCF header for CAPICE output: the generating
// application and its version, and the declaration of the CAP INFO
// field.
func NewHeader(appName, appVersion string) *vcf.Header {
	header := vcf.NewHeader()
	header.AddMeta(appName, appVersion)
	info := vcf.NewFormatInformation()
	info.ID = CAP
	info.Number = vcf.NumberA
	info.Type = vcf.Float
	info.Description = InfoDescription
	header.Infos = append(header.Infos, info)
	return header
}

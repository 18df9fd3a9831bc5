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

// Package capice parses CAPICE position keys, orders them by genomic
// coordinate, and maps CAPICE rows to VCF variants.
package capice

import (
	"strconv"
	"strings"
)

// Position is a genomic position parsed from a CAPICE position key.
type Position struct {
	Chrom string
	Pos   int32 // 1-based
	Ref   string
	Alt   string
}

/*
ParsePosition parses a position key of the form CHROM_POS_REF_ALT.

The key is split at its first underscore (chromosome), its second
underscore (position), and its last underscore (reference and
alternative allele). A valid key has exactly three underscores, so
none of the four segments contains an underscore itself, and all four
segments are non-empty. The position must be a non-negative decimal
integer that fits in 32 bits.

For example, "X_123456789_C_G" parses as chromosome X, position
123456789, reference C and alternative G.

Any other key results in a *PositionFormatError.
*/
func ParsePosition(key string) (Position, error) {
	chrom, rest, ok := strings.Cut(key, "_")
	if !ok || chrom == "" {
		return Position{}, &PositionFormatError{key}
	}
	pos, rest, ok := strings.Cut(rest, "_")
	if !ok {
		return Position{}, &PositionFormatError{key}
	}
	last := strings.LastIndexByte(rest, '_')
	if last < 0 {
		return Position{}, &PositionFormatError{key}
	}
	ref, alt := rest[:last], rest[last+1:]
	if ref == "" || alt == "" || strings.IndexByte(ref, '_') >= 0 {
		return Position{}, &PositionFormatError{key}
	}
	p, ok := parsePos(pos)
	if !ok {
		return Position{}, &PositionFormatError{key}
	}
	return Position{Chrom: chrom, Pos: p, Ref: ref, Alt: alt}, nil
}

func parsePos(s string) (int32, bool) {
	if !IsNumericChromosome(s) {
		return 0, false
	}
	p, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(p), true
}

// IsNumericChromosome returns true iff chrom is a non-empty string of
// decimal digits.
func IsNumericChromosome(chrom string) bool {
	if chrom == "" {
		return false
	}
	for i := 0; i < len(chrom); i++ {
		if c := chrom[i]; c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Key formats the position as a CAPICE position key.
func (p Position) Key() string {
	return p.Chrom + "_" + strconv.FormatInt(int64(p.Pos), 10) + "_" + p.Ref + "_" + p.Alt
}

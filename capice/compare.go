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
	"cmp"
	"strings"
)

// symbolicRank gives the fixed precedence of the non-numeric
// chromosomes X, Y and MT. All other names share the last rank.
func symbolicRank(chrom string) int {
	switch chrom {
	case "X":
		return 0
	case "Y":
		return 1
	case "MT":
		return 2
	default:
		return 3
	}
}

// compareNumeric compares two strings of decimal digits by numeric
// value, without converting them to integers.
func compareNumeric(a, b string) int {
	a, b = strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
	if c := cmp.Compare(len(a), len(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

/*
CompareChromosomes returns -1, 0 or +1, depending on whether
chromosome a sorts before, together with, or after chromosome b.

Numeric chromosomes sort before all others, by numeric value. Then come
X, Y and MT, in that order, followed by all remaining names in
lexicographic order.
*/
func CompareChromosomes(a, b string) int {
	aNumeric, bNumeric := IsNumericChromosome(a), IsNumericChromosome(b)
	switch {
	case aNumeric && bNumeric:
		return compareNumeric(a, b)
	case aNumeric:
		return -1
	case bNumeric:
		return 1
	case a == b:
		return 0
	}
	if c := cmp.Compare(symbolicRank(a), symbolicRank(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// ComparePositions orders positions by chromosome, as in
// CompareChromosomes, and then by position. Alleles are ignored, so
// two variants at the same site compare as equal.
func ComparePositions(a, b Position) int {
	if c := CompareChromosomes(a.Chrom, b.Chrom); c != 0 {
		return c
	}
	return cmp.Compare(a.Pos, b.Pos)
}

// CompareKeys parses two position keys and compares them with
// ComparePositions.
func CompareKeys(a, b string) (int, error) {
	pa, err := ParsePosition(a)
	if err != nil {
		return 0, err
	}
	pb, err := ParsePosition(b)
	if err != nil {
		return 0, err
	}
	return ComparePositions(pa, pb), nil
}

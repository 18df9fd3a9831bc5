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

// Package vcf provides the VCF header and variant types written by
// capice2vcf, and output files in plain or BGZF-compressed VCF format.
package vcf

import "github.com/exascience/capice2vcf/utils"

// The VCF file format version written by capice2vcf.
const (
	FileFormatVersion     = "VCFv4.2"
	FileFormatVersionLine = "##fileformat=" + FileFormatVersion
)

// DefaultHeaderColumns for VCF files without samples.
var DefaultHeaderColumns = []string{"CHROM", "POS", "ID", "REF", "ALT", "QUAL", "FILTER", "INFO"}

// Type is an enumeration type for different VCF field types
type Type uint

// The different VCF field types
const (
	InvalidType Type = iota
	Integer          // represented as int
	Float            // represented as float64
	Flag             // represented as bool with fixed value true
	Character        // represented as rune
	String           // represented as string
)

// Constants for format information Number entries.
const (
	NumberA int32 = -1 * (1 + iota)
	NumberR
	NumberG
	NumberDot
	InvalidNumber
)

// END is the INFO field that overrides the end position of a variant.
var END = utils.Intern("END")

type (
	// FormatInformation describes an INFO or FORMAT field in a VCF header.
	FormatInformation struct {
		ID          utils.Symbol
		Description string // "" if not present
		Number      int32  // > InvalidNumber
		Type        Type
		Fields      utils.StringMap
	}

	// Header section of a VCF file.
	Header struct {
		FileFormat string
		Infos      []*FormatInformation
		Meta       map[string][]string // unstructured ##key=value lines
		Columns    []string
	}

	// Variant line in a VCF file.
	Variant struct {
		Chrom  string
		Pos    int32    // < 0 if unknown
		ID     []string // nil/empty if missing
		Ref    string
		Alt    []string       // nil/empty if missing
		Qual   interface{}    // float64, or nil if missing
		Filter []utils.Symbol // nil/empty if missing
		Info   utils.SmallMap // values are int, float64, bool, rune, string, or []interface{}
	}
)

// NewFormatInformation creates an empty instance.
func NewFormatInformation() *FormatInformation {
	return &FormatInformation{Number: InvalidNumber, Fields: make(utils.StringMap)}
}

// NewHeader creates an empty instance.
func NewHeader() *Header {
	return &Header{
		FileFormat: FileFormatVersionLine,
		Meta:       make(map[string][]string),
		Columns:    DefaultHeaderColumns,
	}
}

// AddMeta adds an unstructured ##key=value line to the header.
func (header *Header) AddMeta(key, value string) {
	header.Meta[key] = append(header.Meta[key], value)
}

// End returns the inclusive end position of a VCF line in the
// reference, determined either by the END field or len(v.Ref).
func (v *Variant) End() int32 {
	if end, ok := v.Info.Get(END); ok {
		if e, ok := end.(int); ok {
			return int32(e)
		}
	}
	return v.Pos - 1 + int32(len(v.Ref))
}

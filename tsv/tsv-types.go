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

// Package tsv reads and writes the tab-separated files produced by
// CAPICE, one variant per line, preceded by a header line.
package tsv

import "strings"

// Delimiter separates the fields of a row.
const Delimiter = '\t'

// Row is one data line of a TSV file.
type Row struct {
	// Line is the 1-based line number of the row in the stream it was
	// read from. The header, if any, is line 1.
	Line   int64
	Fields []string
}

// NewRow splits a line into a Row. The line must not contain the
// terminating newline.
func NewRow(line string, lineNumber int64) *Row {
	return &Row{Line: lineNumber, Fields: strings.Split(line, string(Delimiter))}
}

// Field returns the field at the given column index, and false if the
// row does not have that many columns.
func (row *Row) Field(column int) (string, bool) {
	if column < 0 || column >= len(row.Fields) {
		return "", false
	}
	return row.Fields[column], true
}

// Size estimates the number of bytes the row occupies in memory.
func (row *Row) Size() int {
	size := 64 + 16*len(row.Fields)
	for _, field := range row.Fields {
		size += len(field)
	}
	return size
}

// Format appends the row, including the terminating newline, to out.
func (row *Row) Format(out []byte) []byte {
	for i, field := range row.Fields {
		if i > 0 {
			out = append(out, Delimiter)
		}
		out = append(out, field...)
	}
	return append(out, '\n')
}

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

package vcf

import (
	"bufio"
	"errors"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/flate"

	"github.com/exascience/capice2vcf/internal"
	"github.com/exascience/capice2vcf/utils"
	"github.com/exascience/capice2vcf/utils/bgzf"
)

// FormatString outputs a string to a VCF file, adding necessary double quotes and escapes
func FormatString(out io.ByteWriter, str string) error {
	_ = out.WriteByte('"')
	for i := 0; i < len(str); i++ {
		b := str[i]
		if b == '"' || b == '\\' {
			_ = out.WriteByte('\\')
		}
		_ = out.WriteByte(b)
	}
	return out.WriteByte('"')
}

func needsQuotes(s string) bool {
	for i := 0; i < len(s); i++ {
		if ch := s[i]; ch == '"' || ch == ' ' || ch == ',' || ch == '>' {
			return true
		}
	}
	return false
}

// FormatFormatInformation outputs VCF info or format information
func FormatFormatInformation(out *bufio.Writer, format *FormatInformation, infoNotFormat bool) error {
	_, _ = out.WriteString("<ID=")
	_, _ = out.WriteString(*format.ID)
	_, _ = out.WriteString(",Number=")
	if format.Number >= 0 {
		_, _ = out.WriteString(strconv.FormatInt(int64(format.Number), 10))
	} else {
		switch format.Number {
		case NumberA:
			_ = out.WriteByte('A')
		case NumberR:
			_ = out.WriteByte('R')
		case NumberG:
			_ = out.WriteByte('G')
		case NumberDot:
			_ = out.WriteByte('.')
		default:
			return errors.New("unknown Number kind in a VCF meta-information line")
		}
	}
	_, _ = out.WriteString(",Type=")
	switch format.Type {
	case Integer:
		_, _ = out.WriteString("Integer")
	case Float:
		_, _ = out.WriteString("Float")
	case Flag:
		_, _ = out.WriteString("Flag")
	case Character:
		_, _ = out.WriteString("Character")
	case String:
		_, _ = out.WriteString("String")
	default:
		return errors.New("invalid Type in a VCF meta-information line")
	}
	if format.Description != "" {
		_, _ = out.WriteString(",Description=")
		_ = FormatString(out, format.Description)
	}
	for _, key := range format.Fields.SortedKeys() {
		value := format.Fields[key]
		_ = out.WriteByte(',')
		_, _ = out.WriteString(key)
		_ = out.WriteByte('=')
		if (infoNotFormat && (key == "Source" || key == "Version")) || needsQuotes(value) {
			_ = FormatString(out, value)
		} else {
			_, _ = out.WriteString(value)
		}
	}
	_, err := out.WriteString(">\n")
	return err
}

// Format outputs a VCF header. Unstructured meta-information lines
// come first, sorted by key, followed by the INFO lines in order.
func (header *Header) Format(out *bufio.Writer) error {
	_, _ = out.WriteString(header.FileFormat)
	_ = out.WriteByte('\n')
	keys := make([]string, 0, len(header.Meta))
	for key := range header.Meta {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		for _, value := range header.Meta[key] {
			_, _ = out.WriteString("##")
			_, _ = out.WriteString(key)
			_ = out.WriteByte('=')
			_, _ = out.WriteString(value)
			_ = out.WriteByte('\n')
		}
	}
	for _, info := range header.Infos {
		_, _ = out.WriteString("##INFO=")
		if err := FormatFormatInformation(out, info, true); err != nil {
			return err
		}
	}
	_ = out.WriteByte('#')
	_, _ = out.WriteString(strings.Join(header.Columns, "\t"))
	return out.WriteByte('\n')
}

func formatStringList(out []byte, list []string, separator byte) []byte {
	if len(list) == 0 {
		return append(out, '.', '\t')
	}
	out = append(out, list[0]...)
	for _, entry := range list[1:] {
		out = append(out, separator)
		out = append(out, entry...)
	}
	return append(out, '\t')
}

func formatSymbolList(out []byte, list []utils.Symbol, separator byte) []byte {
	if len(list) == 0 {
		return append(out, '.')
	}
	out = append(out, (*list[0])...)
	for _, sym := range list[1:] {
		out = append(out, separator)
		out = append(out, (*sym)...)
	}
	return out
}

func formatValue(out []byte, value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case int:
		return strconv.AppendInt(out, int64(v), 10), nil
	case float64:
		return strconv.AppendFloat(out, v, 'f', -1, 64), nil
	case rune:
		return utf8.AppendRune(out, v), nil
	case string:
		return append(out, v...), nil
	default:
		return nil, errors.New("invalid value type")
	}
}

func formatInfoEntry(out []byte, entry utils.SmallMapEntry) ([]byte, error) {
	out = append(out, (*entry.Key)...)
	switch e := entry.Value.(type) {
	case bool:
		if !e {
			return nil, errors.New("unexpected boolean value")
		}
		return out, nil
	case []interface{}:
		out = append(out, '=')
		if len(e) == 0 {
			return out, nil
		}
		var err error
		out, err = formatValue(out, e[0])
		if err != nil {
			return nil, err
		}
		for _, v := range e[1:] {
			out = append(out, ',')
			out, err = formatValue(out, v)
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	default:
		out = append(out, '=')
		return formatValue(out, entry.Value)
	}
}

func formatInfo(out []byte, info utils.SmallMap) ([]byte, error) {
	if len(info) == 0 {
		return append(out, '.'), nil
	}
	var err error
	out, err = formatInfoEntry(out, info[0])
	if err != nil {
		return nil, err
	}
	for _, entry := range info[1:] {
		out = append(out, ';')
		out, err = formatInfoEntry(out, entry)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Format appends a VCF variant line to out.
func (variant *Variant) Format(out []byte) ([]byte, error) {
	out = append(append(out, variant.Chrom...), '\t')
	if variant.Pos < 0 {
		out = append(out, '.', '\t')
	} else {
		out = append(strconv.AppendInt(out, int64(variant.Pos), 10), '\t')
	}
	out = formatStringList(out, variant.ID, ';')
	out = append(append(out, variant.Ref...), '\t')
	out = formatStringList(out, variant.Alt, ',')
	if value, ok := variant.Qual.(float64); ok {
		out = append(strconv.AppendFloat(out, value, 'f', -1, 64), '\t')
	} else {
		out = append(out, '.', '\t')
	}
	out = append(formatSymbolList(out, variant.Filter, ';'), '\t')
	var err error
	out, err = formatInfo(out, variant.Info)
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// The possible file extensions for VCF files, or gz-compressed VCF files
const (
	VcfExt = ".vcf"
	GzExt  = ".gz"
)

// DefaultCompressionLevel is the deflate level used for BGZF output.
const DefaultCompressionLevel = flate.DefaultCompression

// OutputFile represents a VCF file for output.
type OutputFile struct {
	wc   io.WriteCloser // nil if the underlying writer is not owned
	bgzf *bgzf.Writer   // nil for uncompressed output
	out  *bufio.Writer
}

// NewWriter returns an OutputFile that writes to w, block-compressed
// if compressed is true. Closing it does not close w.
func NewWriter(w io.Writer, compressed bool) *OutputFile {
	output := &OutputFile{}
	if compressed {
		output.bgzf = bgzf.NewWriter(w, DefaultCompressionLevel)
		w = output.bgzf
	}
	output.out = bufio.NewWriterSize(w, 1<<16)
	return output
}

// Create a VCF file for output.
//
// If the filename extension is .gz, the output is BGZF-compressed, so
// that it can be indexed with tabix. Otherwise plain VCF is written.
//
// If the name is "/dev/stdout", then the output is written to
// os.Stdout, uncompressed.
func Create(name string) (*OutputFile, error) {
	if name == "/dev/stdout" {
		return NewWriter(os.Stdout, false), nil
	}
	file, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	output := NewWriter(file, strings.HasSuffix(name, GzExt))
	output.wc = file
	return output, nil
}

// WriteHeader writes the VCF header.
func (output *OutputFile) WriteHeader(header *Header) error {
	return header.Format(output.out)
}

// WriteVariant writes one VCF data line.
func (output *OutputFile) WriteVariant(variant *Variant) error {
	buf := internal.ReserveByteBuffer()
	defer func() { internal.ReleaseByteBuffer(buf) }()
	var err error
	if buf, err = variant.Format(buf); err != nil {
		return err
	}
	_, err = output.out.Write(buf)
	return err
}

// Close flushes all buffered data, finalizes the BGZF container, and
// closes the underlying file.
func (output *OutputFile) Close() error {
	err := output.out.Flush()
	if output.bgzf != nil {
		if nerr := output.bgzf.Close(); err == nil {
			err = nerr
		}
	}
	if output.wc != nil {
		if nerr := output.wc.Close(); err == nil {
			err = nerr
		}
	}
	return err
}

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

package tsv

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/exascience/capice2vcf/internal"
	"github.com/exascience/capice2vcf/utils"
)

// GzExt is the file name extension of gzip-compressed TSV files.
const GzExt = ".gz"

// A Reader reads rows from a TSV stream.
type Reader struct {
	r         *bufio.Reader
	header    string
	hasHeader bool
	line      int64
}

func (reader *Reader) getLine() (line string, err error) {
	line, err = reader.r.ReadString('\n')
	if err == io.EOF {
		if line == "" {
			return "", io.EOF
		}
		err = nil
	} else if err != nil {
		return "", err
	}
	reader.line++
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

// NewReader returns a Reader for r. If withHeader is true, the first
// line is consumed immediately and made available through Header.
func NewReader(r io.Reader, withHeader bool) (*Reader, error) {
	buf, ok := r.(*bufio.Reader)
	if !ok {
		buf = bufio.NewReaderSize(r, 1<<16)
	}
	reader := &Reader{r: buf}
	if withHeader {
		header, err := reader.getLine()
		switch {
		case err == io.EOF:
		case err != nil:
			return nil, err
		default:
			reader.header, reader.hasHeader = header, true
		}
	}
	return reader, nil
}

// Header returns the verbatim header line, and false if the stream
// had none.
func (reader *Reader) Header() (string, bool) {
	return reader.header, reader.hasHeader
}

// Read returns the next row, or io.EOF when the stream is exhausted.
// Empty lines are skipped, but still counted for line numbers.
func (reader *Reader) Read() (*Row, error) {
	for {
		line, err := reader.getLine()
		if err != nil {
			return nil, err
		}
		if line != "" {
			return NewRow(line, reader.line), nil
		}
	}
}

// A Writer writes rows to a TSV stream.
type Writer struct {
	w *bufio.Writer
}

// NewWriter returns a buffered Writer for w. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, 1<<16)}
}

// WriteHeader writes the header line verbatim.
func (writer *Writer) WriteHeader(header string) error {
	if _, err := writer.w.WriteString(header); err != nil {
		return err
	}
	return writer.w.WriteByte('\n')
}

// WriteRow writes the fields of row, separated by tabs.
func (writer *Writer) WriteRow(row *Row) error {
	buf := internal.ReserveByteBuffer()
	buf = row.Format(buf)
	_, err := writer.w.Write(buf)
	internal.ReleaseByteBuffer(buf)
	return err
}

// Flush writes any buffered data to the underlying io.Writer.
func (writer *Writer) Flush() error {
	return writer.w.Flush()
}

// InputFile represents a TSV file for input.
type InputFile struct {
	*Reader
	file *os.File
	rc   io.ReadCloser
}

// Open a TSV file for input.
//
// If the filename extension is .gz, the contents are decompressed
// transparently; both BGZF and plain gzip files are accepted.
//
// If the name is "/dev/stdin", then the input is read from os.Stdin.
func Open(name string, withHeader bool) (input *InputFile, err error) {
	file := os.Stdin
	if name != "/dev/stdin" {
		if file, err = os.Open(name); err != nil {
			return nil, err
		}
	}
	defer func() {
		if err != nil && file != os.Stdin {
			_ = file.Close()
		}
	}()
	rc, err := utils.HandleGzip(bufio.NewReaderSize(file, 1<<16), strings.HasSuffix(name, GzExt))
	if err != nil {
		return nil, err
	}
	reader, err := NewReader(rc, withHeader)
	if err != nil {
		_ = rc.Close()
		return nil, err
	}
	return &InputFile{Reader: reader, file: file, rc: rc}, nil
}

// Close the TSV input file.
func (input *InputFile) Close() error {
	err := input.rc.Close()
	if input.file != os.Stdin {
		if nerr := input.file.Close(); err == nil {
			err = nerr
		}
	}
	return err
}

// OutputFile represents a TSV file for output.
type OutputFile struct {
	*Writer
	file *os.File
}

// Create a TSV file for output. If the name is "/dev/stdout", then
// the output is written to os.Stdout.
func Create(name string) (*OutputFile, error) {
	if name == "/dev/stdout" {
		return &OutputFile{NewWriter(os.Stdout), os.Stdout}, nil
	}
	file, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	return &OutputFile{NewWriter(file), file}, nil
}

// Close flushes and closes the TSV output file.
func (output *OutputFile) Close() error {
	err := output.Flush()
	if output.file != os.Stdout {
		if nerr := output.file.Close(); err == nil {
			err = nerr
		}
	}
	return err
}

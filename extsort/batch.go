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

package extsort

import (
	"bufio"
	"io"
	"os"
	"sort"

	psort "github.com/exascience/pargo/sort"

	"github.com/exascience/capice2vcf/capice"
	"github.com/exascience/capice2vcf/internal"
	"github.com/exascience/capice2vcf/tsv"
)

// A keyedRow caches the parsed sort key of a row.
type keyedRow struct {
	pos capice.Position
	row *tsv.Row
}

func newKeyedRow(row *tsv.Row, keyColumn int) (keyedRow, error) {
	key, _ := row.Field(keyColumn)
	pos, err := capice.ParsePosition(key)
	if err != nil {
		return keyedRow{}, err
	}
	return keyedRow{pos: pos, row: row}, nil
}

// A batch is a slice of rows that is sorted in memory before it is
// spilled. It implements psort.StableSorter.
type batch []keyedRow

func (b batch) SequentialSort(i, j int) {
	slice := b[i:j]
	sort.SliceStable(slice, func(i, j int) bool {
		return capice.ComparePositions(slice[i].pos, slice[j].pos) < 0
	})
}

func (b batch) NewTemp() psort.StableSorter {
	return make(batch, len(b))
}

func (b batch) Len() int {
	return len(b)
}

func (b batch) Less(i, j int) bool {
	return capice.ComparePositions(b[i].pos, b[j].pos) < 0
}

func (b batch) Assign(source psort.StableSorter) func(i, j, len int) {
	dst, src := b, source.(batch)
	return func(i, j, len int) {
		copy(dst[i:i+len], src[j:j+len])
	}
}

func (b batch) sort(parallel bool) {
	if parallel {
		psort.StableSort(b)
	} else {
		b.SequentialSort(0, len(b))
	}
}

// A spillFile is a sorted batch on disk.
type spillFile struct {
	path string
	rows int
}

// spillWriter writes rows to a spill file.
type spillWriter struct {
	file *os.File
	zw   io.WriteCloser
	w    *bufio.Writer
	buf  []byte
}

func createSpillWriter(path string, compression Compression) (*spillWriter, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	zw, err := compression.newWriter(file)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return &spillWriter{
		file: file,
		zw:   zw,
		w:    bufio.NewWriterSize(zw, 1<<16),
		buf:  internal.ReserveByteBuffer(),
	}, nil
}

func (sw *spillWriter) WriteRow(row *tsv.Row) error {
	sw.buf = row.Format(sw.buf[:0])
	_, err := sw.w.Write(sw.buf)
	return err
}

func (sw *spillWriter) Close() error {
	internal.ReleaseByteBuffer(sw.buf)
	sw.buf = nil
	err := sw.w.Flush()
	if nerr := sw.zw.Close(); err == nil {
		err = nerr
	}
	if nerr := sw.file.Close(); err == nil {
		err = nerr
	}
	return err
}

func writeBatch(path string, compression Compression, rows batch) (err error) {
	sw, err := createSpillWriter(path, compression)
	if err != nil {
		return err
	}
	defer func() {
		if nerr := sw.Close(); err == nil {
			err = nerr
		}
	}()
	for _, r := range rows {
		if err = sw.WriteRow(r.row); err != nil {
			return err
		}
	}
	return nil
}

// A cursor reads a spill file back row by row during a merge.
type cursor struct {
	index     int
	path      string
	keyColumn int
	file      *os.File
	zr        io.ReadCloser
	reader    *tsv.Reader
	current   keyedRow
}

func openCursor(index int, path string, compression Compression, keyColumn int) (*cursor, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	zr, err := compression.newReader(bufio.NewReaderSize(file, 1<<16))
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	reader, err := tsv.NewReader(zr, false)
	if err != nil {
		_ = zr.Close()
		_ = file.Close()
		return nil, err
	}
	return &cursor{
		index:     index,
		path:      path,
		keyColumn: keyColumn,
		file:      file,
		zr:        zr,
		reader:    reader,
	}, nil
}

// next advances the cursor, and reports false when the spill file is
// exhausted.
func (c *cursor) next() (bool, error) {
	row, err := c.reader.Read()
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	c.current, err = newKeyedRow(row, c.keyColumn)
	return err == nil, err
}

func (c *cursor) close() error {
	err := c.zr.Close()
	if nerr := c.file.Close(); err == nil {
		err = nerr
	}
	return err
}

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

// Package extsort sorts CAPICE rows by genomic coordinate with bounded
// memory: rows are collected in batches, each batch is sorted in
// memory and spilled to a temporary file, and the spilled batches are
// merged with a k-way merge.
package extsort

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/exascience/capice2vcf/tsv"
)

// Compression selects how spilled batches are stored on disk.
type Compression uint8

const (
	// None stores batches as plain TSV.
	None Compression = iota
	// LZ4 compresses batches with LZ4 frames (fast).
	LZ4
	// Zstd compresses batches with Zstandard (smaller).
	Zstd
)

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd", "zst":
		return Zstd, nil
	default:
		return None, fmt.Errorf("unknown spill compression %v", s)
	}
}

func (c Compression) String() string {
	switch c {
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return "none"
	}
}

func (c Compression) extension() string {
	switch c {
	case LZ4:
		return ".tsv.lz4"
	case Zstd:
		return ".tsv.zst"
	default:
		return ".tsv"
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// newWriter wraps w in a compressor. Closing the result does not close w.
func (c Compression) newWriter(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case LZ4:
		return lz4.NewWriter(w), nil
	case Zstd:
		return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithEncoderConcurrency(1))
	default:
		return nopWriteCloser{w}, nil
	}
}

// newReader wraps r in a decompressor. Closing the result does not close r.
func (c Compression) newReader(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case Zstd:
		decoder, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return decoder.IOReadCloser(), nil
	default:
		return io.NopCloser(r), nil
	}
}

// Options configure a Sorter.
type Options struct {
	// KeyColumn is the column holding the CHROM_POS_REF_ALT key.
	KeyColumn int

	// A batch is spilled as soon as it holds BatchRows rows, or its
	// estimated size in memory reaches BatchBytes.
	BatchRows  int
	BatchBytes int64

	// TempDir is the directory in which each sort creates its own
	// spill directory. The empty string stands for os.TempDir().
	TempDir string

	// Compression of spilled batches.
	Compression Compression

	// MaxMergeWidth bounds the number of batches merged at once. More
	// batches are first merged in intermediate passes.
	MaxMergeWidth int

	// Parallel enables the parallel stable sort of batches.
	Parallel bool

	// InFlight is the number of batches that are sorted and spilled in
	// the background while the next batch is read. Zero sorts and spills
	// each batch before reading the next one. At most InFlight+1 batches
	// are held in memory at the same time.
	InFlight int
}

// Default option values.
const (
	DefaultBatchRows     = 500000
	DefaultBatchBytes    = 256 << 20
	DefaultMaxMergeWidth = 1024
)

// DefaultOptions returns the options used by the capice2vcf commands
// unless overridden on the command line.
func DefaultOptions() Options {
	return Options{
		BatchRows:     DefaultBatchRows,
		BatchBytes:    DefaultBatchBytes,
		MaxMergeWidth: DefaultMaxMergeWidth,
		Parallel:      true,
		InFlight:      1,
	}
}

func (options Options) normalize() Options {
	if options.KeyColumn < 0 {
		options.KeyColumn = 0
	}
	if options.BatchRows <= 0 {
		options.BatchRows = DefaultBatchRows
	}
	if options.BatchBytes <= 0 {
		options.BatchBytes = DefaultBatchBytes
	}
	if options.TempDir == "" {
		options.TempDir = os.TempDir()
	}
	if options.MaxMergeWidth < 2 {
		options.MaxMergeWidth = 2
	}
	if options.InFlight < 0 {
		options.InFlight = 0
	}
	return options
}

// A Source produces the rows to be sorted.
type Source interface {
	// Header returns the header line, and false if there is none.
	Header() (string, bool)
	// Read returns the next row, or io.EOF.
	Read() (*tsv.Row, error)
}

// A Sink consumes the sorted header and rows. *tsv.Writer is a Sink.
type Sink interface {
	WriteHeader(header string) error
	WriteRow(row *tsv.Row) error
}

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
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exascience/capice2vcf/capice"
	"github.com/exascience/capice2vcf/tsv"
)

type sliceSource struct {
	header    string
	hasHeader bool
	lines     []string
	next      int
}

func newSliceSource(header string, lines []string) *sliceSource {
	return &sliceSource{header: header, hasHeader: true, lines: lines}
}

func (src *sliceSource) Header() (string, bool) {
	return src.header, src.hasHeader
}

func (src *sliceSource) Read() (*tsv.Row, error) {
	if src.next >= len(src.lines) {
		return nil, io.EOF
	}
	src.next++
	return tsv.NewRow(src.lines[src.next-1], int64(src.next+1)), nil
}

type sliceSink struct {
	headers []string
	lines   []string
	rows    []*tsv.Row
}

func (sink *sliceSink) WriteHeader(header string) error {
	sink.headers = append(sink.headers, header)
	return nil
}

func (sink *sliceSink) WriteRow(row *tsv.Row) error {
	sink.lines = append(sink.lines, strings.TrimSuffix(string(row.Format(nil)), "\n"))
	sink.rows = append(sink.rows, row)
	return nil
}

var chromosomes = []string{"1", "2", "10", "22", "X", "Y", "MT", "GL000192.1"}

// randomLines generates rows with many duplicate positions. The second
// column records the input order.
func randomLines(n int) []string {
	lines := make([]string, n)
	for i := range lines {
		chrom := chromosomes[rand.Intn(len(chromosomes))]
		lines[i] = fmt.Sprintf("%v_%v_A_T\t%v\tgene\t0\t0.%v", chrom, 1+rand.Intn(50), i, rand.Intn(1000))
	}
	return lines
}

// referenceSort is a stable in-memory sort of the lines.
func referenceSort(t *testing.T, lines []string) []string {
	sorted := append([]string(nil), lines...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a := strings.SplitN(sorted[i], "\t", 2)[0]
		b := strings.SplitN(sorted[j], "\t", 2)[0]
		c, err := capice.CompareKeys(a, b)
		require.NoError(t, err)
		return c < 0
	})
	return sorted
}

func testOptions(t *testing.T) Options {
	options := DefaultOptions()
	options.TempDir = t.TempDir()
	return options
}

func sortLines(t *testing.T, options Options, lines []string) *sliceSink {
	sink := &sliceSink{}
	require.NoError(t, New(options).Sort(newSliceSource("pos\tid\tgene\tx\tscore", lines), sink))
	assert.Equal(t, []string{"pos\tid\tgene\tx\tscore"}, sink.headers)
	return sink
}

func assertNoSpillDirectories(t *testing.T, dir string) {
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSortSingleBatch(t *testing.T) {
	options := testOptions(t)
	sink := sortLines(t, options, []string{
		"MT_50_AC_A\t0\tg\tx\t0.9",
		"X_10_G_C\t1\tg\tx\t0.1",
		"1_100_A_T\t2\tg\tx\t0.5",
	})
	assert.Equal(t, []string{
		"1_100_A_T\t2\tg\tx\t0.5",
		"X_10_G_C\t1\tg\tx\t0.1",
		"MT_50_AC_A\t0\tg\tx\t0.9",
	}, sink.lines)
	for i, row := range sink.rows {
		assert.Equal(t, int64(i+2), row.Line)
	}
	assertNoSpillDirectories(t, options.TempDir)
}

func TestSortMultipleBatches(t *testing.T) {
	lines := randomLines(5000)
	expected := referenceSort(t, lines)
	for _, compression := range []Compression{None, LZ4, Zstd} {
		for _, inFlight := range []int{0, 1, 3} {
			options := testOptions(t)
			options.BatchRows = 97
			options.Compression = compression
			options.InFlight = inFlight
			sink := sortLines(t, options, lines)
			assert.Equal(t, expected, sink.lines, "compression %v, in-flight %v", compression, inFlight)
			assertNoSpillDirectories(t, options.TempDir)
		}
	}
}

func TestSortMultiplePasses(t *testing.T) {
	lines := randomLines(3000)
	options := testOptions(t)
	options.BatchRows = 10
	options.MaxMergeWidth = 4
	options.Compression = LZ4
	sink := sortLines(t, options, lines)
	assert.Equal(t, referenceSort(t, lines), sink.lines)
	assertNoSpillDirectories(t, options.TempDir)
}

func TestSortBatchBytes(t *testing.T) {
	lines := randomLines(1000)
	options := testOptions(t)
	options.BatchBytes = 1024
	options.Parallel = false
	sink := sortLines(t, options, lines)
	assert.Equal(t, referenceSort(t, lines), sink.lines)
}

func TestSortIdempotent(t *testing.T) {
	lines := randomLines(2000)
	options := testOptions(t)
	options.BatchRows = 123
	once := sortLines(t, options, lines)
	twice := sortLines(t, options, once.lines)
	assert.Equal(t, once.lines, twice.lines)
}

func TestSortEmptyInput(t *testing.T) {
	options := testOptions(t)
	sink := sortLines(t, options, nil)
	assert.Empty(t, sink.lines)
	assertNoSpillDirectories(t, options.TempDir)

	sink = &sliceSink{}
	require.NoError(t, New(options).Sort(&sliceSource{}, sink))
	assert.Empty(t, sink.headers)
	assert.Empty(t, sink.lines)
}

func TestSortInvalidKey(t *testing.T) {
	lines := randomLines(500)
	lines[321] = "Hanzeplein1\t321\tgene\t0\t0.5"
	options := testOptions(t)
	options.BatchRows = 50
	sink := &sliceSink{}
	err := New(options).Sort(newSliceSource("header", lines), sink)
	assert.Equal(t, &capice.PositionFormatError{Position: "Hanzeplein1"}, err)
	assert.Empty(t, sink.headers)
	assert.Empty(t, sink.lines)
	assertNoSpillDirectories(t, options.TempDir)
}

func TestSortKeyColumn(t *testing.T) {
	options := testOptions(t)
	options.KeyColumn = 1
	sink := &sliceSink{}
	require.NoError(t, New(options).Sort(newSliceSource("score\tpos", []string{
		"0.1\t2_5_A_T",
		"0.2\t1_5_A_T",
	}), sink))
	assert.Equal(t, []string{"0.2\t1_5_A_T", "0.1\t2_5_A_T"}, sink.lines)
}

type failingSource struct {
	*sliceSource
	after int
}

func (src *failingSource) Read() (*tsv.Row, error) {
	if src.next >= src.after {
		return nil, io.ErrUnexpectedEOF
	}
	return src.sliceSource.Read()
}

func TestSortReadError(t *testing.T) {
	options := testOptions(t)
	options.BatchRows = 10
	err := New(options).Sort(&failingSource{newSliceSource("h", randomLines(100)), 35}, &sliceSink{})
	var ioErr *capice.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assertNoSpillDirectories(t, options.TempDir)
}

func TestParseCompression(t *testing.T) {
	for _, c := range []Compression{None, LZ4, Zstd} {
		parsed, err := ParseCompression(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}
	_, err := ParseCompression("brotli")
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	options := New(Options{MaxMergeWidth: 1, InFlight: -1}).Options()
	assert.Equal(t, DefaultBatchRows, options.BatchRows)
	assert.Equal(t, int64(DefaultBatchBytes), options.BatchBytes)
	assert.Equal(t, 2, options.MaxMergeWidth)
	assert.Equal(t, 0, options.InFlight)
	assert.Equal(t, os.TempDir(), options.TempDir)
}

func TestRemoveStale(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, SpillDirPrefix+"stale")
	fresh := filepath.Join(dir, SpillDirPrefix+"fresh")
	other := filepath.Join(dir, "other")
	for _, d := range []string{stale, fresh, other} {
		require.NoError(t, os.Mkdir(d, 0700))
	}
	require.NoError(t, os.WriteFile(filepath.Join(stale, "batch-000000.tsv"), []byte("1_1_A_T\n"), 0600))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Chtimes(other, old, old))

	removed, err := RemoveStale(dir, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoDirExists(t, stale)
	assert.DirExists(t, fresh)
	assert.DirExists(t, other)
}

func BenchmarkSort(b *testing.B) {
	lines := randomLines(100000)
	options := DefaultOptions()
	options.TempDir = b.TempDir()
	options.BatchRows = 10000
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := New(options).Sort(newSliceSource("h", lines), &sliceSink{}); err != nil {
			b.Fatal(err)
		}
	}
}

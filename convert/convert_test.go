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

package convert

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exascience/capice2vcf/capice"
	"github.com/exascience/capice2vcf/utils/bgzf"
	"github.com/exascience/capice2vcf/vcf"
)

const capiceHeader = "chr_pos_ref_alt\tGeneName\tGeneID\tTranscriptID\tprobabilities\n"

const unsortedInput = capiceHeader +
	"MT_50_AC_A\tMT-ND1\t4535\tENST1\t0.9\n" +
	"X_10_G_C\tSHOX\t6473\tENST2\t0.1\n" +
	"1_100_A_T\tSAMD11\t148398\tENST3\t0.5\n"

const sortedInput = capiceHeader +
	"1_100_A_T\tSAMD11\t148398\tENST3\t0.5\n" +
	"X_10_G_C\tSHOX\t6473\tENST2\t0.1\n" +
	"MT_50_AC_A\tMT-ND1\t4535\tENST1\t0.9\n"

const expectedHeader = "##fileformat=VCFv4.2\n" +
	"##capice2vcf=1.0.0\n" +
	"##INFO=<ID=CAP,Number=A,Type=Float,Description=\"CAPICE pathogenicity prediction\">\n" +
	"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\n"

const expectedOutput = expectedHeader +
	"1\t100\t.\tA\tT\t.\t.\tCAP=0.5\n" +
	"X\t10\t.\tG\tC\t.\t.\tCAP=0.1\n" +
	"MT\t50\t.\tAC\tA\t.\t.\tCAP=0.9\n"

// recorder is a VariantWriter that keeps everything in memory.
type recorder struct {
	headers  int
	variants []*vcf.Variant
	closed   int
	closeErr error
	buf      bytes.Buffer
}

func (r *recorder) WriteHeader(header *vcf.Header) error {
	r.headers++
	out := bufio.NewWriter(&r.buf)
	if err := header.Format(out); err != nil {
		return err
	}
	return out.Flush()
}

func (r *recorder) WriteVariant(variant *vcf.Variant) error {
	r.variants = append(r.variants, variant)
	buf, err := variant.Format(nil)
	r.buf.Write(buf)
	return err
}

func (r *recorder) Close() error {
	r.closed++
	return r.closeErr
}

func writeInput(t *testing.T, name string, data []byte) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func testSettings(t *testing.T, input string, mode InputMode) Settings {
	settings := DefaultSettings(input, DefaultOutput(input))
	settings.Mode = mode
	settings.Sort.TempDir = t.TempDir()
	return settings
}

func TestRunPredictions(t *testing.T) {
	settings := testSettings(t, writeInput(t, "predictions.tsv", []byte(unsortedInput)), Predictions)
	r := &recorder{}
	require.NoError(t, Run(settings, r))
	assert.Equal(t, 1, r.headers)
	assert.Equal(t, 1, r.closed)
	assert.Equal(t, expectedOutput, r.buf.String())
	require.Len(t, r.variants, 3)
	assert.Equal(t, int32(51), r.variants[2].End())
	score, ok := r.variants[1].Info.Get(capice.CAP)
	assert.True(t, ok)
	assert.Equal(t, []interface{}{0.1}, score)
}

func TestRunPrecomputedScores(t *testing.T) {
	settings := testSettings(t, writeInput(t, "scores.tsv", []byte(sortedInput)), PrecomputedScores)
	settings.CheckOrder = true
	r := &recorder{}
	require.NoError(t, Run(settings, r))
	assert.Equal(t, 1, r.closed)
	assert.Equal(t, expectedOutput, r.buf.String())
}

func TestRunPrecomputedScoresCompressed(t *testing.T) {
	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write([]byte(sortedInput))
	require.NoError(t, gw.Close())

	var bgz bytes.Buffer
	bw := bgzf.NewWriter(&bgz, flate.DefaultCompression)
	_, _ = bw.Write([]byte(sortedInput))
	require.NoError(t, bw.Close())

	for _, data := range [][]byte{gz.Bytes(), bgz.Bytes()} {
		settings := testSettings(t, writeInput(t, "scores.tsv.gz", data), PrecomputedScores)
		r := &recorder{}
		require.NoError(t, Run(settings, r))
		assert.Equal(t, expectedOutput, r.buf.String())
	}
}

func TestRunPrecomputedScoresCorrupt(t *testing.T) {
	var bgz bytes.Buffer
	bw := bgzf.NewWriter(&bgz, flate.DefaultCompression)
	_, _ = bw.Write([]byte(sortedInput))
	require.NoError(t, bw.Close())
	data := bgz.Bytes()
	blockLength := int(binary.LittleEndian.Uint16(data[16:18])) + 1
	binary.LittleEndian.PutUint32(data[blockLength-4:blockLength], 1<<20)

	settings := testSettings(t, writeInput(t, "scores.tsv.gz", data), PrecomputedScores)
	r := &recorder{}
	err := Run(settings, r)
	var ioErr *capice.IOError
	assert.True(t, errors.As(err, &ioErr))
	assert.Equal(t, 1, r.closed)
}

func TestRunPrecomputedScoresUnsorted(t *testing.T) {
	settings := testSettings(t, writeInput(t, "scores.tsv", []byte(unsortedInput)), PrecomputedScores)
	settings.CheckOrder = true
	r := &recorder{}
	err := Run(settings, r)
	assert.Equal(t, &capice.UnsortedInputError{Line: 3, Previous: "MT_50_AC_A", Current: "X_10_G_C"}, err)
	assert.Equal(t, 1, r.closed)

	settings.CheckOrder = false
	r = &recorder{}
	require.NoError(t, Run(settings, r))
	assert.Len(t, r.variants, 3)
	assert.Equal(t, "MT", r.variants[0].Chrom)
}

func TestRunHeaderOnly(t *testing.T) {
	for _, mode := range []InputMode{Predictions, PrecomputedScores} {
		for _, input := range []string{capiceHeader, ""} {
			settings := testSettings(t, writeInput(t, "empty.tsv", []byte(input)), mode)
			r := &recorder{}
			require.NoError(t, Run(settings, r))
			assert.Equal(t, 1, r.headers)
			assert.Equal(t, 1, r.closed)
			assert.Equal(t, expectedHeader, r.buf.String())
		}
	}
}

func TestRunErrors(t *testing.T) {
	for _, mode := range []InputMode{Predictions, PrecomputedScores} {
		settings := testSettings(t, writeInput(t, "bad.tsv", []byte(capiceHeader+"1_12345_AT\tg\t1\tt\t0.5\n")), mode)
		r := &recorder{}
		err := Run(settings, r)
		assert.Equal(t, &capice.PositionFormatError{Position: "1_12345_AT"}, err, mode.String())
		assert.Equal(t, 1, r.closed)

		settings = testSettings(t, writeInput(t, "short.tsv", []byte(capiceHeader+"1_100_A_T\tg\n")), mode)
		r = &recorder{}
		err = Run(settings, r)
		assert.Equal(t, &capice.MalformedRowError{Line: 2, Position: "1_100_A_T", PositionColumn: 0, ScoreColumn: 4}, err, mode.String())
		assert.Equal(t, 1, r.closed)

		settings = testSettings(t, filepath.Join(t.TempDir(), "missing.tsv"), mode)
		r = &recorder{}
		err = Run(settings, r)
		var ioErr *capice.IOError
		assert.True(t, errors.As(err, &ioErr), mode.String())
		assert.True(t, errors.Is(err, os.ErrNotExist), mode.String())
		assert.Equal(t, 1, r.closed)
	}
}

func TestRunCloseError(t *testing.T) {
	closeErr := errors.New("disk full")
	settings := testSettings(t, writeInput(t, "predictions.tsv", []byte(unsortedInput)), Predictions)
	r := &recorder{closeErr: closeErr}
	err := Run(settings, r)
	assert.ErrorIs(t, err, closeErr)
	assert.Equal(t, 1, r.closed)
}

func TestConvertFile(t *testing.T) {
	input := writeInput(t, "predictions.tsv", []byte(unsortedInput))
	settings := testSettings(t, input, Predictions)
	require.NoError(t, ConvertFile(settings))

	f, err := os.Open(settings.Output)
	require.NoError(t, err)
	defer f.Close()
	buf := bufio.NewReader(f)
	ok, err := bgzf.IsBgzf(buf)
	require.NoError(t, err)
	assert.True(t, ok)
	r, err := bgzf.NewReader(buf)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, expectedOutput, string(data))
}

func TestParseInputMode(t *testing.T) {
	for _, mode := range []InputMode{Predictions, PrecomputedScores} {
		parsed, err := ParseInputMode(mode.String())
		require.NoError(t, err)
		assert.Equal(t, mode, parsed)
	}
	mode, err := ParseInputMode("PRECOMPUTED_SCORES")
	require.NoError(t, err)
	assert.Equal(t, PrecomputedScores, mode)
	_, err = ParseInputMode("vcf")
	assert.Error(t, err)
}

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

package bgzf

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math/rand"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compress(t *testing.T, data []byte, chunk int) []byte {
	var buf bytes.Buffer
	w := NewWriter(&buf, flate.DefaultCompression)
	for len(data) > 0 {
		n := chunk
		if n > len(data) {
			n = len(data)
		}
		k, err := w.Write(data[:n])
		require.NoError(t, err)
		require.Equal(t, n, k)
		data = data[n:]
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func decompress(t *testing.T, compressed []byte) []byte {
	r, err := NewReader(bufio.NewReader(bytes.NewReader(compressed)))
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	return data
}

func textData(n int) []byte {
	var buf bytes.Buffer
	for buf.Len() < n {
		buf.WriteString("1\t12345\t.\tA\tT\t.\t.\tCAP=0.")
		buf.WriteByte(byte('0' + rand.Intn(10)))
		buf.WriteByte('\n')
	}
	return buf.Bytes()[:n]
}

func TestRoundTrip(t *testing.T) {
	random := make([]byte, 300000)
	rand.Read(random)
	for _, data := range [][]byte{
		[]byte("x"),
		textData(1000),
		textData(1 << 20),
		random,
	} {
		for _, chunk := range []int{1 << 20, 4093} {
			compressed := compress(t, data, chunk)
			assert.Equal(t, data, decompress(t, compressed))
		}
	}
}

func TestEmpty(t *testing.T) {
	compressed := compress(t, nil, 1)
	assert.Equal(t, bgzfEOF, compressed)
	assert.Empty(t, decompress(t, compressed))
}

func TestGzipCompatible(t *testing.T) {
	data := textData(200000)
	compressed := compress(t, data, 1<<16)
	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	plain, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, data, plain)
}

func TestIsBgzf(t *testing.T) {
	compressed := compress(t, textData(100), 100)
	ok, err := IsBgzf(bufio.NewReader(bytes.NewReader(compressed)))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = IsGzip(bufio.NewReader(bytes.NewReader(compressed)))
	require.NoError(t, err)
	assert.True(t, ok)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, _ = gz.Write(textData(100))
	require.NoError(t, gz.Close())
	ok, err = IsBgzf(bufio.NewReader(bytes.NewReader(buf.Bytes())))
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = IsGzip(bufio.NewReader(bytes.NewReader(buf.Bytes())))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = IsGzip(bufio.NewReader(bytes.NewReader([]byte("1_100_A_T\t0.5\n"))))
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = IsBgzf(bufio.NewReader(bytes.NewReader(nil)))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTruncated(t *testing.T) {
	compressed := compress(t, textData(200000), 1<<16)
	truncated := compressed[:len(compressed)-len(bgzfEOF)]
	r, err := NewReader(bufio.NewReader(bytes.NewReader(truncated)))
	require.NoError(t, err)
	_, err = io.ReadAll(r)
	assert.Error(t, err)
	_ = r.Close()
}

func readCorrupt(t *testing.T, data []byte) error {
	r, err := NewReader(bufio.NewReader(bytes.NewReader(data)))
	if err != nil {
		return err
	}
	_, err = io.ReadAll(r)
	_ = r.Close()
	return err
}

func TestCorruptBlockSize(t *testing.T) {
	compressed := compress(t, textData(200000), 1<<16)
	blockLength := int(binary.LittleEndian.Uint16(compressed[16:18])) + 1
	patched := append([]byte(nil), compressed...)
	binary.LittleEndian.PutUint32(patched[blockLength-4:blockLength], 1<<20)
	assert.Error(t, readCorrupt(t, patched))

	patched = append([]byte(nil), compressed...)
	binary.LittleEndian.PutUint16(patched[16:18], 10)
	assert.Error(t, readCorrupt(t, patched))
}

func TestCorruptExtraField(t *testing.T) {
	header := []byte{
		0x1f, 0x8b, 0x08, 0x04, 0x00, 0x00, 0x00, 0x00,
		0x00, 0xff, 0x04, 0x00, 'B', 'C', 0x02, 0x00,
	}
	assert.Error(t, readCorrupt(t, header))
}

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

package utils

import (
	"bufio"
	"errors"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/exascience/capice2vcf/utils/bgzf"
)

// ErrNotGzip is returned by HandleGzip when compressed input was
// announced, but the data does not start with a gzip header.
var ErrNotGzip = errors.New("input is not gzip-compressed")

// HandleGzip returns a reader for the uncompressed contents of buf.
//
// If compressed is false, buf is returned unchanged. Otherwise, BGZF
// input is read with the parallel bgzf.Reader, and any other gzip
// input with a multi-member gzip reader. The returned io.ReadCloser
// never closes buf itself.
func HandleGzip(buf *bufio.Reader, compressed bool) (io.ReadCloser, error) {
	if !compressed {
		return io.NopCloser(buf), nil
	}
	if ok, err := bgzf.IsBgzf(buf); err != nil {
		return nil, err
	} else if ok {
		return bgzf.NewReader(buf)
	}
	if ok, err := bgzf.IsGzip(buf); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrNotGzip
	}
	return gzip.NewReader(buf)
}

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
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/exascience/capice2vcf/capice"
	"github.com/exascience/capice2vcf/internal"
	"github.com/exascience/capice2vcf/tsv"
)

// SpillDirPrefix is the name prefix of the spill directories that a
// Sorter creates in its TempDir.
const SpillDirPrefix = "capice2vcf-sort-"

// A Sorter sorts rows by the CHROM_POS_REF_ALT key in
// Options.KeyColumn, using temporary files to bound memory usage.
type Sorter struct {
	options Options
	spills  int64
}

// New returns a Sorter for the given options. Invalid option values
// are replaced by their defaults.
func New(options Options) *Sorter {
	return &Sorter{options: options.normalize()}
}

// Options returns the effective options of the sorter.
func (s *Sorter) Options() Options {
	return s.options
}

func (s *Sorter) spillPath(dir string) string {
	n := atomic.AddInt64(&s.spills, 1) - 1
	return filepath.Join(dir, fmt.Sprintf("batch-%06d%s", n, s.options.Compression.extension()))
}

/*
Sort reads all rows from src, and writes the header of src followed
by the rows in coordinate order to dst. Rows with equal positions keep
their relative input order. Rows passed to dst get fresh line numbers
that reflect their position in the sorted output.

An invalid key in any row aborts the sort with a
*capice.PositionFormatError. Failures to read, spill or merge are
reported as *capice.IOError. The spill directory is removed whether
the sort succeeds or not.
*/
func (s *Sorter) Sort(src Source, dst Sink) error {
	dir := filepath.Join(s.options.TempDir, SpillDirPrefix+uuid.New().String())
	if err := os.MkdirAll(dir, 0700); err != nil {
		return capice.NewIOError("creating spill directory", dir, err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warnf("Could not remove spill directory %v: %v", dir, err)
		}
	}()

	files, err := s.spill(src, dir)
	if err != nil {
		return err
	}
	if files, err = s.reduce(dir, files); err != nil {
		return err
	}

	var line int64
	if header, ok := src.Header(); ok {
		if err := dst.WriteHeader(header); err != nil {
			return capice.NewIOError("writing header", "", err)
		}
		line++
	}
	return s.merge(files, func(row *tsv.Row) error {
		line++
		row.Line = line
		return capice.NewIOError("writing sorted row", "", dst.WriteRow(row))
	})
}

// readBatch reads the next batch of rows from src, and reports
// whether src is exhausted.
func (s *Sorter) readBatch(src Source) (rows batch, eof bool, err error) {
	var size int64
	for len(rows) < s.options.BatchRows && size < s.options.BatchBytes {
		row, err := src.Read()
		if err == io.EOF {
			return rows, true, nil
		}
		if err != nil {
			return nil, false, capice.NewIOError("reading input", "", err)
		}
		r, err := newKeyedRow(row, s.options.KeyColumn)
		if err != nil {
			return nil, false, err
		}
		rows = append(rows, r)
		size += int64(row.Size())
	}
	return rows, false, nil
}

// spill partitions src into batches, and sorts and spills each batch
// to its own file in dir. Up to InFlight batches are sorted and
// spilled in the background while the next batch is read.
func (s *Sorter) spill(src Source, dir string) ([]*spillFile, error) {
	g, ctx := errgroup.WithContext(context.Background())
	if s.options.InFlight > 0 {
		g.SetLimit(s.options.InFlight)
	}
	var files []*spillFile
	for eof := false; !eof && ctx.Err() == nil; {
		var rows batch
		var err error
		if rows, eof, err = s.readBatch(src); err != nil {
			_ = g.Wait()
			return nil, err
		}
		if len(rows) == 0 {
			break
		}
		file := &spillFile{path: s.spillPath(dir), rows: len(rows)}
		files = append(files, file)
		task := func() error {
			rows.sort(s.options.Parallel)
			log.Debugf("Spilling %v rows to %v.", len(rows), file.path)
			return capice.NewIOError("writing spill file", file.path, writeBatch(file.path, s.options.Compression, rows))
		}
		if s.options.InFlight == 0 {
			if err := task(); err != nil {
				return nil, err
			}
		} else {
			g.Go(task)
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Debugf("Spilled %v batches.", len(files))
	return files, nil
}

// RemoveStale removes spill directories in tempDir that were left
// behind by sorts that did not terminate normally, and that were last
// modified more than olderThan ago. It returns the number of removed
// directories.
func RemoveStale(tempDir string, olderThan time.Duration) (removed int, err error) {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	names, err := internal.Directory(tempDir, SpillDirPrefix)
	if err != nil {
		return 0, capice.NewIOError("listing temporary directory", tempDir, err)
	}
	threshold := time.Now().Add(-olderThan)
	for _, name := range names {
		path := filepath.Join(tempDir, name)
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() || !strings.HasPrefix(name, SpillDirPrefix) {
			continue
		}
		if info.ModTime().After(threshold) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			return removed, capice.NewIOError("removing stale spill directory", path, err)
		}
		log.Infof("Removed stale spill directory %v.", path)
		removed++
	}
	return removed, nil
}

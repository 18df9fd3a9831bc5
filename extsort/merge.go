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
	"container/heap"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/exascience/capice2vcf/capice"
	"github.com/exascience/capice2vcf/tsv"
)

// mergeHeap orders cursors by their current row. Equal positions are
// ordered by batch index, which keeps the merge stable.
type mergeHeap []*cursor

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	if c := capice.ComparePositions(h[i].current.pos, h[j].current.pos); c != 0 {
		return c < 0
	}
	return h[i].index < h[j].index
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x interface{}) { *h = append(*h, x.(*cursor)) }

func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old) - 1
	c := old[n]
	old[n] = nil
	*h = old[:n]
	return c
}

func removeSpillFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warnf("Could not remove spill file %v: %v", path, err)
	}
}

// merge performs a k-way merge of the given sorted spill files, and
// passes each row to emit in order. Each spill file is removed as soon
// as it is exhausted.
func (s *Sorter) merge(files []*spillFile, emit func(*tsv.Row) error) (funcErr error) {
	h := make(mergeHeap, 0, len(files))
	defer func() {
		for _, c := range h {
			if err := c.close(); funcErr == nil {
				funcErr = capice.NewIOError("closing spill file", c.path, err)
			}
		}
	}()
	for index, file := range files {
		c, err := openCursor(index, file.path, s.options.Compression, s.options.KeyColumn)
		if err != nil {
			return capice.NewIOError("opening spill file", file.path, err)
		}
		ok, err := c.next()
		if !ok {
			_ = c.close()
			if err != nil {
				return capice.NewIOError("reading spill file", file.path, err)
			}
			removeSpillFile(file.path)
			continue
		}
		h = append(h, c)
	}
	heap.Init(&h)
	for len(h) > 0 {
		top := h[0]
		if err := emit(top.current.row); err != nil {
			return err
		}
		ok, err := top.next()
		if err != nil {
			return capice.NewIOError("reading spill file", top.path, err)
		}
		if ok {
			heap.Fix(&h, 0)
			continue
		}
		heap.Pop(&h)
		if err := top.close(); err != nil {
			return capice.NewIOError("closing spill file", top.path, err)
		}
		removeSpillFile(top.path)
	}
	return nil
}

// reduce merges consecutive groups of at most MaxMergeWidth spill files
// into intermediate spill files, until at most MaxMergeWidth remain.
// Merging consecutive groups preserves the relative order of rows with
// equal positions.
func (s *Sorter) reduce(dir string, files []*spillFile) ([]*spillFile, error) {
	width := s.options.MaxMergeWidth
	for pass := 1; len(files) > width; pass++ {
		log.Debugf("Merge pass %v: merging %v spill files in groups of %v.", pass, len(files), width)
		var merged []*spillFile
		for start := 0; start < len(files); start += width {
			end := start + width
			if end > len(files) {
				end = len(files)
			}
			if end-start == 1 {
				merged = append(merged, files[start])
				continue
			}
			out := &spillFile{path: s.spillPath(dir)}
			if err := s.mergeInto(out, files[start:end]); err != nil {
				return nil, err
			}
			log.Debugf("Merged %v rows from %v spill files into %v.", out.rows, end-start, out.path)
			merged = append(merged, out)
		}
		files = merged
	}
	return files, nil
}

func (s *Sorter) mergeInto(out *spillFile, files []*spillFile) (funcErr error) {
	sw, err := createSpillWriter(out.path, s.options.Compression)
	if err != nil {
		return capice.NewIOError("creating spill file", out.path, err)
	}
	defer func() {
		if err := sw.Close(); funcErr == nil {
			funcErr = capice.NewIOError("writing spill file", out.path, err)
		}
	}()
	return s.merge(files, func(row *tsv.Row) error {
		out.rows++
		return capice.NewIOError("writing spill file", out.path, sw.WriteRow(row))
	})
}

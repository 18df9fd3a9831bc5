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
	"fmt"
	"testing"

	"github.com/exascience/pargo/parallel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntern(t *testing.T) {
	a := Intern("CAP")
	b := Intern(string([]byte("CAP")))
	assert.True(t, a == b)
	assert.Equal(t, "CAP", *a)
	assert.False(t, a == Intern("END"))
}

func TestInternConcurrent(t *testing.T) {
	symbols := make([]Symbol, 1000)
	parallel.Range(0, len(symbols), 0, func(low, high int) {
		for i := low; i < high; i++ {
			symbols[i] = Intern(fmt.Sprint("S", i%10))
		}
	})
	for i, s := range symbols {
		assert.True(t, s == symbols[i%10], i)
	}
}

func TestSmallMap(t *testing.T) {
	var m SmallMap
	_, ok := m.Get(Intern("A"))
	assert.False(t, ok)
	m.Set(Intern("A"), 1)
	m.Set(Intern("B"), 2)
	m.Set(Intern("A"), 3)
	require.Len(t, m, 2)
	value, ok := m.Get(Intern("A"))
	assert.True(t, ok)
	assert.Equal(t, 3, value)
	assert.Equal(t, Intern("A"), m[0].Key)
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"Source", "Version", "a"}, StringMap{"a": "1", "Version": "2", "Source": "3"}.SortedKeys())
}

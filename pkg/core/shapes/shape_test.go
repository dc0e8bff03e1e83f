// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	invalidShape := Invalid()
	require.False(t, invalidShape.Ok())

	shape0 := Make(dtypes.Float64)
	require.True(t, shape0.Ok())
	require.True(t, shape0.IsScalar())
	require.Equal(t, 0, shape0.Rank())
	require.Equal(t, 1, shape0.Size())
	require.Equal(t, uintptr(8), shape0.Memory())

	shape1 := Make(dtypes.Float32, 3, 4, 5)
	require.False(t, shape1.IsScalar())
	require.Equal(t, 3, shape1.Rank())
	require.Equal(t, 60, shape1.Size())
	require.Equal(t, uintptr(240), shape1.Memory())
	require.Equal(t, 5, shape1.Dim(-1))
	require.Equal(t, "(Float32)[3 4 5]", shape1.String())
	require.Panics(t, func() { _ = shape1.Dim(3) })
}

func TestMakeChecked(t *testing.T) {
	_, err := MakeChecked(dtypes.Float32, 3, 0)
	require.Error(t, err)
	_, err = MakeChecked(dtypes.InvalidDType, 3)
	require.Error(t, err)
	require.Panics(t, func() { _ = Make(dtypes.Int32, -1) })

	dims := []int{2, 3}
	s, err := MakeChecked(dtypes.Int32, dims...)
	require.NoError(t, err)
	dims[0] = 7
	assert.Equal(t, []int{2, 3}, s.Dimensions, "Make must not alias the caller's dimensions")
}

func TestEqualAndClone(t *testing.T) {
	s := Make(dtypes.Float32, 2, 3)
	c := s.Clone()
	require.True(t, s.Equal(c))
	c.Dimensions[0] = 5
	require.False(t, s.Equal(c))
	require.False(t, s.Equal(Make(dtypes.Float64, 2, 3)))
	require.True(t, s.EqualDimensions(Make(dtypes.Float64, 2, 3)))
}

func TestStridesAndIter(t *testing.T) {
	s := Make(dtypes.Float32, 2, 3, 4)
	require.Equal(t, []int{12, 4, 1}, s.Strides())

	var count int
	strides := s.Strides()
	for flatIdx, indices := range s.Iter() {
		var fromIndices int
		for axis, idx := range indices {
			fromIndices += idx * strides[axis]
		}
		require.Equal(t, flatIdx, fromIndices)
		count++
	}
	require.Equal(t, 24, count)

	count = 0
	for range Make(dtypes.Int8).Iter() {
		count++
	}
	require.Equal(t, 1, count)
}

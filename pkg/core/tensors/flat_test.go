// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"
)

func TestBytesOf(t *testing.T) {
	flat := []float32{1, 2, 3}
	data, dtype, err := BytesOf(flat)
	require.NoError(t, err)
	require.Equal(t, dtypes.Float32, dtype)
	require.Len(t, data, 12)

	// It's a view: changes are visible in the original.
	view := View[float32](data)
	view[1] = 7
	require.Equal(t, []float32{1, 7, 3}, flat)

	raw := []byte{1, 2}
	data, dtype, err = BytesOf(raw)
	require.NoError(t, err)
	require.Equal(t, dtypes.InvalidDType, dtype)
	require.Equal(t, raw, data)

	_, _, err = BytesOf(3.0)
	require.Error(t, err)
	_, _, err = BytesOf([]string{"a"})
	require.Error(t, err)
}

func TestDTypeOf(t *testing.T) {
	require.Equal(t, dtypes.Float32, DTypeOf([]float32{1}))
	require.Equal(t, dtypes.Int64, DTypeOf([]int64{}))
	require.Equal(t, dtypes.Uint8, DTypeOf([]byte{1, 2}))
	require.Equal(t, dtypes.Uint8, DTypeOf([]uint8(nil)))
	require.Equal(t, dtypes.InvalidDType, DTypeOf([]string{"a"}))
	require.Equal(t, dtypes.InvalidDType, DTypeOf(3.0))
}

func TestViewAs(t *testing.T) {
	data := AlignedBytes(16)
	anyView, err := ViewAs(dtypes.Int32, data)
	require.NoError(t, err)
	ints, ok := anyView.([]int32)
	require.True(t, ok)
	require.Len(t, ints, 4)
	ints[3] = -1
	require.Equal(t, int64(-1)<<32, View[int64](data)[1], "little-endian view of the same memory")

	_, err = ViewAs(dtypes.Int64, data[:12])
	require.Error(t, err)

	c := CopyBytes(data)
	c[0] = 1
	require.Equal(t, byte(0), data[0])
}

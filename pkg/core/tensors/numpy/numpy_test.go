// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package numpy

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/webnn/pkg/core/shapes"
	"github.com/gomlx/webnn/pkg/core/tensors"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func arrayOf(t *testing.T, flat any, dims ...int) *Array {
	data, _, err := tensors.BytesOf(flat)
	require.NoError(t, err)
	return &Array{Shape: shapes.Make(tensors.DTypeOf(flat), dims...), Data: tensors.CopyBytes(data)}
}

// npyWithHeader builds a version 1.0 .npy file with the given header dict and data.
func npyWithHeader(header string, data []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(npyMagic)
	buf.Write([]byte{1, 0})
	lenBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBytes, uint16(len(header)))
	buf.Write(lenBytes)
	buf.WriteString(header)
	buf.Write(data)
	return buf.Bytes()
}

func TestNpyRoundTrip(t *testing.T) {
	for name, array := range map[string]*Array{
		"float32": arrayOf(t, []float32{1, -2, 3.5, 4, 5, 6}, 2, 3),
		"int64":   arrayOf(t, []int64{-7, 8}, 2),
		"uint8":   arrayOf(t, []uint8{1, 2, 3, 4}, 2, 1, 2),
		"float64": arrayOf(t, []float64{3.25}),
	} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteNpy(&buf, array))
			assert.Zero(t, (buf.Len()-len(array.Data))%64, "data must be 64-bytes aligned")
			got, err := FromNpyReader(&buf)
			require.NoError(t, err)
			assert.True(t, array.Shape.Equal(got.Shape), "got shape %s, wanted %s", got.Shape, array.Shape)
			assert.Equal(t, array.Data, got.Data)
		})
	}

	assert.Equal(t, dtypes.Uint8, arrayOf(t, []uint8{1, 2}, 2).Shape.DType)

	filePath := filepath.Join(t.TempDir(), "x.npy")
	require.NoError(t, WriteNpyFile(filePath, arrayOf(t, []int32{1, 2, 3}, 3)))
	got := must.M1(FromNpyFile(filePath))
	values := must.M1(got.Float32s())
	assert.Equal(t, []float32{1, 2, 3}, values)
}

func TestFortranOrder(t *testing.T) {
	// Column-major [2, 3] matrix {{1, 2, 3}, {4, 5, 6}}.
	data, _, err := tensors.BytesOf([]float32{1, 4, 2, 5, 3, 6})
	require.NoError(t, err)
	file := npyWithHeader("{'descr': '<f4', 'fortran_order': True, 'shape': (2, 3), }\n", data)
	array, err := FromNpyReader(bytes.NewReader(file))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, array.Shape.Dimensions)
	flat, err := array.Flat()
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, flat)
}

func TestNpyErrors(t *testing.T) {
	_, err := FromNpyReader(bytes.NewReader([]byte("not numpy")))
	require.ErrorContains(t, err, "magic")

	_, err = FromNpyReader(bytes.NewReader(npyWithHeader("{'descr': '>f4', 'fortran_order': False, 'shape': (1,), }", make([]byte, 4))))
	require.ErrorContains(t, err, "big-endian")

	_, err = FromNpyReader(bytes.NewReader(npyWithHeader("{'descr': '<c8', 'fortran_order': False, 'shape': (1,), }", make([]byte, 8))))
	require.ErrorContains(t, err, "unsupported")

	_, err = FromNpyReader(bytes.NewReader(npyWithHeader("{'descr': '<f4', 'shape': (1,), }", make([]byte, 4))))
	require.ErrorContains(t, err, "fortran_order")

	// Truncated data.
	_, err = FromNpyReader(bytes.NewReader(npyWithHeader("{'descr': '<f4', 'fortran_order': False, 'shape': (4,), }", make([]byte, 6))))
	require.Error(t, err)

	// Mismatched data size on write.
	array := &Array{Shape: shapes.Make(dtypes.Float32, 3), Data: make([]byte, 4)}
	require.Error(t, WriteNpy(&bytes.Buffer{}, array))
}

func TestNpz(t *testing.T) {
	arrays := map[string]*Array{
		"input":  arrayOf(t, []float32{1, 2, 3, 4}, 1, 2, 2),
		"output": arrayOf(t, []float32{0.5}, 1),
	}
	var buf bytes.Buffer
	require.NoError(t, WriteNpz(&buf, arrays))
	got, err := FromNpzReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, got, 2)
	for name, array := range arrays {
		require.Contains(t, got, name)
		assert.Equal(t, array.Data, got[name].Data)
		assert.Equal(t, array.Shape.Dimensions, got[name].Shape.Dimensions)
	}

	_, err = FromNpzFile(filepath.Join(t.TempDir(), "missing.npz"))
	require.Error(t, err)
}

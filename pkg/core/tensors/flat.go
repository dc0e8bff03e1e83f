// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors converts between Go flat slices (e.g. []float32) and the raw row-major bytes
// consumed and produced by the backends.
//
// Conversions are views: no data is copied, the returned slices share memory with their source.
package tensors

import (
	"reflect"
	"unsafe"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// BytesOf returns a view of the flat slice as raw bytes, and the dtype of its elements.
//
// A []byte is returned as is, with dtype InvalidDType, since its element type is unknown.
func BytesOf(flat any) (data []byte, dtype dtypes.DType, err error) {
	if b, ok := flat.([]byte); ok {
		return b, dtypes.InvalidDType, nil
	}
	flatV := reflect.ValueOf(flat)
	if flatV.Kind() != reflect.Slice {
		return nil, dtypes.InvalidDType, errors.Errorf("expected a flat slice, got %T instead", flat)
	}
	dtype = dtypes.FromGoType(flatV.Type().Elem())
	if dtype == dtypes.InvalidDType {
		return nil, dtypes.InvalidDType, errors.Errorf("flat slice of type %T doesn't map to a supported dtype", flat)
	}
	numBytes := flatV.Len() * int(flatV.Type().Elem().Size())
	if numBytes == 0 {
		return []byte{}, dtype, nil
	}
	return unsafe.Slice((*byte)(flatV.UnsafePointer()), numBytes), dtype, nil
}

// DTypeOf returns the dtype of the elements of a flat slice. A []byte is taken as dtypes.Uint8.
// It returns dtypes.InvalidDType for values that are not a flat slice of a supported type.
func DTypeOf(flat any) dtypes.DType {
	if _, ok := flat.([]byte); ok {
		return dtypes.Uint8
	}
	flatV := reflect.ValueOf(flat)
	if flatV.Kind() != reflect.Slice {
		return dtypes.InvalidDType
	}
	return dtypes.FromGoType(flatV.Type().Elem())
}

// View returns a view of data as a slice of T. len(data) must be a multiple of the size of T,
// and data must be aligned for T.
func View[T any](data []byte) []T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if len(data) == 0 || size == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(data))), len(data)/size)
}

// ViewAs returns a view of data as a flat slice of the Go type of dtype (e.g. []float32 for Float32).
func ViewAs(dtype dtypes.DType, data []byte) (any, error) {
	goType := dtype.GoType()
	if goType == nil {
		return nil, errors.Errorf("dtype %s has no Go type", dtype)
	}
	elemSize := int(goType.Size())
	if len(data)%elemSize != 0 {
		return nil, errors.Errorf("%d bytes is not a multiple of the size of %s (%d bytes)", len(data), dtype, elemSize)
	}
	n := len(data) / elemSize
	if n == 0 {
		return reflect.MakeSlice(reflect.SliceOf(goType), 0, 0).Interface(), nil
	}
	arrayPtr := reflect.NewAt(reflect.ArrayOf(n, goType), unsafe.Pointer(unsafe.SliceData(data)))
	return arrayPtr.Elem().Slice(0, n).Interface(), nil
}

// AlignedBytes allocates numBytes of zeroed memory aligned to 8 bytes, so it can be viewed as any dtype.
func AlignedBytes(numBytes int) []byte {
	if numBytes == 0 {
		return []byte{}
	}
	words := make([]uint64, (numBytes+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), numBytes)
}

// CopyBytes returns an aligned copy of data.
func CopyBytes(data []byte) []byte {
	c := AlignedBytes(len(data))
	copy(c, data)
	return c
}

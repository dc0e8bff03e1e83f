// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// FuncForDispatcher is the type of functions that the DTypeDispatcher can handle.
type FuncForDispatcher func(params ...any)

// MaxDTypes is an upper bound on the dtype values handled by a DTypeDispatcher.
const MaxDTypes = 32

// DTypeDispatcher selects the instance of a generic kernel that matches a dtype.
type DTypeDispatcher struct {
	Name  string
	fnMap [MaxDTypes]FuncForDispatcher
}

// NewDTypeDispatcher creates a new dispatcher for a class of functions.
func NewDTypeDispatcher(name string) *DTypeDispatcher {
	return &DTypeDispatcher{Name: name}
}

// Dispatch calls the function that matches the dtype. It panics if there is none.
func (d *DTypeDispatcher) Dispatch(dtype dtypes.DType, params ...any) {
	if dtype >= MaxDTypes || d.fnMap[dtype] == nil {
		exceptions.Panicf("dtype %s not supported by %s", dtype, d.Name)
	}
	d.fnMap[dtype](params...)
}

// Register a function to handle a specific dtype, overwriting any previous setting.
func (d *DTypeDispatcher) Register(dtype dtypes.DType, fn FuncForDispatcher) {
	if dtype >= MaxDTypes {
		exceptions.Panicf("dtype %s not supported by %s", dtype, d.Name)
	}
	d.fnMap[dtype] = fn
}

// Has returns whether there is a function registered for dtype.
func (d *DTypeDispatcher) Has(dtype dtypes.DType) bool {
	return dtype < MaxDTypes && d.fnMap[dtype] != nil
}

// numeric are the Go types of the dtypes computed natively. Float16 is computed as float32.
type numeric interface {
	int8 | int32 | int64 | uint8 | uint32 | float32 | float64
}

// float are the Go float types computed natively.
type float interface {
	float32 | float64
}

// lowest returns the lowest value of T, used to initialize max reductions.
func lowest[T numeric]() T {
	var v any
	var zero T
	switch any(zero).(type) {
	case float32:
		v = float32(math.Inf(-1))
	case float64:
		v = math.Inf(-1)
	case int8:
		v = int8(math.MinInt8)
	case int32:
		v = int32(math.MinInt32)
	case int64:
		v = int64(math.MinInt64)
	default:
		return zero // Unsigned.
	}
	return v.(T)
}

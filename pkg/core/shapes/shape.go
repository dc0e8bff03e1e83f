// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapes defines Shape, the descriptor of a tensor operand: its data type and its dimensions.
//
// Every operand added to a graph builder has a Shape, and every buffer handed to a compiled graph
// is validated against the Shape of the corresponding input or output.
//
// ## Glossary
//
//   - Rank: number of axes (dimensions) of a tensor.
//   - Axis: the index of a dimension. Plural axes.
//   - Dimension: the size of a tensor in one of its axes. It is always >= 1.
//   - DType: the data type of the unit element of a tensor, from github.com/gomlx/gopjrt/dtypes.
//   - Scalar: a shape with no axes, holding a single value of its DType.
//
// Example: the data `[][]float32{{0, 1, 2}, {3, 4, 5}}` has shape `(Float32)[2 3]`, created
// with `shapes.Make(dtypes.Float32, 2, 3)`.
package shapes

import (
	"fmt"
	"iter"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Shape of an operand: its data type and dimensions.
//
// Use Make or MakeChecked to create a new shape.
type Shape struct {
	DType      dtypes.DType
	Dimensions []int
}

// Make returns a Shape structure filled with the values given.
//
// It panics if any of the dimensions is <= 0. Use MakeChecked for user provided dimensions.
func Make(dtype dtypes.DType, dimensions ...int) Shape {
	s, err := MakeChecked(dtype, dimensions...)
	if err != nil {
		exceptions.Panicf("shapes.Make: %v", err)
	}
	return s
}

// MakeChecked is like Make, but returns an error instead of panicking.
func MakeChecked(dtype dtypes.DType, dimensions ...int) (Shape, error) {
	s := Shape{DType: dtype, Dimensions: slices.Clone(dimensions)}
	if dtype == dtypes.InvalidDType {
		return Invalid(), errors.Errorf("cannot create shape %v with an invalid dtype", dimensions)
	}
	for axis, dim := range dimensions {
		if dim <= 0 {
			return Invalid(), errors.Errorf("cannot create shape %s: axis #%d has dimension %d, it must be >= 1", s, axis, dim)
		}
	}
	return s, nil
}

// Scalar returns a scalar Shape for the given type.
func Scalar[T dtypes.Number]() Shape {
	return Shape{DType: dtypes.FromGenericsType[T]()}
}

// Invalid returns an invalid shape.
//
// Invalid().Ok() == false.
func Invalid() Shape {
	return Shape{DType: dtypes.InvalidDType}
}

// Ok returns whether this is a valid Shape. A "zero" shape, that is just instantiating it with Shape{} will be invalid.
func (s Shape) Ok() bool { return s.DType != dtypes.InvalidDType }

// Rank of the shape, that is, the number of dimensions.
func (s Shape) Rank() int { return len(s.Dimensions) }

// IsScalar returns whether the shape represents a scalar, that is there are no dimensions (rank==0).
func (s Shape) IsScalar() bool { return s.Ok() && s.Rank() == 0 }

// Dim returns the dimension of the given axis. axis can take negative numbers, in which
// case it counts as starting from the end -- so axis=-1 refers to the last axis.
// Like with a slice indexing, it panics for an out-of-bound axis.
func (s Shape) Dim(axis int) int {
	adjustedAxis := axis
	if adjustedAxis < 0 {
		adjustedAxis += s.Rank()
	}
	if adjustedAxis < 0 || adjustedAxis >= s.Rank() {
		exceptions.Panicf("Shape.Dim(%d) out-of-bounds for rank %d (shape=%s)", axis, s.Rank(), s)
	}
	return s.Dimensions[adjustedAxis]
}

// String implements stringer, pretty-prints the shape.
func (s Shape) String() string {
	if s.Rank() == 0 {
		return fmt.Sprintf("(%s)", s.DType)
	}
	return fmt.Sprintf("(%s)%v", s.DType, s.Dimensions)
}

// Size returns the number of elements of DType needed for this shape. It's the product of all dimensions.
func (s Shape) Size() (size int) {
	size = 1
	for _, d := range s.Dimensions {
		size *= d
	}
	return
}

// Memory returns the number of bytes used to store an array of the given shape.
func (s Shape) Memory() uintptr {
	return s.DType.Memory() * uintptr(s.Size())
}

// Equal compares two shapes for equality: dtype and dimensions are compared.
func (s Shape) Equal(s2 Shape) bool {
	return s.DType == s2.DType && slices.Equal(s.Dimensions, s2.Dimensions)
}

// EqualDimensions compares two shapes for equality of dimensions. Dtypes can be different.
func (s Shape) EqualDimensions(s2 Shape) bool {
	return slices.Equal(s.Dimensions, s2.Dimensions)
}

// Clone returns a new deep copy of the shape.
func (s Shape) Clone() Shape {
	return Shape{DType: s.DType, Dimensions: slices.Clone(s.Dimensions)}
}

// WithDimensions returns a copy of the shape with the same dtype and the given dimensions.
func (s Shape) WithDimensions(dimensions ...int) Shape {
	return Shape{DType: s.DType, Dimensions: slices.Clone(dimensions)}
}

// Strides returns the strides for each axis of the shape, in a "row-major" layout.
//
// Strides are in number of elements, not bytes.
func (s Shape) Strides() (strides []int) {
	rank := s.Rank()
	if rank == 0 {
		return
	}
	strides = make([]int, rank)
	currentStride := 1
	for axis := rank - 1; axis >= 0; axis-- {
		strides[axis] = currentStride
		currentStride *= s.Dimensions[axis]
	}
	return
}

// Iter iterates sequentially, in row-major order, over all indices of the shape.
//
// It yields the flat index and a slice with the index for each axis. The yielded slice
// is reused across iterations: don't change it or hold on to it.
func (s Shape) Iter() iter.Seq2[int, []int] {
	return func(yield func(int, []int) bool) {
		if !s.Ok() {
			return
		}
		rank := s.Rank()
		indices := make([]int, rank)
		size := s.Size()
		for flatIdx := range size {
			if !yield(flatIdx, indices) {
				return
			}
			for axis := rank - 1; axis >= 0; axis-- {
				indices[axis]++
				if indices[axis] < s.Dimensions[axis] {
					break
				}
				indices[axis] = 0
			}
		}
	}
}

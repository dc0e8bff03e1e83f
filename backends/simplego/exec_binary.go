// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/webnn/backends"
	"github.com/gomlx/webnn/pkg/core/shapes"
	"github.com/gomlx/webnn/pkg/core/tensors"
)

// This file implements binary element-wise operations.
// Operands with the output's shape, or of size 1, are iterated over flatly (and in parallel);
// any other broadcasting goes through a broadcastIterator.

// minElementwiseChunk is the minimum number of elements computed by one worker.
const minElementwiseChunk = 1 << 14

var dispatchBinary = NewDTypeDispatcher("Binary")

func init() {
	for _, op := range []backends.OpType{
		backends.OpTypeAdd, backends.OpTypeSub, backends.OpTypeMul, backends.OpTypeDiv,
		backends.OpTypeMax, backends.OpTypeMin, backends.OpTypePow,
	} {
		nodeExecutors[op] = execBinary
	}
}

func execBinary(backend *Backend, step *backends.Step, inputs []*buffer, output *buffer) {
	dispatchBinary.Dispatch(output.shape.DType, backend, step.Op, inputs[0], inputs[1], output)
}

// binaryFn returns the scalar function of a binary op.
func binaryFn[T numeric](op backends.OpType) func(lhs, rhs T) T {
	switch op {
	case backends.OpTypeAdd:
		return func(lhs, rhs T) T { return lhs + rhs }
	case backends.OpTypeSub:
		return func(lhs, rhs T) T { return lhs - rhs }
	case backends.OpTypeMul:
		return func(lhs, rhs T) T { return lhs * rhs }
	case backends.OpTypeDiv:
		return func(lhs, rhs T) T { return lhs / rhs }
	case backends.OpTypeMax:
		return func(lhs, rhs T) T { return max(lhs, rhs) }
	case backends.OpTypeMin:
		return func(lhs, rhs T) T { return min(lhs, rhs) }
	case backends.OpTypePow:
		var zero T
		switch any(zero).(type) {
		case float32, float64:
			return func(lhs, rhs T) T { return T(math.Pow(float64(lhs), float64(rhs))) }
		default:
			return powInt[T]
		}
	}
	exceptions.Panicf("%s is not a binary operation", op)
	return nil
}

// powInt is a O(num of bits) Pow(base, exp) for integers. It panics on negative exponents,
// whose result is not an integer.
func powInt[T numeric](base, exp T) T {
	if exp < 0 {
		exceptions.Panicf("Pow: negative integer exponent %v", exp)
	}
	result := T(1)
	for e := uint64(exp); e > 0; e >>= 1 {
		if e&1 == 1 {
			result *= base
		}
		base *= base
	}
	return result
}

func execBinaryGeneric[T numeric](params ...any) {
	backend, op := params[0].(*Backend), params[1].(backends.OpType)
	lhs, rhs, output := params[2].(*buffer), params[3].(*buffer), params[4].(*buffer)
	fn := binaryFn[T](op)
	lhsFlat, rhsFlat, outFlat := tensors.View[T](lhs.data), tensors.View[T](rhs.data), tensors.View[T](output.data)
	size := len(outFlat)
	switch {
	case len(lhsFlat) == size && len(rhsFlat) == size:
		backend.workers.ParallelFor(size, minElementwiseChunk, func(start, end int) {
			for ii := start; ii < end; ii++ {
				outFlat[ii] = fn(lhsFlat[ii], rhsFlat[ii])
			}
		})
	case len(lhsFlat) == 1 && len(rhsFlat) == size:
		c := lhsFlat[0]
		backend.workers.ParallelFor(size, minElementwiseChunk, func(start, end int) {
			for ii := start; ii < end; ii++ {
				outFlat[ii] = fn(c, rhsFlat[ii])
			}
		})
	case len(rhsFlat) == 1 && len(lhsFlat) == size:
		c := rhsFlat[0]
		backend.workers.ParallelFor(size, minElementwiseChunk, func(start, end int) {
			for ii := start; ii < end; ii++ {
				outFlat[ii] = fn(lhsFlat[ii], c)
			}
		})
	default:
		lhsIter := newBroadcastIterator(expandRank(lhs.shape, output.shape.Rank()), output.shape)
		rhsIter := newBroadcastIterator(expandRank(rhs.shape, output.shape.Rank()), output.shape)
		for ii := range outFlat {
			outFlat[ii] = fn(lhsFlat[lhsIter.Next()], rhsFlat[rhsIter.Next()])
		}
	}
}

// expandRank prepends axes of dimension 1 to shape, up to the given rank.
func expandRank(shape shapes.Shape, rank int) shapes.Shape {
	if shape.Rank() == rank {
		return shape
	}
	dims := make([]int, rank)
	offset := rank - shape.Rank()
	for axis := range offset {
		dims[axis] = 1
	}
	copy(dims[offset:], shape.Dimensions)
	return shape.WithDimensions(dims...)
}

// broadcastIterator iterates over the flat indices of a tensor that is being broadcast to a larger shape
// (some of its dimensions of size 1 grow).
type broadcastIterator struct {
	flatIdx     int
	perAxesIdx  []int
	targetDims  []int
	isBroadcast []bool
	strides     []int
}

// newBroadcastIterator returns an iterator over the flat indices of fromShape, for each element of toShape,
// in row-major order.
//
// Pre-requisite: fromShape.Rank() == toShape.Rank().
func newBroadcastIterator(fromShape, toShape shapes.Shape) *broadcastIterator {
	rank := fromShape.Rank()
	if rank != toShape.Rank() {
		exceptions.Panicf("broadcastIterator: rank mismatch fromShape=%s, toShape=%s", fromShape, toShape)
	}
	bi := &broadcastIterator{
		perAxesIdx:  make([]int, rank),
		targetDims:  toShape.Dimensions,
		isBroadcast: make([]bool, rank),
		strides:     make([]int, rank),
	}
	stride := 1
	for axis := rank - 1; axis >= 0; axis-- {
		bi.strides[axis] = stride
		stride *= fromShape.Dimensions[axis]
		bi.isBroadcast[axis] = fromShape.Dimensions[axis] != toShape.Dimensions[axis]
	}
	return bi
}

// Next returns the current flat index of the source, and advances the iterator.
func (bi *broadcastIterator) Next() (flatIdx int) {
	flatIdx = bi.flatIdx
	bi.flatIdx++
	for axis := len(bi.perAxesIdx) - 1; axis >= 0; axis-- {
		bi.perAxesIdx[axis]++
		if bi.perAxesIdx[axis] < bi.targetDims[axis] {
			if bi.isBroadcast[axis] {
				// Repeat the same slice of the source tensor.
				bi.flatIdx -= bi.strides[axis]
			}
			break
		}
		bi.perAxesIdx[axis] = 0
	}
	return
}

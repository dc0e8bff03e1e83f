// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/webnn/backends"
	"github.com/gomlx/webnn/pkg/core/tensors"
)

// Layout operations only move elements around: they work on any dtype by element size.

func init() {
	nodeExecutors[backends.OpTypeReshape] = execReshape
	nodeExecutors[backends.OpTypeTranspose] = execTranspose
	nodeExecutors[backends.OpTypeConcat] = execConcat
}

func execReshape(_ *Backend, _ *backends.Step, inputs []*buffer, output *buffer) {
	copy(output.data, inputs[0].data)
}

func execTranspose(backend *Backend, step *backends.Step, inputs []*buffer, output *buffer) {
	permutation := step.Attrs.(*backends.TransposeAttrs).Permutation
	switch output.shape.DType.Size() {
	case 1:
		transposeBySize[uint8](backend, permutation, inputs[0], output)
	case 2:
		transposeBySize[uint16](backend, permutation, inputs[0], output)
	case 4:
		transposeBySize[uint32](backend, permutation, inputs[0], output)
	case 8:
		transposeBySize[uint64](backend, permutation, inputs[0], output)
	default:
		exceptions.Panicf("Transpose: unsupported element size for dtype %s", output.shape.DType)
	}
}

// transposeBySize iterates over the output in row-major order, walking the input with permuted strides.
func transposeBySize[T uint8 | uint16 | uint32 | uint64](backend *Backend, permutation []int, operand, output *buffer) {
	inFlat, outFlat := tensors.View[T](operand.data), tensors.View[T](output.data)
	rank := output.shape.Rank()
	if rank == 0 {
		copy(outFlat, inFlat)
		return
	}
	inStrides := operand.shape.Strides()
	strides := make([]int, rank)
	for axis, inAxis := range permutation {
		strides[axis] = inStrides[inAxis]
	}
	dims := output.shape.Dimensions

	// Parallelize over the first output axis.
	rowSize := len(outFlat) / dims[0]
	backend.workers.ParallelFor(dims[0], max(1, minElementwiseChunk/max(rowSize, 1)), func(start, end int) {
		indices := make([]int, rank)
		for row := start; row < end; row++ {
			clear(indices)
			indices[0] = row
			inIdx := row * strides[0]
			for outIdx := row * rowSize; outIdx < (row+1)*rowSize; outIdx++ {
				outFlat[outIdx] = inFlat[inIdx]
				for axis := rank - 1; axis >= 1; axis-- {
					indices[axis]++
					inIdx += strides[axis]
					if indices[axis] < dims[axis] {
						break
					}
					inIdx -= indices[axis] * strides[axis]
					indices[axis] = 0
				}
			}
		}
	})
}

func execConcat(_ *Backend, step *backends.Step, inputs []*buffer, output *buffer) {
	axis := step.Attrs.(*backends.ConcatAttrs).Axis
	dims := output.shape.Dimensions
	outer := 1
	for _, dim := range dims[:axis] {
		outer *= dim
	}
	innerBytes := int(output.shape.DType.Memory())
	for _, dim := range dims[axis+1:] {
		innerBytes *= dim
	}
	pos := 0
	for outerIdx := range outer {
		for _, input := range inputs {
			chunk := input.shape.Dimensions[axis] * innerBytes
			pos += copy(output.data[pos:], input.data[outerIdx*chunk:(outerIdx+1)*chunk])
		}
	}
}

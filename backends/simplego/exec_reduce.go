// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"math"
	"slices"

	"github.com/gomlx/webnn/backends"
	"github.com/gomlx/webnn/pkg/core/tensors"
)

var (
	dispatchReduce  = NewDTypeDispatcher("Reduce")
	dispatchSoftmax = NewDTypeDispatcher("Softmax")
)

func init() {
	nodeExecutors[backends.OpTypeReduceSum] = execReduce
	nodeExecutors[backends.OpTypeReduceMean] = execReduce
	nodeExecutors[backends.OpTypeReduceMax] = execReduce
	nodeExecutors[backends.OpTypeSoftmax] = execSoftmax
}

func execReduce(backend *Backend, step *backends.Step, inputs []*buffer, output *buffer) {
	dispatchReduce.Dispatch(output.shape.DType, backend, step.Op, step.Attrs.(*backends.ReduceAttrs), inputs[0], output)
}

// execReduceGeneric walks the operand in row-major order, accumulating each element into the output
// element given by its non-reduced axes.
func execReduceGeneric[T numeric](params ...any) {
	op, attrs := params[1].(backends.OpType), params[2].(*backends.ReduceAttrs)
	operand, output := params[3].(*buffer), params[4].(*buffer)
	inFlat, outFlat := tensors.View[T](operand.data), tensors.View[T](output.data)

	isMax := op == backends.OpTypeReduceMax
	initial := T(0)
	if isMax {
		initial = lowest[T]()
	}
	for ii := range outFlat {
		outFlat[ii] = initial
	}

	// outStrides per operand axis: 0 for reduced axes.
	rank := operand.shape.Rank()
	outStrides := make([]int, rank)
	stride := 1
	for axis := rank - 1; axis >= 0; axis-- {
		if slices.Contains(attrs.Axes, axis) {
			continue
		}
		outStrides[axis] = stride
		stride *= operand.shape.Dimensions[axis]
	}
	for inIdx, indices := range operand.shape.Iter() {
		outIdx := 0
		for axis, idx := range indices {
			outIdx += idx * outStrides[axis]
		}
		if isMax {
			outFlat[outIdx] = max(outFlat[outIdx], inFlat[inIdx])
		} else {
			outFlat[outIdx] += inFlat[inIdx]
		}
	}

	if op == backends.OpTypeReduceMean {
		count := T(len(inFlat) / len(outFlat))
		for ii := range outFlat {
			outFlat[ii] /= count
		}
	}
}

func execSoftmax(backend *Backend, _ *backends.Step, inputs []*buffer, output *buffer) {
	dispatchSoftmax.Dispatch(output.shape.DType, backend, inputs[0], output)
}

// execSoftmaxGeneric normalizes each row of the 2D operand. The max of the row is subtracted before
// exponentiation for numerical stability.
func execSoftmaxGeneric[T float](params ...any) {
	backend, operand, output := params[0].(*Backend), params[1].(*buffer), params[2].(*buffer)
	inFlat, outFlat := tensors.View[T](operand.data), tensors.View[T](output.data)
	rows, cols := operand.shape.Dimensions[0], operand.shape.Dimensions[1]
	backend.workers.ParallelFor(rows, max(1, minElementwiseChunk/cols), func(start, end int) {
		for row := start; row < end; row++ {
			in, out := inFlat[row*cols:(row+1)*cols], outFlat[row*cols:(row+1)*cols]
			rowMax := slices.Max(in)
			var sum T
			for ii, v := range in {
				out[ii] = T(math.Exp(float64(v - rowMax)))
				sum += out[ii]
			}
			for ii := range out {
				out[ii] /= sum
			}
		}
	})
}

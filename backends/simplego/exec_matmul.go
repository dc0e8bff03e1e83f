// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/gomlx/webnn/backends"
	"github.com/gomlx/webnn/pkg/core/shapes"
	"github.com/gomlx/webnn/pkg/core/tensors"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"
)

// MatMul and Gemm: float32 and float64 matrices are multiplied with gonum's BLAS implementation,
// integers with a straightforward loop.

var (
	dispatchMatMul = NewDTypeDispatcher("MatMul")
	dispatchGemm   = NewDTypeDispatcher("Gemm")
)

func init() {
	nodeExecutors[backends.OpTypeMatMul] = execMatMul
	nodeExecutors[backends.OpTypeGemm] = execGemm
}

// matrix is a row-major 2D view of a flat slice.
type matrix[T numeric] struct {
	rows, cols int
	data       []T
}

// matMulKernel computes out = alpha * op(a) * op(b) + beta * out, where op optionally transposes.
type matMulKernel[T numeric] func(aTranspose, bTranspose bool, alpha T, a, b matrix[T], beta T, out matrix[T])

func blasTranspose(transpose bool) blas.Transpose {
	if transpose {
		return blas.Trans
	}
	return blas.NoTrans
}

func matMulFloat32(aTranspose, bTranspose bool, alpha float32, a, b matrix[float32], beta float32, out matrix[float32]) {
	blas32.Gemm(blasTranspose(aTranspose), blasTranspose(bTranspose), alpha,
		blas32.General{Rows: a.rows, Cols: a.cols, Stride: a.cols, Data: a.data},
		blas32.General{Rows: b.rows, Cols: b.cols, Stride: b.cols, Data: b.data},
		beta,
		blas32.General{Rows: out.rows, Cols: out.cols, Stride: out.cols, Data: out.data})
}

func matMulFloat64(aTranspose, bTranspose bool, alpha float64, a, b matrix[float64], beta float64, out matrix[float64]) {
	blas64.Gemm(blasTranspose(aTranspose), blasTranspose(bTranspose), alpha,
		blas64.General{Rows: a.rows, Cols: a.cols, Stride: a.cols, Data: a.data},
		blas64.General{Rows: b.rows, Cols: b.cols, Stride: b.cols, Data: b.data},
		beta,
		blas64.General{Rows: out.rows, Cols: out.cols, Stride: out.cols, Data: out.data})
}

// matMulLoop is the generic version of the matMulKernel, used for integer types.
func matMulLoop[T numeric](aTranspose, bTranspose bool, alpha T, a, b matrix[T], beta T, out matrix[T]) {
	at := func(m matrix[T], transpose bool, row, col int) T {
		if transpose {
			return m.data[col*m.cols+row]
		}
		return m.data[row*m.cols+col]
	}
	k := a.cols
	if aTranspose {
		k = a.rows
	}
	for row := range out.rows {
		for col := range out.cols {
			var sum T
			for ii := range k {
				sum += at(a, aTranspose, row, ii) * at(b, bTranspose, ii, col)
			}
			idx := row*out.cols + col
			if beta == 0 {
				out.data[idx] = alpha * sum
			} else {
				out.data[idx] = alpha*sum + beta*out.data[idx]
			}
		}
	}
}

// kernelFor returns the matMulKernel for T.
func kernelFor[T numeric]() matMulKernel[T] {
	var kernel any
	var zero T
	switch any(zero).(type) {
	case float32:
		kernel = matMulKernel[float32](matMulFloat32)
	case float64:
		kernel = matMulKernel[float64](matMulFloat64)
	default:
		return matMulLoop[T]
	}
	return kernel.(matMulKernel[T])
}

func execMatMul(backend *Backend, _ *backends.Step, inputs []*buffer, output *buffer) {
	dispatchMatMul.Dispatch(output.shape.DType, backend, inputs[0], inputs[1], output)
}

// batchShape returns the batch part (all but the last 2 axes) of the shape, expanded to rank.
func batchShape(shape shapes.Shape, rank int) shapes.Shape {
	batch := shape.WithDimensions(shape.Dimensions[:shape.Rank()-2]...)
	return expandRank(batch, rank)
}

func execMatMulGeneric[T numeric](params ...any) {
	backend, lhs, rhs, output := params[0].(*Backend), params[1].(*buffer), params[2].(*buffer), params[3].(*buffer)
	kernel := kernelFor[T]()
	m, k, n := lhs.shape.Dim(-2), lhs.shape.Dim(-1), rhs.shape.Dim(-1)
	lhsFlat, rhsFlat, outFlat := tensors.View[T](lhs.data), tensors.View[T](rhs.data), tensors.View[T](output.data)

	outBatch := batchShape(output.shape, output.shape.Rank()-2)
	numBatches := outBatch.Size()
	lhsIter := newBroadcastIterator(batchShape(lhs.shape, outBatch.Rank()), outBatch)
	rhsIter := newBroadcastIterator(batchShape(rhs.shape, outBatch.Rank()), outBatch)
	lhsBatch, rhsBatch := make([]int, numBatches), make([]int, numBatches)
	for ii := range numBatches {
		lhsBatch[ii], rhsBatch[ii] = lhsIter.Next(), rhsIter.Next()
	}
	backend.workers.ParallelFor(numBatches, max(1, minElementwiseChunk/max(m*k*n, 1)), func(start, end int) {
		for batchIdx := start; batchIdx < end; batchIdx++ {
			a := matrix[T]{rows: m, cols: k, data: lhsFlat[lhsBatch[batchIdx]*m*k : (lhsBatch[batchIdx]+1)*m*k]}
			b := matrix[T]{rows: k, cols: n, data: rhsFlat[rhsBatch[batchIdx]*k*n : (rhsBatch[batchIdx]+1)*k*n]}
			out := matrix[T]{rows: m, cols: n, data: outFlat[batchIdx*m*n : (batchIdx+1)*m*n]}
			kernel(false, false, 1, a, b, 0, out)
		}
	})
}

func execGemm(backend *Backend, step *backends.Step, inputs []*buffer, output *buffer) {
	dispatchGemm.Dispatch(output.shape.DType, backend, step.Attrs.(*backends.GemmAttrs), inputs, output)
}

// execGemmGeneric computes alpha * A' * B' + beta * C. C, if present, is broadcast into the output first.
func execGemmGeneric[T float](params ...any) {
	attrs, inputs, output := params[1].(*backends.GemmAttrs), params[2].([]*buffer), params[3].(*buffer)
	a, b := inputs[0], inputs[1]
	outFlat := tensors.View[T](output.data)
	beta := T(attrs.Beta)
	if len(inputs) > 2 {
		c := inputs[2]
		cFlat := tensors.View[T](c.data)
		cIter := newBroadcastIterator(expandRank(c.shape, 2), output.shape)
		for ii := range outFlat {
			outFlat[ii] = cFlat[cIter.Next()]
		}
	} else {
		beta = 0
		clear(outFlat)
	}
	kernel := kernelFor[T]()
	kernel(attrs.ATranspose, attrs.BTranspose, T(attrs.Alpha),
		matrix[T]{rows: a.shape.Dimensions[0], cols: a.shape.Dimensions[1], data: tensors.View[T](a.data)},
		matrix[T]{rows: b.shape.Dimensions[0], cols: b.shape.Dimensions[1], data: tensors.View[T](b.data)},
		beta,
		matrix[T]{rows: output.shape.Dimensions[0], cols: output.shape.Dimensions[1], data: outFlat})
}

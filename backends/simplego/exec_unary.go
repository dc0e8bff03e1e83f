// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/webnn/backends"
	"github.com/gomlx/webnn/pkg/core/tensors"
)

var dispatchUnary = NewDTypeDispatcher("Unary")

func init() {
	for op := backends.OpTypeAbs; op <= backends.OpTypeClamp; op++ {
		nodeExecutors[op] = execUnary
	}
}

func execUnary(backend *Backend, step *backends.Step, inputs []*buffer, output *buffer) {
	dispatchUnary.Dispatch(output.shape.DType, backend, step, inputs[0], output)
}

// unaryFn returns the scalar function of a unary op. The float only ops are computed in float64.
func unaryFn[T numeric](step *backends.Step) func(x T) T {
	asFloat := func(fn func(float64) float64) func(x T) T {
		return func(x T) T { return T(fn(float64(x))) }
	}
	switch step.Op {
	case backends.OpTypeAbs:
		return func(x T) T {
			if x < 0 {
				return -x
			}
			return x
		}
	case backends.OpTypeNeg:
		return func(x T) T { return -x }
	case backends.OpTypeRelu:
		return func(x T) T { return max(x, 0) }
	case backends.OpTypeCeil:
		return asFloat(math.Ceil)
	case backends.OpTypeCos:
		return asFloat(math.Cos)
	case backends.OpTypeExp:
		return asFloat(math.Exp)
	case backends.OpTypeFloor:
		return asFloat(math.Floor)
	case backends.OpTypeLog:
		return asFloat(math.Log)
	case backends.OpTypeSin:
		return asFloat(math.Sin)
	case backends.OpTypeSqrt:
		return asFloat(math.Sqrt)
	case backends.OpTypeTanh:
		return asFloat(math.Tanh)
	case backends.OpTypeSigmoid:
		return asFloat(func(x float64) float64 { return 1 / (1 + math.Exp(-x)) })
	case backends.OpTypeLeakyRelu:
		alpha := step.Attrs.(*backends.LeakyReluAttrs).Alpha
		return func(x T) T {
			if x < 0 {
				return T(alpha * float64(x))
			}
			return x
		}
	case backends.OpTypeClamp:
		attrs := step.Attrs.(*backends.ClampAttrs)
		return func(x T) T {
			v := float64(x)
			if v < attrs.Min {
				return T(attrs.Min)
			} else if v > attrs.Max {
				return T(attrs.Max)
			}
			return x
		}
	}
	exceptions.Panicf("%s is not a unary operation", step.Op)
	return nil
}

func execUnaryGeneric[T numeric](params ...any) {
	backend, step := params[0].(*Backend), params[1].(*backends.Step)
	operand, output := params[2].(*buffer), params[3].(*buffer)
	fn := unaryFn[T](step)
	inFlat, outFlat := tensors.View[T](operand.data), tensors.View[T](output.data)
	backend.workers.ParallelFor(len(outFlat), minElementwiseChunk, func(start, end int) {
		for ii := start; ii < end; ii++ {
			outFlat[ii] = fn(inFlat[ii])
		}
	})
}

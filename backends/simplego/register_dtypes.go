// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Instances of the generic kernels, per dtype.

package simplego

import "github.com/gomlx/gopjrt/dtypes"

// Float16 is not registered: it is computed by the float32 kernels.
func init() {
	dispatchBinary.Register(dtypes.Int8, execBinaryGeneric[int8])
	dispatchBinary.Register(dtypes.Int32, execBinaryGeneric[int32])
	dispatchBinary.Register(dtypes.Int64, execBinaryGeneric[int64])
	dispatchBinary.Register(dtypes.Uint8, execBinaryGeneric[uint8])
	dispatchBinary.Register(dtypes.Uint32, execBinaryGeneric[uint32])
	dispatchBinary.Register(dtypes.Float32, execBinaryGeneric[float32])
	dispatchBinary.Register(dtypes.Float64, execBinaryGeneric[float64])

	dispatchUnary.Register(dtypes.Int8, execUnaryGeneric[int8])
	dispatchUnary.Register(dtypes.Int32, execUnaryGeneric[int32])
	dispatchUnary.Register(dtypes.Int64, execUnaryGeneric[int64])
	dispatchUnary.Register(dtypes.Uint8, execUnaryGeneric[uint8])
	dispatchUnary.Register(dtypes.Uint32, execUnaryGeneric[uint32])
	dispatchUnary.Register(dtypes.Float32, execUnaryGeneric[float32])
	dispatchUnary.Register(dtypes.Float64, execUnaryGeneric[float64])

	dispatchMatMul.Register(dtypes.Int8, execMatMulGeneric[int8])
	dispatchMatMul.Register(dtypes.Int32, execMatMulGeneric[int32])
	dispatchMatMul.Register(dtypes.Int64, execMatMulGeneric[int64])
	dispatchMatMul.Register(dtypes.Uint8, execMatMulGeneric[uint8])
	dispatchMatMul.Register(dtypes.Uint32, execMatMulGeneric[uint32])
	dispatchMatMul.Register(dtypes.Float32, execMatMulGeneric[float32])
	dispatchMatMul.Register(dtypes.Float64, execMatMulGeneric[float64])

	dispatchGemm.Register(dtypes.Float32, execGemmGeneric[float32])
	dispatchGemm.Register(dtypes.Float64, execGemmGeneric[float64])

	dispatchConv2d.Register(dtypes.Float32, execConv2dGeneric[float32])
	dispatchConv2d.Register(dtypes.Float64, execConv2dGeneric[float64])

	dispatchPool2d.Register(dtypes.Int8, execPool2dGeneric[int8])
	dispatchPool2d.Register(dtypes.Int32, execPool2dGeneric[int32])
	dispatchPool2d.Register(dtypes.Int64, execPool2dGeneric[int64])
	dispatchPool2d.Register(dtypes.Uint8, execPool2dGeneric[uint8])
	dispatchPool2d.Register(dtypes.Uint32, execPool2dGeneric[uint32])
	dispatchPool2d.Register(dtypes.Float32, execPool2dGeneric[float32])
	dispatchPool2d.Register(dtypes.Float64, execPool2dGeneric[float64])

	dispatchReduce.Register(dtypes.Int8, execReduceGeneric[int8])
	dispatchReduce.Register(dtypes.Int32, execReduceGeneric[int32])
	dispatchReduce.Register(dtypes.Int64, execReduceGeneric[int64])
	dispatchReduce.Register(dtypes.Uint8, execReduceGeneric[uint8])
	dispatchReduce.Register(dtypes.Uint32, execReduceGeneric[uint32])
	dispatchReduce.Register(dtypes.Float32, execReduceGeneric[float32])
	dispatchReduce.Register(dtypes.Float64, execReduceGeneric[float64])

	dispatchSoftmax.Register(dtypes.Float32, execSoftmaxGeneric[float32])
	dispatchSoftmax.Register(dtypes.Float64, execSoftmaxGeneric[float64])
}

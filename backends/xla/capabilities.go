// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xla

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/webnn/backends"
)

// Capabilities of the XLA backend.
//
// Convolutions and pooling are not lowered (yet): graphs using them fail to build for the GPU with
// mlerrors.UnsupportedOperation, and must use the CPU.
var Capabilities = backends.Capabilities{
	Operations: map[backends.OpType]bool{
		backends.OpTypeAdd: true,
		backends.OpTypeSub: true,
		backends.OpTypeMul: true,
		backends.OpTypeDiv: true,
		backends.OpTypeMax: true,
		backends.OpTypeMin: true,
		backends.OpTypePow: true,

		backends.OpTypeAbs:       true,
		backends.OpTypeCeil:      true,
		backends.OpTypeCos:       true,
		backends.OpTypeExp:       true,
		backends.OpTypeFloor:     true,
		backends.OpTypeLog:       true,
		backends.OpTypeNeg:       true,
		backends.OpTypeRelu:      true,
		backends.OpTypeSigmoid:   true,
		backends.OpTypeSin:       true,
		backends.OpTypeSqrt:      true,
		backends.OpTypeTanh:      true,
		backends.OpTypeLeakyRelu: true,
		backends.OpTypeClamp:     true,

		backends.OpTypeReshape:   true,
		backends.OpTypeTranspose: true,
		backends.OpTypeConcat:    true,

		backends.OpTypeMatMul: true,
		backends.OpTypeGemm:   true,

		backends.OpTypeSoftmax:    true,
		backends.OpTypeReduceSum:  true,
		backends.OpTypeReduceMean: true,
		backends.OpTypeReduceMax:  true,
	},

	DTypes: map[dtypes.DType]bool{
		dtypes.Int8:    true,
		dtypes.Int32:   true,
		dtypes.Int64:   true,
		dtypes.Uint8:   true,
		dtypes.Uint32:  true,
		dtypes.Float16: true,
		dtypes.Float32: true,
		dtypes.Float64: true,
	},
}

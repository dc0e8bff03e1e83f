// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/webnn/backends"
)

// Capabilities of the SimpleGo backend: every operation is supported for every dtype accepted by operands.
var Capabilities = backends.Capabilities{
	Operations: map[backends.OpType]bool{
		// Binary element-wise.
		backends.OpTypeAdd: true,
		backends.OpTypeSub: true,
		backends.OpTypeMul: true,
		backends.OpTypeDiv: true,
		backends.OpTypeMax: true,
		backends.OpTypeMin: true,
		backends.OpTypePow: true,

		// Unary element-wise.
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

		// Layout.
		backends.OpTypeReshape:   true,
		backends.OpTypeTranspose: true,
		backends.OpTypeConcat:    true,

		// Linear algebra and windows.
		backends.OpTypeMatMul:        true,
		backends.OpTypeGemm:          true,
		backends.OpTypeConv2d:        true,
		backends.OpTypeAveragePool2d: true,
		backends.OpTypeMaxPool2d:     true,

		// Normalization and reductions.
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

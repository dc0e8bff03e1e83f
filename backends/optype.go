// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

// OpType is an enum of all operations a graph can hold, and that a Backend may support.
//
// Which ones are supported by a backend is listed in its Capabilities.
type OpType int

//go:generate go tool enumer -type=OpType -trimprefix=OpType -output=gen_optype_enumer.go optype.go

const (
	OpTypeInvalid OpType = iota

	// Binary element-wise ops, with bidirectional broadcasting.

	OpTypeAdd
	OpTypeSub
	OpTypeMul
	OpTypeDiv
	OpTypeMax
	OpTypeMin
	OpTypePow

	// Unary element-wise ops.

	OpTypeAbs
	OpTypeCeil
	OpTypeCos
	OpTypeExp
	OpTypeFloor
	OpTypeLog
	OpTypeNeg
	OpTypeRelu
	OpTypeSigmoid
	OpTypeSin
	OpTypeSqrt
	OpTypeTanh
	OpTypeLeakyRelu
	OpTypeClamp

	// Layout ops.

	OpTypeReshape
	OpTypeTranspose
	OpTypeConcat

	// Linear algebra, convolutions and pooling.

	OpTypeMatMul
	OpTypeGemm
	OpTypeConv2d
	OpTypeAveragePool2d
	OpTypeMaxPool2d

	// Reductions.

	OpTypeSoftmax
	OpTypeReduceSum
	OpTypeReduceMean
	OpTypeReduceMax

	// OpTypeLast should always be kept the last, it is used as a counter/marker for OpType.
	OpTypeLast
)

// IsBinary returns whether the op is one of the element-wise binary ops.
func (op OpType) IsBinary() bool {
	return op >= OpTypeAdd && op <= OpTypePow
}

// IsUnary returns whether the op is one of the element-wise unary ops, including those with attributes
// (LeakyRelu and Clamp).
func (op OpType) IsUnary() bool {
	return op >= OpTypeAbs && op <= OpTypeClamp
}

// IsReduce returns whether the op is one of the ReduceXXX ops.
func (op OpType) IsReduce() bool {
	return op >= OpTypeReduceSum && op <= OpTypeReduceMax
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapeinference calculates the shape resulting from operations and validates its inputs.
//
// It is used by the graph builder to reject invalid operations at the moment they are added, and
// by backends to know the shapes of the intermediary buffers.
//
// Errors are reported with kinds mlerrors.TypeMismatch (incompatible or unsupported data types) and
// mlerrors.ShapeMismatch (incompatible dimensions or invalid attributes).
//
// Binary ops use bidirectional (numpy style) broadcasting: shapes are aligned to the right, and each
// pair of dimensions must either match or one of them be 1.
package shapeinference

import (
	"slices"

	"github.com/emirpasic/gods/v2/sets/hashset"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/webnn/backends"
	"github.com/gomlx/webnn/pkg/core/mlerrors"
	"github.com/gomlx/webnn/pkg/core/shapes"
)

var (
	// SupportedDTypes are the data types an operand can have.
	SupportedDTypes = hashset.New(
		dtypes.Float16, dtypes.Float32, dtypes.Float64,
		dtypes.Int8, dtypes.Uint8, dtypes.Int32, dtypes.Uint32, dtypes.Int64,
	)

	// FloatOperations only accept floating point operands.
	FloatOperations = hashset.New(
		backends.OpTypeCeil, backends.OpTypeCos, backends.OpTypeExp, backends.OpTypeFloor, backends.OpTypeLog,
		backends.OpTypeSigmoid, backends.OpTypeSin, backends.OpTypeSqrt, backends.OpTypeTanh,
		backends.OpTypeLeakyRelu, backends.OpTypeSoftmax, backends.OpTypeReduceMean,
		backends.OpTypeConv2d, backends.OpTypeAveragePool2d, backends.OpTypeGemm,
	)

	// SignedOperations don't accept unsigned integers.
	SignedOperations = hashset.New(backends.OpTypeNeg)
)

func shapeErrorf(format string, args ...any) error {
	return mlerrors.Errorf(mlerrors.ShapeMismatch, format, args...)
}

func typeErrorf(format string, args ...any) error {
	return mlerrors.Errorf(mlerrors.TypeMismatch, format, args...)
}

// CheckDType returns an error if the dtype is not supported by operands in general, or by the given op.
// Use backends.OpTypeInvalid to check only the general support.
func CheckDType(opType backends.OpType, dtype dtypes.DType) error {
	if !SupportedDTypes.Contains(dtype) {
		return typeErrorf("data type %s is not supported for operands", dtype)
	}
	if FloatOperations.Contains(opType) && !dtype.IsFloat() {
		return typeErrorf("%s requires a float data type, got %s", opType, dtype)
	}
	if SignedOperations.Contains(opType) && dtype.IsUnsigned() {
		return typeErrorf("%s requires a signed data type, got %s", opType, dtype)
	}
	return nil
}

// sameDType checks that all operands have the same data type, supported by the op.
func sameDType(opType backends.OpType, operands ...shapes.Shape) error {
	for ii, operand := range operands {
		if !operand.Ok() {
			return typeErrorf("invalid shape %s for operand #%d of %s", operand, ii, opType)
		}
		if operand.DType != operands[0].DType {
			return typeErrorf("data types for %s must match, got %s and %s", opType, operands[0], operand)
		}
	}
	return CheckDType(opType, operands[0].DType)
}

// BroadcastDimensions returns the dimensions resulting from the bidirectional broadcasting of lhs and rhs.
func BroadcastDimensions(lhs, rhs []int) ([]int, bool) {
	rank := max(len(lhs), len(rhs))
	output := make([]int, rank)
	for ii := range rank {
		lhsDim, rhsDim := 1, 1
		if axis := len(lhs) - rank + ii; axis >= 0 {
			lhsDim = lhs[axis]
		}
		if axis := len(rhs) - rank + ii; axis >= 0 {
			rhsDim = rhs[axis]
		}
		if lhsDim != rhsDim && lhsDim != 1 && rhsDim != 1 {
			return nil, false
		}
		output[ii] = max(lhsDim, rhsDim)
	}
	return output, true
}

// CanBroadcastTo returns whether the dimensions from can be unidirectionally broadcast to the dimensions to.
func CanBroadcastTo(from, to []int) bool {
	if len(from) > len(to) {
		return false
	}
	offset := len(to) - len(from)
	for ii, dim := range from {
		if dim != 1 && dim != to[offset+ii] {
			return false
		}
	}
	return true
}

// BinaryOp returns the expected output shape for the element-wise binary ops (Add, Sub, Mul, Div, Max, Min, Pow).
func BinaryOp(opType backends.OpType, lhsShape, rhsShape shapes.Shape) (output shapes.Shape, err error) {
	if !opType.IsBinary() {
		return shapes.Invalid(), typeErrorf("operation %s is not an element-wise binary operation", opType)
	}
	if err = sameDType(opType, lhsShape, rhsShape); err != nil {
		return shapes.Invalid(), err
	}
	dims, ok := BroadcastDimensions(lhsShape.Dimensions, rhsShape.Dimensions)
	if !ok {
		return shapes.Invalid(), shapeErrorf("shapes %s and %s cannot be broadcast together for %s", lhsShape, rhsShape, opType)
	}
	return lhsShape.WithDimensions(dims...), nil
}

// UnaryOp checks the validity of the data type for element-wise unary ops and returns the output shape,
// the same as the operand.
func UnaryOp(opType backends.OpType, operand shapes.Shape) (output shapes.Shape, err error) {
	if !opType.IsUnary() {
		return shapes.Invalid(), typeErrorf("operation %s is not an element-wise unary operation", opType)
	}
	if err = sameDType(opType, operand); err != nil {
		return shapes.Invalid(), err
	}
	return operand.Clone(), nil
}

// ClampOp checks that min <= max.
func ClampOp(operand shapes.Shape, attrs *backends.ClampAttrs) (output shapes.Shape, err error) {
	if attrs.Min > attrs.Max {
		return shapes.Invalid(), shapeErrorf("Clamp requires min <= max, got min=%g, max=%g", attrs.Min, attrs.Max)
	}
	return UnaryOp(backends.OpTypeClamp, operand)
}

// ReshapeOp to the given dimensions: the total size must be preserved.
func ReshapeOp(operand shapes.Shape, dims []int) (output shapes.Shape, err error) {
	if err = sameDType(backends.OpTypeReshape, operand); err != nil {
		return shapes.Invalid(), err
	}
	output, err = shapes.MakeChecked(operand.DType, dims...)
	if err != nil {
		return shapes.Invalid(), mlerrors.Wrapf(mlerrors.ShapeMismatch, err, "Reshape(%s, %v)", operand, dims)
	}
	if operand.Size() != output.Size() {
		return shapes.Invalid(), shapeErrorf("Reshape cannot reshape %s to dimensions %v, their sizes don't match",
			operand, dims)
	}
	return
}

// TransposeOp permutes the axes of the operand.
// The output will have: output.Dimensions[i] = operand.Dimensions[permutation[i]].
func TransposeOp(operand shapes.Shape, permutation []int) (output shapes.Shape, err error) {
	if err = sameDType(backends.OpTypeTranspose, operand); err != nil {
		return shapes.Invalid(), err
	}
	rank := operand.Rank()
	if len(permutation) != rank {
		return shapes.Invalid(), shapeErrorf("Transpose requires one permutation entry per axis, operand has shape %s, but %d were given",
			operand, len(permutation))
	}
	sortedAxes := slices.Clone(permutation)
	slices.Sort(sortedAxes)
	for ii, axis := range sortedAxes {
		if axis != ii {
			return shapes.Invalid(), shapeErrorf("invalid permutation %v for Transpose(%s): each axis must appear exactly once",
				permutation, operand)
		}
	}
	output = operand.Clone()
	for axis, srcAxis := range permutation {
		output.Dimensions[axis] = operand.Dimensions[srcAxis]
	}
	return
}

// ConcatOp calculates the output shape of concatenating the inputs along axis.
func ConcatOp(inputs []shapes.Shape, axis int) (output shapes.Shape, err error) {
	if len(inputs) == 0 {
		return shapes.Invalid(), shapeErrorf("Concat requires at least one input")
	}
	if err = sameDType(backends.OpTypeConcat, inputs...); err != nil {
		return shapes.Invalid(), err
	}
	first := inputs[0]
	rank := first.Rank()
	if axis < 0 || axis >= rank {
		return shapes.Invalid(), shapeErrorf("invalid Concat axis %d for inputs of rank %d", axis, rank)
	}
	output = first.Clone()
	for ii, input := range inputs[1:] {
		if input.Rank() != rank {
			return shapes.Invalid(), shapeErrorf("mismatched ranks for Concat: input #0 is %s, input #%d is %s", first, ii+1, input)
		}
		for d := range rank {
			if d == axis {
				output.Dimensions[d] += input.Dimensions[d]
			} else if input.Dimensions[d] != first.Dimensions[d] {
				return shapes.Invalid(), shapeErrorf("mismatched dimensions for Concat on axis %d: input #0 is %s, input #%d is %s",
					d, first, ii+1, input)
			}
		}
	}
	return output, nil
}

// MatMulOp returns the shape of the matrix multiplication of a[..., M, K] and b[..., K, N]:
// the batch dimensions are broadcast.
func MatMulOp(a, b shapes.Shape) (output shapes.Shape, err error) {
	if err = sameDType(backends.OpTypeMatMul, a, b); err != nil {
		return shapes.Invalid(), err
	}
	if a.Rank() < 2 || b.Rank() < 2 {
		return shapes.Invalid(), shapeErrorf("MatMul requires operands of rank >= 2, got %s and %s", a, b)
	}
	m, k := a.Dim(-2), a.Dim(-1)
	k2, n := b.Dim(-2), b.Dim(-1)
	if k != k2 {
		return shapes.Invalid(), shapeErrorf("MatMul contracting dimensions don't match for %s and %s", a, b)
	}
	batch, ok := BroadcastDimensions(a.Dimensions[:a.Rank()-2], b.Dimensions[:b.Rank()-2])
	if !ok {
		return shapes.Invalid(), shapeErrorf("MatMul batch dimensions of %s and %s cannot be broadcast", a, b)
	}
	return a.WithDimensions(append(batch, m, n)...), nil
}

// GemmOp returns the shape of `alpha * A' * B' + beta * C`. A and B must be 2D, and c (optional) must be
// broadcastable to the output.
func GemmOp(a, b shapes.Shape, c *shapes.Shape, attrs *backends.GemmAttrs) (output shapes.Shape, err error) {
	operands := []shapes.Shape{a, b}
	if c != nil {
		operands = append(operands, *c)
	}
	if err = sameDType(backends.OpTypeGemm, operands...); err != nil {
		return shapes.Invalid(), err
	}
	if a.Rank() != 2 || b.Rank() != 2 {
		return shapes.Invalid(), shapeErrorf("Gemm requires 2D operands, got %s and %s", a, b)
	}
	m, k := a.Dimensions[0], a.Dimensions[1]
	if attrs.ATranspose {
		m, k = k, m
	}
	k2, n := b.Dimensions[0], b.Dimensions[1]
	if attrs.BTranspose {
		k2, n = n, k2
	}
	if k != k2 {
		return shapes.Invalid(), shapeErrorf("Gemm contracting dimensions don't match for %s and %s (aTranspose=%v, bTranspose=%v)",
			a, b, attrs.ATranspose, attrs.BTranspose)
	}
	output = a.WithDimensions(m, n)
	if c != nil && !CanBroadcastTo(c.Dimensions, output.Dimensions) {
		return shapes.Invalid(), shapeErrorf("Gemm operand C %s cannot be broadcast to the output %s", *c, output)
	}
	return output, nil
}

func checkWindowParams(opName string, strides, dilations [2]int, padding backends.Padding2D) error {
	for ii := range 2 {
		if strides[ii] < 1 || dilations[ii] < 1 {
			return shapeErrorf("%s requires strides and dilations >= 1, got strides=%v, dilations=%v", opName, strides, dilations)
		}
	}
	for _, p := range padding {
		if p < 0 {
			return shapeErrorf("%s requires non-negative padding, got %v", opName, padding)
		}
	}
	return nil
}

// WindowOutputSize returns the output size of a sliding window over one spatial dimension.
func WindowOutputSize(inputSize, windowSize, stride, dilation, padBegin, padEnd int) int {
	effectiveWindow := dilation*(windowSize-1) + 1
	padded := inputSize + padBegin + padEnd
	if padded < effectiveWindow {
		return 0
	}
	return (padded-effectiveWindow)/stride + 1
}

// Conv2dOp returns the output shape of a 2D convolution. bias is optional, and must have one value per
// output channel.
func Conv2dOp(input, filter shapes.Shape, bias *shapes.Shape, attrs *backends.Conv2dAttrs) (output shapes.Shape, err error) {
	operands := []shapes.Shape{input, filter}
	if bias != nil {
		operands = append(operands, *bias)
	}
	if err = sameDType(backends.OpTypeConv2d, operands...); err != nil {
		return shapes.Invalid(), err
	}
	if input.Rank() != 4 || filter.Rank() != 4 {
		return shapes.Invalid(), shapeErrorf("Conv2d requires 4D input and filter, got %s and %s", input, filter)
	}
	if err = checkWindowParams("Conv2d", attrs.Strides, attrs.Dilations, attrs.Padding); err != nil {
		return shapes.Invalid(), err
	}
	if attrs.Groups < 1 {
		return shapes.Invalid(), shapeErrorf("Conv2d requires groups >= 1, got %d", attrs.Groups)
	}
	channelsAxis := attrs.InputLayout.ChannelsAxis()
	spatialAxes := attrs.InputLayout.SpatialAxes()
	inputChannels := input.Dimensions[channelsAxis]
	outAxis, inAxis, hAxis, wAxis := attrs.FilterLayout.Axes()
	outputChannels := filter.Dimensions[outAxis]
	if inputChannels%attrs.Groups != 0 || outputChannels%attrs.Groups != 0 {
		return shapes.Invalid(), shapeErrorf("Conv2d input channels (%d) and output channels (%d) must be divisible by groups (%d)",
			inputChannels, outputChannels, attrs.Groups)
	}
	if filter.Dimensions[inAxis]*attrs.Groups != inputChannels {
		return shapes.Invalid(), shapeErrorf("Conv2d filter %s (layout %s) has %d input channels per group, but input %s (layout %s) has %d channels and %d groups",
			filter, attrs.FilterLayout, filter.Dimensions[inAxis], input, attrs.InputLayout, inputChannels, attrs.Groups)
	}
	if bias != nil && (bias.Rank() != 1 || bias.Dimensions[0] != outputChannels) {
		return shapes.Invalid(), shapeErrorf("Conv2d bias must be 1D with %d elements, got %s", outputChannels, *bias)
	}
	kernel := [2]int{filter.Dimensions[hAxis], filter.Dimensions[wAxis]}
	output = input.Clone()
	output.Dimensions[channelsAxis] = outputChannels
	for ii, axis := range spatialAxes {
		size := WindowOutputSize(input.Dimensions[axis], kernel[ii], attrs.Strides[ii], attrs.Dilations[ii],
			attrs.Padding[2*ii], attrs.Padding[2*ii+1])
		if size < 1 {
			return shapes.Invalid(), shapeErrorf("Conv2d filter %s is larger than the padded input %s", filter, input)
		}
		output.Dimensions[axis] = size
	}
	return output, nil
}

// Pool2dOp returns the output shape of AveragePool2d or MaxPool2d.
func Pool2dOp(opType backends.OpType, input shapes.Shape, attrs *backends.Pool2dAttrs) (output shapes.Shape, err error) {
	if err = sameDType(opType, input); err != nil {
		return shapes.Invalid(), err
	}
	if input.Rank() != 4 {
		return shapes.Invalid(), shapeErrorf("%s requires a 4D input, got %s", opType, input)
	}
	if err = checkWindowParams(opType.String(), attrs.Strides, attrs.Dilations, attrs.Padding); err != nil {
		return shapes.Invalid(), err
	}
	spatialAxes := attrs.Layout.SpatialAxes()
	window := attrs.WindowDimensions
	if window == [2]int{} {
		window = [2]int{input.Dimensions[spatialAxes[0]], input.Dimensions[spatialAxes[1]]}
	}
	output = input.Clone()
	for ii, axis := range spatialAxes {
		if window[ii] < 1 {
			return shapes.Invalid(), shapeErrorf("%s window dimensions must be >= 1, got %v", opType, attrs.WindowDimensions)
		}
		size := WindowOutputSize(input.Dimensions[axis], window[ii], attrs.Strides[ii], attrs.Dilations[ii],
			attrs.Padding[2*ii], attrs.Padding[2*ii+1])
		if size < 1 {
			return shapes.Invalid(), shapeErrorf("%s window %v is larger than the padded input %s", opType, window, input)
		}
		output.Dimensions[axis] = size
	}
	return output, nil
}

// SoftmaxOp requires a 2D operand, and normalizes over the last axis.
func SoftmaxOp(operand shapes.Shape) (output shapes.Shape, err error) {
	if err = sameDType(backends.OpTypeSoftmax, operand); err != nil {
		return shapes.Invalid(), err
	}
	if operand.Rank() != 2 {
		return shapes.Invalid(), shapeErrorf("Softmax requires a 2D operand, got %s", operand)
	}
	return operand.Clone(), nil
}

// ReduceOp works for the ReduceSum, ReduceMean and ReduceMax ops. It normalizes attrs.Axes in place:
// negative axes are converted, and an empty list means all axes.
func ReduceOp(opType backends.OpType, operand shapes.Shape, attrs *backends.ReduceAttrs) (output shapes.Shape, err error) {
	if !opType.IsReduce() {
		return shapes.Invalid(), typeErrorf("operation %s is not a reduction", opType)
	}
	if err = sameDType(opType, operand); err != nil {
		return shapes.Invalid(), err
	}
	rank := operand.Rank()
	if len(attrs.Axes) == 0 {
		attrs.Axes = make([]int, rank)
		for axis := range rank {
			attrs.Axes[axis] = axis
		}
	}
	axes := make([]int, len(attrs.Axes))
	for ii, axis := range attrs.Axes {
		if axis < 0 {
			axis += rank
		}
		if axis < 0 || axis >= rank {
			return shapes.Invalid(), shapeErrorf("%s axis %d out of range for %s", opType, attrs.Axes[ii], operand)
		}
		axes[ii] = axis
	}
	slices.Sort(axes)
	if len(slices.Compact(slices.Clone(axes))) != len(axes) {
		return shapes.Invalid(), shapeErrorf("%s axes %v contain duplicates", opType, attrs.Axes)
	}
	attrs.Axes = axes

	reduced := hashset.New(axes...)
	output = operand.WithDimensions()
	for axis, dim := range operand.Dimensions {
		if !reduced.Contains(axis) {
			output.Dimensions = append(output.Dimensions, dim)
		} else if attrs.KeepDimensions {
			output.Dimensions = append(output.Dimensions, 1)
		}
	}
	return output, nil
}

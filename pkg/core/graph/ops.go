// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"math"
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/webnn/backends"
	"github.com/gomlx/webnn/backends/shapeinference"
	"github.com/gomlx/webnn/pkg/core/mlerrors"
	"github.com/gomlx/webnn/pkg/core/shapes"
)

// DefaultLeakyReluAlpha is the slope of negative values used by LeakyRelu when no attributes are given.
const DefaultLeakyReluAlpha = 0.01

func checkOperandDType(dtype dtypes.DType) error {
	return shapeinference.CheckDType(backends.OpTypeInvalid, dtype)
}

func checkNumInputs(opType backends.OpType, inputs []shapes.Shape, minInputs, maxInputs int) error {
	if len(inputs) < minInputs || len(inputs) > maxInputs {
		if minInputs == maxInputs {
			return mlerrors.Errorf(mlerrors.ShapeMismatch, "%s takes %d operands, got %d", opType, minInputs, len(inputs))
		}
		return mlerrors.Errorf(mlerrors.ShapeMismatch, "%s takes %d to %d operands, got %d", opType, minInputs, maxInputs, len(inputs))
	}
	return nil
}

// attrsOrDefault converts attrs to *T, returning a copy of it, or defaultAttrs if attrs is nil.
func attrsOrDefault[T any](opType backends.OpType, attrs any, defaultAttrs T) (*T, error) {
	if attrs == nil {
		return &defaultAttrs, nil
	}
	typed, ok := attrs.(*T)
	if !ok || typed == nil {
		return nil, mlerrors.Errorf(mlerrors.TypeMismatch, "%s requires attributes of type %T, got %T", opType, &defaultAttrs, attrs)
	}
	c := *typed
	return &c, nil
}

// inferOperation validates the inputs and attributes of an operation, and returns its output shape
// and a private copy of the attributes, with the defaults filled in.
func inferOperation(opType backends.OpType, attrs any, inputs []shapes.Shape) (output shapes.Shape, outputAttrs any, err error) {
	invalid := shapes.Invalid()
	switch {
	case opType.IsBinary():
		if err = checkNumInputs(opType, inputs, 2, 2); err != nil {
			return invalid, nil, err
		}
		output, err = shapeinference.BinaryOp(opType, inputs[0], inputs[1])
		return output, nil, err

	case opType == backends.OpTypeClamp:
		if err = checkNumInputs(opType, inputs, 1, 1); err != nil {
			return invalid, nil, err
		}
		var clamp *backends.ClampAttrs
		clamp, err = attrsOrDefault(opType, attrs, backends.ClampAttrs{Min: math.Inf(-1), Max: math.Inf(1)})
		if err != nil {
			return invalid, nil, err
		}
		output, err = shapeinference.ClampOp(inputs[0], clamp)
		return output, clamp, err

	case opType == backends.OpTypeLeakyRelu:
		if err = checkNumInputs(opType, inputs, 1, 1); err != nil {
			return invalid, nil, err
		}
		var leaky *backends.LeakyReluAttrs
		leaky, err = attrsOrDefault(opType, attrs, backends.LeakyReluAttrs{Alpha: DefaultLeakyReluAlpha})
		if err != nil {
			return invalid, nil, err
		}
		output, err = shapeinference.UnaryOp(opType, inputs[0])
		return output, leaky, err

	case opType.IsUnary():
		if err = checkNumInputs(opType, inputs, 1, 1); err != nil {
			return invalid, nil, err
		}
		output, err = shapeinference.UnaryOp(opType, inputs[0])
		return output, nil, err

	case opType.IsReduce():
		if err = checkNumInputs(opType, inputs, 1, 1); err != nil {
			return invalid, nil, err
		}
		var reduce *backends.ReduceAttrs
		reduce, err = attrsOrDefault(opType, attrs, backends.ReduceAttrs{})
		if err != nil {
			return invalid, nil, err
		}
		reduce.Axes = slices.Clone(reduce.Axes)
		output, err = shapeinference.ReduceOp(opType, inputs[0], reduce)
		return output, reduce, err
	}

	switch opType {
	case backends.OpTypeReshape:
		if err = checkNumInputs(opType, inputs, 1, 1); err != nil {
			return invalid, nil, err
		}
		var reshape *backends.ReshapeAttrs
		reshape, err = attrsOrDefault(opType, attrs, backends.ReshapeAttrs{})
		if err != nil {
			return invalid, nil, err
		}
		reshape.Dimensions = slices.Clone(reshape.Dimensions)
		output, err = shapeinference.ReshapeOp(inputs[0], reshape.Dimensions)
		return output, reshape, err

	case backends.OpTypeTranspose:
		if err = checkNumInputs(opType, inputs, 1, 1); err != nil {
			return invalid, nil, err
		}
		// The default permutation reverses the axes.
		reversed := make([]int, inputs[0].Rank())
		for ii := range reversed {
			reversed[ii] = len(reversed) - 1 - ii
		}
		var transpose *backends.TransposeAttrs
		transpose, err = attrsOrDefault(opType, attrs, backends.TransposeAttrs{Permutation: reversed})
		if err != nil {
			return invalid, nil, err
		}
		transpose.Permutation = slices.Clone(transpose.Permutation)
		output, err = shapeinference.TransposeOp(inputs[0], transpose.Permutation)
		return output, transpose, err

	case backends.OpTypeConcat:
		var concat *backends.ConcatAttrs
		concat, err = attrsOrDefault(opType, attrs, backends.ConcatAttrs{})
		if err != nil {
			return invalid, nil, err
		}
		output, err = shapeinference.ConcatOp(inputs, concat.Axis)
		return output, concat, err

	case backends.OpTypeMatMul:
		if err = checkNumInputs(opType, inputs, 2, 2); err != nil {
			return invalid, nil, err
		}
		output, err = shapeinference.MatMulOp(inputs[0], inputs[1])
		return output, nil, err

	case backends.OpTypeGemm:
		if err = checkNumInputs(opType, inputs, 2, 3); err != nil {
			return invalid, nil, err
		}
		var gemm *backends.GemmAttrs
		gemm, err = attrsOrDefault(opType, attrs, backends.GemmAttrs{Alpha: 1, Beta: 1})
		if err != nil {
			return invalid, nil, err
		}
		output, err = shapeinference.GemmOp(inputs[0], inputs[1], optionalShape(inputs, 2), gemm)
		return output, gemm, err

	case backends.OpTypeConv2d:
		if err = checkNumInputs(opType, inputs, 2, 3); err != nil {
			return invalid, nil, err
		}
		var conv *backends.Conv2dAttrs
		conv, err = attrsOrDefault(opType, attrs, backends.Conv2dAttrs{})
		if err != nil {
			return invalid, nil, err
		}
		conv.Strides = onesIfZero(conv.Strides)
		conv.Dilations = onesIfZero(conv.Dilations)
		if conv.Groups == 0 {
			conv.Groups = 1
		}
		output, err = shapeinference.Conv2dOp(inputs[0], inputs[1], optionalShape(inputs, 2), conv)
		return output, conv, err

	case backends.OpTypeAveragePool2d, backends.OpTypeMaxPool2d:
		if err = checkNumInputs(opType, inputs, 1, 1); err != nil {
			return invalid, nil, err
		}
		var pool *backends.Pool2dAttrs
		pool, err = attrsOrDefault(opType, attrs, backends.Pool2dAttrs{})
		if err != nil {
			return invalid, nil, err
		}
		pool.Strides = onesIfZero(pool.Strides)
		pool.Dilations = onesIfZero(pool.Dilations)
		output, err = shapeinference.Pool2dOp(opType, inputs[0], pool)
		return output, pool, err

	case backends.OpTypeSoftmax:
		if err = checkNumInputs(opType, inputs, 1, 1); err != nil {
			return invalid, nil, err
		}
		output, err = shapeinference.SoftmaxOp(inputs[0])
		return output, nil, err
	}
	return invalid, nil, mlerrors.Errorf(mlerrors.UnsupportedOperation, "unknown operation %s", opType)
}

func optionalShape(inputs []shapes.Shape, idx int) *shapes.Shape {
	if idx < len(inputs) {
		return &inputs[idx]
	}
	return nil
}

// onesIfZero replaces a zero strides or dilations value by its default, 1.
func onesIfZero(values [2]int) [2]int {
	for ii, v := range values {
		if v == 0 {
			values[ii] = 1
		}
	}
	return values
}

// Add returns the element-wise sum of lhs and rhs, with numpy style broadcasting.
func (b *Builder) Add(lhs, rhs *Operand) (*Operand, error) {
	return b.Operation(backends.OpTypeAdd, nil, lhs, rhs)
}

// Sub returns lhs - rhs, with broadcasting.
func (b *Builder) Sub(lhs, rhs *Operand) (*Operand, error) {
	return b.Operation(backends.OpTypeSub, nil, lhs, rhs)
}

// Mul returns lhs * rhs, with broadcasting.
func (b *Builder) Mul(lhs, rhs *Operand) (*Operand, error) {
	return b.Operation(backends.OpTypeMul, nil, lhs, rhs)
}

// Div returns lhs / rhs, with broadcasting. Integer division by zero fails at Compute time.
func (b *Builder) Div(lhs, rhs *Operand) (*Operand, error) {
	return b.Operation(backends.OpTypeDiv, nil, lhs, rhs)
}

// Max returns the element-wise maximum, with broadcasting.
func (b *Builder) Max(lhs, rhs *Operand) (*Operand, error) {
	return b.Operation(backends.OpTypeMax, nil, lhs, rhs)
}

// Min returns the element-wise minimum, with broadcasting.
func (b *Builder) Min(lhs, rhs *Operand) (*Operand, error) {
	return b.Operation(backends.OpTypeMin, nil, lhs, rhs)
}

// Pow returns lhs raised to rhs, with broadcasting.
func (b *Builder) Pow(lhs, rhs *Operand) (*Operand, error) {
	return b.Operation(backends.OpTypePow, nil, lhs, rhs)
}

// Abs returns the element-wise absolute value.
func (b *Builder) Abs(x *Operand) (*Operand, error) {
	return b.Operation(backends.OpTypeAbs, nil, x)
}

// Ceil rounds up element-wise.
func (b *Builder) Ceil(x *Operand) (*Operand, error) {
	return b.Operation(backends.OpTypeCeil, nil, x)
}

// Cos returns the element-wise cosine.
func (b *Builder) Cos(x *Operand) (*Operand, error) {
	return b.Operation(backends.OpTypeCos, nil, x)
}

// Exp returns e raised to x, element-wise.
func (b *Builder) Exp(x *Operand) (*Operand, error) {
	return b.Operation(backends.OpTypeExp, nil, x)
}

// Floor rounds down element-wise.
func (b *Builder) Floor(x *Operand) (*Operand, error) {
	return b.Operation(backends.OpTypeFloor, nil, x)
}

// Log returns the element-wise natural logarithm.
func (b *Builder) Log(x *Operand) (*Operand, error) {
	return b.Operation(backends.OpTypeLog, nil, x)
}

// Neg returns -x.
func (b *Builder) Neg(x *Operand) (*Operand, error) {
	return b.Operation(backends.OpTypeNeg, nil, x)
}

// Relu returns max(x, 0).
func (b *Builder) Relu(x *Operand) (*Operand, error) {
	return b.Operation(backends.OpTypeRelu, nil, x)
}

// Sin returns the element-wise sine.
func (b *Builder) Sin(x *Operand) (*Operand, error) {
	return b.Operation(backends.OpTypeSin, nil, x)
}

// Sqrt returns the element-wise square root.
func (b *Builder) Sqrt(x *Operand) (*Operand, error) {
	return b.Operation(backends.OpTypeSqrt, nil, x)
}

// Tanh returns the element-wise hyperbolic tangent.
func (b *Builder) Tanh(x *Operand) (*Operand, error) {
	return b.Operation(backends.OpTypeTanh, nil, x)
}

// Sigmoid returns 1/(1+exp(-x)).
func (b *Builder) Sigmoid(x *Operand) (*Operand, error) {
	return b.Operation(backends.OpTypeSigmoid, nil, x)
}

// LeakyRelu returns x for positive values, and alpha*x otherwise.
func (b *Builder) LeakyRelu(x *Operand, alpha float64) (*Operand, error) {
	return b.Operation(backends.OpTypeLeakyRelu, &backends.LeakyReluAttrs{Alpha: alpha}, x)
}

// Clamp saturates x to [minValue, maxValue]. Use math.Inf for an open bound.
func (b *Builder) Clamp(x *Operand, minValue, maxValue float64) (*Operand, error) {
	return b.Operation(backends.OpTypeClamp, &backends.ClampAttrs{Min: minValue, Max: maxValue}, x)
}

// Reshape x to the given dimensions. The number of elements must be preserved.
func (b *Builder) Reshape(x *Operand, dimensions ...int) (*Operand, error) {
	return b.Operation(backends.OpTypeReshape, &backends.ReshapeAttrs{Dimensions: dimensions}, x)
}

// Transpose permutes the axes of x: output axis i is the input axis permutation[i].
// With no permutation the axes are reversed.
func (b *Builder) Transpose(x *Operand, permutation ...int) (*Operand, error) {
	if len(permutation) == 0 {
		return b.Operation(backends.OpTypeTranspose, nil, x)
	}
	return b.Operation(backends.OpTypeTranspose, &backends.TransposeAttrs{Permutation: permutation}, x)
}

// Concat concatenates the operands along axis. All other dimensions must match.
func (b *Builder) Concat(axis int, operands ...*Operand) (*Operand, error) {
	return b.Operation(backends.OpTypeConcat, &backends.ConcatAttrs{Axis: axis}, operands...)
}

// MatMul returns the matrix multiplication of a[..., M, K] and b[..., K, N]. Batch dimensions are broadcast.
func (b *Builder) MatMul(lhs, rhs *Operand) (*Operand, error) {
	return b.Operation(backends.OpTypeMatMul, nil, lhs, rhs)
}

// GemmOptions for Builder.Gemm.
type GemmOptions struct {
	// C is added to the result, and must be broadcastable to it. Optional.
	C *Operand

	Alpha, Beta            float64
	ATranspose, BTranspose bool
}

// DefaultGemmOptions returns alpha = beta = 1, and no transposition.
func DefaultGemmOptions() *GemmOptions {
	return &GemmOptions{Alpha: 1, Beta: 1}
}

// Gemm returns `alpha * A' * B' + beta * C` for 2D a and b, where A' and B' are optionally transposed.
// A nil opts is the same as DefaultGemmOptions().
func (b *Builder) Gemm(lhs, rhs *Operand, opts *GemmOptions) (*Operand, error) {
	if opts == nil {
		opts = DefaultGemmOptions()
	}
	inputs := []*Operand{lhs, rhs}
	if opts.C != nil {
		inputs = append(inputs, opts.C)
	}
	return b.Operation(backends.OpTypeGemm, &backends.GemmAttrs{
		Alpha: opts.Alpha, Beta: opts.Beta, ATranspose: opts.ATranspose, BTranspose: opts.BTranspose,
	}, inputs...)
}

// Conv2dOptions for Builder.Conv2d. The zero value is a valid configuration: no padding, strides
// and dilations of 1, one group, NCHW input and OIHW filter.
type Conv2dOptions struct {
	// Bias has one value per output channel. Optional.
	Bias *Operand

	// Padding is [beginHeight, endHeight, beginWidth, endWidth].
	Padding backends.Padding2D

	// Strides and Dilations default to 1 if left as 0.
	Strides, Dilations [2]int

	// Groups defaults to 1. Set it to the number of input channels for a depthwise convolution.
	Groups int

	InputLayout  backends.InputLayout
	FilterLayout backends.FilterLayout
}

// Conv2d returns the 2D convolution of input with filter.
func (b *Builder) Conv2d(input, filter *Operand, opts *Conv2dOptions) (*Operand, error) {
	if opts == nil {
		opts = &Conv2dOptions{}
	}
	inputs := []*Operand{input, filter}
	if opts.Bias != nil {
		inputs = append(inputs, opts.Bias)
	}
	return b.Operation(backends.OpTypeConv2d, &backends.Conv2dAttrs{
		Padding:      opts.Padding,
		Strides:      opts.Strides,
		Dilations:    opts.Dilations,
		Groups:       opts.Groups,
		InputLayout:  opts.InputLayout,
		FilterLayout: opts.FilterLayout,
	}, inputs...)
}

// Pool2dOptions for Builder.AveragePool2d and Builder.MaxPool2d. The zero value pools over
// the whole spatial dimensions (global pooling) of an NCHW input.
type Pool2dOptions = backends.Pool2dAttrs

// AveragePool2d averages over windows of the spatial dimensions. Padded values are not counted.
func (b *Builder) AveragePool2d(input *Operand, opts *Pool2dOptions) (*Operand, error) {
	if opts == nil {
		return b.Operation(backends.OpTypeAveragePool2d, nil, input)
	}
	return b.Operation(backends.OpTypeAveragePool2d, opts, input)
}

// MaxPool2d takes the maximum over windows of the spatial dimensions.
func (b *Builder) MaxPool2d(input *Operand, opts *Pool2dOptions) (*Operand, error) {
	if opts == nil {
		return b.Operation(backends.OpTypeMaxPool2d, nil, input)
	}
	return b.Operation(backends.OpTypeMaxPool2d, opts, input)
}

// Softmax normalizes the rows of a 2D operand.
func (b *Builder) Softmax(x *Operand) (*Operand, error) {
	return b.Operation(backends.OpTypeSoftmax, nil, x)
}

// ReduceSum sums over the given axes (all axes if none). Negative axes count from the end.
func (b *Builder) ReduceSum(x *Operand, keepDimensions bool, axes ...int) (*Operand, error) {
	return b.Operation(backends.OpTypeReduceSum, &backends.ReduceAttrs{Axes: axes, KeepDimensions: keepDimensions}, x)
}

// ReduceMean averages over the given axes (all axes if none).
func (b *Builder) ReduceMean(x *Operand, keepDimensions bool, axes ...int) (*Operand, error) {
	return b.Operation(backends.OpTypeReduceMean, &backends.ReduceAttrs{Axes: axes, KeepDimensions: keepDimensions}, x)
}

// ReduceMax takes the maximum over the given axes (all axes if none).
func (b *Builder) ReduceMax(x *Operand, keepDimensions bool, axes ...int) (*Operand, error) {
	return b.Operation(backends.OpTypeReduceMax, &backends.ReduceAttrs{Axes: axes, KeepDimensions: keepDimensions}, x)
}

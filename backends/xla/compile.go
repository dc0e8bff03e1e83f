// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xla

import (
	"math"
	"reflect"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/xlabuilder"
	"github.com/gomlx/webnn/backends"
	"github.com/gomlx/webnn/pkg/core/mlerrors"
	"github.com/gomlx/webnn/pkg/core/shapes"
	"github.com/gomlx/webnn/pkg/core/tensors"
	"github.com/gomlx/webnn/pkg/support/xslices"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

// lowering converts the steps of a backends.Program into an XLA computation.
//
// Its methods panic on errors, which are converted back to errors by Compile.
type lowering struct {
	program *backends.Program
	builder *xlabuilder.XlaBuilder
	ops     []*xlabuilder.Op // Indexed by value ID.
}

// must panics with the error, or returns the op.
func must(op *xlabuilder.Op, err error) *xlabuilder.Op {
	if err != nil {
		panic(errors.WithMessage(err, "backend "+BackendName))
	}
	return op
}

func shapeToXShape(shape shapes.Shape) xlabuilder.Shape {
	return xlabuilder.MakeShape(shape.DType, shape.Dimensions...)
}

// Compile implements backends.Backend: the program is converted to an XLA computation and compiled by the PJRT client.
func (b *Backend) Compile(program *backends.Program) (backends.Executable, error) {
	if err := b.CheckValid(); err != nil {
		return nil, err
	}
	client := b.pjrtClient()
	if client == nil {
		return nil, mlerrors.Errorf(mlerrors.DeviceUnavailable, "backend %q has been finalized", BackendName)
	}
	l := &lowering{
		program: program,
		builder: xlabuilder.New(program.Name),
		ops:     make([]*xlabuilder.Op, len(program.Values)),
	}
	var comp *xlabuilder.XlaComputation
	err := exceptions.TryCatch[error](func() {
		l.lowerValues()
		outputs := xslices.Map(program.Outputs, func(output backends.Output) *xlabuilder.Op { return l.ops[output.Value] })
		root := must(xlabuilder.Tuple(outputs...))
		var err error
		comp, err = l.builder.Build(root)
		if err != nil {
			panic(errors.WithMessagef(err, "backend %q: building computation %q", BackendName, program.Name))
		}
	})
	if err != nil {
		return nil, mlerrors.Wrapf(mlerrors.UnsupportedOperation, err, "backend %q: lowering %q", BackendName, program.Name)
	}
	if klog.V(2).Enabled() {
		klog.Infof("XLA computation for %q:\n%s", program.Name, comp.TextHLO())
	}
	exec, err := client.Compile().WithComputation(comp).Done()
	if err != nil {
		return nil, mlerrors.Wrapf(mlerrors.DeviceUnavailable, err, "backend %q: compiling %q", BackendName, program.Name)
	}
	return &Executable{backend: b, program: program, exec: exec}, nil
}

func (l *lowering) lowerValues() {
	for _, value := range l.program.Values {
		switch value.Kind {
		case backends.ValueInput:
			l.ops[value.ID] = must(xlabuilder.Parameter(l.builder, value.Name, value.InputIdx, shapeToXShape(value.Shape)))
		case backends.ValueConstant:
			flat, err := tensors.ViewAs(value.Shape.DType, value.Data)
			if err != nil {
				panic(err)
			}
			literal := xlabuilder.NewArrayLiteralFromAny(flat, value.Shape.Dimensions...)
			l.ops[value.ID] = must(xlabuilder.Constant(l.builder, literal))
		case backends.ValueComputed:
			step := &l.program.Steps[value.ProducedAt]
			l.ops[value.ID] = l.lowerStep(step, value.Shape)
		}
	}
}

// scalar returns a constant of the dtype broadcast to shape.
func (l *lowering) scalar(value float64, shape shapes.Shape) *xlabuilder.Op {
	dtype := shape.DType
	flat := reflect.MakeSlice(reflect.SliceOf(dtype.GoType()), 1, 1)
	if dtype == dtypes.Float16 {
		flat.Index(0).Set(reflect.ValueOf(float16.Fromfloat32(float32(value))))
	} else {
		flat.Index(0).Set(reflect.ValueOf(value).Convert(dtype.GoType()))
	}
	op := must(xlabuilder.Constant(l.builder, xlabuilder.NewArrayLiteralFromAny(flat.Interface())))
	return must(xlabuilder.BroadcastInDim(op, shapeToXShape(shape), nil))
}

// broadcastTo broadcasts x (with shape from) to shape, aligning the axes to the right.
func (l *lowering) broadcastTo(x *xlabuilder.Op, from, to shapes.Shape) *xlabuilder.Op {
	if from.EqualDimensions(to) {
		return x
	}
	// Axes of dimension 1 that grow must be dropped before BroadcastInDim.
	offset := to.Rank() - from.Rank()
	var keptDims, axes []int
	for axis, dim := range from.Dimensions {
		if dim == 1 && to.Dimensions[axis+offset] != 1 {
			continue
		}
		keptDims = append(keptDims, dim)
		axes = append(axes, axis+offset)
	}
	if len(keptDims) != from.Rank() {
		x = must(xlabuilder.Reshape(x, keptDims...))
	}
	return must(xlabuilder.BroadcastInDim(x, shapeToXShape(to), axes))
}

func (l *lowering) lowerStep(step *backends.Step, shape shapes.Shape) *xlabuilder.Op {
	inputs := xslices.Map(step.Inputs, func(id int) *xlabuilder.Op { return l.ops[id] })
	inputShapes := xslices.Map(step.Inputs, func(id int) shapes.Shape { return l.program.Values[id].Shape })
	op := step.Op
	switch {
	case op.IsBinary():
		lhs := l.broadcastTo(inputs[0], inputShapes[0], shape)
		rhs := l.broadcastTo(inputs[1], inputShapes[1], shape)
		return must(binaryOps[op](lhs, rhs))
	case op.IsUnary():
		return l.lowerUnary(step, inputs[0], shape)
	}
	switch op {
	case backends.OpTypeReshape:
		return must(xlabuilder.Reshape(inputs[0], shape.Dimensions...))
	case backends.OpTypeTranspose:
		return must(xlabuilder.Transpose(inputs[0], step.Attrs.(*backends.TransposeAttrs).Permutation...))
	case backends.OpTypeConcat:
		return must(xlabuilder.Concatenate(step.Attrs.(*backends.ConcatAttrs).Axis, inputs...))
	case backends.OpTypeMatMul:
		return l.lowerMatMul(inputs, inputShapes, shape)
	case backends.OpTypeGemm:
		return l.lowerGemm(step.Attrs.(*backends.GemmAttrs), inputs, inputShapes, shape)
	case backends.OpTypeSoftmax:
		return l.lowerSoftmax(inputs[0], shape)
	case backends.OpTypeReduceSum, backends.OpTypeReduceMean, backends.OpTypeReduceMax:
		return l.lowerReduce(op, step.Attrs.(*backends.ReduceAttrs), inputs[0], inputShapes[0], shape)
	}
	exceptions.Panicf("backend %q: operation %s not supported", BackendName, op)
	return nil
}

var binaryOps = map[backends.OpType]func(lhs, rhs *xlabuilder.Op) (*xlabuilder.Op, error){
	backends.OpTypeAdd: xlabuilder.Add,
	backends.OpTypeSub: xlabuilder.Sub,
	backends.OpTypeMul: xlabuilder.Mul,
	backends.OpTypeDiv: xlabuilder.Div,
	backends.OpTypeMax: xlabuilder.Max,
	backends.OpTypeMin: xlabuilder.Min,
	backends.OpTypePow: xlabuilder.Pow,
}

var unaryOps = map[backends.OpType]func(x *xlabuilder.Op) (*xlabuilder.Op, error){
	backends.OpTypeAbs:     xlabuilder.Abs,
	backends.OpTypeCeil:    xlabuilder.Ceil,
	backends.OpTypeCos:     xlabuilder.Cos,
	backends.OpTypeExp:     xlabuilder.Exp,
	backends.OpTypeFloor:   xlabuilder.Floor,
	backends.OpTypeLog:     xlabuilder.Log,
	backends.OpTypeNeg:     xlabuilder.Neg,
	backends.OpTypeSigmoid: xlabuilder.Logistic,
	backends.OpTypeSin:     xlabuilder.Sin,
	backends.OpTypeSqrt:    xlabuilder.Sqrt,
	backends.OpTypeTanh:    xlabuilder.Tanh,
}

func (l *lowering) lowerUnary(step *backends.Step, x *xlabuilder.Op, shape shapes.Shape) *xlabuilder.Op {
	if fn, found := unaryOps[step.Op]; found {
		return must(fn(x))
	}
	switch step.Op {
	case backends.OpTypeRelu:
		return must(xlabuilder.Max(x, l.scalar(0, shape)))
	case backends.OpTypeLeakyRelu:
		// max(x, 0) + alpha * min(x, 0)
		alpha := step.Attrs.(*backends.LeakyReluAttrs).Alpha
		positive := must(xlabuilder.Max(x, l.scalar(0, shape)))
		negative := must(xlabuilder.Min(x, l.scalar(0, shape)))
		return must(xlabuilder.Add(positive, must(xlabuilder.Mul(negative, l.scalar(alpha, shape)))))
	case backends.OpTypeClamp:
		attrs := step.Attrs.(*backends.ClampAttrs)
		if !math.IsInf(attrs.Max, 1) {
			x = must(xlabuilder.Min(x, l.scalar(attrs.Max, shape)))
		}
		if !math.IsInf(attrs.Min, -1) {
			x = must(xlabuilder.Max(x, l.scalar(attrs.Min, shape)))
		}
		return x
	}
	exceptions.Panicf("backend %q: unary operation %s not supported", BackendName, step.Op)
	return nil
}

// lowerMatMul broadcasts the batch axes of both operands to the output's, and uses a DotGeneral.
func (l *lowering) lowerMatMul(inputs []*xlabuilder.Op, inputShapes []shapes.Shape, shape shapes.Shape) *xlabuilder.Op {
	rank := shape.Rank()
	batchDims := shape.Dimensions[:rank-2]
	operands := make([]*xlabuilder.Op, 2)
	for ii, input := range inputs {
		inShape := inputShapes[ii]
		target := inShape.WithDimensions(append(append([]int{}, batchDims...), inShape.Dimensions[inShape.Rank()-2:]...)...)
		operands[ii] = l.broadcastTo(input, inShape, target)
	}
	batchAxes := xslices.Iota(0, rank-2)
	return must(xlabuilder.DotGeneral(operands[0], []int{rank - 1}, batchAxes, operands[1], []int{rank - 2}, batchAxes))
}

func (l *lowering) lowerGemm(attrs *backends.GemmAttrs, inputs []*xlabuilder.Op, inputShapes []shapes.Shape, shape shapes.Shape) *xlabuilder.Op {
	a, b := inputs[0], inputs[1]
	if attrs.ATranspose {
		a = must(xlabuilder.Transpose(a, 1, 0))
	}
	if attrs.BTranspose {
		b = must(xlabuilder.Transpose(b, 1, 0))
	}
	result := must(xlabuilder.DotGeneral(a, []int{1}, nil, b, []int{0}, nil))
	if attrs.Alpha != 1 {
		result = must(xlabuilder.Mul(result, l.scalar(attrs.Alpha, shape)))
	}
	if len(inputs) > 2 && attrs.Beta != 0 {
		c := l.broadcastTo(inputs[2], inputShapes[2], shape)
		if attrs.Beta != 1 {
			c = must(xlabuilder.Mul(c, l.scalar(attrs.Beta, shape)))
		}
		result = must(xlabuilder.Add(result, c))
	}
	return result
}

// lowerSoftmax normalizes the last axis of the 2D operand, subtracting the max for numerical stability.
func (l *lowering) lowerSoftmax(x *xlabuilder.Op, shape shapes.Shape) *xlabuilder.Op {
	xshape := shapeToXShape(shape)
	rowMax := must(xlabuilder.BroadcastInDim(must(xlabuilder.ReduceMax(x, 1)), xshape, []int{0}))
	exp := must(xlabuilder.Exp(must(xlabuilder.Sub(x, rowMax))))
	sum := must(xlabuilder.BroadcastInDim(must(xlabuilder.ReduceSum(exp, 1)), xshape, []int{0}))
	return must(xlabuilder.Div(exp, sum))
}

func (l *lowering) lowerReduce(op backends.OpType, attrs *backends.ReduceAttrs, x *xlabuilder.Op, inShape, shape shapes.Shape) *xlabuilder.Op {
	var result *xlabuilder.Op
	if op == backends.OpTypeReduceMax {
		result = must(xlabuilder.ReduceMax(x, attrs.Axes...))
	} else {
		result = must(xlabuilder.ReduceSum(x, attrs.Axes...))
	}
	if attrs.KeepDimensions {
		result = must(xlabuilder.Reshape(result, shape.Dimensions...))
	}
	if op == backends.OpTypeReduceMean {
		count := inShape.Size() / shape.Size()
		result = must(xlabuilder.Div(result, l.scalar(float64(count), shape)))
	}
	return result
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/webnn/backends"
	"github.com/gomlx/webnn/pkg/core/mlerrors"
	"github.com/gomlx/webnn/pkg/core/planner"
	"github.com/gomlx/webnn/pkg/core/shapes"
	"github.com/gomlx/webnn/pkg/core/tensors"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"k8s.io/klog/v2"
)

// Operand is a value in the graph being built: an input, a constant or the result of an operation.
//
// Operands are immutable, and can only be used with the Builder that created them.
type Operand struct {
	builder *Builder
	id      int
	kind    backends.ValueKind
	shape   shapes.Shape

	// name of inputs.
	name string

	// data of constants, owned by the operand.
	data []byte

	opType backends.OpType
	inputs []*Operand
	attrs  any
}

// ID of the operand within its Builder: ids are assigned in creation order.
func (op *Operand) ID() int { return op.id }

// Kind of the operand: backends.ValueInput, backends.ValueConstant or backends.ValueComputed.
func (op *Operand) Kind() backends.ValueKind { return op.kind }

// Shape of the operand.
func (op *Operand) Shape() shapes.Shape { return op.shape.Clone() }

// DType of the operand.
func (op *Operand) DType() dtypes.DType { return op.shape.DType }

// Name of an input operand, empty otherwise.
func (op *Operand) Name() string { return op.name }

// OpType of a computed operand, backends.OpTypeInvalid otherwise.
func (op *Operand) OpType() backends.OpType { return op.opType }

// String implements fmt.Stringer.
func (op *Operand) String() string {
	if op == nil {
		return "Operand(nil)"
	}
	switch op.kind {
	case backends.ValueInput:
		return fmt.Sprintf("#%d Input(%q, %s)", op.id, op.name, op.shape)
	case backends.ValueConstant:
		return fmt.Sprintf("#%d Constant(%s)", op.id, op.shape)
	}
	ids := make([]string, len(op.inputs))
	for ii, input := range op.inputs {
		ids[ii] = fmt.Sprintf("#%d", input.id)
	}
	return fmt.Sprintf("#%d %s(%s) -> %s", op.id, op.opType, strings.Join(ids, ", "), op.shape)
}

// Builder accumulates the operands of a graph. Each operation is validated when it is added.
//
// A Builder is not safe for concurrent use. It can be used to Build more than one Graph: a built
// Graph is never affected by later changes to the Builder.
type Builder struct {
	ctx      *Context
	operands []*Operand

	// inputs by name, in declaration order.
	inputs *orderedmap.OrderedMap[string, *Operand]
}

// NewBuilder returns an empty Builder for graphs that run with ctx.
func NewBuilder(ctx *Context) *Builder {
	return &Builder{
		ctx:    ctx,
		inputs: orderedmap.New[string, *Operand](),
	}
}

// Context of the builder.
func (b *Builder) Context() *Context { return b.ctx }

// NumOperands created so far.
func (b *Builder) NumOperands() int { return len(b.operands) }

// InputNames returns the names of the inputs, in declaration order.
func (b *Builder) InputNames() []string {
	names := make([]string, 0, b.inputs.Len())
	for pair := b.inputs.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

func (b *Builder) newOperand(op *Operand) *Operand {
	op.builder = b
	op.id = len(b.operands)
	b.operands = append(b.operands, op)
	return op
}

// checkOperands returns mlerrors.UnknownOperand if any of the operands is nil or was created by another Builder.
func (b *Builder) checkOperands(opName string, operands ...*Operand) error {
	for ii, op := range operands {
		if op == nil {
			return mlerrors.Errorf(mlerrors.UnknownOperand, "%s: operand #%d is nil", opName, ii)
		}
		if op.builder != b {
			return mlerrors.Errorf(mlerrors.UnknownOperand, "%s: operand #%d (%s) was created by a different builder", opName, ii, op)
		}
	}
	return nil
}

// Input declares an input of the graph, fed on each Compute with the given name.
//
// It fails with mlerrors.DuplicateName if the name is already used, and with mlerrors.ShapeMismatch
// or mlerrors.TypeMismatch for invalid dimensions or data type.
func (b *Builder) Input(name string, dtype dtypes.DType, dimensions ...int) (*Operand, error) {
	if name == "" {
		return nil, mlerrors.Errorf(mlerrors.UnknownOperand, "Input requires a name")
	}
	if _, found := b.inputs.Get(name); found {
		return nil, mlerrors.Errorf(mlerrors.DuplicateName, "Input %q is already defined", name)
	}
	shape, err := checkedShape(dtype, dimensions)
	if err != nil {
		return nil, errorsWithContext(err, "Input(%q)", name)
	}
	op := b.newOperand(&Operand{kind: backends.ValueInput, shape: shape, name: name})
	b.inputs.Set(name, op)
	return op, nil
}

// Constant creates a constant with the given shape, from data in row-major order.
//
// The data is copied, so the caller can reuse it after the call. It fails with mlerrors.ShapeMismatch
// if len(data) doesn't match the shape.
func (b *Builder) Constant(shape shapes.Shape, data []byte) (*Operand, error) {
	shape, err := checkedShape(shape.DType, shape.Dimensions)
	if err != nil {
		return nil, errorsWithContext(err, "Constant")
	}
	if len(data) != int(shape.Memory()) {
		return nil, mlerrors.Errorf(mlerrors.ShapeMismatch, "Constant %s requires %d bytes, got %d", shape, shape.Memory(), len(data))
	}
	return b.newOperand(&Operand{kind: backends.ValueConstant, shape: shape, data: tensors.CopyBytes(data)}), nil
}

// ConstantFromFlat creates a constant from a flat Go slice (e.g. []float32) with the given dimensions.
// The data type is taken from the slice element type, and the data is copied.
func (b *Builder) ConstantFromFlat(flat any, dimensions ...int) (*Operand, error) {
	data, _, err := tensors.BytesOf(flat)
	if err != nil {
		return nil, mlerrors.Wrapf(mlerrors.TypeMismatch, err, "ConstantFromFlat")
	}
	shape, err := checkedShape(tensors.DTypeOf(flat), dimensions)
	if err != nil {
		return nil, errorsWithContext(err, "ConstantFromFlat")
	}
	return b.Constant(shape, data)
}

// Operation adds an operation of the given type to the graph. attrs must be the attributes struct
// pointer of the operation (e.g. *backends.ClampAttrs for backends.OpTypeClamp), or nil for the
// defaults. attrs is copied, and can be reused by the caller.
//
// The inputs are validated immediately: it fails with mlerrors.ShapeMismatch or mlerrors.TypeMismatch
// for incompatible inputs, and with mlerrors.UnknownOperand for nil inputs or inputs from another Builder.
//
// The typed methods (Add, MatMul, Conv2d, ...) are more convenient.
func (b *Builder) Operation(opType backends.OpType, attrs any, inputs ...*Operand) (*Operand, error) {
	if err := b.checkOperands(opType.String(), inputs...); err != nil {
		return nil, err
	}
	inputShapes := make([]shapes.Shape, len(inputs))
	for ii, input := range inputs {
		inputShapes[ii] = input.shape
	}
	output, attrs, err := inferOperation(opType, attrs, inputShapes)
	if err != nil {
		return nil, err
	}
	return b.newOperand(&Operand{
		kind:   backends.ValueComputed,
		shape:  output,
		opType: opType,
		inputs: slices.Clone(inputs),
		attrs:  attrs,
	}), nil
}

// Build compiles a Graph that computes the given named outputs.
//
// Only the operands needed for the outputs are included. The outputs are ordered by name.
//
// Errors:
//
//   - mlerrors.EmptyGraph if outputs is empty.
//   - mlerrors.UnknownOperand if an output is nil or was created by another Builder.
//   - mlerrors.UnsupportedOperation if the device has no kernel for an operation or data type used.
//   - mlerrors.DeviceUnavailable if the context has been finalized.
func (b *Builder) Build(outputs map[string]*Operand) (*Graph, error) {
	if len(outputs) == 0 {
		return nil, mlerrors.Errorf(mlerrors.EmptyGraph, "Build requires at least one output")
	}
	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	slices.Sort(names)
	namedOutputs := make([]planner.NamedOutput, len(names))
	for ii, name := range names {
		op := outputs[name]
		if err := b.checkOperands(fmt.Sprintf("Build output %q", name), op); err != nil {
			return nil, err
		}
		namedOutputs[ii] = planner.NamedOutput{Name: name, Node: op.id}
	}

	ctx := b.ctx
	if err := ctx.begin(); err != nil {
		return nil, err
	}
	defer ctx.inFlight.Done()

	graphID := uuid.New()
	program, err := planner.Plan(graphID.String(), b.snapshot(), namedOutputs, ctx.backend.Capabilities())
	if err != nil {
		return nil, err
	}
	if klog.V(2).Enabled() {
		var sb strings.Builder
		planner.WriteSummary(&sb, program)
		klog.Infof("context %s, graph %s:\n%s", ctx.id, graphID, sb.String())
	}
	exec, err := ctx.backend.Compile(program)
	if err != nil {
		return nil, err
	}

	g := &Graph{
		ctx:     ctx,
		id:      graphID,
		program: program,
		exec:    exec,
		inputs:  orderedmap.New[string, shapes.Shape](),
		outputs: orderedmap.New[string, int](),
	}
	for pair := b.inputs.Oldest(); pair != nil; pair = pair.Next() {
		g.inputs.Set(pair.Key, pair.Value.shape)
	}
	g.programInputs = make(map[string]int, len(program.Inputs))
	for ii, valueID := range program.Inputs {
		g.programInputs[program.Values[valueID].Name] = ii
	}
	for ii, output := range program.Outputs {
		g.outputs.Set(output.Name, ii)
	}
	if err = ctx.register(g); err != nil {
		exec.Finalize()
		return nil, err
	}
	klog.V(1).Infof("context %s: built graph %s with outputs %q", ctx.id, graphID, names)
	return g, nil
}

// snapshot of the operands for the planner. Operands are immutable, so their data and attributes are shared.
func (b *Builder) snapshot() []planner.Node {
	nodes := make([]planner.Node, len(b.operands))
	for ii, op := range b.operands {
		node := planner.Node{
			Kind:  op.kind,
			Shape: op.shape.Clone(),
			Name:  op.name,
			Data:  op.data,
			Op:    op.opType,
			Attrs: op.attrs,
		}
		if len(op.inputs) > 0 {
			node.Inputs = make([]int, len(op.inputs))
			for jj, input := range op.inputs {
				node.Inputs[jj] = input.id
			}
		}
		nodes[ii] = node
	}
	return nodes
}

// checkedShape validates the data type and the dimensions of an input or constant.
func checkedShape(dtype dtypes.DType, dimensions []int) (shapes.Shape, error) {
	if err := checkOperandDType(dtype); err != nil {
		return shapes.Invalid(), err
	}
	shape, err := shapes.MakeChecked(dtype, dimensions...)
	if err != nil {
		return shapes.Invalid(), mlerrors.Wrapf(mlerrors.ShapeMismatch, err, "invalid dimensions %v", dimensions)
	}
	return shape, nil
}

// errorsWithContext adds a prefix to the error message, preserving its kind.
func errorsWithContext(err error, format string, args ...any) error {
	var e *mlerrors.Error
	if errors.As(err, &e) {
		return mlerrors.Wrapf(e.Kind, e.Unwrap(), format, args...)
	}
	return errors.WithMessagef(err, format, args...)
}

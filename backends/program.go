// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"github.com/gomlx/webnn/pkg/core/shapes"
)

// ValueKind tells where the data of a Value comes from.
type ValueKind int

const (
	// ValueInput is fed by the caller on each execution.
	ValueInput ValueKind = iota

	// ValueConstant is fixed at build time, and its data is stored in the Program.
	ValueConstant

	// ValueComputed is the output of one of the Program's steps.
	ValueComputed
)

// NoSlot is used in Value.Slot for values that don't live in the per-execution scratch memory.
const NoSlot = -1

// Value is one tensor in a Program: an input, a constant or the output of a step.
type Value struct {
	// ID is the index of the value in Program.Values.
	ID    int
	Kind  ValueKind
	Shape shapes.Shape

	// Name is set for inputs.
	Name string

	// InputIdx is the position of the input in Program.Inputs, for ValueInput.
	InputIdx int

	// Data holds the bytes of constants, in row-major order.
	Data []byte

	// Slot is the index of the scratch buffer holding a ValueComputed, or NoSlot.
	// Values with disjoint live ranges may share the same slot.
	Slot int

	// ProducedAt is the index of the step that computes the value, or -1 for inputs and constants.
	ProducedAt int

	// LastUse is the index of the last step that reads the value. Outputs are live until the end,
	// and have LastUse == len(Program.Steps).
	LastUse int

	// Outputs lists the indices in Program.Outputs that this value is returned as.
	Outputs []int
}

// IsOutput returns whether the value is returned by the Program.
func (v *Value) IsOutput() bool { return len(v.Outputs) > 0 }

// Step is one operation of a Program.
type Step struct {
	Op OpType

	// Inputs are the IDs of the input values.
	Inputs []int

	// Output is the ID of the value computed.
	Output int

	// Attrs holds the op specific attributes (e.g. *ClampAttrs), or nil.
	Attrs any
}

// Output is a named output of a Program.
type Output struct {
	Name  string
	Value int
}

// Program is a compiled, device independent, execution plan: the steps are in a valid execution
// order, and only values needed by the outputs are included.
//
// A Program is immutable once planned, and can be shared across goroutines.
type Program struct {
	Name   string
	Values []*Value
	Steps  []Step

	// Inputs are the IDs of the input values, in declaration order.
	Inputs []int

	// Outputs in the order the executable expects the output buffers.
	Outputs []Output

	// SlotSizes is the size in bytes of each scratch slot.
	SlotSizes []int
}

// ScratchMemory returns the total number of bytes used by the scratch slots of one execution.
func (p *Program) ScratchMemory() (total int) {
	for _, size := range p.SlotSizes {
		total += size
	}
	return
}

// ConstantsMemory returns the total number of bytes used by constants.
func (p *Program) ConstantsMemory() (total int) {
	for _, v := range p.Values {
		if v.Kind == ValueConstant {
			total += len(v.Data)
		}
	}
	return
}

// InputShapes returns the shapes of the inputs, in order.
func (p *Program) InputShapes() []shapes.Shape {
	result := make([]shapes.Shape, len(p.Inputs))
	for ii, id := range p.Inputs {
		result[ii] = p.Values[id].Shape
	}
	return result
}

// OutputShapes returns the shapes of the outputs, in order.
func (p *Program) OutputShapes() []shapes.Shape {
	result := make([]shapes.Shape, len(p.Outputs))
	for ii, output := range p.Outputs {
		result[ii] = p.Values[output.Value].Shape
	}
	return result
}

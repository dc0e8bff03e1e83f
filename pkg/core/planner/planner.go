// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package planner turns a snapshot of a graph under construction into a backends.Program.
//
// Planning prunes the nodes not needed by the outputs, orders the remaining ones topologically
// (ties broken by insertion order), checks every operation against the capabilities of the target
// backend, and assigns intermediary values to scratch slots, reusing a slot once the value it held
// is no longer needed.
package planner

import (
	"fmt"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/emirpasic/gods/v2/queues/priorityqueue"
	"github.com/gomlx/webnn/backends"
	"github.com/gomlx/webnn/pkg/core/mlerrors"
	"github.com/gomlx/webnn/pkg/core/shapes"
	"k8s.io/klog/v2"
)

// Node is one operand of the graph being planned. Nodes are referred to by their index in the
// slice given to Plan.
type Node struct {
	Kind  backends.ValueKind
	Shape shapes.Shape

	// Name of inputs.
	Name string

	// Data of constants. It is not copied, and must not be changed afterwards.
	Data []byte

	// Op, Inputs and Attrs of computed nodes.
	Op     backends.OpType
	Inputs []int
	Attrs  any
}

// NamedOutput is an output of the graph, referring to a node index.
type NamedOutput struct {
	Name string
	Node int
}

// Plan creates the Program that computes the outputs from the nodes, for a backend with the given capabilities.
//
// Errors:
//
//   - mlerrors.EmptyGraph if there are no outputs.
//   - mlerrors.UnknownOperand if an output or an operation input refers to a node that doesn't exist
//     (or, for inputs, a node that is not defined before its use).
//   - mlerrors.UnsupportedOperation if an operation or a data type is not in capabilities.
func Plan(name string, nodes []Node, outputs []NamedOutput, capabilities backends.Capabilities) (*backends.Program, error) {
	if len(outputs) == 0 {
		return nil, mlerrors.Errorf(mlerrors.EmptyGraph, "graph %q has no outputs", name)
	}
	for _, output := range outputs {
		if output.Node < 0 || output.Node >= len(nodes) {
			return nil, mlerrors.Errorf(mlerrors.UnknownOperand, "output %q refers to unknown operand #%d", output.Name, output.Node)
		}
	}
	for nodeIdx, node := range nodes {
		for _, input := range node.Inputs {
			if input < 0 || input >= nodeIdx {
				return nil, mlerrors.Errorf(mlerrors.UnknownOperand, "operand #%d (%s) refers to unknown operand #%d",
					nodeIdx, node.Op, input)
			}
		}
	}

	order := topologicalOrder(nodes, reachable(nodes, outputs))
	program := &backends.Program{Name: name}
	nodeToValue := make(map[int]int, len(order))
	for _, nodeIdx := range order {
		node := &nodes[nodeIdx]
		if !capabilities.DTypes[node.Shape.DType] {
			return nil, mlerrors.Errorf(mlerrors.UnsupportedOperation, "data type %s of operand #%d is not supported by the device",
				node.Shape.DType, nodeIdx)
		}
		value := &backends.Value{
			ID:         len(program.Values),
			Kind:       node.Kind,
			Shape:      node.Shape,
			Name:       node.Name,
			Slot:       backends.NoSlot,
			ProducedAt: -1,
			LastUse:    -1,
		}
		switch node.Kind {
		case backends.ValueInput:
			value.InputIdx = len(program.Inputs)
			program.Inputs = append(program.Inputs, value.ID)
		case backends.ValueConstant:
			value.Data = node.Data
		case backends.ValueComputed:
			if !capabilities.Operations[node.Op] {
				return nil, mlerrors.Errorf(mlerrors.UnsupportedOperation, "operation %s (operand #%d) is not supported by the device",
					node.Op, nodeIdx)
			}
			for _, input := range node.Inputs {
				if dtype := nodes[input].Shape.DType; !capabilities.Supports(node.Op, dtype) {
					return nil, mlerrors.Errorf(mlerrors.UnsupportedOperation, "operation %s is not supported for data type %s by the device",
						node.Op, dtype)
				}
			}
			step := backends.Step{Op: node.Op, Output: value.ID, Attrs: node.Attrs, Inputs: make([]int, len(node.Inputs))}
			for ii, input := range node.Inputs {
				step.Inputs[ii] = nodeToValue[input]
			}
			value.ProducedAt = len(program.Steps)
			program.Steps = append(program.Steps, step)
		}
		nodeToValue[nodeIdx] = value.ID
		program.Values = append(program.Values, value)
	}

	for outputIdx, output := range outputs {
		valueID := nodeToValue[output.Node]
		program.Outputs = append(program.Outputs, backends.Output{Name: output.Name, Value: valueID})
		value := program.Values[valueID]
		value.Outputs = append(value.Outputs, outputIdx)
	}
	computeLiveness(program)
	assignSlots(program)
	if klog.V(1).Enabled() {
		klog.Infof("planned graph %q: %d steps, %d inputs, %d outputs, %d scratch slots (%s), constants %s",
			name, len(program.Steps), len(program.Inputs), len(program.Outputs), len(program.SlotSizes),
			humanize.Bytes(uint64(program.ScratchMemory())), humanize.Bytes(uint64(program.ConstantsMemory())))
	}
	return program, nil
}

// reachable marks the nodes needed to compute the outputs.
func reachable(nodes []Node, outputs []NamedOutput) []bool {
	used := make([]bool, len(nodes))
	stack := make([]int, 0, len(outputs))
	for _, output := range outputs {
		stack = append(stack, output.Node)
	}
	for len(stack) > 0 {
		nodeIdx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if used[nodeIdx] {
			continue
		}
		used[nodeIdx] = true
		stack = append(stack, nodes[nodeIdx].Inputs...)
	}
	return used
}

// topologicalOrder of the used nodes: a node comes after all of its inputs, and among nodes ready at the
// same time, the one inserted first comes first.
func topologicalOrder(nodes []Node, used []bool) []int {
	pendingInputs := make([]int, len(nodes))
	dependents := make([][]int, len(nodes))
	ready := priorityqueue.New[int]()
	var numUsed int
	for nodeIdx, node := range nodes {
		if !used[nodeIdx] {
			continue
		}
		numUsed++
		for _, input := range node.Inputs {
			pendingInputs[nodeIdx]++
			dependents[input] = append(dependents[input], nodeIdx)
		}
		if pendingInputs[nodeIdx] == 0 {
			ready.Enqueue(nodeIdx)
		}
	}
	order := make([]int, 0, numUsed)
	for !ready.Empty() {
		nodeIdx, _ := ready.Dequeue()
		order = append(order, nodeIdx)
		for _, dependent := range dependents[nodeIdx] {
			pendingInputs[dependent]--
			if pendingInputs[dependent] == 0 {
				ready.Enqueue(dependent)
			}
		}
	}
	return order
}

// computeLiveness sets Value.LastUse: the last step reading each value. Outputs are live until the end.
func computeLiveness(program *backends.Program) {
	numSteps := len(program.Steps)
	for stepIdx, step := range program.Steps {
		for _, input := range step.Inputs {
			program.Values[input].LastUse = stepIdx
		}
	}
	for _, value := range program.Values {
		if value.IsOutput() {
			value.LastUse = numSteps
		}
	}
}

// assignSlots assigns a scratch slot to each computed value, reusing the slots of values no longer
// live. A step's output never shares a slot with the step's inputs.
func assignSlots(program *backends.Program) {
	var free []int
	for stepIdx, step := range program.Steps {
		output := program.Values[step.Output]
		need := int(output.Shape.Memory())

		// Best fit among the free slots: the smallest one that is large enough, or else the largest one, grown.
		best := -1
		for ii, slot := range free {
			size := program.SlotSizes[slot]
			if best == -1 {
				best = ii
				continue
			}
			bestSize := program.SlotSizes[free[best]]
			switch {
			case size >= need && (bestSize < need || size < bestSize):
				best = ii
			case bestSize < need && size > bestSize:
				best = ii
			}
		}
		if best == -1 {
			output.Slot = len(program.SlotSizes)
			program.SlotSizes = append(program.SlotSizes, need)
		} else {
			output.Slot = free[best]
			free = append(free[:best], free[best+1:]...)
			program.SlotSizes[output.Slot] = max(program.SlotSizes[output.Slot], need)
		}

		// Release inputs whose last use is this step.
		for ii, input := range step.Inputs {
			value := program.Values[input]
			if value.Kind != backends.ValueComputed || value.LastUse != stepIdx || slices.Contains(step.Inputs[:ii], input) {
				continue
			}
			free = append(free, value.Slot)
		}
	}
}

// String returns a one line description of the program.
func String(program *backends.Program) string {
	return fmt.Sprintf("%q: %d steps, %d slots (%s)", program.Name, len(program.Steps), len(program.SlotSizes),
		humanize.Bytes(uint64(program.ScratchMemory())))
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"io"
	"sync"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/webnn/backends"
	"github.com/gomlx/webnn/pkg/core/mlerrors"
	"github.com/gomlx/webnn/pkg/core/planner"
	"github.com/gomlx/webnn/pkg/core/shapes"
	"github.com/gomlx/webnn/pkg/core/tensors"
	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"k8s.io/klog/v2"
)

// Inputs maps input names to their values: flat Go slices of the input data type (e.g. []float32),
// or the raw row-major bytes ([]byte). They are only read by Compute.
type Inputs map[string]any

// Outputs maps output names to caller owned buffers, with the same types accepted by Inputs.
// Each buffer must have exactly the size of the output, and it is written in place by Compute.
type Outputs map[string]any

// Graph is a compiled, immutable, computation for the device of its Context.
//
// It is safe to call Compute concurrently, as long as each call uses its own buffers.
type Graph struct {
	ctx     *Context
	id      uuid.UUID
	program *backends.Program

	// inputs declared in the builder, in declaration order. Some may have been pruned from the program.
	inputs *orderedmap.OrderedMap[string, shapes.Shape]

	// programInputs maps the names of the inputs used by the program to their position.
	programInputs map[string]int

	// outputs maps the output names to their position in the program outputs, ordered by name.
	outputs *orderedmap.OrderedMap[string, int]

	mu   sync.RWMutex // Protects exec.
	exec backends.Executable
}

// ID uniquely identifies the graph in logs.
func (g *Graph) ID() uuid.UUID { return g.id }

// Context the graph was built with.
func (g *Graph) Context() *Context { return g.ctx }

// Program is the execution plan of the graph. It must not be modified.
func (g *Graph) Program() *backends.Program { return g.program }

// String implements fmt.Stringer.
func (g *Graph) String() string {
	return fmt.Sprintf("Graph(%s, %s)", g.id, planner.String(g.program))
}

// WriteSummary writes a table with the execution plan of the graph.
func (g *Graph) WriteSummary(w io.Writer) {
	planner.WriteSummary(w, g.program)
}

// InputNames returns the names of the inputs declared in the builder, in declaration order.
func (g *Graph) InputNames() []string {
	names := make([]string, 0, g.inputs.Len())
	for pair := g.inputs.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// RequiredInputs returns the names of the inputs that must be fed to Compute: inputs that
// don't contribute to any output are not required.
func (g *Graph) RequiredInputs() []string {
	names := make([]string, len(g.program.Inputs))
	for ii, valueID := range g.program.Inputs {
		names[ii] = g.program.Values[valueID].Name
	}
	return names
}

// InputShape returns the shape of the named input.
func (g *Graph) InputShape(name string) (shapes.Shape, bool) {
	shape, found := g.inputs.Get(name)
	return shape.Clone(), found
}

// OutputNames returns the names of the outputs, sorted.
func (g *Graph) OutputNames() []string {
	names := make([]string, 0, g.outputs.Len())
	for pair := g.outputs.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// OutputShape returns the shape of the named output.
func (g *Graph) OutputShape(name string) (shapes.Shape, bool) {
	idx, found := g.outputs.Get(name)
	if !found {
		return shapes.Invalid(), false
	}
	return g.program.Values[g.program.Outputs[idx].Value].Shape.Clone(), true
}

// Compute executes the graph and writes the requested outputs in place. It blocks until the results
// are available.
//
// Every input used by the outputs must be given. At least one output must be requested, and not all
// outputs need to be requested.
//
// Errors:
//
//   - mlerrors.MissingInput if a required input is not given, or no output is requested.
//   - mlerrors.UnknownOperand for input or output names not declared in the graph.
//   - mlerrors.TypeMismatch if a buffer is a slice of a type other than the operand data type.
//   - mlerrors.SizeMismatch if a buffer doesn't have the exact size of its operand.
//   - mlerrors.DeviceExecutionFailure if the device fails.
//   - mlerrors.DeviceUnavailable if the graph or its context was finalized.
func (g *Graph) Compute(inputs Inputs, outputs Outputs) error {
	if err := g.ctx.begin(); err != nil {
		return err
	}
	defer g.ctx.inFlight.Done()
	return g.compute(inputs, outputs)
}

// compute assumes the caller registered the call with the context.
func (g *Graph) compute(inputs Inputs, outputs Outputs) error {
	program := g.program
	for name := range inputs {
		if _, found := g.inputs.Get(name); !found {
			return mlerrors.Errorf(mlerrors.UnknownOperand, "graph %s has no input named %q, inputs are %q", g.id, name, g.InputNames())
		}
	}
	inputBuffers := make([][]byte, len(program.Inputs))
	for ii, valueID := range program.Inputs {
		value := program.Values[valueID]
		flat, found := inputs[value.Name]
		if !found || flat == nil {
			return mlerrors.Errorf(mlerrors.MissingInput, "graph %s requires input %q (%s)", g.id, value.Name, value.Shape)
		}
		data, err := bufferBytes("input", value.Name, value.Shape, flat)
		if err != nil {
			return err
		}
		inputBuffers[ii] = data
	}

	if len(outputs) == 0 {
		return mlerrors.Errorf(mlerrors.MissingInput, "graph %s: no output requested, outputs are %q", g.id, g.OutputNames())
	}
	outputBuffers := make([][]byte, len(program.Outputs))
	for name, flat := range outputs {
		idx, found := g.outputs.Get(name)
		if !found {
			return mlerrors.Errorf(mlerrors.UnknownOperand, "graph %s has no output named %q, outputs are %q", g.id, name, g.OutputNames())
		}
		shape := program.Values[program.Outputs[idx].Value].Shape
		data, err := bufferBytes("output", name, shape, flat)
		if err != nil {
			return err
		}
		outputBuffers[idx] = data
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.exec == nil {
		return mlerrors.Errorf(mlerrors.DeviceUnavailable, "graph %s has been finalized", g.id)
	}
	return g.exec.Execute(inputBuffers, outputBuffers)
}

// bufferBytes returns the raw bytes of a buffer, after checking its data type and size.
func bufferBytes(kind, name string, shape shapes.Shape, flat any) ([]byte, error) {
	data, dtype, err := tensors.BytesOf(flat)
	if err != nil {
		return nil, mlerrors.Wrapf(mlerrors.TypeMismatch, err, "%s %q (%s)", kind, name, shape)
	}
	if dtype != dtypes.InvalidDType && dtype != shape.DType {
		return nil, mlerrors.Errorf(mlerrors.TypeMismatch, "%s %q requires a buffer of %s, got %T", kind, name, shape.DType, flat)
	}
	if len(data) != int(shape.Memory()) {
		return nil, mlerrors.Errorf(mlerrors.SizeMismatch, "%s %q (%s) requires %d bytes (%d elements), got %d bytes",
			kind, name, shape, shape.Memory(), shape.Size(), len(data))
	}
	return data, nil
}

// Finalize releases the device resources of the graph immediately. Later calls to Compute fail
// with mlerrors.DeviceUnavailable. It waits for concurrent Compute calls to finish.
func (g *Graph) Finalize() {
	g.ctx.unregister(g)
	g.release()
}

func (g *Graph) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.exec == nil {
		return
	}
	g.exec.Finalize()
	g.exec = nil
	klog.V(2).Infof("graph %s released", g.id)
}

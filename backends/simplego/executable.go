// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/webnn/backends"
	"github.com/gomlx/webnn/pkg/core/mlerrors"
	"github.com/gomlx/webnn/pkg/core/planner"
	"github.com/gomlx/webnn/pkg/core/shapes"
	"github.com/gomlx/webnn/pkg/core/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// buffer is a view of the bytes of one value during an execution.
type buffer struct {
	shape shapes.Shape
	data  []byte
}

// nodeExecutor computes one step. It panics (with an error) on failure.
type nodeExecutor func(backend *Backend, step *backends.Step, inputs []*buffer, output *buffer)

// nodeExecutors is indexed by the OpType. It's filled in by the init() functions of the exec_*.go files.
var nodeExecutors [backends.OpTypeLast]nodeExecutor

// layoutOps move bytes around without interpreting them, so they don't need the float16 conversion.
var layoutOps = [backends.OpTypeLast]bool{
	backends.OpTypeReshape:   true,
	backends.OpTypeTranspose: true,
	backends.OpTypeConcat:    true,
}

// Executable implements backends.Executable for SimpleGo.
type Executable struct {
	backend *Backend
	program *backends.Program

	// constants holds an aligned copy of the data of each constant, indexed by the value ID.
	constants [][]byte

	// buffersPool holds *executionBuffers, so concurrent executions each get their own scratch memory.
	buffersPool sync.Pool

	finalized atomic.Bool
}

// executionBuffers are the per-execution scratch slots and the values' views.
type executionBuffers struct {
	slots  [][]byte
	values []buffer
}

// Compile-time check.
var _ backends.Executable = &Executable{}

// Compile implements backends.Backend.
func (b *Backend) Compile(program *backends.Program) (backends.Executable, error) {
	if b.finalized.Load() {
		return nil, mlerrors.Errorf(mlerrors.DeviceUnavailable, "backend %q has been finalized", BackendName)
	}
	for _, step := range program.Steps {
		if step.Op <= backends.OpTypeInvalid || step.Op >= backends.OpTypeLast || nodeExecutors[step.Op] == nil {
			return nil, mlerrors.Errorf(mlerrors.UnsupportedOperation, "backend %q has no kernel for %s", BackendName, step.Op)
		}
	}
	e := &Executable{
		backend:   b,
		program:   program,
		constants: make([][]byte, len(program.Values)),
	}
	for _, value := range program.Values {
		if value.Kind == backends.ValueConstant {
			e.constants[value.ID] = tensors.CopyBytes(value.Data)
		}
	}
	e.buffersPool.New = func() any {
		bufs := &executionBuffers{
			slots:  make([][]byte, len(program.SlotSizes)),
			values: make([]buffer, len(program.Values)),
		}
		for ii, size := range program.SlotSizes {
			bufs.slots[ii] = tensors.AlignedBytes(size)
		}
		return bufs
	}
	klog.V(1).Infof("compiled program %s", planner.String(program))
	return e, nil
}

// isAligned returns whether data can be viewed as a slice of dtype.
func isAligned(data []byte, dtype dtypes.DType) bool {
	if len(data) == 0 {
		return true
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(data)))%uintptr(dtype.Size()) == 0
}

// sameMemory returns whether a and b start at the same address.
func sameMemory(a, b []byte) bool {
	return len(a) > 0 && len(b) > 0 && unsafe.SliceData(a) == unsafe.SliceData(b)
}

// Execute implements backends.Executable.
func (e *Executable) Execute(inputs [][]byte, outputs [][]byte) error {
	if e.finalized.Load() {
		return mlerrors.Errorf(mlerrors.DeviceExecutionFailure, "executable for %q has been finalized", e.program.Name)
	}
	program := e.program
	if len(inputs) != len(program.Inputs) {
		return mlerrors.Errorf(mlerrors.MissingInput, "program %q takes %d inputs, %d given", program.Name, len(program.Inputs), len(inputs))
	}
	if len(outputs) != len(program.Outputs) {
		return mlerrors.Errorf(mlerrors.SizeMismatch, "program %q has %d outputs, %d buffers given", program.Name, len(program.Outputs), len(outputs))
	}

	bufs := e.buffersPool.Get().(*executionBuffers)
	defer func() {
		clear(bufs.values) // Don't hold on to the caller's memory.
		e.buffersPool.Put(bufs)
	}()
	values := bufs.values
	for _, value := range program.Values {
		values[value.ID].shape = value.Shape
		memory := int(value.Shape.Memory())
		switch value.Kind {
		case backends.ValueInput:
			data := inputs[value.InputIdx]
			if len(data) != memory {
				return mlerrors.Errorf(mlerrors.SizeMismatch, "input %q %s requires %d bytes, got %d",
					value.Name, value.Shape, memory, len(data))
			}
			if !isAligned(data, value.Shape.DType) {
				data = tensors.CopyBytes(data)
			}
			values[value.ID].data = data
		case backends.ValueConstant:
			values[value.ID].data = e.constants[value.ID]
		case backends.ValueComputed:
			data := bufs.slots[value.Slot][:memory]
			if value.IsOutput() {
				// Write directly into the caller's buffer, if it is suitable.
				if dst := outputs[value.Outputs[0]]; len(dst) == memory && isAligned(dst, value.Shape.DType) {
					data = dst
				}
			}
			values[value.ID].data = data
		}
	}
	for outputIdx, output := range program.Outputs {
		if dst := outputs[outputIdx]; dst != nil && len(dst) != int(program.Values[output.Value].Shape.Memory()) {
			return mlerrors.Errorf(mlerrors.SizeMismatch, "output %q %s requires %d bytes, got %d",
				output.Name, program.Values[output.Value].Shape, program.Values[output.Value].Shape.Memory(), len(dst))
		}
	}

	if err := e.run(values); err != nil {
		return err
	}

	for outputIdx, output := range program.Outputs {
		dst := outputs[outputIdx]
		if dst == nil {
			continue
		}
		src := values[output.Value].data
		if !sameMemory(dst, src) {
			copy(dst, src)
		}
	}
	return nil
}

// run the steps, converting panics of the kernels to errors.
func (e *Executable) run(values []buffer) (err error) {
	var inputs []*buffer
	exception := exceptions.Try(func() {
		for stepIdx := range e.program.Steps {
			step := &e.program.Steps[stepIdx]
			inputs = inputs[:0]
			for _, input := range step.Inputs {
				inputs = append(inputs, &values[input])
			}
			output := &values[step.Output]
			if output.shape.DType == dtypes.Float16 && !layoutOps[step.Op] {
				execAsFloat32(e.backend, step, inputs, output)
			} else {
				nodeExecutors[step.Op](e.backend, step, inputs, output)
			}
		}
	})
	if exception == nil {
		return nil
	}
	cause, ok := exception.(error)
	if !ok {
		cause = errors.New(fmt.Sprint(exception))
	}
	return mlerrors.Wrapf(mlerrors.DeviceExecutionFailure, cause, "executing %q", e.program.Name)
}

// Finalize makes the executable invalid. Its memory is released once it is no longer referenced.
func (e *Executable) Finalize() {
	e.finalized.Store(true)
}

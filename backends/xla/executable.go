// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xla

import (
	"runtime"
	"sync"

	"github.com/gomlx/gopjrt/pjrt"
	"github.com/gomlx/webnn/backends"
	"github.com/gomlx/webnn/pkg/core/mlerrors"
	"github.com/gomlx/webnn/pkg/core/tensors"
	"k8s.io/klog/v2"
)

// Executable implements backends.Executable with a PJRT loaded executable.
type Executable struct {
	backend *Backend
	program *backends.Program

	mu   sync.RWMutex // Protects exec against Finalize.
	exec *pjrt.LoadedExecutable
}

// Compile-time check.
var _ backends.Executable = &Executable{}

// Execute transfers the inputs to the device, runs the computation and transfers the requested outputs back.
func (e *Executable) Execute(inputs [][]byte, outputs [][]byte) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.exec == nil {
		return mlerrors.Errorf(mlerrors.DeviceExecutionFailure, "executable for %q has been finalized", e.program.Name)
	}
	program := e.program
	if len(inputs) != len(program.Inputs) {
		return mlerrors.Errorf(mlerrors.MissingInput, "program %q takes %d inputs, %d given", program.Name, len(program.Inputs), len(inputs))
	}
	if len(outputs) != len(program.Outputs) {
		return mlerrors.Errorf(mlerrors.SizeMismatch, "program %q has %d outputs, %d buffers given", program.Name, len(program.Outputs), len(outputs))
	}
	client := e.backend.pjrtClient()
	if client == nil {
		return mlerrors.Errorf(mlerrors.DeviceExecutionFailure, "backend %q has been finalized", BackendName)
	}

	deviceInputs := make([]*pjrt.Buffer, 0, len(inputs))
	defer func() {
		for _, buf := range deviceInputs {
			destroyBuffer(buf)
		}
	}()
	for ii, valueID := range program.Inputs {
		shape := program.Values[valueID].Shape
		if len(inputs[ii]) != int(shape.Memory()) {
			return mlerrors.Errorf(mlerrors.SizeMismatch, "input %q %s requires %d bytes, got %d",
				program.Values[valueID].Name, shape, shape.Memory(), len(inputs[ii]))
		}
		flat, err := tensors.ViewAs(shape.DType, tensors.CopyBytes(inputs[ii]))
		if err != nil {
			return mlerrors.Wrapf(mlerrors.DeviceExecutionFailure, err, "input %q", program.Values[valueID].Name)
		}
		buf, err := client.BufferFromHost().FromFlatDataWithDimensions(flat, shape.Dimensions).Done()
		if err != nil {
			return mlerrors.Wrapf(mlerrors.DeviceExecutionFailure, err, "transferring input %q to the device", program.Values[valueID].Name)
		}
		deviceInputs = append(deviceInputs, buf)
	}

	deviceOutputs, err := e.exec.Execute(deviceInputs...).DonateNone().Done()
	if err != nil {
		return mlerrors.Wrapf(mlerrors.DeviceExecutionFailure, err, "backend %q: executing %q", BackendName, program.Name)
	}
	defer func() {
		for _, buf := range deviceOutputs {
			destroyBuffer(buf)
		}
	}()
	if len(deviceOutputs) != len(outputs) {
		return mlerrors.Errorf(mlerrors.DeviceExecutionFailure, "backend %q: %q returned %d outputs, expected %d",
			BackendName, program.Name, len(deviceOutputs), len(outputs))
	}
	for ii, dst := range outputs {
		if dst == nil {
			continue
		}
		var pinner runtime.Pinner
		pinner.Pin(&dst[0])
		err = deviceOutputs[ii].ToHost(dst)
		pinner.Unpin()
		if err != nil {
			return mlerrors.Wrapf(mlerrors.DeviceExecutionFailure, err, "transferring output %q from the device", program.Outputs[ii].Name)
		}
	}
	return nil
}

func destroyBuffer(buf *pjrt.Buffer) {
	if err := buf.Destroy(); err != nil {
		klog.Warningf("backend %q: failed to destroy device buffer: %+v", BackendName, err)
	}
}

// Finalize immediately frees resources associated with the executable.
func (e *Executable) Finalize() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.exec == nil {
		return
	}
	if e.backend.pjrtClient() == nil {
		// Destroying the client released its executables.
		e.exec = nil
		return
	}
	if err := e.exec.Destroy(); err != nil {
		klog.Warningf("Error while destroying executable %q on backend %q: %+v", e.program.Name, BackendName, err)
	}
	e.exec = nil
}

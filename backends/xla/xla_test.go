// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xla

import (
	"flag"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/webnn/backends"
	"github.com/gomlx/webnn/pkg/core/mlerrors"
	"github.com/gomlx/webnn/pkg/core/planner"
	"github.com/gomlx/webnn/pkg/core/shapes"
	"github.com/gomlx/webnn/pkg/core/tensors"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var flagPlugin = flag.String("plugin", DefaultPlugin, "PJRT GPU plugin to use for testing the xla backend")

// newTestBackend returns the backend, or skips the test if no GPU plugin is available.
func newTestBackend(t *testing.T) *Backend {
	backend, err := NewWithOptions(*flagPlugin, nil)
	if mlerrors.Is(err, mlerrors.DeviceUnavailable) {
		t.Skipf("GPU not available: %v", err)
	}
	require.NoError(t, err)
	return backend
}

func TestCPUPluginRejected(t *testing.T) {
	_, err := New("cpu")
	require.True(t, mlerrors.Is(err, mlerrors.DeviceUnavailable), "got %v", err)
	_, err = New("no-such-plugin")
	require.True(t, mlerrors.Is(err, mlerrors.DeviceUnavailable), "got %v", err)
}

func TestCapabilities(t *testing.T) {
	assert.False(t, Capabilities.Operations[backends.OpTypeConv2d])
	assert.False(t, Capabilities.Operations[backends.OpTypeMaxPool2d])
	for op := backends.OpTypeInvalid + 1; op < backends.OpTypeLast; op++ {
		if !Capabilities.Operations[op] {
			continue
		}
		if op.IsBinary() {
			assert.Contains(t, binaryOps, op)
		}
	}
	assert.Contains(t, backends.Registered(), BackendName)
}

func TestExecute(t *testing.T) {
	backend := newTestBackend(t)
	defer backend.Finalize()
	assert.Equal(t, backends.DeviceGPU, backend.DeviceType())

	f32 := func(dims ...int) shapes.Shape { return shapes.Make(dtypes.Float32, dims...) }
	bias := []float32{10, 20, 30}
	nodes := []planner.Node{
		{Kind: backends.ValueInput, Name: "x", Shape: f32(2, 3)},
		{Kind: backends.ValueConstant, Shape: f32(3), Data: must.M1(bytesOf(bias))},
		{Kind: backends.ValueComputed, Op: backends.OpTypeAdd, Inputs: []int{0, 1}, Shape: f32(2, 3)},
		{Kind: backends.ValueComputed, Op: backends.OpTypeReduceSum, Inputs: []int{2}, Shape: f32(2, 1),
			Attrs: &backends.ReduceAttrs{Axes: []int{1}, KeepDimensions: true}},
		{Kind: backends.ValueComputed, Op: backends.OpTypeRelu, Inputs: []int{0}, Shape: f32(2, 3)},
	}
	program := must.M1(planner.Plan("gpu", nodes, []planner.NamedOutput{{"sum", 3}, {"relu", 4}}, Capabilities))
	exec, err := backend.Compile(program)
	require.NoError(t, err)
	defer exec.Finalize()

	input := must.M1(bytesOf([]float32{1, -2, 3, -4, 5, -6}))
	sum, relu := make([]float32, 2), make([]float32, 6)
	require.NoError(t, exec.Execute([][]byte{input}, [][]byte{must.M1(bytesOf(sum)), must.M1(bytesOf(relu))}))
	assert.Equal(t, []float32{62, 55}, sum)
	assert.Equal(t, []float32{1, 0, 3, 0, 5, 0}, relu)

	// Only one output requested.
	clear(sum)
	require.NoError(t, exec.Execute([][]byte{input}, [][]byte{must.M1(bytesOf(sum)), nil}))
	assert.Equal(t, []float32{62, 55}, sum)
}

func TestFinalizedBackend(t *testing.T) {
	backend := newTestBackend(t)
	f32 := shapes.Make(dtypes.Float32, 3)
	nodes := []planner.Node{
		{Kind: backends.ValueInput, Name: "x", Shape: f32},
		{Kind: backends.ValueComputed, Op: backends.OpTypeNeg, Inputs: []int{0}, Shape: f32},
	}
	program := must.M1(planner.Plan("finalized", nodes, []planner.NamedOutput{{"y", 1}}, Capabilities))
	exec, err := backend.Compile(program)
	require.NoError(t, err)

	backend.Finalize()
	backend.Finalize()
	require.Error(t, backend.CheckValid())
	input, output := must.M1(bytesOf([]float32{1, 2, 3})), make([]float32, 3)
	err = exec.Execute([][]byte{input}, [][]byte{must.M1(bytesOf(output))})
	require.True(t, mlerrors.Is(err, mlerrors.DeviceExecutionFailure), "got %v", err)
	_, err = backend.Compile(program)
	require.True(t, mlerrors.Is(err, mlerrors.DeviceUnavailable), "got %v", err)
	exec.Finalize()
	exec.Finalize()
}

func bytesOf(flat any) ([]byte, error) {
	data, _, err := tensors.BytesOf(flat)
	return data, err
}

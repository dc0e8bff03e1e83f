// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"testing"

	"github.com/gomlx/webnn/pkg/core/mlerrors"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	name      string
	device    DeviceType
	config    string
	finalized bool
}

func (b *fakeBackend) Name() string               { return b.name }
func (b *fakeBackend) Description() string        { return "fake " + b.name }
func (b *fakeBackend) DeviceType() DeviceType     { return b.device }
func (b *fakeBackend) Capabilities() Capabilities { return Capabilities{} }
func (b *fakeBackend) Compile(*Program) (Executable, error) {
	return nil, errors.New("not implemented")
}
func (b *fakeBackend) Finalize() { b.finalized = true }

func registerFake(t *testing.T, name string, device DeviceType, priority int, fail bool) {
	Register(name, device, priority, func(config string) (Backend, error) {
		if fail {
			return nil, errors.Errorf("%s failed to initialize", name)
		}
		return &fakeBackend{name: name, device: device, config: config}, nil
	})
	t.Cleanup(func() { unregister(name) })
}

func withCleanRegistry(t *testing.T) {
	registryMu.Lock()
	saved := registrations
	registrations = make(map[string]registration)
	registryMu.Unlock()
	resetDefaultDevices()
	t.Cleanup(func() {
		registryMu.Lock()
		registrations = saved
		registryMu.Unlock()
		resetDefaultDevices()
	})
}

func TestResolveExplicitDevice(t *testing.T) {
	withCleanRegistry(t)
	t.Setenv(WEBNN_BACKEND, "")
	registerFake(t, "fakecpu", DeviceCPU, 0, false)

	backend, err := Resolve(Options{Device: PreferCPU})
	require.NoError(t, err)
	assert.Equal(t, "fakecpu", backend.Name())

	// No GPU: explicit GPU must fail, and not fall back to the CPU.
	_, err = Resolve(Options{Device: PreferGPU})
	require.Error(t, err)
	assert.True(t, mlerrors.Is(err, mlerrors.DeviceUnavailable), "got %v", err)
	assert.Equal(t, mlerrors.CompilationError, mlerrors.ClassOf(err))

	// A GPU backend that fails to initialize is also unavailable.
	registerFake(t, "brokengpu", DeviceGPU, 0, true)
	_, err = Resolve(Options{Device: PreferGPU})
	require.Error(t, err)
	assert.True(t, mlerrors.Is(err, mlerrors.DeviceUnavailable))
	assert.Contains(t, err.Error(), "brokengpu failed to initialize")
}

func TestResolvePriority(t *testing.T) {
	withCleanRegistry(t)
	registerFake(t, "slowcpu", DeviceCPU, 0, false)
	registerFake(t, "fastcpu", DeviceCPU, 10, false)
	registerFake(t, "brokencpu", DeviceCPU, 20, true)

	backend, err := NewForDevice(DeviceCPU)
	require.NoError(t, err)
	assert.Equal(t, "fastcpu", backend.Name())
}

func TestResolveDefault(t *testing.T) {
	withCleanRegistry(t)
	t.Setenv(WEBNN_BACKEND, "")
	registerFake(t, "fakecpu", DeviceCPU, 0, false)

	// Only CPU available: default picks CPU.
	backend, err := Resolve(Options{})
	require.NoError(t, err)
	assert.Equal(t, DeviceCPU, backend.DeviceType())

	// Registering a GPU later doesn't change the default device already selected.
	registerFake(t, "fakegpu", DeviceGPU, 0, false)
	for range 3 {
		backend, err = Resolve(Options{})
		require.NoError(t, err)
		assert.Equal(t, DeviceCPU, backend.DeviceType())
	}

	// A fresh process (reset cache) prefers the GPU.
	resetDefaultDevices()
	backend, err = Resolve(Options{})
	require.NoError(t, err)
	assert.Equal(t, DeviceGPU, backend.DeviceType())

	// Low power prefers the CPU.
	backend, err = Resolve(Options{Power: PowerLowPower})
	require.NoError(t, err)
	assert.Equal(t, DeviceCPU, backend.DeviceType())
}

func TestResolveNoBackends(t *testing.T) {
	withCleanRegistry(t)
	t.Setenv(WEBNN_BACKEND, "")
	_, err := Resolve(Options{})
	require.Error(t, err)
	assert.True(t, mlerrors.Is(err, mlerrors.DeviceUnavailable))
}

func TestResolveConfig(t *testing.T) {
	withCleanRegistry(t)
	registerFake(t, "fakecpu", DeviceCPU, 0, false)
	registerFake(t, "fakegpu", DeviceGPU, 0, false)

	t.Setenv(WEBNN_BACKEND, "fakecpu:threads=2")
	backend, err := Resolve(Options{})
	require.NoError(t, err)
	assert.Equal(t, "fakecpu", backend.Name())
	assert.Equal(t, "threads=2", backend.(*fakeBackend).config)

	// Environment doesn't affect explicit preferences.
	backend, err = Resolve(Options{Device: PreferGPU})
	require.NoError(t, err)
	assert.Equal(t, "fakegpu", backend.Name())

	// Explicit config must match an explicit device.
	_, err = Resolve(Options{Device: PreferGPU, Config: "fakecpu"})
	require.Error(t, err)
	assert.True(t, mlerrors.Is(err, mlerrors.DeviceUnavailable))

	_, err = NewWithConfig("unknown:x")
	require.Error(t, err)
	assert.True(t, mlerrors.Is(err, mlerrors.DeviceUnavailable))
}

func TestOpType(t *testing.T) {
	assert.Equal(t, "Add", OpTypeAdd.String())
	assert.Equal(t, "AveragePool2d", OpTypeAveragePool2d.String())
	op, err := OpTypeString("matmul")
	require.NoError(t, err)
	assert.Equal(t, OpTypeMatMul, op)
	assert.True(t, OpTypePow.IsBinary())
	assert.False(t, OpTypeAbs.IsBinary())
	assert.True(t, OpTypeClamp.IsUnary())
	assert.True(t, OpTypeReduceMean.IsReduce())
	assert.False(t, OpTypeSoftmax.IsReduce())
}

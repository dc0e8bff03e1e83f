// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backends defines the interface a device backend implements to execute planned graphs,
// and the registry used to select one backend for a device preference.
//
// Backends register themselves during initialization (see Register). Import
// github.com/gomlx/webnn/backends/default to include the default ones.
//
// Backends report errors with the kinds defined in github.com/gomlx/webnn/pkg/core/mlerrors.
package backends

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/gomlx/webnn/pkg/core/mlerrors"
	"k8s.io/klog/v2"
)

// DeviceType is the kind of device that executes the computations of a backend.
type DeviceType int

const (
	DeviceCPU DeviceType = iota
	DeviceGPU
)

// String implements fmt.Stringer.
func (d DeviceType) String() string {
	switch d {
	case DeviceCPU:
		return "cpu"
	case DeviceGPU:
		return "gpu"
	}
	return fmt.Sprintf("DeviceType(%d)", int(d))
}

// DevicePreference is requested by the user when creating a context.
type DevicePreference int

const (
	// PreferDefault lets the library choose, in a deterministic way. See Resolve.
	PreferDefault DevicePreference = iota

	// PreferCPU requires a CPU backend: it fails if none is available.
	PreferCPU

	// PreferGPU requires a GPU backend: it fails if none is available.
	PreferGPU
)

// String implements fmt.Stringer.
func (p DevicePreference) String() string {
	switch p {
	case PreferDefault:
		return "default"
	case PreferCPU:
		return "cpu"
	case PreferGPU:
		return "gpu"
	}
	return fmt.Sprintf("DevicePreference(%d)", int(p))
}

// PowerPreference is a hint used when resolving PreferDefault.
type PowerPreference int

const (
	PowerDefault PowerPreference = iota
	PowerHighPerformance
	PowerLowPower
)

// String implements fmt.Stringer.
func (p PowerPreference) String() string {
	switch p {
	case PowerDefault:
		return "default"
	case PowerHighPerformance:
		return "high-performance"
	case PowerLowPower:
		return "low-power"
	}
	return fmt.Sprintf("PowerPreference(%d)", int(p))
}

// Backend is the API that needs to be implemented by a device backend.
type Backend interface {
	// Name returns the short name of the backend. E.g.: "xla" for the Xla/PJRT plugin.
	Name() string

	// Description is a longer description of the Backend that can be used to pretty-print.
	Description() string

	// DeviceType where the computations are executed.
	DeviceType() DeviceType

	// Capabilities lists the operations and data types the backend has kernels for.
	Capabilities() Capabilities

	// Compile the program into an Executable for the device.
	// The program only contains operations and dtypes listed in Capabilities.
	Compile(program *Program) (Executable, error)

	// Finalize releases all the associated resources immediately, and makes the backend invalid.
	Finalize()
}

// Executable is a Program compiled for one backend. It is safe for concurrent use.
type Executable interface {
	// Execute runs the program. inputs holds the raw bytes of each of Program.Inputs, and outputs
	// the caller owned memory for each of Program.Outputs: an output can be nil if it is not requested.
	//
	// Sizes are already validated by the caller. Execute blocks until the results are written to outputs.
	Execute(inputs [][]byte, outputs [][]byte) error

	// Finalize releases the resources of the executable.
	Finalize()
}

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) (Backend, error)

type registration struct {
	name        string
	device      DeviceType
	priority    int
	constructor Constructor
}

var (
	registryMu    sync.Mutex
	registrations = make(map[string]registration)

	// defaultDevices caches the device type selected for PreferDefault, per PowerPreference,
	// so that it is the same for the lifetime of the process.
	defaultDevices = make(map[PowerPreference]DeviceType)
)

// Register backend with the given name, the device type it runs on and a constructor that takes as input
// a configuration string. When more than one backend is registered for the same device, the one with the
// highest priority is tried first.
//
// To be safe, call Register during initialization of a package.
func Register(name string, device DeviceType, priority int, constructor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registrations[name] = registration{name: name, device: device, priority: priority, constructor: constructor}
}

// Registered returns the names of the registered backends, sorted.
func Registered() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registrations))
	for name := range registrations {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultConfig is the backend configuration to use for PreferDefault, if set.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// WEBNN_BACKEND is the environment variable with the backend configuration to use for PreferDefault.
// It takes precedence over DefaultConfig.
//
// The format of config is "<backend_name>:<backend_configuration>".
const WEBNN_BACKEND = "WEBNN_BACKEND"

// Options used to resolve a backend.
type Options struct {
	Device DevicePreference
	Power  PowerPreference

	// Config, if set, selects a backend by name. See NewWithConfig for the format.
	// The device type of the backend must still match an explicit Device preference.
	Config string
}

// Resolve returns a new Backend for the given options.
//
// For PreferCPU and PreferGPU only backends of that device type are considered, and if none can
// be created it fails with mlerrors.DeviceUnavailable, it never substitutes another device.
//
// For PreferDefault:
//
//  1. The environment variable WEBNN_BACKEND is used as a configuration if defined.
//  2. Next the variable DefaultConfig is used as a configuration if defined.
//  3. Otherwise device types are tried in order GPU then CPU (CPU then GPU for PowerLowPower).
//     The first device type that works is cached, and later resolutions use the same device type.
func Resolve(options Options) (Backend, error) {
	if options.Config != "" {
		backend, err := NewWithConfig(options.Config)
		if err != nil {
			return nil, err
		}
		if options.Device != PreferDefault && backend.DeviceType() != deviceForPreference(options.Device) {
			backend.Finalize()
			return nil, mlerrors.Errorf(mlerrors.DeviceUnavailable,
				"backend configuration %q runs on %s, but device %s was requested",
				options.Config, backend.DeviceType(), options.Device)
		}
		return backend, nil
	}

	switch options.Device {
	case PreferCPU, PreferGPU:
		return NewForDevice(deviceForPreference(options.Device))
	case PreferDefault:
		// Follows below.
	default:
		return nil, mlerrors.Errorf(mlerrors.DeviceUnavailable, "unknown device preference %s", options.Device)
	}

	if config, found := os.LookupEnv(WEBNN_BACKEND); found && config != "" {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}

	registryMu.Lock()
	cached, found := defaultDevices[options.Power]
	registryMu.Unlock()
	if found {
		return NewForDevice(cached)
	}

	order := []DeviceType{DeviceGPU, DeviceCPU}
	if options.Power == PowerLowPower {
		order = []DeviceType{DeviceCPU, DeviceGPU}
	}
	var errs []string
	for _, device := range order {
		backend, err := NewForDevice(device)
		if err != nil {
			klog.V(1).Infof("default device: %s not available: %v", device, err)
			errs = append(errs, err.Error())
			continue
		}
		registryMu.Lock()
		if previous, raced := defaultDevices[options.Power]; raced && previous != device {
			// A concurrent resolution picked another device first: follow it.
			registryMu.Unlock()
			backend.Finalize()
			return NewForDevice(previous)
		}
		defaultDevices[options.Power] = device
		registryMu.Unlock()
		klog.V(1).Infof("default device resolved to %s (backend %q)", device, backend.Name())
		return backend, nil
	}
	return nil, mlerrors.Errorf(mlerrors.DeviceUnavailable, "no device available: %s", strings.Join(errs, "; "))
}

func deviceForPreference(p DevicePreference) DeviceType {
	if p == PreferGPU {
		return DeviceGPU
	}
	return DeviceCPU
}

// NewForDevice returns a backend for the given device type, trying the registered backends of
// that device in priority order.
func NewForDevice(device DeviceType) (Backend, error) {
	registryMu.Lock()
	var candidates []registration
	for _, r := range registrations {
		if r.device == device {
			candidates = append(candidates, r)
		}
	}
	registryMu.Unlock()
	if len(candidates) == 0 {
		return nil, mlerrors.Errorf(mlerrors.DeviceUnavailable, "no backend registered for device %s", device)
	}
	slices.SortFunc(candidates, func(a, b registration) int {
		if a.priority != b.priority {
			return b.priority - a.priority
		}
		return strings.Compare(a.name, b.name)
	})
	var errs []string
	for _, candidate := range candidates {
		backend, err := candidate.constructor("")
		if err == nil {
			return backend, nil
		}
		errs = append(errs, fmt.Sprintf("%s: %v", candidate.name, err))
	}
	return nil, mlerrors.Errorf(mlerrors.DeviceUnavailable, "no backend for device %s could be created: %s",
		device, strings.Join(errs, "; "))
}

// NewWithConfig takes a configurations string formated as
// "<backend_name>:<backend_configuration>". The "<backend_name>" is the name of a registered backend
// (e.g.: "xla") and "<backend_configuration>" is backend specific (e.g.: for xla backend, it is the
// pjrt plugin name).
func NewWithConfig(config string) (Backend, error) {
	backendName := config
	var backendConfig string
	if idx := strings.Index(config, ":"); idx != -1 {
		backendName = config[:idx]
		backendConfig = config[idx+1:]
	}
	registryMu.Lock()
	r, found := registrations[backendName]
	registryMu.Unlock()
	if !found {
		return nil, mlerrors.Errorf(mlerrors.DeviceUnavailable, "can't find backend %q for configuration %q, registered backends: %q",
			backendName, config, Registered())
	}
	backend, err := r.constructor(backendConfig)
	if err != nil {
		return nil, mlerrors.Wrapf(mlerrors.DeviceUnavailable, err, "failed to create backend %q", backendName)
	}
	return backend, nil
}

// resetDefaultDevices is used by tests.
func resetDefaultDevices() {
	registryMu.Lock()
	defer registryMu.Unlock()
	defaultDevices = make(map[PowerPreference]DeviceType)
}

// unregister is used by tests.
func unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registrations, name)
}

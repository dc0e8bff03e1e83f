// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package simplego implements a portable CPU backend in pure Go.
//
// It supports all operations and data types, and splits large kernels across a pool of workers.
// Float16 values are computed in float32 and rounded back.
//
// The backend config is a comma separated list of options:
//
//   - "parallelism=N": maximum number of workers used by one execution. 0 disables parallelism,
//     and -1 makes it unlimited. It defaults to the environment variable WEBNN_NUM_THREADS, or else
//     to the number of CPUs.
package simplego

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/gomlx/webnn/backends"
	"github.com/gomlx/webnn/internal/workerspool"
	"github.com/gomlx/webnn/pkg/core/mlerrors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// BackendName to be used in WEBNN_BACKEND to specify this backend.
const BackendName = "go"

// NumThreadsEnv is the environment variable with the default parallelism.
const NumThreadsEnv = "WEBNN_NUM_THREADS"

// priority of the backend among the ones registered for DeviceCPU.
const priority = 0

func init() {
	backends.Register(BackendName, backends.DeviceCPU, priority, New)
}

// New constructs a new Backend for the given config. See the package documentation for the options.
func New(config string) (backends.Backend, error) {
	return newBackend(config)
}

func newBackend(config string) (*Backend, error) {
	parallelism, err := defaultParallelism()
	if err != nil {
		return nil, err
	}
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		switch key {
		case "parallelism":
			parallelism, err = strconv.Atoi(value)
			if err != nil {
				return nil, mlerrors.Wrapf(mlerrors.DeviceUnavailable, err, "backend %q: invalid parallelism %q", BackendName, value)
			}
		default:
			return nil, mlerrors.Errorf(mlerrors.DeviceUnavailable, "backend %q: unknown config option %q", BackendName, part)
		}
	}
	klog.V(1).Infof("backend %q created with parallelism %d", BackendName, parallelism)
	return &Backend{workers: workerspool.New(parallelism)}, nil
}

func defaultParallelism() (int, error) {
	value := os.Getenv(NumThreadsEnv)
	if value == "" {
		return runtime.NumCPU(), nil
	}
	parallelism, err := strconv.Atoi(value)
	if err != nil {
		return 0, mlerrors.Wrapf(mlerrors.DeviceUnavailable, errors.WithStack(err), "invalid value for $%s=%q", NumThreadsEnv, value)
	}
	return parallelism, nil
}

// Backend implements backends.Backend for the CPU.
type Backend struct {
	workers   *workerspool.Pool
	finalized atomic.Bool
}

// Compile-time check that simplego.Backend implements backends.Backend.
var _ backends.Backend = &Backend{}

// Name returns the short name of the backend.
func (b *Backend) Name() string { return BackendName }

// String implements fmt.Stringer.
func (b *Backend) String() string { return BackendName }

// Description is a longer description of the Backend that can be used to pretty-print.
func (b *Backend) Description() string {
	return "Portable Go CPU backend (parallelism=" + strconv.Itoa(b.workers.MaxParallelism()) + ")"
}

// DeviceType implements backends.Backend.
func (b *Backend) DeviceType() backends.DeviceType { return backends.DeviceCPU }

// Capabilities returns the operations and data types supported by this backend.
func (b *Backend) Capabilities() backends.Capabilities {
	return Capabilities
}

// Finalize makes the backend invalid. Executables already compiled remain usable.
func (b *Backend) Finalize() {
	b.finalized.Store(true)
}

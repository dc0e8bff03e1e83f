// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xla

import (
	"fmt"
	"sync"

	"github.com/gomlx/gopjrt/pjrt"
	"github.com/gomlx/webnn/backends"
	"github.com/gomlx/webnn/pkg/core/mlerrors"
	"k8s.io/klog/v2"
)

// Backend implements backends.Backend with a PJRT GPU client.
type Backend struct {
	mu         sync.Mutex
	plugin     *pjrt.Plugin
	client     *pjrt.Client
	pluginName string
}

// Compile-time check.
var _ backends.Backend = &Backend{}

// CheckValid returns an error if the backend has been finalized.
func (b *Backend) CheckValid() error {
	if b == nil || b.pjrtClient() == nil {
		return mlerrors.Errorf(mlerrors.DeviceUnavailable, "backend %q is nil or has been finalized", BackendName)
	}
	return nil
}

// pjrtClient returns the PJRT client, or nil if the backend has been finalized.
func (b *Backend) pjrtClient() *pjrt.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.client
}

// Name returns the short name of the backend.
func (b *Backend) Name() string {
	return BackendName
}

// Description is a longer description of the Backend that can be used to pretty-print.
func (b *Backend) Description() string {
	if b == nil {
		return BackendName + " (finalized)"
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return BackendName + " (finalized)"
	}
	return fmt.Sprintf("%s:%s - %s", BackendName, b.pluginName, b.plugin)
}

// DeviceType implements backends.Backend.
func (b *Backend) DeviceType() backends.DeviceType { return backends.DeviceGPU }

// Capabilities implements backends.Backend.
func (b *Backend) Capabilities() backends.Capabilities {
	return Capabilities
}

// Finalize releases the PJRT client immediately, and makes the backend invalid.
func (b *Backend) Finalize() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.plugin == nil {
		return
	}
	if b.client != nil {
		if err := b.client.Destroy(); err != nil {
			klog.Warningf("Failure while destroying PJRT client: %+v", err)
		}
		b.client = nil
	}
	b.plugin = nil
}

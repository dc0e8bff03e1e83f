// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xla implements the GPU backend on top of XLA/PJRT (https://openxla.org/).
//
// Simply import it with import _ "github.com/gomlx/webnn/backends/xla" to make it available in your program.
// It registers itself for backends.DeviceGPU during initialization.
//
// The config is the name of the PJRT plugin to use, by default "cuda". Plugins are searched in the
// PJRT_PLUGIN_LIBRARY_PATH directories and in the standard library directories of the system.
// If no GPU plugin can be loaded the constructor fails with mlerrors.DeviceUnavailable: this backend
// never falls back to a CPU plugin.
package xla

import (
	"slices"
	"sync"

	"github.com/gomlx/gopjrt/pjrt"
	"github.com/gomlx/webnn/backends"
	"github.com/gomlx/webnn/pkg/core/mlerrors"
	"github.com/gomlx/webnn/pkg/support/xslices"
	"k8s.io/klog/v2"
)

// BackendName to be used in WEBNN_BACKEND to specify this backend.
const BackendName = "xla"

// DefaultPlugin is used when the config doesn't name a plugin.
const DefaultPlugin = "cuda"

// cpuPlugins are rejected: this backend only serves GPUs.
var cpuPlugins = []string{"cpu"}

func init() {
	backends.Register(BackendName, backends.DeviceGPU, 0, New)
}

// New returns a new Backend using the PJRT plugin named by config (or DefaultPlugin if empty).
func New(config string) (backends.Backend, error) {
	return NewWithOptions(config, nil)
}

// NewWithOptions creates a Backend with the given PJRT client options.
func NewWithOptions(pluginName string, options pjrt.NamedValuesMap) (*Backend, error) {
	if pluginName == "" {
		pluginName = DefaultPlugin
	}
	if slices.Contains(cpuPlugins, pluginName) {
		return nil, mlerrors.Errorf(mlerrors.DeviceUnavailable, "backend %q: plugin %q is not a GPU plugin", BackendName, pluginName)
	}
	plugins := AvailablePlugins()
	if !slices.Contains(plugins, pluginName) {
		return nil, mlerrors.Errorf(mlerrors.DeviceUnavailable,
			"backend %q: PJRT plugin %q not found (available plugins: %q): set PJRT_PLUGIN_LIBRARY_PATH to the "+
				"directory with the plugin", BackendName, pluginName, plugins)
	}
	plugin, err := pjrt.GetPlugin(pluginName)
	if err != nil {
		return nil, mlerrors.Wrapf(mlerrors.DeviceUnavailable, err, "backend %q: loading plugin %q", BackendName, pluginName)
	}
	client, err := plugin.NewClient(options)
	if err != nil {
		return nil, mlerrors.Wrapf(mlerrors.DeviceUnavailable, err, "backend %q: creating client for plugin %q", BackendName, pluginName)
	}
	klog.V(1).Infof("backend %q created with plugin %s", BackendName, plugin)
	return &Backend{
		plugin:     plugin,
		client:     client,
		pluginName: pluginName,
	}, nil
}

var (
	availablePluginsOnce sync.Once
	availablePluginsList []string
)

// AvailablePlugins lists the names of the PJRT plugins found, sorted. The result is cached.
func AvailablePlugins() []string {
	availablePluginsOnce.Do(func() {
		availablePluginsList = xslices.SortedKeys(pjrt.AvailablePlugins())
	})
	return availablePluginsList
}

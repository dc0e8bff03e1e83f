// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graph is the user facing API to build and run computation graphs on a device.
//
// The main elements in the package are:
//
//   - Context: created with NewContext, it holds the backend resolved for the requested device
//     preference, and the uncaptured-error callback.
//   - Builder: created with NewBuilder for a Context, it accumulates Operand's: inputs, constants and
//     the results of operations (Add, MatMul, Conv2d, etc.). Shapes and data types are validated
//     as each operation is added, so errors point to the offending line.
//   - Graph: created by Builder.Build for a set of named outputs. It is immutable, and can be
//     computed concurrently from multiple goroutines with Graph.Compute.
//
// Example:
//
//	ctx, err := graph.NewContext(graph.ContextOptions{DevicePreference: backends.PreferCPU})
//	builder := graph.NewBuilder(ctx)
//	a, err := builder.Input("a", dtypes.Float32, 3, 4, 5)
//	b, err := builder.ConstantFromFlat(bData, 3, 4, 5)
//	c, err := builder.Add(a, b)
//	g, err := builder.Build(map[string]*graph.Operand{"c": c})
//	result := make([]float32, 3*4*5)
//	err = g.Compute(graph.Inputs{"a": aData}, graph.Outputs{"c": result})
//
// Errors are returned with the kinds defined in github.com/gomlx/webnn/pkg/core/mlerrors.
//
// You have to import the backend(s) you are going to support. You can import the default ones with:
//
//	import _ "github.com/gomlx/webnn/backends/default"
package graph

import (
	"fmt"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/webnn/backends"
	"github.com/gomlx/webnn/pkg/core/mlerrors"
	"github.com/gomlx/webnn/pkg/support/xsync"
	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// ContextOptions used to create a Context.
type ContextOptions struct {
	// DevicePreference selects the device. An explicit CPU or GPU preference fails with
	// mlerrors.DeviceUnavailable if there is no such device: it is never substituted.
	DevicePreference backends.DevicePreference

	// PowerPreference is a hint used to order the devices tried for backends.PreferDefault.
	PowerPreference backends.PowerPreference

	// Backend, if set, selects a backend by its configuration, formatted as "<backend_name>[:<config>]".
	// See backends.NewWithConfig.
	Backend string
}

// ErrorCallback receives errors that could not be returned to a caller: for instance, the failure
// of a computation started with Context.Dispatch.
type ErrorCallback func(kind mlerrors.Kind, message string, userData any)

// Context holds the backend resolved for a device preference, and tracks the graphs built with it.
//
// It is safe for concurrent use. Call Finalize to release the device resources.
type Context struct {
	id      uuid.UUID
	options ContextOptions
	backend backends.Backend

	mu        sync.RWMutex
	finalized bool
	graphs    map[*Graph]struct{}

	// inFlight counts Compute and Dispatch calls, waited for by Finalize.
	inFlight   *xsync.DynamicWaitGroup
	dispatched *xsync.DynamicWaitGroup
	released   *xsync.Latch

	callbackMu sync.Mutex
	callback   ErrorCallback
	userData   any
}

// NewContext resolves the device preference in options to a backend, and returns a Context using it.
//
// It fails with mlerrors.DeviceUnavailable if no backend can be created for the preference.
func NewContext(options ContextOptions) (*Context, error) {
	backend, err := backends.Resolve(backends.Options{
		Device: options.DevicePreference,
		Power:  options.PowerPreference,
		Config: options.Backend,
	})
	if err != nil {
		return nil, err
	}
	ctx := &Context{
		id:         uuid.New(),
		options:    options,
		backend:    backend,
		graphs:     make(map[*Graph]struct{}),
		inFlight:   xsync.NewDynamicWaitGroup(),
		dispatched: xsync.NewDynamicWaitGroup(),
		released:   xsync.NewLatch(),
	}
	klog.V(1).Infof("context %s: device preference %s (power %s) resolved to %s",
		ctx.id, options.DevicePreference, options.PowerPreference, backend.Description())
	return ctx, nil
}

// ID uniquely identifies the context in logs.
func (ctx *Context) ID() uuid.UUID { return ctx.id }

// Options the context was created with.
func (ctx *Context) Options() ContextOptions { return ctx.options }

// Backend used by the context.
func (ctx *Context) Backend() backends.Backend { return ctx.backend }

// DeviceType where the graphs of this context are executed.
func (ctx *Context) DeviceType() backends.DeviceType { return ctx.backend.DeviceType() }

// String implements fmt.Stringer.
func (ctx *Context) String() string {
	return fmt.Sprintf("Context(%s, %s)", ctx.id, ctx.backend.Name())
}

// SetUncapturedErrorCallback registers the callback that receives errors not returned to any caller,
// replacing the previous one. A nil callback clears it, and uncaptured errors are then logged.
//
// The callback is called synchronously from the goroutine that observed the error, and it
// shouldn't block. A panic in the callback is recovered and logged.
func (ctx *Context) SetUncapturedErrorCallback(callback ErrorCallback, userData any) {
	ctx.callbackMu.Lock()
	defer ctx.callbackMu.Unlock()
	ctx.callback = callback
	ctx.userData = userData
}

// reportUncaptured sends err to the registered callback, or logs it.
func (ctx *Context) reportUncaptured(err error) {
	ctx.callbackMu.Lock()
	callback, userData := ctx.callback, ctx.userData
	ctx.callbackMu.Unlock()
	if callback == nil {
		klog.Errorf("context %s: uncaptured error: %+v", ctx.id, err)
		return
	}
	kind := mlerrors.KindOf(err)
	if exception := exceptions.Try(func() { callback(kind, err.Error(), userData) }); exception != nil {
		klog.Errorf("context %s: uncaptured-error callback panicked: %v (while reporting %v)", ctx.id, exception, err)
	}
}

// begin registers a call that uses the device, and fails if the context is finalized.
// Each successful begin must be matched with a call to ctx.inFlight.Done().
func (ctx *Context) begin() error {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	if ctx.finalized {
		return mlerrors.Errorf(mlerrors.DeviceUnavailable, "context %s has been finalized", ctx.id)
	}
	ctx.inFlight.Add(1)
	return nil
}

// Dispatch starts the computation of graph in the background and returns immediately.
//
// The caller must not touch the input and output buffers until Wait returns. Errors, including
// those of a finalized context, are reported to the uncaptured-error callback.
func (ctx *Context) Dispatch(g *Graph, inputs Inputs, outputs Outputs) {
	if g == nil || g.ctx != ctx {
		ctx.reportUncaptured(mlerrors.Errorf(mlerrors.UnknownOperand, "Dispatch: graph was not built with context %s", ctx.id))
		return
	}
	if err := ctx.begin(); err != nil {
		ctx.reportUncaptured(err)
		return
	}
	ctx.dispatched.Add(1)
	go func() {
		defer ctx.inFlight.Done()
		defer ctx.dispatched.Done()
		if err := g.compute(inputs, outputs); err != nil {
			ctx.reportUncaptured(err)
		}
	}()
}

// Wait blocks until all computations started with Dispatch are finished.
func (ctx *Context) Wait() {
	ctx.dispatched.Wait()
}

// Finalize waits for the in-flight computations to finish, and then releases the executables of
// every graph built with the context and the backend.
//
// Later calls using the context, or its graphs, fail with mlerrors.DeviceUnavailable.
// It is safe to call Finalize more than once.
func (ctx *Context) Finalize() {
	ctx.mu.Lock()
	if ctx.finalized {
		ctx.mu.Unlock()
		return
	}
	ctx.finalized = true
	ctx.mu.Unlock()

	ctx.inFlight.Wait()
	ctx.mu.Lock()
	graphs := make([]*Graph, 0, len(ctx.graphs))
	for g := range ctx.graphs {
		graphs = append(graphs, g)
	}
	ctx.graphs = nil
	ctx.mu.Unlock()
	for _, g := range graphs {
		g.release()
	}
	ctx.backend.Finalize()
	ctx.released.Trigger()
	klog.V(1).Infof("context %s finalized, %d graphs released", ctx.id, len(graphs))
}

// Done returns a channel that is closed once Finalize has released the device resources.
func (ctx *Context) Done() <-chan struct{} {
	return ctx.released.WaitChan()
}

// IsFinalized returns whether Finalize was called.
func (ctx *Context) IsFinalized() bool {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return ctx.finalized
}

// register a newly built graph, so it is released by Finalize.
func (ctx *Context) register(g *Graph) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.finalized {
		return mlerrors.Errorf(mlerrors.DeviceUnavailable, "context %s has been finalized", ctx.id)
	}
	ctx.graphs[g] = struct{}{}
	return nil
}

func (ctx *Context) unregister(g *Graph) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	delete(ctx.graphs, g)
}

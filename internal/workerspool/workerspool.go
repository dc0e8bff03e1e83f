// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool limits the number of goroutines used by CPU kernels that split their work.
//
// The limit is soft: a task that can't get a worker is expected to run inline by the caller
// (see StartIfAvailable and ParallelFor), so kernels never block waiting on each other.
package workerspool

import (
	"runtime"
	"sync"

	"github.com/gomlx/webnn/pkg/support/xsync"
)

// Pool of workers shared by the executions of a backend.
type Pool struct {
	// maxParallelism is the target number of concurrently running tasks.
	// 0 disables parallelism, and a negative value means unlimited.
	maxParallelism int

	mu         sync.Mutex
	cond       sync.Cond // Signaled whenever numRunning is decreased.
	numRunning int
}

// New returns a new Pool with the given parallelism. If maxParallelism is 0 parallelism is disabled,
// if negative it is unlimited.
func New(maxParallelism int) *Pool {
	w := &Pool{maxParallelism: maxParallelism}
	w.cond = sync.Cond{L: &w.mu}
	return w
}

// NewDefault returns a new Pool with parallelism set to runtime.NumCPU().
func NewDefault() *Pool {
	return New(runtime.NumCPU())
}

// IsEnabled returns whether parallelism is enabled (maxParallelism != 0).
func (w *Pool) IsEnabled() bool {
	return w.maxParallelism != 0
}

// IsUnlimited returns whether parallelism is unlimited (maxParallelism < 0).
func (w *Pool) IsUnlimited() bool {
	return w.maxParallelism < 0
}

// MaxParallelism returns the configured parallelism.
func (w *Pool) MaxParallelism() int {
	return w.maxParallelism
}

// lockedIsFull returns whether all available workers are in use.
//
// It must be called with w.mu acquired.
func (w *Pool) lockedIsFull() bool {
	if w.maxParallelism == 0 {
		return true
	} else if w.maxParallelism < 0 {
		return false
	}
	return w.numRunning >= w.maxParallelism
}

// lockedRunTaskInGoroutine and keep tabs on w.numRunning.
//
// It must be called with w.mu acquired.
func (w *Pool) lockedRunTaskInGoroutine(task func()) {
	w.numRunning++
	go func() {
		defer func() {
			w.mu.Lock()
			w.numRunning--
			w.cond.Signal()
			w.mu.Unlock()
		}()
		task()
	}()
}

// StartIfAvailable runs the task in a separate goroutine, if there is a worker available.
// It returns true if it started the task, false otherwise.
//
// It's up to the caller to synchronize the end of the task.
func (w *Pool) StartIfAvailable(task func()) bool {
	if w.IsUnlimited() {
		go task()
		return true
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lockedIsFull() {
		return false
	}
	w.lockedRunTaskInGoroutine(task)
	return true
}

// WaitToStart waits until there is a worker available to run the task, and starts it.
//
// If parallelism is disabled, it runs the task inline and returns when it is finished.
func (w *Pool) WaitToStart(task func()) {
	if w.IsUnlimited() {
		go task()
		return
	} else if w.maxParallelism == 0 {
		task()
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.lockedIsFull() {
		w.cond.Wait()
	}
	w.lockedRunTaskInGoroutine(task)
}

// ParallelFor calls fn over consecutive ranges [start, end) covering [0, n), each with at least minChunk
// elements (except maybe the last). Ranges are run in the available workers, and inline when none is
// available. It returns when all ranges are done.
//
// If fn panics in a worker, the panic is re-raised in the caller's goroutine.
func (w *Pool) ParallelFor(n, minChunk int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	minChunk = max(minChunk, 1)
	numChunks := n / minChunk
	if w.IsEnabled() && !w.IsUnlimited() {
		numChunks = min(numChunks, w.maxParallelism)
	}
	if numChunks <= 1 || !w.IsEnabled() {
		fn(0, n)
		return
	}
	chunkSize := (n + numChunks - 1) / numChunks

	var (
		wg         = xsync.NewDynamicWaitGroup()
		panicMu    sync.Mutex
		firstPanic any
	)
	runChunk := func(start, end int) {
		defer func() {
			if r := recover(); r != nil {
				panicMu.Lock()
				if firstPanic == nil {
					firstPanic = r
				}
				panicMu.Unlock()
			}
		}()
		fn(start, end)
	}
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		task := func() {
			defer wg.Done()
			runChunk(start, end)
		}
		if !w.StartIfAvailable(task) {
			task()
		}
	}
	wg.Wait()
	if firstPanic != nil {
		panic(firstPanic)
	}
}

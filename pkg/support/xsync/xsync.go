// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xsync holds synchronization primitives missing from the standard library.
package xsync

import (
	"sync"

	"github.com/pkg/errors"
)

// DynamicWaitGroup works like a sync.WaitGroup, except that Add can be called concurrently with Wait,
// even after the counter reached zero. Wait returns whenever it observes the counter at zero.
type DynamicWaitGroup struct {
	mu    sync.Mutex
	cond  sync.Cond
	count int64
}

// NewDynamicWaitGroup creates a new DynamicWaitGroup with counter 0.
func NewDynamicWaitGroup() *DynamicWaitGroup {
	wg := &DynamicWaitGroup{}
	wg.cond.L = &wg.mu
	return wg
}

// Add delta to the counter. It panics if the counter becomes negative.
func (wg *DynamicWaitGroup) Add(delta int) {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	wg.count += int64(delta)
	if wg.count < 0 {
		panic(errors.New("DynamicWaitGroup: negative counter"))
	}
	if wg.count == 0 {
		wg.cond.Broadcast()
	}
}

// Done decrements the counter by one.
func (wg *DynamicWaitGroup) Done() {
	wg.Add(-1)
}

// Count returns the current value of the counter.
func (wg *DynamicWaitGroup) Count() int {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	return int(wg.count)
}

// Wait blocks until the counter is zero.
func (wg *DynamicWaitGroup) Wait() {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	for wg.count > 0 {
		wg.cond.Wait()
	}
}

// Latch is triggered once, and can be waited on by any number of goroutines.
type Latch struct {
	once sync.Once
	done chan struct{}
}

// NewLatch returns an untriggered Latch.
func NewLatch() *Latch {
	return &Latch{done: make(chan struct{})}
}

// Trigger the latch, releasing all waiting goroutines. Further calls are no-ops.
func (l *Latch) Trigger() {
	l.once.Do(func() { close(l.done) })
}

// Test returns whether the latch has been triggered.
func (l *Latch) Test() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the latch is triggered.
func (l *Latch) Wait() {
	<-l.done
}

// WaitChan returns a channel closed when the latch is triggered.
func (l *Latch) WaitChan() <-chan struct{} {
	return l.done
}

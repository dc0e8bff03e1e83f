// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDynamicWaitGroup(t *testing.T) {
	wg := NewDynamicWaitGroup()
	wg.Wait() // Counter at zero: returns immediately.

	wg.Add(2)
	released := NewLatch()
	go func() {
		wg.Wait()
		released.Trigger()
	}()
	wg.Done()
	// Add while someone is waiting.
	wg.Add(1)
	wg.Done()
	assert.Equal(t, 1, wg.Count())
	select {
	case <-released.WaitChan():
		t.Fatal("Wait returned before counter reached zero")
	case <-time.After(10 * time.Millisecond):
	}
	wg.Done()
	released.Wait()
	require.True(t, released.Test())
	require.Panics(t, func() { wg.Done() })
}

func TestLatch(t *testing.T) {
	l := NewLatch()
	require.False(t, l.Test())
	l.Trigger()
	l.Trigger()
	require.True(t, l.Test())
	l.Wait()
}

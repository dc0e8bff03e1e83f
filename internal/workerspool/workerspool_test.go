// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestParallelFor(t *testing.T) {
	for _, parallelism := range []int{0, 1, 3, -1} {
		pool := New(parallelism)
		const n = 1000
		var visited [n]atomic.Int32
		var calls atomic.Int32
		pool.ParallelFor(n, 10, func(start, end int) {
			calls.Add(1)
			for ii := start; ii < end; ii++ {
				visited[ii].Add(1)
			}
		})
		for ii := range n {
			require.Equal(t, int32(1), visited[ii].Load(), "parallelism=%d, index %d", parallelism, ii)
		}
		if parallelism == 0 || parallelism == 1 {
			assert.Equal(t, int32(1), calls.Load())
		} else if parallelism == 3 {
			assert.Equal(t, int32(3), calls.Load())
		}
	}
}

func TestParallelForPanic(t *testing.T) {
	pool := New(4)
	require.PanicsWithValue(t, "boom", func() {
		pool.ParallelFor(100, 1, func(start, end int) {
			if start == 0 {
				panic("boom")
			}
		})
	})
}

func TestStartIfAvailable(t *testing.T) {
	pool := New(1)
	release := make(chan struct{})
	done := make(chan struct{})
	require.True(t, pool.StartIfAvailable(func() {
		<-release
		close(done)
	}))
	// The only worker is busy.
	assert.False(t, pool.StartIfAvailable(func() {}))
	close(release)
	<-done

	// Disabled pool never starts tasks, WaitToStart runs inline.
	disabled := New(0)
	assert.False(t, disabled.IsEnabled())
	assert.False(t, disabled.StartIfAvailable(func() {}))
	var ran bool
	disabled.WaitToStart(func() { ran = true })
	assert.True(t, ran)
}

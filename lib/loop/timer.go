// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package loop

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/dctransfer/lib/clock"
)

// Timer is a one-shot or periodic callback that runs on the loop.
type Timer struct {
	loop   *Loop
	period time.Duration
	task   func()

	stopped atomic.Bool

	mu      sync.Mutex
	pending *clock.Timer
}

// AfterFunc runs f on the loop once d has elapsed.
func (l *Loop) AfterFunc(d time.Duration, f func()) *Timer {
	timer := &Timer{loop: l, task: f}
	timer.arm(d)
	return timer
}

// Every runs f on the loop each time period elapses, until stopped.
// The next period is measured from the end of the previous run, so a
// slow loop delays ticks instead of queueing them.
func (l *Loop) Every(period time.Duration, f func()) *Timer {
	if period <= 0 {
		panic("loop: non-positive period for Every")
	}
	timer := &Timer{loop: l, period: period, task: f}
	timer.arm(period)
	return timer
}

// Stop cancels the timer. When called on the loop, the callback is
// guaranteed not to run afterwards. Idempotent; safe on a nil Timer.
func (t *Timer) Stop() {
	if t == nil || t.stopped.Swap(true) {
		return
	}
	t.mu.Lock()
	pending := t.pending
	t.mu.Unlock()
	pending.Stop()
}

// Stopped reports whether Stop has been called or a one-shot timer has
// already run.
func (t *Timer) Stopped() bool {
	return t == nil || t.stopped.Load()
}

func (t *Timer) arm(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = t.loop.clock.AfterFunc(d, t.fire)
}

// fire runs on the clock's goroutine and only hands off to the loop.
func (t *Timer) fire() {
	t.loop.Post(t.run)
}

func (t *Timer) run() {
	if t.stopped.Load() {
		return
	}
	if t.period == 0 {
		t.stopped.Store(true)
		t.task()
		return
	}
	t.task()
	if !t.stopped.Load() {
		t.arm(t.period)
	}
}

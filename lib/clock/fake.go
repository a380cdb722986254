// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock reading initial. Time moves only when
// Advance is called.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{current: initial}
	clock.changed = sync.NewCond(&clock.mu)
	return clock
}

// FakeClock is a deterministic Clock for tests. It is safe for
// concurrent use, but AfterFunc callbacks run on the goroutine that
// calls Advance and must not call Advance themselves.
type FakeClock struct {
	mu       sync.Mutex
	current  time.Time
	pending  []*fakeTimer
	sequence uint64
	changed  *sync.Cond
}

type fakeTimer struct {
	deadline time.Time
	// sequence breaks deadline ties in registration order.
	sequence uint64
	callback func()
	done     bool
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc registers f to run when the clock is advanced to or past
// now+d. A non-positive d runs f before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}

	c.mu.Lock()
	c.sequence++
	timer := &fakeTimer{
		deadline: c.current.Add(d),
		sequence: c.sequence,
		callback: f,
	}
	c.pending = append(c.pending, timer)
	c.changed.Broadcast()
	c.mu.Unlock()

	return &Timer{stop: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if timer.done {
			return false
		}
		timer.done = true
		c.removeLocked(timer)
		return true
	}}
}

// Advance moves the clock forward by d, firing every timer whose
// deadline is reached in deadline order. Timers registered by a
// callback fire in the same Advance call when their deadline is within
// the new time. While a callback runs, Now reports that timer's
// deadline.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.current.Add(d)
	c.mu.Unlock()

	for {
		timer := c.popDue(target)
		if timer == nil {
			break
		}
		timer.callback()
	}

	c.mu.Lock()
	c.current = target
	c.mu.Unlock()
}

// popDue removes and returns the earliest timer due at or before
// target, moving the clock to its deadline. Returns nil when nothing is
// due.
func (c *FakeClock) popDue(target time.Time) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) == 0 {
		return nil
	}
	sort.Slice(c.pending, func(i, j int) bool {
		if c.pending[i].deadline.Equal(c.pending[j].deadline) {
			return c.pending[i].sequence < c.pending[j].sequence
		}
		return c.pending[i].deadline.Before(c.pending[j].deadline)
	})
	next := c.pending[0]
	if next.deadline.After(target) {
		return nil
	}
	c.pending = c.pending[1:]
	next.done = true
	if next.deadline.After(c.current) {
		c.current = next.deadline
	}
	return next
}

func (c *FakeClock) removeLocked(timer *fakeTimer) {
	for i, candidate := range c.pending {
		if candidate == timer {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}

// PendingCount returns the number of registered timers that have not
// fired or been stopped.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// WaitForTimers blocks until at least n timers are pending. Use it when
// another goroutine registers the timer the test is about to fire.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.pending) < n {
		c.changed.Wait()
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts the two time operations the transfer core needs.
type Clock interface {
	// Now returns the current time. Real clocks carry a monotonic
	// reading, so Sub between two Now values is immune to wall clock
	// steps.
	Now() time.Time

	// AfterFunc calls f once after d has elapsed. If d <= 0, f runs
	// immediately: in a new goroutine for the real clock, synchronously
	// for the fake clock.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stop func() bool
}

// Stop cancels the pending call. It reports whether the call was
// cancelled; false means f already ran (or is running) or the timer was
// stopped before.
func (t *Timer) Stop() bool {
	if t == nil || t.stop == nil {
		return false
	}
	return t.stop()
}

// Since returns the time elapsed since start according to c.
func Since(c Clock, start time.Time) time.Duration {
	return c.Now().Sub(start)
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for the transfer
// core.
//
// Flow controllers, the burst sender's drain check, the probe scheduler
// and the RTT aggregation timer all read time and schedule callbacks
// through a Clock. Production code passes Real(). Tests pass Fake(),
// which stands still until Advance is called and fires due callbacks
// synchronously in deadline order, so a test can step a whole transfer
// through its timers without sleeping:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	l := loop.New(c)
//	// ... wire components onto l ...
//	c.Advance(10 * time.Millisecond) // poll timer fires, posts into l
//	l.RunPending()                   // ready-to-send handler runs
package clock

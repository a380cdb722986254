// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package loop provides the single logical execution context the
// transfer core runs on.
//
// Transport callbacks arrive on goroutines owned by pion, the websocket
// reader and the clock. None of them touch core state directly: they
// Post a task, and the loop runs tasks one at a time in arrival order.
// Every piece of flow control, pool bookkeeping, burst scheduling and
// metrics aggregation therefore executes serially without locks, and
// re-entrancy (a close triggered from inside a close handler) is
// handled with idempotent guards in the components themselves.
//
// Timers created with AfterFunc and Every post their callback into the
// loop. Stopping a timer from the loop guarantees its callback will not
// run afterwards, even if the underlying clock had already fired and
// the task is sitting in the queue.
//
// Production drives the loop with Run in its own goroutine. Tests drive
// it by calling RunPending after each stimulus, which keeps the whole
// core on the test goroutine.
package loop

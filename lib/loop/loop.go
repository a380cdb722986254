// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package loop

import (
	"context"
	"errors"
	"sync"

	"github.com/bureau-foundation/dctransfer/lib/clock"
)

// ErrClosed is returned by Do when the loop has been closed.
var ErrClosed = errors.New("loop: closed")

// Loop is a serial task queue. Post is safe from any goroutine; tasks
// run on whichever goroutine is executing Run or RunPending.
type Loop struct {
	clock clock.Clock

	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
}

// New creates a loop whose timers use c.
func New(c clock.Clock) *Loop {
	return &Loop{
		clock: c,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Clock returns the clock the loop schedules timers on.
func (l *Loop) Clock() clock.Clock { return l.clock }

// Post enqueues task. It returns false, dropping the task, once the
// loop is closed.
func (l *Loop) Post(task func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// RunPending runs queued tasks on the calling goroutine until the queue
// is empty, including tasks posted by the tasks it runs. It returns the
// number of tasks run. Must not be called concurrently with Run.
func (l *Loop) RunPending() int {
	count := 0
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return count
		}
		for _, task := range batch {
			task()
			count++
		}
	}
}

// Run executes tasks until ctx is done or Close is called. It returns
// ctx.Err() on cancellation and nil after Close.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.RunPending()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case <-l.wake:
		}
	}
}

// Do posts f and waits for it to finish. Use it from goroutines outside
// the loop that need a consistent read of loop-owned state. Calling Do
// from a loop task deadlocks.
func (l *Loop) Do(ctx context.Context, f func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		f()
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the loop. Queued tasks are discarded and later Posts are
// refused. Idempotent.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.queue = nil
	close(l.done)
}

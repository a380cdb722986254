// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/dctransfer/lib/clock"
	"github.com/bureau-foundation/dctransfer/lib/loop"
)

// maxReportedMissing caps the missing sequence ids listed in a summary.
// The count is always exact.
const maxReportedMissing = 64

// ReceiverState is the receiver's position in its lifecycle.
type ReceiverState int

const (
	ReceiverIdle ReceiverState = iota
	ReceiverAwaitingFirstChunk
	ReceiverReceiving
	ReceiverComplete
)

func (s ReceiverState) String() string {
	switch s {
	case ReceiverIdle:
		return "idle"
	case ReceiverAwaitingFirstChunk:
		return "awaiting-first-chunk"
	case ReceiverReceiving:
		return "receiving"
	case ReceiverComplete:
		return "complete"
	default:
		return fmt.Sprintf("ReceiverState(%d)", int(s))
	}
}

// ReceiverConfig describes the transfer the receiver expects.
type ReceiverConfig struct {
	ChunkSize      int
	ExpectedChunks uint64

	// Digest, when set, is compared against every chunk payload.
	// Mismatches are counted as corrupted.
	Digest *Digest

	// ProgressInterval defaults to DefaultProgressInterval.
	ProgressInterval time.Duration
}

// ReceiveSummary describes a finished inbound transfer.
type ReceiveSummary struct {
	ExpectedChunks uint64
	ReceivedChunks uint64
	Missing        uint64
	// MissingIDs lists the first missing sequence ids, ascending.
	MissingIDs     []uint32
	Duplicates     uint64
	OutOfRange     uint64
	Corrupted      uint64
	Verified       bool
	Bytes          uint64
	Elapsed        time.Duration
	ThroughputMBps float64
}

// Receiver reassembles one inbound transfer.
type Receiver struct {
	loop   *loop.Loop
	logger *slog.Logger
	config ReceiverConfig

	state      ReceiverState
	target     uint64
	bytes      uint64
	completed  []bool
	unique     uint64
	duplicate  uint64
	outOfRange uint64
	corrupted  uint64
	started    time.Time

	progressTimer *loop.Timer

	onStart    func()
	onProgress func(Progress)
	onComplete func(ReceiveSummary)
}

// NewReceiver returns an idle receiver. Call Reset before the first
// transfer.
func NewReceiver(l *loop.Loop, logger *slog.Logger) *Receiver {
	return &Receiver{loop: l, logger: logger}
}

// OnStart sets the handler called when the first chunk arrives.
func (r *Receiver) OnStart(handler func()) { r.onStart = handler }

// OnProgress sets the handler for periodic progress reports.
func (r *Receiver) OnProgress(handler func(Progress)) { r.onProgress = handler }

// OnComplete sets the handler called once the target is reached.
func (r *Receiver) OnComplete(handler func(ReceiveSummary)) { r.onComplete = handler }

// State returns the current state.
func (r *Receiver) State() ReceiverState { return r.state }

// ChunkSize returns the configured chunk size.
func (r *Receiver) ChunkSize() int { return r.config.ChunkSize }

// BytesReceived returns the chunk bytes counted so far.
func (r *Receiver) BytesReceived() uint64 { return r.bytes }

// TargetBytes returns the whole-chunk byte target.
func (r *Receiver) TargetBytes() uint64 { return r.target }

// Reset prepares for a new transfer, discarding any previous counters
// and completion vector.
func (r *Receiver) Reset(config ReceiverConfig) error {
	if err := validateChunkSize(config.ChunkSize); err != nil {
		return err
	}
	if config.ExpectedChunks == 0 {
		return fmt.Errorf("%w: expected chunk count is zero", ErrInvalidConfig)
	}
	if config.ProgressInterval <= 0 {
		config.ProgressInterval = DefaultProgressInterval
	}
	r.stopTimers()
	r.config = config
	r.target = config.ExpectedChunks * uint64(config.ChunkSize)
	r.bytes = 0
	r.completed = make([]bool, config.ExpectedChunks)
	r.unique = 0
	r.duplicate = 0
	r.outOfRange = 0
	r.corrupted = 0
	r.state = ReceiverAwaitingFirstChunk
	return nil
}

// HandleMessage consumes message if it is a chunk and reports whether
// it did. Any message whose length differs from the chunk size is left
// to the caller as a probe message.
func (r *Receiver) HandleMessage(message []byte) bool {
	if r.config.ChunkSize == 0 || len(message) != r.config.ChunkSize {
		return false
	}
	switch r.state {
	case ReceiverAwaitingFirstChunk:
		r.started = r.loop.Clock().Now()
		r.state = ReceiverReceiving
		r.logger.Info("first chunk received", "expected_chunks", r.config.ExpectedChunks)
		r.progressTimer = r.loop.Every(r.config.ProgressInterval, r.reportProgress)
		if r.onStart != nil {
			r.onStart()
		}
	case ReceiverReceiving:
	default:
		// Stray chunk outside a transfer.
		return true
	}

	r.bytes += uint64(len(message))
	id := Sequence(message)
	switch {
	case uint64(id) >= uint64(len(r.completed)):
		r.outOfRange++
	case r.completed[id]:
		r.duplicate++
	default:
		r.completed[id] = true
		r.unique++
	}
	if r.config.Digest != nil && PayloadDigest(message) != *r.config.Digest {
		r.corrupted++
	}

	if r.bytes >= r.target {
		r.complete()
	}
	return true
}

// Summary builds the loss report for the current transfer.
func (r *Receiver) Summary() ReceiveSummary {
	var elapsed time.Duration
	if r.state == ReceiverReceiving || r.state == ReceiverComplete {
		elapsed = clock.Since(r.loop.Clock(), r.started)
	}
	summary := ReceiveSummary{
		ExpectedChunks: r.config.ExpectedChunks,
		ReceivedChunks: r.unique,
		Duplicates:     r.duplicate,
		OutOfRange:     r.outOfRange,
		Corrupted:      r.corrupted,
		Verified:       r.config.Digest != nil,
		Bytes:          r.bytes,
		Elapsed:        elapsed,
		ThroughputMBps: ThroughputMBps(r.bytes, elapsed),
	}
	for id, done := range r.completed {
		if done {
			continue
		}
		summary.Missing++
		if len(summary.MissingIDs) < maxReportedMissing {
			summary.MissingIDs = append(summary.MissingIDs, uint32(id))
		}
	}
	return summary
}

func (r *Receiver) complete() {
	r.stopTimers()
	r.state = ReceiverComplete
	r.reportProgress()
	summary := r.Summary()
	r.logger.Info("transfer received",
		"received_chunks", summary.ReceivedChunks,
		"expected_chunks", summary.ExpectedChunks,
		"missing", summary.Missing,
		"corrupted", summary.Corrupted,
		"elapsed", summary.Elapsed,
		"throughput_mbps", summary.ThroughputMBps,
	)
	if summary.Missing > 0 {
		r.logger.Warn("chunks missing at completion",
			"missing", summary.Missing,
			"first_missing_ids", summary.MissingIDs,
		)
	}
	if r.onComplete != nil {
		r.onComplete(summary)
	}
}

// Stop cancels progress reporting and returns the receiver to idle.
// Idempotent.
func (r *Receiver) Stop() {
	r.stopTimers()
	if r.state != ReceiverComplete {
		r.state = ReceiverIdle
	}
}

func (r *Receiver) stopTimers() {
	r.progressTimer.Stop()
	r.progressTimer = nil
}

func (r *Receiver) reportProgress() {
	if r.onProgress == nil {
		return
	}
	r.onProgress(Progress{
		Bytes:   r.bytes,
		Total:   r.target,
		Elapsed: clock.Since(r.loop.Clock(), r.started),
	})
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/bureau-foundation/dctransfer/flow"
	"github.com/bureau-foundation/dctransfer/lib/clock"
	"github.com/bureau-foundation/dctransfer/lib/loop"
)

// Source is one connection the sender spreads chunks over.
// *pool.Connection implements it.
type Source interface {
	Label() string
	// ReadyChannels returns the channels with buffer headroom, in a
	// stable enumeration order.
	ReadyChannels() []*flow.Controller
	// Active returns every channel the source sends on.
	Active() []*flow.Controller
}

// SenderState is the sender's position in its lifecycle.
type SenderState int

const (
	SenderIdle SenderState = iota
	SenderNegotiating
	SenderTransmitting
	SenderDraining
	SenderComplete
)

func (s SenderState) String() string {
	switch s {
	case SenderIdle:
		return "idle"
	case SenderNegotiating:
		return "negotiating"
	case SenderTransmitting:
		return "transmitting"
	case SenderDraining:
		return "draining"
	case SenderComplete:
		return "complete"
	default:
		return fmt.Sprintf("SenderState(%d)", int(s))
	}
}

// SenderConfig configures one outbound transfer.
type SenderConfig struct {
	// TotalBytes is the requested transfer size. The sender moves
	// ChunkCount(TotalBytes, ChunkSize) whole chunks.
	TotalBytes uint64
	ChunkSize  int

	// Chunk is the template sent for every chunk; its header is
	// overwritten with each sequence id. Must be ChunkSize bytes. When
	// nil a template is generated from a fixed seed.
	Chunk []byte

	// DrainInterval is how often a draining sender checks whether every
	// channel buffer has emptied.
	DrainInterval time.Duration

	// ProgressInterval defaults to DefaultProgressInterval.
	ProgressInterval time.Duration
}

// SendSummary describes a finished outbound transfer.
type SendSummary struct {
	Chunks         uint64
	Bytes          uint64
	Elapsed        time.Duration
	ThroughputMBps float64
	SendErrors     int
}

// Sender drives one outbound transfer over a set of sources.
type Sender struct {
	loop   *loop.Loop
	logger *slog.Logger
	config SenderConfig

	chunk   []byte
	target  uint64
	sent    uint64
	nextID  uint32
	errors  int
	sources []Source

	state   SenderState
	started time.Time

	progressTimer *loop.Timer
	drainTimer    *loop.Timer

	onProgress    func(Progress)
	onStateChange func(SenderState)
	onComplete    func(SendSummary)
}

// NewSender validates config and returns an idle sender.
func NewSender(l *loop.Loop, config SenderConfig, logger *slog.Logger) (*Sender, error) {
	if err := validateChunkSize(config.ChunkSize); err != nil {
		return nil, err
	}
	if config.TotalBytes == 0 {
		return nil, fmt.Errorf("%w: nothing to send", ErrInvalidConfig)
	}
	chunk := config.Chunk
	if chunk == nil {
		chunk = NewChunk(config.ChunkSize, []byte("dctransfer"))
	} else if len(chunk) != config.ChunkSize {
		return nil, fmt.Errorf("%w: chunk template is %d bytes, want %d", ErrInvalidConfig, len(chunk), config.ChunkSize)
	} else {
		chunk = slices.Clone(chunk)
	}
	if config.DrainInterval <= 0 {
		config.DrainInterval = flow.DefaultPollingInterval
	}
	if config.ProgressInterval <= 0 {
		config.ProgressInterval = DefaultProgressInterval
	}

	chunks := ChunkCount(config.TotalBytes, config.ChunkSize)
	return &Sender{
		loop:   l,
		logger: logger,
		config: config,
		chunk:  chunk,
		target: chunks * uint64(config.ChunkSize),
	}, nil
}

// OnProgress sets the handler for periodic progress reports.
func (s *Sender) OnProgress(handler func(Progress)) { s.onProgress = handler }

// OnStateChange sets the handler for state transitions.
func (s *Sender) OnStateChange(handler func(SenderState)) { s.onStateChange = handler }

// OnComplete sets the handler called once when the transfer finishes.
func (s *Sender) OnComplete(handler func(SendSummary)) { s.onComplete = handler }

// State returns the current state.
func (s *Sender) State() SenderState { return s.state }

// Chunks returns the number of chunks the transfer consists of.
func (s *Sender) Chunks() uint64 { return s.target / uint64(s.config.ChunkSize) }

// TargetBytes returns the whole-chunk byte target.
func (s *Sender) TargetBytes() uint64 { return s.target }

// BytesSent returns the bytes handed to channels so far.
func (s *Sender) BytesSent() uint64 { return s.sent }

// ChunksSent returns the number of sequence ids assigned so far.
func (s *Sender) ChunksSent() uint32 { return s.nextID }

// Digest returns the digest of the chunk payload.
func (s *Sender) Digest() Digest { return PayloadDigest(s.chunk) }

// AddSource appends a source to the enumeration order.
func (s *Sender) AddSource(source Source) {
	if slices.Contains(s.sources, source) {
		return
	}
	s.sources = append(s.sources, source)
}

// RemoveSource drops a source. A draining sender with no sources left
// completes.
func (s *Sender) RemoveSource(source Source) {
	index := slices.Index(s.sources, source)
	if index < 0 {
		return
	}
	s.sources = slices.Delete(s.sources, index, index+1)
	if s.state == SenderDraining && len(s.sources) == 0 {
		s.logger.Info("all connections closed while draining")
		s.complete()
	}
}

// BeginNegotiation marks the sender as waiting for its connections.
func (s *Sender) BeginNegotiation() {
	if s.state == SenderIdle {
		s.setState(SenderNegotiating)
	}
}

// Start begins transmitting and runs the first burst.
func (s *Sender) Start() {
	if s.state != SenderIdle && s.state != SenderNegotiating {
		return
	}
	s.sent = 0
	s.nextID = 0
	s.started = s.loop.Clock().Now()
	s.setState(SenderTransmitting)
	s.logger.Info("transfer started",
		"chunks", s.Chunks(),
		"chunk_size", s.config.ChunkSize,
		"connections", len(s.sources),
	)
	s.progressTimer = s.loop.Every(s.config.ProgressInterval, s.reportProgress)
	s.Resume()
}

// Resume runs one burst. Call it whenever a source signals it is ready
// to send; it does nothing unless the sender is transmitting.
func (s *Sender) Resume() {
	if s.state != SenderTransmitting {
		return
	}
	for s.sent < s.target {
		couldSend := false
		for _, source := range s.sources {
			for _, channel := range source.ReadyChannels() {
				if s.sent >= s.target {
					break
				}
				PutSequence(s.chunk, s.nextID)
				if err := channel.Send(s.chunk); err != nil {
					s.errors++
					s.logger.Warn("sending chunk failed",
						"channel", channel.Label(),
						"sequence", s.nextID,
						"error", err,
					)
					continue
				}
				couldSend = true
				s.nextID++
				s.sent += uint64(s.config.ChunkSize)
			}
		}
		if !couldSend {
			// Nothing has headroom; the next ready event resumes.
			return
		}
	}
	s.finishTransmitting()
}

func (s *Sender) finishTransmitting() {
	s.logger.Info("last chunk queued", "chunks", s.nextID, "bytes", s.sent)
	s.reportProgress()
	s.setState(SenderDraining)
	if len(s.sources) == 0 {
		s.complete()
		return
	}
	s.drainTimer = s.loop.Every(s.config.DrainInterval, s.checkDrained)
}

func (s *Sender) checkDrained() {
	for _, source := range s.sources {
		for _, channel := range source.Active() {
			if channel.BufferedAmount() > 0 {
				return
			}
		}
	}
	s.complete()
}

func (s *Sender) complete() {
	if s.state == SenderComplete {
		return
	}
	s.stopTimers()
	elapsed := clock.Since(s.loop.Clock(), s.started)
	summary := SendSummary{
		Chunks:         uint64(s.nextID),
		Bytes:          s.sent,
		Elapsed:        elapsed,
		ThroughputMBps: ThroughputMBps(s.sent, elapsed),
		SendErrors:     s.errors,
	}
	s.setState(SenderComplete)
	s.logger.Info("transfer sent",
		"chunks", summary.Chunks,
		"bytes", summary.Bytes,
		"elapsed", summary.Elapsed,
		"throughput_mbps", summary.ThroughputMBps,
		"send_errors", summary.SendErrors,
	)
	if s.onComplete != nil {
		s.onComplete(summary)
	}
}

// Stop cancels the sender's timers and refuses further bursts without
// reporting completion. Idempotent.
func (s *Sender) Stop() {
	s.stopTimers()
	if s.state != SenderComplete {
		s.state = SenderIdle
	}
}

func (s *Sender) stopTimers() {
	s.progressTimer.Stop()
	s.progressTimer = nil
	s.drainTimer.Stop()
	s.drainTimer = nil
}

func (s *Sender) reportProgress() {
	if s.onProgress == nil {
		return
	}
	s.onProgress(Progress{
		Bytes:   s.sent,
		Total:   s.target,
		Elapsed: clock.Since(s.loop.Clock(), s.started),
	})
}

func (s *Sender) setState(state SenderState) {
	if s.state == state {
		return
	}
	s.state = state
	if s.onStateChange != nil {
		s.onStateChange(state)
	}
}

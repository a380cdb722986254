// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package rtt measures round-trip time from probe messages.
//
// Every probe sent is recorded in a session map keyed by its id. A
// matching reply completes the sample and copies it into the current
// reporting window. Each reporting period the window mean is delivered
// and the window cleared; the session map keeps every sample until the
// next Start so final statistics cover the whole run.
//
// Jitter is derived from the spacing of reply arrivals: consecutive
// gaps between sorted receive times, each compared against the expected
// probe period.
package rtt

import (
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/bureau-foundation/dctransfer/lib/loop"
)

// DefaultReportingPeriod is used when Config.ReportingPeriod is zero.
const DefaultReportingPeriod = time.Second

// Config configures an Engine.
type Config struct {
	// SendingPeriod is the interval between probes. When zero, jitter
	// is measured against the mean observed gap.
	SendingPeriod time.Duration

	// ReportingPeriod is the window length.
	ReportingPeriod time.Duration
}

// Window is the aggregate of one reporting period.
type Window struct {
	Mean    time.Duration
	Samples int
}

// Stats summarizes a set of durations. StdDev is the population
// standard deviation.
type Stats struct {
	Min     time.Duration
	Max     time.Duration
	Mean    time.Duration
	StdDev  time.Duration
	Samples int
}

// FinalStats covers every probe since Start. RTT and Jitter are nil
// when there were no samples to compute them from.
type FinalStats struct {
	RTT    *Stats
	Jitter *Stats

	Sent    int
	Replied int
	// Lost lists probe ids that never got a reply, ascending.
	Lost []uint32
	// Anomalies counts replies rejected for a negative round trip.
	Anomalies int
}

type sample struct {
	sent     time.Time
	received time.Time
	replied  bool
}

// Engine aggregates probe round trips. Methods must be called on its
// loop.
type Engine struct {
	loop   *loop.Loop
	logger *slog.Logger
	config Config

	samples   map[uint32]*sample
	window    map[uint32]time.Duration
	anomalies int

	timer    *loop.Timer
	onWindow func(*Window)
}

// New returns a stopped engine.
func New(l *loop.Loop, config Config, logger *slog.Logger) *Engine {
	if config.ReportingPeriod <= 0 {
		config.ReportingPeriod = DefaultReportingPeriod
	}
	return &Engine{
		loop:    l,
		logger:  logger,
		config:  config,
		samples: make(map[uint32]*sample),
		window:  make(map[uint32]time.Duration),
	}
}

// OnWindow sets the handler for per-window aggregates. A nil window
// means no probe completed in that period, not a zero round trip.
func (e *Engine) OnWindow(handler func(*Window)) { e.onWindow = handler }

// Config returns the engine configuration with defaults applied.
func (e *Engine) Config() Config { return e.config }

// Running reports whether the aggregation timer is armed.
func (e *Engine) Running() bool { return e.timer != nil }

// Start discards all samples and arms window aggregation. The first
// window opens one full period after Start.
func (e *Engine) Start() {
	e.Stop()
	e.samples = make(map[uint32]*sample)
	e.window = make(map[uint32]time.Duration)
	e.anomalies = 0

	period := e.config.ReportingPeriod
	e.timer = e.loop.AfterFunc(period, func() {
		clear(e.window)
		e.timer = e.loop.Every(period, e.aggregate)
	})
}

// Stop cancels window aggregation. Idempotent; safe before Start.
func (e *Engine) Stop() {
	e.timer.Stop()
	e.timer = nil
}

// PingSent records the send time of probe id.
func (e *Engine) PingSent(id uint32) {
	e.samples[id] = &sample{sent: e.loop.Clock().Now()}
}

// PongReceived completes probe id. It reports false when id is unknown
// or was already answered; such replies are ignored.
func (e *Engine) PongReceived(id uint32) bool {
	return e.recordReply(id, e.loop.Clock().Now())
}

func (e *Engine) recordReply(id uint32, at time.Time) bool {
	s, ok := e.samples[id]
	if !ok || s.replied {
		return false
	}
	roundTrip := at.Sub(s.sent)
	if roundTrip < 0 {
		e.anomalies++
		e.logger.Warn("negative round trip rejected", "probe", id, "rtt", roundTrip)
		return false
	}
	s.received = at
	s.replied = true
	e.window[id] = roundTrip
	return true
}

func (e *Engine) aggregate() {
	var result *Window
	if len(e.window) > 0 {
		var total time.Duration
		for _, roundTrip := range e.window {
			total += roundTrip
		}
		result = &Window{
			Mean:    total / time.Duration(len(e.window)),
			Samples: len(e.window),
		}
	}
	clear(e.window)

	handler := e.onWindow
	if handler == nil {
		return
	}
	e.loop.Post(func() { handler(result) })
}

// FinalStats computes round-trip and jitter statistics over every
// probe since Start.
func (e *Engine) FinalStats() FinalStats {
	final := FinalStats{Sent: len(e.samples), Anomalies: e.anomalies}

	var roundTrips []time.Duration
	var arrivals []time.Time
	for id, s := range e.samples {
		if !s.replied {
			final.Lost = append(final.Lost, id)
			continue
		}
		roundTrips = append(roundTrips, s.received.Sub(s.sent))
		arrivals = append(arrivals, s.received)
	}
	slices.Sort(final.Lost)
	final.Replied = len(roundTrips)
	final.RTT = summarize(roundTrips)

	slices.SortFunc(arrivals, func(a, b time.Time) int { return a.Compare(b) })
	var gaps []time.Duration
	for i := 1; i < len(arrivals); i++ {
		gaps = append(gaps, arrivals[i].Sub(arrivals[i-1]))
	}
	if len(gaps) > 0 {
		expected := e.config.SendingPeriod
		if expected <= 0 {
			var total time.Duration
			for _, gap := range gaps {
				total += gap
			}
			expected = total / time.Duration(len(gaps))
		}
		jitter := make([]time.Duration, len(gaps))
		for i, gap := range gaps {
			jitter[i] = absDuration(gap - expected)
		}
		final.Jitter = summarize(jitter)
	}

	if len(final.Lost) > 0 {
		e.logger.Info("probes without reply", "lost", len(final.Lost), "sent", final.Sent)
		e.logger.Debug("lost probe ids", "ids", final.Lost)
	}
	return final
}

func summarize(values []time.Duration) *Stats {
	if len(values) == 0 {
		return nil
	}
	minimum, maximum := values[0], values[0]
	var sum float64
	for _, value := range values {
		minimum = min(minimum, value)
		maximum = max(maximum, value)
		sum += float64(value)
	}
	n := float64(len(values))
	mean := sum / n

	// Second pass over deviations from the mean, which stays exact for
	// large, tightly clustered values.
	var squares float64
	for _, value := range values {
		deviation := float64(value) - mean
		squares += deviation * deviation
	}
	return &Stats{
		Min:     minimum,
		Max:     maximum,
		Mean:    time.Duration(math.Round(mean)),
		StdDev:  time.Duration(math.Round(math.Sqrt(squares / n))),
		Samples: len(values),
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

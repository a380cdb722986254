// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry exports transfer and round-trip metrics to
// Prometheus. Metrics observes a session and keeps the collectors
// current; Handler serves them.
package telemetry

import (
	"fmt"
	"math"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bureau-foundation/dctransfer/pool"
	"github.com/bureau-foundation/dctransfer/rtt"
	"github.com/bureau-foundation/dctransfer/session"
	"github.com/bureau-foundation/dctransfer/transfer"
)

const namespace = "dctransfer"

// rttBuckets span sub-millisecond LAN round trips to multi-second
// congested paths.
var rttBuckets = prometheus.ExponentialBuckets(0.0005, 2, 14)

// Metrics is a session.Observer that feeds Prometheus collectors.
type Metrics struct {
	session.NopObserver

	sentBytes       prometheus.Counter
	receivedBytes   prometheus.Counter
	missingChunks   prometheus.Gauge
	corruptedChunks prometheus.Gauge
	rttWindow       prometheus.Gauge
	rtt             prometheus.Histogram
	lostProbes      prometheus.Counter
	connectionsOpen *prometheus.GaugeVec
	throughput      *prometheus.GaugeVec
	transfers       *prometheus.CounterVec
	aborted         prometheus.Counter

	// Progress reports are cumulative per transfer; the counters take
	// the difference from the previous report.
	mu           sync.Mutex
	lastSent     uint64
	lastReceived uint64
}

var _ session.Observer = (*Metrics)(nil)

// New creates the collectors and registers them on registerer.
func New(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		sentBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sent_bytes_total",
			Help:      "Chunk bytes handed to channels.",
		}),
		receivedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "received_bytes_total",
			Help:      "Chunk bytes received.",
		}),
		missingChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "missing_chunks",
			Help:      "Chunks missing at the end of the last received transfer.",
		}),
		corruptedChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "corrupted_chunks",
			Help:      "Chunks whose payload failed verification in the last received transfer.",
		}),
		rttWindow: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rtt_window_seconds",
			Help:      "Mean round-trip time of the last reporting window; NaN when the window had no replies.",
		}),
		rtt: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rtt_seconds",
			Help:      "Distribution of per-window mean round-trip times.",
			Buckets:   rttBuckets,
		}),
		lostProbes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_lost_total",
			Help:      "Probes that never got a reply.",
		}),
		connectionsOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_open",
			Help:      "Open peer connections.",
		}, []string{"role"}),
		throughput: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "throughput_megabytes_per_second",
			Help:      "Throughput of the current or last transfer in MiB/s.",
		}, []string{"direction"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Completed transfers.",
		}, []string{"direction"}),
		aborted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_aborted_total",
			Help:      "Sends abandoned before completion.",
		}),
	}

	collectors := []prometheus.Collector{
		m.sentBytes, m.receivedBytes, m.missingChunks, m.corruptedChunks,
		m.rttWindow, m.rtt, m.lostProbes, m.connectionsOpen, m.throughput,
		m.transfers, m.aborted,
	}
	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) TransferStarted(info session.TransferInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch info.Direction {
	case session.DirectionSend:
		m.lastSent = 0
	case session.DirectionReceive:
		m.lastReceived = 0
	}
	m.throughput.WithLabelValues(string(info.Direction)).Set(0)
}

func (m *Metrics) ConnectionOpened(_ string, role pool.Role) {
	m.connectionsOpen.WithLabelValues(string(role)).Inc()
}

func (m *Metrics) ConnectionClosed(_ string, role pool.Role) {
	m.connectionsOpen.WithLabelValues(string(role)).Dec()
}

func (m *Metrics) SendProgress(progress transfer.Progress) {
	m.mu.Lock()
	m.sentBytes.Add(float64(delta(&m.lastSent, progress.Bytes)))
	m.mu.Unlock()
	m.throughput.WithLabelValues(string(session.DirectionSend)).Set(progress.ThroughputMBps())
}

func (m *Metrics) ReceiveProgress(progress transfer.Progress) {
	m.mu.Lock()
	m.receivedBytes.Add(float64(delta(&m.lastReceived, progress.Bytes)))
	m.mu.Unlock()
	m.throughput.WithLabelValues(string(session.DirectionReceive)).Set(progress.ThroughputMBps())
}

func (m *Metrics) WindowMetrics(window *rtt.Window) {
	if window == nil {
		m.rttWindow.Set(math.NaN())
		return
	}
	seconds := window.Mean.Seconds()
	m.rttWindow.Set(seconds)
	m.rtt.Observe(seconds)
}

func (m *Metrics) FinalStats(stats rtt.FinalStats) {
	m.lostProbes.Add(float64(len(stats.Lost)))
}

func (m *Metrics) SendComplete(summary transfer.SendSummary) {
	m.mu.Lock()
	m.sentBytes.Add(float64(delta(&m.lastSent, summary.Bytes)))
	m.mu.Unlock()
	m.throughput.WithLabelValues(string(session.DirectionSend)).Set(summary.ThroughputMBps)
	m.transfers.WithLabelValues(string(session.DirectionSend)).Inc()
}

func (m *Metrics) SendAborted(error) {
	m.aborted.Inc()
}

func (m *Metrics) ReceiveComplete(summary transfer.ReceiveSummary) {
	m.mu.Lock()
	m.receivedBytes.Add(float64(delta(&m.lastReceived, summary.Bytes)))
	m.mu.Unlock()
	m.missingChunks.Set(float64(summary.Missing))
	m.corruptedChunks.Set(float64(summary.Corrupted))
	m.throughput.WithLabelValues(string(session.DirectionReceive)).Set(summary.ThroughputMBps)
	m.transfers.WithLabelValues(string(session.DirectionReceive)).Inc()
}

// delta returns how far current has moved past *last and records
// current. A smaller current starts a new transfer.
func delta(last *uint64, current uint64) uint64 {
	previous := *last
	*last = current
	if current < previous {
		return current
	}
	return current - previous
}

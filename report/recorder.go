// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"github.com/google/uuid"

	"github.com/bureau-foundation/dctransfer/lib/clock"
	"github.com/bureau-foundation/dctransfer/rtt"
	"github.com/bureau-foundation/dctransfer/session"
	"github.com/bureau-foundation/dctransfer/transfer"
)

// Recorder is a session.Observer that builds a Report for every
// transfer and hands it to the callback once the transfer is done.
//
// A send report is done at SendComplete. A receive report is done at
// ReceiveComplete, or at the FinalStats that follows it when the
// transfer was probed.
type Recorder struct {
	session.NopObserver

	clock    clock.Clock
	onReport func(Report)

	current      *Report
	awaitingRTT  bool
	receiveEnded bool
}

// NewRecorder returns a Recorder calling onReport for each finished
// transfer. Like every observer it must only be called on the
// session's loop.
func NewRecorder(c clock.Clock, onReport func(Report)) *Recorder {
	return &Recorder{clock: c, onReport: onReport}
}

func (r *Recorder) TransferStarted(info session.TransferInfo) {
	report := &Report{
		ID:          uuid.NewString(),
		Role:        info.Direction,
		Peer:        info.Peer,
		StartedAt:   r.clock.Now(),
		ChunkSize:   info.ChunkSize,
		Connections: info.Connections,
		Channels:    info.Channels,
	}
	if info.Probe {
		report.ProbeMode = string(info.ProbeMode)
	}
	if info.Direction == session.DirectionReceive {
		report.ExpectedChunks = info.Chunks
	}
	r.current = report
	r.awaitingRTT = info.Probe && info.Direction == session.DirectionReceive
	r.receiveEnded = false
}

func (r *Recorder) SendComplete(summary transfer.SendSummary) {
	report := r.current
	if report == nil || report.Role != session.DirectionSend {
		return
	}
	report.Bytes = summary.Bytes
	report.Chunks = summary.Chunks
	report.Duration = summary.Elapsed
	report.ThroughputMBps = summary.ThroughputMBps
	report.SendErrors = summary.SendErrors
	r.finish()
}

// SendAborted discards the report of an abandoned send.
func (r *Recorder) SendAborted(error) {
	if r.current != nil && r.current.Role == session.DirectionSend {
		r.current = nil
	}
}

func (r *Recorder) ReceiveComplete(summary transfer.ReceiveSummary) {
	report := r.current
	if report == nil || report.Role != session.DirectionReceive {
		return
	}
	report.Bytes = summary.Bytes
	report.Chunks = summary.ReceivedChunks
	report.ExpectedChunks = summary.ExpectedChunks
	report.Duration = summary.Elapsed
	report.ThroughputMBps = summary.ThroughputMBps
	report.Missing = summary.Missing
	report.MissingIDs = summary.MissingIDs
	report.Duplicates = summary.Duplicates
	report.Corrupted = summary.Corrupted
	report.Verified = summary.Verified
	r.receiveEnded = true
	if !r.awaitingRTT {
		r.finish()
	}
}

func (r *Recorder) FinalStats(stats rtt.FinalStats) {
	report := r.current
	if report == nil || !r.receiveEnded {
		return
	}
	report.RTT = statsFrom(stats.RTT)
	report.Jitter = statsFrom(stats.Jitter)
	report.ProbesSent = stats.Sent
	report.ProbesReplied = stats.Replied
	report.LostProbes = stats.Lost
	r.finish()
}

func (r *Recorder) finish() {
	report := *r.current
	r.current = nil
	if r.onReport != nil {
		r.onReport(report)
	}
}

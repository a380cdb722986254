// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"github.com/bureau-foundation/dctransfer/pool"
	"github.com/bureau-foundation/dctransfer/probe"
	"github.com/bureau-foundation/dctransfer/rtt"
	"github.com/bureau-foundation/dctransfer/transfer"
)

// Direction says which side of a transfer this process is.
type Direction string

const (
	DirectionSend    Direction = "send"
	DirectionReceive Direction = "receive"
)

// TransferInfo describes a transfer as it starts.
type TransferInfo struct {
	Direction   Direction
	Peer        string
	Bytes       uint64
	Chunks      uint64
	ChunkSize   int
	Connections int
	Channels    int
	Probe       bool
	ProbeMode   probe.Mode
}

// Observer receives session events. Methods are called on the
// session's loop and must not block.
type Observer interface {
	Status(message string)
	TransferStarted(info TransferInfo)
	ConnectionOpened(label string, role pool.Role)
	ConnectionClosed(label string, role pool.Role)
	SendProgress(progress transfer.Progress)
	ReceiveProgress(progress transfer.Progress)
	// WindowMetrics receives each RTT window. A nil window had no
	// completed probes.
	WindowMetrics(window *rtt.Window)
	FinalStats(stats rtt.FinalStats)
	SendComplete(summary transfer.SendSummary)
	// SendAborted ends a send that will not complete.
	SendAborted(reason error)
	ReceiveComplete(summary transfer.ReceiveSummary)
}

// NopObserver ignores every event. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) Status(string) {}
func (NopObserver) TransferStarted(TransferInfo) {}
func (NopObserver) ConnectionOpened(string, pool.Role) {}
func (NopObserver) ConnectionClosed(string, pool.Role) {}
func (NopObserver) SendProgress(transfer.Progress) {}
func (NopObserver) ReceiveProgress(transfer.Progress) {}
func (NopObserver) WindowMetrics(*rtt.Window) {}
func (NopObserver) FinalStats(rtt.FinalStats) {}
func (NopObserver) SendComplete(transfer.SendSummary) {}
func (NopObserver) SendAborted(error) {}
func (NopObserver) ReceiveComplete(transfer.ReceiveSummary) {}

// Observers returns an Observer that forwards every event to each of
// observers in order. Nil entries are skipped.
func Observers(observers ...Observer) Observer {
	var fanout multiObserver
	for _, observer := range observers {
		if observer != nil {
			fanout = append(fanout, observer)
		}
	}
	return fanout
}

type multiObserver []Observer

func (m multiObserver) Status(message string) {
	for _, o := range m {
		o.Status(message)
	}
}

func (m multiObserver) TransferStarted(info TransferInfo) {
	for _, o := range m {
		o.TransferStarted(info)
	}
}

func (m multiObserver) ConnectionOpened(label string, role pool.Role) {
	for _, o := range m {
		o.ConnectionOpened(label, role)
	}
}

func (m multiObserver) ConnectionClosed(label string, role pool.Role) {
	for _, o := range m {
		o.ConnectionClosed(label, role)
	}
}

func (m multiObserver) SendProgress(progress transfer.Progress) {
	for _, o := range m {
		o.SendProgress(progress)
	}
}

func (m multiObserver) ReceiveProgress(progress transfer.Progress) {
	for _, o := range m {
		o.ReceiveProgress(progress)
	}
}

func (m multiObserver) WindowMetrics(window *rtt.Window) {
	for _, o := range m {
		o.WindowMetrics(window)
	}
}

func (m multiObserver) FinalStats(stats rtt.FinalStats) {
	for _, o := range m {
		o.FinalStats(stats)
	}
}

func (m multiObserver) SendComplete(summary transfer.SendSummary) {
	for _, o := range m {
		o.SendComplete(summary)
	}
}

func (m multiObserver) SendAborted(reason error) {
	for _, o := range m {
		o.SendAborted(reason)
	}
}

func (m multiObserver) ReceiveComplete(summary transfer.ReceiveSummary) {
	for _, o := range m {
		o.ReceiveComplete(summary)
	}
}

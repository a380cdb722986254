// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package report persists the outcome of a transfer.
//
// A [Recorder] observes a session and assembles one [Report] per
// transfer. Reports are stored as deterministic CBOR (lib/codec) and
// zstd-compressed when the file name ends in ".zst".
package report

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/dctransfer/rtt"
	"github.com/bureau-foundation/dctransfer/session"
)

// Stats mirrors rtt.Stats with stable field names.
type Stats struct {
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
	Mean    time.Duration `json:"mean"`
	StdDev  time.Duration `json:"std_dev"`
	Samples int           `json:"samples"`
}

func statsFrom(s *rtt.Stats) *Stats {
	if s == nil {
		return nil
	}
	return &Stats{Min: s.Min, Max: s.Max, Mean: s.Mean, StdDev: s.StdDev, Samples: s.Samples}
}

// Report is the record of one finished transfer, from one side.
type Report struct {
	ID        string            `json:"id"`
	Role      session.Direction `json:"role"`
	Peer      string            `json:"peer"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration"`

	Bytes       uint64 `json:"bytes"`
	Chunks      uint64 `json:"chunks"`
	ChunkSize   int    `json:"chunk_size"`
	Connections int    `json:"connections"`
	Channels    int    `json:"channels"`
	ProbeMode   string `json:"probe_mode,omitempty"`

	// Receiver side only.
	ExpectedChunks uint64   `json:"expected_chunks,omitempty"`
	Missing        uint64   `json:"missing"`
	MissingIDs     []uint32 `json:"missing_ids,omitempty"`
	Duplicates     uint64   `json:"duplicates,omitempty"`
	Corrupted      uint64   `json:"corrupted"`
	Verified       bool     `json:"verified"`

	// Sender side only.
	SendErrors int `json:"send_errors,omitempty"`

	ThroughputMBps float64 `json:"throughput_mbps"`

	RTT           *Stats   `json:"rtt,omitempty"`
	Jitter        *Stats   `json:"jitter,omitempty"`
	ProbesSent    int      `json:"probes_sent,omitempty"`
	ProbesReplied int      `json:"probes_replied,omitempty"`
	LostProbes    []uint32 `json:"lost_probes,omitempty"`
}

// Lossless reports whether every expected chunk arrived intact. Always
// true for send reports.
func (r Report) Lossless() bool {
	return r.Missing == 0 && r.Corrupted == 0
}

// Filename returns a sortable file name for r: start time, role and
// the first group of the id.
func (r Report) Filename(compress bool) string {
	short := r.ID
	if len(short) > 8 {
		short = short[:8]
	}
	name := fmt.Sprintf("%s-%s-%s.cbor", r.StartedAt.UTC().Format("20060102T150405Z"), r.Role, short)
	if compress {
		name += CompressedSuffix
	}
	return name
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import "time"

// DefaultProgressInterval is how often progress is reported while a
// transfer runs.
const DefaultProgressInterval = 500 * time.Millisecond

// Progress is a point-in-time view of a running transfer.
type Progress struct {
	Bytes   uint64
	Total   uint64
	Elapsed time.Duration
}

// ThroughputMBps returns the average throughput so far.
func (p Progress) ThroughputMBps() float64 {
	return ThroughputMBps(p.Bytes, p.Elapsed)
}

// Fraction returns the completed share of the transfer in [0, 1].
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 0
	}
	fraction := float64(p.Bytes) / float64(p.Total)
	if fraction > 1 {
		return 1
	}
	return fraction
}

// ThroughputMBps converts bytes moved over elapsed into MiB per second.
// Returns zero when no time has elapsed.
func ThroughputMBps(bytes uint64, elapsed time.Duration) float64 {
	seconds := elapsed.Seconds()
	if seconds <= 0 {
		return 0
	}
	return float64(bytes) / 1024 / 1024 / seconds
}

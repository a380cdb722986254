// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/dctransfer/flow"
	"github.com/bureau-foundation/dctransfer/probe"
	"github.com/bureau-foundation/dctransfer/rtt"
	"github.com/bureau-foundation/dctransfer/transfer"
)

// WorkaroundSafetyLimitMB is the per-channel send volume applied when
// the safety-limit workaround is enabled without an explicit limit.
const WorkaroundSafetyLimitMB = 512

// ProbeOptions configures round-trip probing.
type ProbeOptions struct {
	Enabled       bool
	Mode          probe.Mode
	SendingPeriod time.Duration
	MetricsPeriod time.Duration
}

// Options configures one outbound transfer.
type Options struct {
	Connections           int
	ChannelsPerConnection int

	// Unordered selects unordered channels; the zero value is ordered.
	Unordered bool

	ChunkSize       int
	PollingInterval time.Duration

	// SafetyLimitMB retires a channel after it has carried this many
	// MiB. Zero means no limit unless SafetyLimitWorkaround is set.
	SafetyLimitMB         float64
	SafetyLimitWorkaround bool

	// VerifyPayload announces the chunk payload digest so the receiver
	// checks every chunk.
	VerifyPayload bool

	ProgressInterval time.Duration
	Probe            ProbeOptions
}

// DefaultOptions returns the options used when a field is left zero.
// Every field's zero value either means "use the default" or is the
// default itself.
func DefaultOptions() Options {
	return Options{
		Connections:           1,
		ChannelsPerConnection: 1,
		ChunkSize:             transfer.DefaultChunkSize,
		PollingInterval:       flow.DefaultPollingInterval,
		ProgressInterval:      transfer.DefaultProgressInterval,
		Probe: ProbeOptions{
			Mode:          probe.ModeShared,
			SendingPeriod: probe.DefaultSendingPeriod,
			MetricsPeriod: rtt.DefaultReportingPeriod,
		},
	}
}

// normalize fills zero fields from DefaultOptions and reports every
// invalid field.
func (o Options) normalize() (Options, error) {
	defaults := DefaultOptions()
	if o.Connections == 0 {
		o.Connections = defaults.Connections
	}
	if o.ChannelsPerConnection == 0 {
		o.ChannelsPerConnection = defaults.ChannelsPerConnection
	}
	if o.ChunkSize == 0 {
		o.ChunkSize = defaults.ChunkSize
	}
	if o.PollingInterval == 0 {
		o.PollingInterval = defaults.PollingInterval
	}
	if o.ProgressInterval == 0 {
		o.ProgressInterval = defaults.ProgressInterval
	}
	if o.Probe.Mode == "" {
		o.Probe.Mode = defaults.Probe.Mode
	}
	if o.Probe.SendingPeriod == 0 {
		o.Probe.SendingPeriod = defaults.Probe.SendingPeriod
	}
	if o.Probe.MetricsPeriod == 0 {
		o.Probe.MetricsPeriod = defaults.Probe.MetricsPeriod
	}

	var errs []error
	if o.Connections < 0 {
		errs = append(errs, fmt.Errorf("connections must be positive, got %d", o.Connections))
	}
	if o.ChannelsPerConnection < 0 {
		errs = append(errs, fmt.Errorf("channels per connection must be positive, got %d", o.ChannelsPerConnection))
	}
	if o.ChunkSize <= transfer.HeaderSize {
		errs = append(errs, fmt.Errorf("chunk size must exceed %d bytes, got %d", transfer.HeaderSize, o.ChunkSize))
	}
	if o.PollingInterval < 0 {
		errs = append(errs, fmt.Errorf("polling interval must be positive, got %s", o.PollingInterval))
	}
	if o.SafetyLimitMB < 0 {
		errs = append(errs, fmt.Errorf("safety limit must not be negative, got %g", o.SafetyLimitMB))
	}
	if _, err := probe.ParseMode(string(o.Probe.Mode)); err != nil {
		errs = append(errs, err)
	}
	if o.Probe.SendingPeriod < 0 || o.Probe.MetricsPeriod < 0 {
		errs = append(errs, errors.New("probe periods must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return Options{}, fmt.Errorf("invalid transfer options: %w", err)
	}
	return o, nil
}

// safetyLimit returns the effective per-channel limit in MiB.
func (o Options) safetyLimit() float64 {
	if o.SafetyLimitMB == 0 && o.SafetyLimitWorkaround {
		return WorkaroundSafetyLimitMB
	}
	return o.SafetyLimitMB
}

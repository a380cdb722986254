// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package flow

import (
	"log/slog"
	"time"

	"github.com/bureau-foundation/dctransfer/lib/loop"
	"github.com/bureau-foundation/dctransfer/transport"
)

// DefaultPollingInterval is the buffered-amount poll period used when
// the transport has no low-threshold notification.
const DefaultPollingInterval = 10 * time.Millisecond

// pollingThresholdChunks is the buffer-full threshold in chunks for
// polling mode.
const pollingThresholdChunks = 20

// Config parameterizes a Controller.
type Config struct {
	// ChunkSize is the size of every message the sender writes.
	ChunkSize int

	// PollingInterval overrides DefaultPollingInterval.
	PollingInterval time.Duration

	// SafetyLimitMB is the cumulative send volume, in MiB, after which
	// the channel is flagged for replacement. Zero disables the limit.
	SafetyLimitMB float64
}

// Controller is the flow-control wrapper around one channel.
type Controller struct {
	loop    *loop.Loop
	channel transport.Channel
	logger  *slog.Logger

	pollingInterval time.Duration
	safetyLimitMB   float64
	eventDriven     bool
	threshold       uint64

	bytesSent     uint64
	replace       bool
	closed        bool
	closeNotified bool
	poll          *loop.Timer

	onOpen             func(*Controller)
	onClose            func(*Controller)
	onMessage          func(*Controller, []byte)
	onReady            func(*Controller)
	onAboveSafetyLimit func(*Controller)
}

// New binds a controller to channel and selects its flow-control mode.
// Transport events are posted to l. Register handlers in the same loop
// task that calls New so no event is missed.
func New(l *loop.Loop, channel transport.Channel, config Config, logger *slog.Logger) *Controller {
	interval := config.PollingInterval
	if interval <= 0 {
		interval = DefaultPollingInterval
	}
	controller := &Controller{
		loop:            l,
		channel:         channel,
		logger:          logger.With("channel", channel.Label()),
		pollingInterval: interval,
		safetyLimitMB:   config.SafetyLimitMB,
		threshold:       uint64(config.ChunkSize) * pollingThresholdChunks,
	}

	if channel.SupportsBufferedAmountLow() {
		// Event-driven. Transports fire the low event at or below their
		// threshold and IsReady needs strictly below ours, so the
		// transport threshold sits one byte lower.
		controller.eventDriven = true
		controller.threshold = uint64(config.ChunkSize) / 2
		channel.SetBufferedAmountLowThreshold(controller.threshold - 1)
	}

	channel.OnOpen(func() { l.Post(controller.handleOpen) })
	channel.OnClose(func() { l.Post(controller.handleClose) })
	channel.OnMessage(func(data []byte) {
		l.Post(func() { controller.handleMessage(data) })
	})
	channel.OnError(func(err error) {
		l.Post(func() { controller.logger.Warn("channel error", "error", err) })
	})
	return controller
}

// OnOpen sets the handler called when the channel opens.
func (c *Controller) OnOpen(handler func(*Controller)) { c.onOpen = handler }

// OnClose sets the handler called once when the channel closes, whether
// closed locally, by the peer, or by the connection going away.
func (c *Controller) OnClose(handler func(*Controller)) { c.onClose = handler }

// OnMessage sets the handler for inbound messages.
func (c *Controller) OnMessage(handler func(*Controller, []byte)) { c.onMessage = handler }

// OnReady sets the handler called when the buffered amount falls below
// the threshold after sends.
func (c *Controller) OnReady(handler func(*Controller)) { c.onReady = handler }

// OnAboveSafetyLimit sets the handler called when the channel is first
// flagged for replacement.
func (c *Controller) OnAboveSafetyLimit(handler func(*Controller)) { c.onAboveSafetyLimit = handler }

// Label returns the channel label.
func (c *Controller) Label() string { return c.channel.Label() }

// State returns the underlying channel state.
func (c *Controller) State() transport.ChannelState { return c.channel.State() }

// EventDriven reports whether readiness comes from buffered-amount-low
// events rather than polling.
func (c *Controller) EventDriven() bool { return c.eventDriven }

// Threshold returns the buffer-full threshold in bytes.
func (c *Controller) Threshold() uint64 { return c.threshold }

// BufferedAmount returns the channel's current buffered amount.
func (c *Controller) BufferedAmount() uint64 { return c.channel.BufferedAmount() }

// BytesSent returns the bytes successfully handed to the channel.
func (c *Controller) BytesSent() uint64 { return c.bytesSent }

// IsReady reports whether the buffered amount is below the threshold.
func (c *Controller) IsReady() bool {
	return c.channel.BufferedAmount() < c.threshold
}

// IsOverLimit reports whether a safety limit is set and the bytes sent,
// in MiB, meet or exceed it.
func (c *Controller) IsOverLimit() bool {
	return c.safetyLimitMB > 0 && float64(c.bytesSent)/1024/1024 >= c.safetyLimitMB
}

// MustReplace reports whether the channel has been flagged for
// replacement.
func (c *Controller) MustReplace() bool { return c.replace }

// Send writes data to the channel. It silently drops data when the
// channel is not open and returns the transport's error if the write
// fails.
func (c *Controller) Send(data []byte) error {
	if c.channel.State() != transport.ChannelOpen {
		return nil
	}
	if err := c.channel.Send(data); err != nil {
		return err
	}
	c.bytesSent += uint64(len(data))

	if !c.eventDriven && c.poll == nil {
		c.poll = c.loop.Every(c.pollingInterval, c.checkReady)
	}

	if c.IsOverLimit() && !c.replace {
		c.replace = true
		c.logger.Info("channel above safety limit, flagged for replacement",
			"bytes_sent", c.bytesSent,
			"safety_limit_mb", c.safetyLimitMB,
		)
		if c.onAboveSafetyLimit != nil {
			c.onAboveSafetyLimit(c)
		}
	}
	return nil
}

// Close stops polling, detaches the low-threshold handler and closes
// the channel. The close handler still fires when the transport reports
// the channel closed. Idempotent.
func (c *Controller) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.stopPolling()
	if c.eventDriven {
		c.channel.OnBufferedAmountLow(nil)
	}
	if err := c.channel.Close(); err != nil {
		c.logger.Warn("closing channel failed", "error", err)
	}
}

func (c *Controller) checkReady() {
	if !c.IsReady() {
		return
	}
	c.stopPolling()
	if c.onReady != nil {
		c.onReady(c)
	}
}

func (c *Controller) stopPolling() {
	if c.poll != nil {
		c.poll.Stop()
		c.poll = nil
	}
}

func (c *Controller) handleOpen() {
	if c.closed {
		return
	}
	if c.eventDriven {
		c.channel.OnBufferedAmountLow(func() { c.loop.Post(c.handleLow) })
	}
	c.logger.Debug("channel opened", "event_driven", c.eventDriven, "threshold", c.threshold)
	if c.onOpen != nil {
		c.onOpen(c)
	}
}

func (c *Controller) handleLow() {
	if c.closed {
		return
	}
	if c.onReady != nil {
		c.onReady(c)
	}
}

func (c *Controller) handleClose() {
	c.stopPolling()
	if c.closeNotified {
		return
	}
	c.closeNotified = true
	c.logger.Debug("channel closed", "bytes_sent", c.bytesSent)
	if c.onClose != nil {
		c.onClose(c)
	}
}

func (c *Controller) handleMessage(data []byte) {
	if c.onMessage != nil {
		c.onMessage(c, data)
	}
}

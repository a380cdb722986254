// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"log/slog"
	"time"

	"github.com/bureau-foundation/dctransfer/lib/loop"
	"github.com/bureau-foundation/dctransfer/rtt"
)

// Prober sends a probe every period and feeds replies to an RTT engine.
// Methods must be called on its loop.
type Prober struct {
	loop   *loop.Loop
	logger *slog.Logger
	router *Router
	engine *rtt.Engine
	period time.Duration

	next   uint32
	timer  *loop.Timer
	failed int
}

// NewProber returns a stopped prober. A non-positive period selects
// DefaultSendingPeriod.
func NewProber(l *loop.Loop, router *Router, engine *rtt.Engine, period time.Duration, logger *slog.Logger) *Prober {
	if period <= 0 {
		period = DefaultSendingPeriod
	}
	return &Prober{
		loop:   l,
		logger: logger,
		router: router,
		engine: engine,
		period: period,
	}
}

// Running reports whether probes are being sent.
func (p *Prober) Running() bool { return p.timer != nil }

// Sent returns the number of probes sent since Start.
func (p *Prober) Sent() uint32 { return p.next }

// Start restarts probe numbering and the RTT engine, then sends a probe
// every period.
func (p *Prober) Start() {
	p.Stop()
	p.next = 0
	p.failed = 0
	p.engine.Start()
	p.timer = p.loop.Every(p.period, p.tick)
	p.logger.Info("probing started", "period", p.period, "route", p.router.Route())
}

func (p *Prober) tick() {
	id := p.next
	p.next++
	p.engine.PingSent(id)
	if err := p.router.Send(Encode(id)); err != nil {
		p.failed++
		if p.failed == 1 {
			p.logger.Warn("sending probe failed", "probe", id, "error", err)
		}
	}
}

// HandleReply feeds an echoed probe to the RTT engine. Malformed or
// unknown replies are ignored.
func (p *Prober) HandleReply(message []byte) {
	id, err := Decode(message)
	if err != nil {
		p.logger.Debug("ignoring malformed probe reply", "error", err)
		return
	}
	p.engine.PongReceived(id)
}

// Stop stops sending and stops the RTT engine's windows. Idempotent.
func (p *Prober) Stop() {
	if p.timer == nil {
		return
	}
	p.timer.Stop()
	p.timer = nil
	p.engine.Stop()
	if p.failed > 0 {
		p.logger.Warn("probes that could not be sent", "failed", p.failed, "sent", p.next)
	}
}

// Echo sends message back along router's route. The sending peer calls
// it for every non-chunk message.
func Echo(router *Router, message []byte) error {
	id, err := Decode(message)
	if err != nil {
		return err
	}
	return router.Send(Encode(id))
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/dctransfer/flow"
	"github.com/bureau-foundation/dctransfer/pool"
	"github.com/bureau-foundation/dctransfer/probe"
	"github.com/bureau-foundation/dctransfer/signaling"
	"github.com/bureau-foundation/dctransfer/transfer"
	"github.com/bureau-foundation/dctransfer/transport"
)

// outboundTransfer is the state of one Send call.
type outboundTransfer struct {
	peer    string
	options Options
	setup   signaling.Setup
	sender  *transfer.Sender

	// opened counts transfer connections whose channels are all open.
	opened         int
	probeRequested bool
	probeRoute     *probe.Route
	started        bool
}

func (o *outboundTransfer) active() bool {
	switch o.sender.State() {
	case transfer.SenderNegotiating, transfer.SenderTransmitting, transfer.SenderDraining:
		return true
	}
	return false
}

// Send starts a transfer of totalBytes, rounded up to whole chunks, to
// the peer with signaling id to. It returns once the offers are sent;
// progress and completion are reported to the observer.
func (s *Session) Send(to string, totalBytes uint64, options Options) error {
	if s.closed {
		return ErrClosed
	}
	if to == "" {
		return errors.New("session: no destination peer")
	}
	if s.send != nil && s.send.active() {
		return ErrBusy
	}
	options, err := options.normalize()
	if err != nil {
		return err
	}

	logger := s.logger.With("direction", string(DirectionSend), "peer", to)
	sender, err := transfer.NewSender(s.loop, transfer.SenderConfig{
		TotalBytes:       totalBytes,
		ChunkSize:        options.ChunkSize,
		DrainInterval:    options.PollingInterval,
		ProgressInterval: options.ProgressInterval,
	}, logger)
	if err != nil {
		return err
	}

	out := &outboundTransfer{peer: to, options: options, sender: sender}
	out.setup = signaling.Setup{
		Transfer: signaling.TransferSetup{
			BytesToSend:     sender.TargetBytes(),
			ChunksToSend:    sender.Chunks(),
			ChunkSize:       options.ChunkSize,
			PeerConnections: options.Connections,
			DataChannels:    options.ChannelsPerConnection,
			OrderedData:     !options.Unordered,
		},
		PingPong: signaling.ProbeSetup{
			Enabled:             options.Probe.Enabled,
			Mode:                string(options.Probe.Mode),
			DedicatedConnection: options.Probe.Mode == probe.ModeDedicatedConnection,
			DedicatedChannel:    options.Probe.Mode != probe.ModeShared,
			SendingPeriod:       options.Probe.SendingPeriod.Milliseconds(),
			MetricsPeriod:       options.Probe.MetricsPeriod.Milliseconds(),
		},
	}
	if options.VerifyPayload {
		out.setup.Transfer.PayloadDigest = sender.Digest().String()
	}

	sender.OnProgress(s.observer.SendProgress)
	sender.OnStateChange(func(state transfer.SenderState) {
		s.observer.Status("send " + state.String())
	})
	sender.OnComplete(s.observer.SendComplete)

	s.send = out
	s.sendRouter.SetRoute(probe.Route{})
	sender.BeginNegotiation()
	logger.Info("starting transfer",
		"bytes", sender.TargetBytes(),
		"chunks", sender.Chunks(),
		"connections", options.Connections,
		"channels_per_connection", options.ChannelsPerConnection,
		"probe", options.Probe.Enabled,
		"probe_mode", string(options.Probe.Mode),
	)

	for i := 0; i < options.Connections; i++ {
		if err := s.openOutbound(out, pool.RoleTransfer); err != nil {
			s.abortSend(out, err)
			return err
		}
	}
	if options.Probe.Enabled && options.Probe.Mode == probe.ModeDedicatedConnection {
		if err := s.openOutbound(out, pool.RoleProbe); err != nil {
			s.abortSend(out, err)
			return err
		}
	}
	return nil
}

// openOutbound creates one connection for out and sends its offer.
func (s *Session) openOutbound(out *outboundTransfer, role pool.Role) error {
	conn, err := s.factory.NewConnection()
	if err != nil {
		return fmt.Errorf("creating %s connection: %w", role, err)
	}
	params := pool.Params{
		Label:           s.newLabel(),
		TotalChannels:   out.options.ChannelsPerConnection,
		Ordered:         !out.options.Unordered,
		ChunkSize:       out.options.ChunkSize,
		PollingInterval: out.options.PollingInterval,
		SafetyLimitMB:   out.options.safetyLimit(),
		Role:            role,
	}
	if role == pool.RoleProbe {
		params.TotalChannels = 0
	}

	entry := pool.New(s.loop, conn, params, s.logger)
	entry.OnLocalOffer(func(c *pool.Connection, offer transport.SessionDescription) {
		s.signal(signaling.Message{
			Type: signaling.KindOffer,
			To:   out.peer,
			Connection: &signaling.Connection{
				Label:           params.Label,
				TotalChannels:   params.TotalChannels,
				OrderedData:     params.Ordered,
				PollingInterval: params.PollingInterval.Milliseconds(),
				ChunkSize:       params.ChunkSize,
				SafetyLimit:     params.SafetyLimitMB,
				Role:            string(params.Role),
			},
			Description: &offer,
			Setup:       &out.setup,
		})
	})
	entry.OnICECandidate(func(c *pool.Connection, candidate transport.ICECandidate) {
		s.signal(s.candidateMessage(out.peer, c, candidate))
	})
	entry.OnOpen(func(c *pool.Connection) { s.handleOutboundOpen(out, c) })
	entry.OnProbeOpen(func(c *pool.Connection, channel *flow.Controller) {
		s.handleOutboundProbeOpen(out, c, channel)
	})
	entry.OnReadyToSend(func(*pool.Connection) {
		if s.send == out {
			out.sender.Resume()
		}
	})
	entry.OnMessage(s.handleOutboundMessage)
	entry.OnClose(func(c *pool.Connection) { s.handleOutboundClose(out, c) })

	s.outbound.add(entry, out.peer)
	if role == pool.RoleTransfer {
		out.sender.AddSource(entry)
	}
	if err := entry.InitAsSender(); err != nil {
		s.outbound.remove(entry.Label())
		out.sender.RemoveSource(entry)
		entry.Close()
		return err
	}
	return nil
}

func (s *Session) abortSend(out *outboundTransfer, err error) {
	s.logger.Warn("transfer aborted", "peer", out.peer, "error", err)
	s.observer.Status("send aborted: " + err.Error())
	out.sender.Stop()
	s.observer.SendAborted(err)
	for _, m := range s.outbound.all() {
		m.conn.Close()
	}
}

func (s *Session) handleAnswer(message signaling.Message) {
	m := s.outbound.get(message.Connection.Label)
	if m == nil {
		s.logger.Debug("answer for unknown connection", "connection", message.Connection.Label, "from", message.From)
		return
	}
	if err := m.conn.SetRemoteAnswer(*message.Description); err != nil {
		s.failConnection(m.conn, err)
	}
}

func (s *Session) handleOutboundOpen(out *outboundTransfer, c *pool.Connection) {
	if m := s.outbound.get(c.Label()); m != nil {
		s.reportOpened(m)
	}
	if s.send != out {
		return
	}
	out.opened++
	s.maybeStartSend(out)
}

func (s *Session) handleOutboundProbeOpen(out *outboundTransfer, c *pool.Connection, channel *flow.Controller) {
	if m := s.outbound.get(c.Label()); m != nil && c.Role() == pool.RoleProbe {
		s.reportOpened(m)
	}
	if s.send != out {
		return
	}
	out.probeRoute = &probe.Route{ConnectionLabel: c.Label(), ChannelLabel: channel.Label()}
	s.maybeStartSend(out)
}

// maybeStartSend starts transmitting once every transfer connection is
// open and, when probing on a dedicated route, the probe channel is
// open too. The route is announced to the peer first.
func (s *Session) maybeStartSend(out *outboundTransfer) {
	if out.started || out.sender.State() != transfer.SenderNegotiating {
		return
	}
	if out.opened < out.options.Connections {
		return
	}

	if out.options.Probe.Enabled {
		route := probe.Route{}
		switch out.options.Probe.Mode {
		case probe.ModeDedicatedChannel:
			if out.probeRoute == nil {
				s.requestProbeChannel(out)
				return
			}
			route = *out.probeRoute
		case probe.ModeDedicatedConnection:
			if out.probeRoute == nil {
				return
			}
			route = *out.probeRoute
		}
		s.sendRouter.SetRoute(route)
		s.signal(signaling.Message{
			Type: signaling.KindProbeSetup,
			To:   out.peer,
			Connection: &signaling.Connection{
				Label:   route.ConnectionLabel,
				Channel: &signaling.Channel{Label: route.ChannelLabel},
			},
		})
	}

	out.started = true
	s.observer.TransferStarted(TransferInfo{
		Direction:   DirectionSend,
		Peer:        out.peer,
		Bytes:       out.sender.TargetBytes(),
		Chunks:      out.sender.Chunks(),
		ChunkSize:   out.options.ChunkSize,
		Connections: out.options.Connections,
		Channels:    out.options.ChannelsPerConnection,
		Probe:       out.options.Probe.Enabled,
		ProbeMode:   out.options.Probe.Mode,
	})
	out.sender.Start()
}

// requestProbeChannel adds the dedicated probe channel to the first
// transfer connection.
func (s *Session) requestProbeChannel(out *outboundTransfer) {
	if out.probeRequested {
		return
	}
	endpoints := s.outbound.Endpoints()
	if len(endpoints) == 0 {
		return
	}
	out.probeRequested = true
	first := s.outbound.get(endpoints[0].Label())
	if _, err := first.conn.CreateProbeChannel(); err != nil {
		s.logger.Warn("creating probe channel failed, probing on shared channels", "error", err)
		out.options.Probe.Mode = probe.ModeShared
		s.maybeStartSend(out)
	}
}

// handleOutboundMessage echoes probes back to the receiver. Everything
// a sender receives is a probe.
func (s *Session) handleOutboundMessage(c *pool.Connection, channel *flow.Controller, data []byte) {
	if err := probe.Echo(s.sendRouter, data); err != nil {
		s.logger.Debug("echoing probe failed", "connection", c.Label(), "channel", channel.Label(), "error", err)
	}
}

func (s *Session) handleOutboundClose(out *outboundTransfer, c *pool.Connection) {
	m := s.outbound.remove(c.Label())
	if m == nil {
		return
	}
	s.reportClosed(m)
	if c.Role() != pool.RoleTransfer {
		return
	}
	out.sender.RemoveSource(c)
	if s.send != out || s.closed {
		return
	}
	state := out.sender.State()
	if (state == transfer.SenderNegotiating || state == transfer.SenderTransmitting) && s.outbound.transferCount() == 0 {
		s.logger.Warn("every transfer connection closed before the transfer finished",
			"peer", out.peer,
			"bytes_sent", out.sender.BytesSent(),
		)
		s.observer.Status("send aborted: connections closed")
		out.sender.Stop()
		s.observer.SendAborted(ErrConnectionsClosed)
		for _, remaining := range s.outbound.all() {
			remaining.conn.Close()
		}
	}
}

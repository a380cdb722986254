// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"

	"github.com/bureau-foundation/dctransfer/flow"
	"github.com/bureau-foundation/dctransfer/pool"
	"github.com/bureau-foundation/dctransfer/probe"
	"github.com/bureau-foundation/dctransfer/rtt"
	"github.com/bureau-foundation/dctransfer/signaling"
	"github.com/bureau-foundation/dctransfer/transfer"
	"github.com/bureau-foundation/dctransfer/transport"
)

// inboundTransfer is the state of the transfer being received.
type inboundTransfer struct {
	peer  string
	setup signaling.Setup

	// engine and prober are nil when the sender did not ask for
	// probing.
	engine *rtt.Engine
	prober *probe.Prober
}

func (s *Session) handleOffer(message signaling.Message) {
	label := message.Connection.Label
	if s.inbound.get(label) != nil {
		s.logger.Warn("ignoring repeated offer", "connection", label, "from", message.From)
		return
	}
	role := pool.Role(message.Connection.Role)
	if role == "" {
		role = pool.RoleTransfer
	}
	if role == pool.RoleTransfer {
		if err := s.prepareReceive(message.From, *message.Setup, message.Connection); err != nil {
			s.logger.Warn("rejecting offer", "connection", label, "from", message.From, "error", err)
			s.observer.Status(fmt.Sprintf("rejected offer %s: %v", label, err))
			return
		}
	}

	conn, err := s.factory.NewConnection()
	if err != nil {
		s.logger.Error("creating connection failed", "connection", label, "error", err)
		s.observer.Status(fmt.Sprintf("connection %s failed: %v", label, err))
		return
	}
	params := pool.Params{
		Label:           label,
		TotalChannels:   message.Connection.TotalChannels,
		Ordered:         message.Connection.OrderedData,
		ChunkSize:       message.Connection.ChunkSize,
		PollingInterval: fromMilliseconds(message.Connection.PollingInterval),
		SafetyLimitMB:   message.Connection.SafetyLimit,
		Role:            role,
	}
	peer := message.From
	entry := pool.New(s.loop, conn, params, s.logger)
	entry.OnLocalAnswer(func(c *pool.Connection, answer transport.SessionDescription) {
		s.signal(signaling.Message{
			Type:        signaling.KindAnswer,
			To:          peer,
			Connection:  &signaling.Connection{Label: c.Label()},
			Description: &answer,
		})
	})
	entry.OnICECandidate(func(c *pool.Connection, candidate transport.ICECandidate) {
		s.signal(s.candidateMessage(peer, c, candidate))
	})
	entry.OnMessage(s.handleInboundMessage)
	entry.OnClose(s.handleInboundClose)

	m := s.inbound.add(entry, peer)
	if err := entry.InitAsReceiver(*message.Description); err != nil {
		s.failConnection(entry, err)
		return
	}
	s.reportOpened(m)
}

// prepareReceive resets the receiver for the transfer an offer
// describes, unless a transfer is already arriving.
func (s *Session) prepareReceive(peer string, setup signaling.Setup, connection *signaling.Connection) error {
	if s.receiver.State() == transfer.ReceiverReceiving {
		return nil
	}

	chunkSize := setup.Transfer.ChunkSize
	if chunkSize == 0 {
		chunkSize = connection.ChunkSize
	}
	if chunkSize == 0 {
		chunkSize = transfer.DefaultChunkSize
	}
	expected := setup.Transfer.ChunksToSend
	if expected == 0 {
		expected = transfer.ChunkCount(setup.Transfer.BytesToSend, chunkSize)
	}
	config := transfer.ReceiverConfig{
		ChunkSize:        chunkSize,
		ExpectedChunks:   expected,
		ProgressInterval: s.receiveProgressInterval,
	}
	if setup.Transfer.PayloadDigest != "" {
		digest, err := transfer.ParseDigest(setup.Transfer.PayloadDigest)
		if err != nil {
			return err
		}
		config.Digest = &digest
	}
	if err := s.receiver.Reset(config); err != nil {
		return err
	}

	s.stopProbing()
	s.receiveRouter.SetRoute(probe.Route{})
	in := &inboundTransfer{peer: peer, setup: setup}
	if setup.PingPong.Enabled {
		logger := s.logger.With("direction", string(DirectionReceive), "peer", peer)
		sendingPeriod := fromMilliseconds(setup.PingPong.SendingPeriod)
		in.engine = rtt.New(s.loop, rtt.Config{
			SendingPeriod:   sendingPeriod,
			ReportingPeriod: fromMilliseconds(setup.PingPong.MetricsPeriod),
		}, logger)
		in.engine.OnWindow(s.observer.WindowMetrics)
		in.prober = probe.NewProber(s.loop, s.receiveRouter, in.engine, sendingPeriod, logger)
	}
	s.receive = in
	return nil
}

func (s *Session) handleProbeSetup(message signaling.Message) {
	route := probe.Route{}
	if message.Connection != nil {
		route.ConnectionLabel = message.Connection.Label
		if message.Connection.Channel != nil {
			route.ChannelLabel = message.Connection.Channel.Label
		}
	}
	s.receiveRouter.SetRoute(route)
	s.logger.Info("probe route announced",
		"from", message.From,
		"connection", route.ConnectionLabel,
		"channel", route.ChannelLabel,
	)
}

// handleInboundMessage feeds chunks to the receiver and everything else
// to the prober as a probe reply.
func (s *Session) handleInboundMessage(c *pool.Connection, channel *flow.Controller, data []byte) {
	if s.receiver.HandleMessage(data) {
		return
	}
	if s.receive != nil && s.receive.prober != nil {
		s.receive.prober.HandleReply(data)
	}
}

func (s *Session) handleReceiveStart() {
	in := s.receive
	if in == nil {
		return
	}
	s.observer.TransferStarted(TransferInfo{
		Direction:   DirectionReceive,
		Peer:        in.peer,
		Bytes:       s.receiver.TargetBytes(),
		Chunks:      s.receiver.TargetBytes() / uint64(s.receiver.ChunkSize()),
		ChunkSize:   s.receiver.ChunkSize(),
		Connections: in.setup.Transfer.PeerConnections,
		Channels:    in.setup.Transfer.DataChannels,
		Probe:       in.setup.PingPong.Enabled,
		ProbeMode:   probe.Mode(in.setup.PingPong.Mode),
	})
	s.observer.Status("receiving")
	if in.prober != nil {
		in.prober.Start()
	}
}

func (s *Session) handleReceiveComplete(summary transfer.ReceiveSummary) {
	s.observer.ReceiveComplete(summary)
	if in := s.receive; in != nil && in.prober != nil {
		in.prober.Stop()
		s.observer.FinalStats(in.engine.FinalStats())
	}
	s.observer.Status("receive complete")
	// Close once the current message dispatch has returned.
	s.loop.Post(s.closeInbound)
}

func (s *Session) closeInbound() {
	for _, m := range s.inbound.all() {
		m.conn.Close()
	}
}

func (s *Session) handleInboundClose(c *pool.Connection) {
	m := s.inbound.remove(c.Label())
	if m == nil {
		return
	}
	s.reportClosed(m)
	if s.closed || s.receiver.State() != transfer.ReceiverReceiving {
		return
	}
	if s.inbound.transferCount() == 0 {
		s.logger.Warn("every transfer connection closed before the transfer finished",
			"bytes_received", s.receiver.BytesReceived(),
			"target_bytes", s.receiver.TargetBytes(),
		)
		s.observer.Status("receive interrupted: connections closed")
		s.stopProbing()
		s.receiver.Stop()
	}
}

func (s *Session) stopProbing() {
	if s.receive != nil && s.receive.prober != nil {
		s.receive.prober.Stop()
	}
}

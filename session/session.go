// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/dctransfer/lib/loop"
	"github.com/bureau-foundation/dctransfer/pool"
	"github.com/bureau-foundation/dctransfer/probe"
	"github.com/bureau-foundation/dctransfer/signaling"
	"github.com/bureau-foundation/dctransfer/transfer"
	"github.com/bureau-foundation/dctransfer/transport"
)

var (
	// ErrBusy is returned by Send while an earlier transfer is still
	// negotiating or transmitting.
	ErrBusy = errors.New("session: a transfer is already in progress")

	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("session: closed")

	// ErrConnectionsClosed is the abort reason when every transfer
	// connection closes before the last chunk is queued.
	ErrConnectionsClosed = errors.New("session: every transfer connection closed")
)

// Signaler sends signaling messages to the peer named in each message.
// *signaling.Client and *signaling.MemoryPeer implement it.
type Signaler interface {
	LocalID() string
	Send(message signaling.Message) error
}

// Config holds a session's collaborators.
type Config struct {
	Loop     *loop.Loop
	Factory  transport.Factory
	Signaler Signaler

	// Observer defaults to NopObserver.
	Observer Observer
	Logger   *slog.Logger

	// ReceiveProgressInterval is the receiver's progress period.
	// Defaults to transfer.DefaultProgressInterval.
	ReceiveProgressInterval time.Duration

	// NewLabel names new outbound connections. Defaults to
	// "PeerConnection-" followed by a random UUID.
	NewLabel func() string
}

// Session owns the connections, transfers and probes of one peer.
type Session struct {
	loop     *loop.Loop
	factory  transport.Factory
	signaler Signaler
	observer Observer
	logger   *slog.Logger
	newLabel func() string

	receiveProgressInterval time.Duration

	outbound   *connectionSet
	sendRouter *probe.Router
	send       *outboundTransfer

	inbound       *connectionSet
	receiveRouter *probe.Router
	receiver      *transfer.Receiver
	receive       *inboundTransfer

	closed bool
}

// New creates a session. Loop, Factory and Signaler are required.
func New(config Config) (*Session, error) {
	if config.Loop == nil || config.Factory == nil || config.Signaler == nil {
		return nil, errors.New("session: loop, transport factory and signaler are required")
	}
	if config.Observer == nil {
		config.Observer = NopObserver{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.NewLabel == nil {
		config.NewLabel = func() string { return "PeerConnection-" + uuid.NewString() }
	}

	s := &Session{
		loop:                    config.Loop,
		factory:                 config.Factory,
		signaler:                config.Signaler,
		observer:                config.Observer,
		logger:                  config.Logger,
		newLabel:                config.NewLabel,
		receiveProgressInterval: config.ReceiveProgressInterval,
		outbound:                newConnectionSet(),
		inbound:                 newConnectionSet(),
	}
	s.sendRouter = probe.NewRouter(s.outbound)
	s.receiveRouter = probe.NewRouter(s.inbound)
	s.receiver = transfer.NewReceiver(s.loop, s.logger.With("direction", string(DirectionReceive)))
	s.receiver.OnStart(s.handleReceiveStart)
	s.receiver.OnProgress(s.observer.ReceiveProgress)
	s.receiver.OnComplete(s.handleReceiveComplete)
	return s, nil
}

// LocalID returns the signaling id of this peer.
func (s *Session) LocalID() string { return s.signaler.LocalID() }

// HandleSignal applies a signaling message from the peer.
func (s *Session) HandleSignal(message signaling.Message) {
	if s.closed {
		return
	}
	if err := message.Validate(); err != nil {
		s.logger.Warn("ignoring signaling message", "from", message.From, "error", err)
		return
	}
	switch message.Type {
	case signaling.KindOffer:
		s.handleOffer(message)
	case signaling.KindAnswer:
		s.handleAnswer(message)
	case signaling.KindCandidate:
		s.handleCandidate(message)
	case signaling.KindProbeSetup:
		s.handleProbeSetup(message)
	default:
		s.logger.Debug("ignoring signaling message", "type", message.Type, "from", message.From)
	}
}

func (s *Session) handleCandidate(message signaling.Message) {
	label := message.Connection.Label
	m := s.outbound.get(label)
	if m == nil {
		m = s.inbound.get(label)
	}
	if m == nil {
		s.logger.Debug("candidate for unknown connection", "connection", label, "from", message.From)
		return
	}
	if err := m.conn.AddICECandidate(*message.Candidate); err != nil {
		s.failConnection(m.conn, err)
	}
}

// Close stops every transfer and probe and closes every connection.
// Idempotent.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.stopProbing()
	if s.send != nil {
		s.send.sender.Stop()
	}
	s.receiver.Stop()
	for _, m := range s.outbound.all() {
		m.conn.Close()
	}
	for _, m := range s.inbound.all() {
		m.conn.Close()
	}
	s.logger.Info("session closed")
}

// signal sends message, logging failures.
func (s *Session) signal(message signaling.Message) {
	if err := s.signaler.Send(message); err != nil {
		s.logger.Warn("sending signaling message failed",
			"type", message.Type,
			"to", message.To,
			"error", err,
		)
	}
}

func (s *Session) candidateMessage(peer string, conn *pool.Connection, candidate transport.ICECandidate) signaling.Message {
	return signaling.Message{
		Type:       signaling.KindCandidate,
		To:         peer,
		Connection: &signaling.Connection{Label: conn.Label()},
		Candidate:  &candidate,
	}
}

// failConnection reports a negotiation failure and closes only the
// affected connection.
func (s *Session) failConnection(conn *pool.Connection, err error) {
	s.logger.Warn("negotiation failed", "connection", conn.Label(), "error", err)
	s.observer.Status(fmt.Sprintf("connection %s failed: %v", conn.Label(), err))
	conn.Close()
}

func (s *Session) reportOpened(m *member) {
	if m.opened {
		return
	}
	m.opened = true
	s.observer.ConnectionOpened(m.conn.Label(), m.conn.Role())
}

func (s *Session) reportClosed(m *member) {
	if m.opened {
		s.observer.ConnectionClosed(m.conn.Label(), m.conn.Role())
	}
}

func fromMilliseconds(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }

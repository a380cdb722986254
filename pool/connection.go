// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pool

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/dctransfer/flow"
	"github.com/bureau-foundation/dctransfer/lib/loop"
	"github.com/bureau-foundation/dctransfer/transport"
)

// Role is what a connection is used for.
type Role string

const (
	// RoleTransfer connections carry bulk chunks.
	RoleTransfer Role = "transfer"

	// RoleProbe connections carry one dedicated probe channel.
	RoleProbe Role = "pingpong"
)

// ErrClosed is returned by operations on a closed connection.
var ErrClosed = errors.New("pool: connection closed")

// Params describes a connection. The sender sends them in its offer so
// the receiver builds a matching pool entry.
type Params struct {
	Label           string
	TotalChannels   int
	Ordered         bool
	ChunkSize       int
	PollingInterval time.Duration
	SafetyLimitMB   float64
	Role            Role
}

// ChannelLabel returns the label of the index'th channel of the
// connection labelled connectionLabel.
func ChannelLabel(index int, connectionLabel string) string {
	return fmt.Sprintf("DataChannel-%d@%s", index, connectionLabel)
}

// ProbeChannelLabel returns the label of a connection's dedicated probe
// channel.
func ProbeChannelLabel(connectionLabel string) string {
	return "DataChannel-pingpong@" + connectionLabel
}

// Connection is one pool entry.
type Connection struct {
	loop      *loop.Loop
	transport transport.Connection
	params    Params
	logger    *slog.Logger

	channels map[string]*flow.Controller
	// order keeps channels in creation order for enumeration.
	order  []string
	active []*flow.Controller
	probe  *flow.Controller

	nextChannel       int
	remoteSet         bool
	pendingCandidates []transport.ICECandidate

	closed     bool
	terminated bool

	onLocalOffer   func(*Connection, transport.SessionDescription)
	onLocalAnswer  func(*Connection, transport.SessionDescription)
	onICECandidate func(*Connection, transport.ICECandidate)
	onOpen         func(*Connection)
	onProbeOpen    func(*Connection, *flow.Controller)
	onClose        func(*Connection)
	onReadyToSend  func(*Connection)
	onMessage      func(*Connection, *flow.Controller, []byte)
}

// New creates a pool entry around conn. Transport events are posted to
// l.
func New(l *loop.Loop, conn transport.Connection, params Params, logger *slog.Logger) *Connection {
	if params.Role == "" {
		params.Role = RoleTransfer
	}
	c := &Connection{
		loop:      l,
		transport: conn,
		params:    params,
		logger:    logger.With("connection", params.Label, "role", string(params.Role)),
		channels:  make(map[string]*flow.Controller),
	}
	conn.OnICECandidate(func(candidate transport.ICECandidate) {
		l.Post(func() {
			if c.onICECandidate != nil && !c.closed {
				c.onICECandidate(c, candidate)
			}
		})
	})
	conn.OnStateChange(func(state transport.ConnectionState) {
		l.Post(func() { c.handleState(state) })
	})
	return c
}

// OnLocalOffer sets the handler receiving the offer from InitAsSender.
func (c *Connection) OnLocalOffer(handler func(*Connection, transport.SessionDescription)) {
	c.onLocalOffer = handler
}

// OnLocalAnswer sets the handler receiving the answer from
// InitAsReceiver.
func (c *Connection) OnLocalAnswer(handler func(*Connection, transport.SessionDescription)) {
	c.onLocalAnswer = handler
}

// OnICECandidate sets the handler for locally gathered candidates.
func (c *Connection) OnICECandidate(handler func(*Connection, transport.ICECandidate)) {
	c.onICECandidate = handler
}

// OnOpen sets the handler called when the active list first reaches the
// target channel count.
func (c *Connection) OnOpen(handler func(*Connection)) { c.onOpen = handler }

// OnProbeOpen sets the handler called when a dedicated probe channel
// opens.
func (c *Connection) OnProbeOpen(handler func(*Connection, *flow.Controller)) {
	c.onProbeOpen = handler
}

// OnClose sets the handler called once when the connection reaches a
// terminal state.
func (c *Connection) OnClose(handler func(*Connection)) { c.onClose = handler }

// OnReadyToSend sets the handler called when an active channel regains
// headroom or a replacement channel takes its slot.
func (c *Connection) OnReadyToSend(handler func(*Connection)) { c.onReadyToSend = handler }

// OnMessage sets the handler for messages on any channel.
func (c *Connection) OnMessage(handler func(*Connection, *flow.Controller, []byte)) {
	c.onMessage = handler
}

// Label returns the connection label.
func (c *Connection) Label() string { return c.params.Label }

// Params returns the connection parameters.
func (c *Connection) Params() Params { return c.params }

// Role returns the connection role.
func (c *Connection) Role() Role { return c.params.Role }

// Closed reports whether the connection was closed or reached a
// terminal state.
func (c *Connection) Closed() bool { return c.closed || c.terminated }

// InitAsSender creates the connection's channels and negotiates an
// offer, delivered to the OnLocalOffer handler. A transfer connection
// gets its target channel count; a probe connection gets one probe
// channel.
func (c *Connection) InitAsSender() error {
	if c.Closed() {
		return ErrClosed
	}
	if c.params.Role == RoleProbe {
		if _, err := c.CreateProbeChannel(); err != nil {
			return err
		}
	} else {
		c.createSenderChannels(c.params.TotalChannels)
	}

	offer, err := c.transport.CreateOffer()
	if err != nil {
		return fmt.Errorf("negotiating connection %s: %w", c.params.Label, err)
	}
	c.logger.Info("local offer created", "channels", len(c.order))
	if c.onLocalOffer != nil {
		c.onLocalOffer(c, offer)
	}
	return nil
}

// InitAsReceiver applies the remote offer, accepts the channels the
// peer announces and negotiates an answer, delivered to the
// OnLocalAnswer handler.
func (c *Connection) InitAsReceiver(offer transport.SessionDescription) error {
	if c.Closed() {
		return ErrClosed
	}
	c.transport.OnChannel(func(channel transport.Channel) {
		c.loop.Post(func() { c.acceptChannel(channel) })
	})
	if err := c.transport.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("applying offer for connection %s: %w", c.params.Label, err)
	}
	c.remoteSet = true
	c.flushCandidates()

	answer, err := c.transport.CreateAnswer()
	if err != nil {
		return fmt.Errorf("answering connection %s: %w", c.params.Label, err)
	}
	c.logger.Info("local answer created")
	if c.onLocalAnswer != nil {
		c.onLocalAnswer(c, answer)
	}
	return nil
}

// SetRemoteAnswer applies the peer's answer.
func (c *Connection) SetRemoteAnswer(answer transport.SessionDescription) error {
	if c.Closed() {
		return ErrClosed
	}
	if err := c.transport.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("applying answer for connection %s: %w", c.params.Label, err)
	}
	c.remoteSet = true
	c.flushCandidates()
	return nil
}

// AddICECandidate applies a remote candidate. Candidates that arrive
// before the remote description are held and applied with it.
func (c *Connection) AddICECandidate(candidate transport.ICECandidate) error {
	if c.Closed() {
		return ErrClosed
	}
	if !c.remoteSet {
		c.pendingCandidates = append(c.pendingCandidates, candidate)
		return nil
	}
	if err := c.transport.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("adding candidate to connection %s: %w", c.params.Label, err)
	}
	return nil
}

func (c *Connection) flushCandidates() {
	pending := c.pendingCandidates
	c.pendingCandidates = nil
	for _, candidate := range pending {
		if err := c.transport.AddICECandidate(candidate); err != nil {
			c.logger.Warn("applying held ICE candidate failed", "error", err)
		}
	}
}

// CreateProbeChannel creates the dedicated probe channel. On an
// established connection it opens without renegotiation.
func (c *Connection) CreateProbeChannel() (*flow.Controller, error) {
	if c.Closed() {
		return nil, ErrClosed
	}
	label := ProbeChannelLabel(c.params.Label)
	channel, err := c.transport.CreateChannel(label, c.params.Ordered)
	if err != nil {
		return nil, fmt.Errorf("creating probe channel on %s: %w", c.params.Label, err)
	}
	controller := c.newController(channel)
	controller.OnOpen(c.handleProbeOpen)
	controller.OnClose(c.handleProbeClose)
	c.probe = controller
	c.addChannel(controller)
	return controller, nil
}

// ReadyChannels returns the active channels whose buffers have
// headroom, in slot order.
func (c *Connection) ReadyChannels() []*flow.Controller {
	var ready []*flow.Controller
	for _, controller := range c.active {
		if controller.IsReady() {
			ready = append(ready, controller)
		}
	}
	return ready
}

// Active returns the active list in slot order.
func (c *Connection) Active() []*flow.Controller {
	return append([]*flow.Controller(nil), c.active...)
}

// Channels returns every live channel, the probe channel included, in
// creation order.
func (c *Connection) Channels() []*flow.Controller {
	channels := make([]*flow.Controller, 0, len(c.order))
	for _, label := range c.order {
		channels = append(channels, c.channels[label])
	}
	return channels
}

// FindChannel returns the live channel with label, or nil.
func (c *Connection) FindChannel(label string) *flow.Controller {
	if c.probe != nil && c.probe.Label() == label {
		return c.probe
	}
	return c.channels[label]
}

// ProbeChannel returns the dedicated probe channel, or nil.
func (c *Connection) ProbeChannel() *flow.Controller { return c.probe }

// Close closes every channel and the transport connection. The close
// handler fires when the transport reports the closed state.
// Idempotent.
func (c *Connection) Close() {
	if c.closed {
		return
	}
	c.closed = true
	channels := c.Channels()
	c.clearBookkeeping()
	for _, controller := range channels {
		controller.Close()
	}
	if c.transport.State() != transport.ConnectionClosed {
		if err := c.transport.Close(); err != nil {
			c.logger.Warn("closing transport connection failed", "error", err)
		}
	}
	c.logger.Info("connection closed")
}

func (c *Connection) clearBookkeeping() {
	c.channels = make(map[string]*flow.Controller)
	c.order = nil
	c.active = nil
	c.probe = nil
	c.pendingCandidates = nil
}

func (c *Connection) createSenderChannels(count int) {
	for i := 0; i < count; i++ {
		label := ChannelLabel(c.nextChannel, c.params.Label)
		c.nextChannel++
		channel, err := c.transport.CreateChannel(label, c.params.Ordered)
		if err != nil {
			c.logger.Error("creating channel failed", "channel", label, "error", err)
			continue
		}
		controller := c.newController(channel)
		controller.OnOpen(c.handleSenderChannelOpen)
		controller.OnClose(c.handleSenderChannelClose)
		controller.OnReady(c.handleChannelReady)
		controller.OnAboveSafetyLimit(c.handleAboveSafetyLimit)
		c.addChannel(controller)
	}
}

func (c *Connection) newController(channel transport.Channel) *flow.Controller {
	controller := flow.New(c.loop, channel, flow.Config{
		ChunkSize:       c.params.ChunkSize,
		PollingInterval: c.params.PollingInterval,
		SafetyLimitMB:   c.params.SafetyLimitMB,
	}, c.logger)
	controller.OnMessage(c.handleChannelMessage)
	return controller
}

func (c *Connection) addChannel(controller *flow.Controller) {
	label := controller.Label()
	if _, exists := c.channels[label]; !exists {
		c.order = append(c.order, label)
	}
	c.channels[label] = controller
}

func (c *Connection) removeChannel(controller *flow.Controller) {
	label := controller.Label()
	if c.channels[label] != controller {
		return
	}
	delete(c.channels, label)
	for i, candidate := range c.order {
		if candidate == label {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Connection) activeIndex(controller *flow.Controller) int {
	for i, member := range c.active {
		if member == controller {
			return i
		}
	}
	return -1
}

func (c *Connection) handleSenderChannelOpen(controller *flow.Controller) {
	if c.Closed() {
		return
	}
	if len(c.active) < c.params.TotalChannels {
		c.active = append(c.active, controller)
		if len(c.active) == c.params.TotalChannels {
			c.logger.Info("all channels open", "channels", len(c.active))
			if c.onOpen != nil {
				c.onOpen(c)
			}
		}
		return
	}

	for i, member := range c.active {
		if !member.MustReplace() {
			continue
		}
		c.logger.Info("replacing channel",
			"retired", member.Label(),
			"replacement", controller.Label(),
			"retired_bytes_sent", member.BytesSent(),
		)
		c.active[i] = controller
		member.Close()
		if c.onReadyToSend != nil {
			c.onReadyToSend(c)
		}
		return
	}
	c.logger.Debug("spare channel opened with no member to replace", "channel", controller.Label())
}

func (c *Connection) handleSenderChannelClose(controller *flow.Controller) {
	if c.Closed() {
		return
	}
	if c.activeIndex(controller) >= 0 {
		c.logger.Warn("active channel closed unexpectedly, closing connection",
			"channel", controller.Label(),
			"bytes_sent", controller.BytesSent(),
		)
		c.Close()
		return
	}
	c.removeChannel(controller)
	if len(c.channels) == 0 {
		c.logger.Info("last channel closed")
		c.Close()
	}
}

func (c *Connection) handleReceiverChannelClose(controller *flow.Controller) {
	if c.Closed() {
		return
	}
	c.removeChannel(controller)
	if len(c.channels) == 0 {
		c.logger.Info("last channel closed")
		c.Close()
	}
}

func (c *Connection) handleProbeOpen(controller *flow.Controller) {
	if c.Closed() {
		return
	}
	c.logger.Info("probe channel open", "channel", controller.Label())
	if c.onProbeOpen != nil {
		c.onProbeOpen(c, controller)
	}
}

func (c *Connection) handleProbeClose(controller *flow.Controller) {
	if c.Closed() {
		return
	}
	if c.probe == controller {
		c.probe = nil
	}
	c.removeChannel(controller)
	if len(c.channels) == 0 {
		c.Close()
	}
}

func (c *Connection) handleChannelReady(controller *flow.Controller) {
	if c.Closed() || c.activeIndex(controller) < 0 {
		return
	}
	if c.onReadyToSend != nil {
		c.onReadyToSend(c)
	}
}

func (c *Connection) handleAboveSafetyLimit(controller *flow.Controller) {
	if c.Closed() {
		return
	}
	c.logger.Info("channel crossed safety limit, opening replacement", "channel", controller.Label())
	c.createSenderChannels(1)
}

func (c *Connection) handleChannelMessage(controller *flow.Controller, data []byte) {
	if c.onMessage != nil {
		c.onMessage(c, controller, data)
	}
}

func (c *Connection) acceptChannel(channel transport.Channel) {
	if c.Closed() {
		channel.Close()
		return
	}
	controller := c.newController(channel)
	controller.OnClose(c.handleReceiverChannelClose)
	c.addChannel(controller)
	c.logger.Debug("remote channel accepted", "channel", channel.Label())
}

func (c *Connection) handleState(state transport.ConnectionState) {
	c.logger.Debug("connection state change", "state", state.String())
	if !state.Terminal() || c.terminated {
		return
	}
	c.terminated = true
	c.logger.Info("connection reached terminal state", "state", state.String())

	channels := c.Channels()
	c.clearBookkeeping()
	if !c.closed {
		c.closed = true
		for _, controller := range channels {
			controller.Close()
		}
		if state != transport.ConnectionClosed {
			if err := c.transport.Close(); err != nil {
				c.logger.Warn("closing transport connection failed", "error", err)
			}
		}
	}
	if c.onClose != nil {
		c.onClose(c)
	}
}

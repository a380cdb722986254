// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"sync"
)

// Compile-time interface checks.
var (
	_ Factory    = (*MemoryNetwork)(nil)
	_ Connection = (*MemoryConnection)(nil)
	_ Channel    = (*MemoryChannel)(nil)
)

// MemoryNetwork is an in-process Factory for tests. An offer's SDP is an
// opaque token naming the offering connection; applying the matching
// answer on the offerer connects the pair, mirrors every channel to the
// other side and opens them.
//
// By default sends are delivered immediately and buffered amounts stay
// at zero. SetBuffering(true) makes sent bytes accumulate in the
// sender's buffered amount until the test drains it.
type MemoryNetwork struct {
	mu             sync.Mutex
	nextID         int
	offers         map[string]*MemoryConnection
	answers        map[string]*MemoryConnection
	connections    []*MemoryConnection
	buffering      bool
	lowUnsupported bool
}

// NewMemoryNetwork creates an empty network.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		offers:  make(map[string]*MemoryConnection),
		answers: make(map[string]*MemoryConnection),
	}
}

// SetBuffering controls whether sent bytes accumulate in the sender's
// buffered amount.
func (n *MemoryNetwork) SetBuffering(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.buffering = enabled
}

// SetBufferedAmountLowSupported controls whether channels created from
// now on offer the buffered-amount-low notification. Without it the
// flow controller falls back to polling.
func (n *MemoryNetwork) SetBufferedAmountLowSupported(supported bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lowUnsupported = !supported
}

// NewConnection creates an unconnected connection.
func (n *MemoryNetwork) NewConnection() (Connection, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	connection := &MemoryConnection{network: n, id: n.nextID}
	n.connections = append(n.connections, connection)
	return connection, nil
}

// Connections returns every connection created so far, in creation
// order.
func (n *MemoryNetwork) Connections() []*MemoryConnection {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*MemoryConnection(nil), n.connections...)
}

// DrainAll empties the buffered amount of every channel, firing
// buffered-amount-low where the threshold is crossed.
func (n *MemoryNetwork) DrainAll() {
	for _, connection := range n.Connections() {
		for _, channel := range connection.Channels() {
			channel.Drain()
		}
	}
}

func (n *MemoryNetwork) lowSupported() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return !n.lowUnsupported
}

func (n *MemoryNetwork) isBuffering() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.buffering
}

// MemoryConnection is one end of an in-process connection.
type MemoryConnection struct {
	network *MemoryNetwork
	id      int
	events  connectionEvents

	mu         sync.Mutex
	state      ConnectionState
	offerToken string
	remoteSet  bool
	peer       *MemoryConnection
	channels   []*MemoryChannel
	candidates []ICECandidate
}

// ID identifies the connection within its network.
func (c *MemoryConnection) ID() int { return c.id }

func (c *MemoryConnection) CreateChannel(label string, ordered bool) (Channel, error) {
	c.mu.Lock()
	if c.state == ConnectionClosed {
		c.mu.Unlock()
		return nil, errors.New("transport: connection closed")
	}
	channel := c.newChannelLocked(label, ordered)
	connected := c.peer != nil && !c.state.Terminal()
	peer := c.peer
	c.mu.Unlock()

	if connected {
		mirror(channel, peer)
	}
	return channel, nil
}

func (c *MemoryConnection) newChannelLocked(label string, ordered bool) *MemoryChannel {
	channel := &MemoryChannel{
		network:     c.network,
		label:       label,
		ordered:     ordered,
		supportsLow: c.network.lowSupported(),
	}
	c.channels = append(c.channels, channel)
	return channel
}

func (c *MemoryConnection) CreateOffer() (SessionDescription, error) {
	token := fmt.Sprintf("memory-offer-%d", c.id)
	c.mu.Lock()
	c.offerToken = token
	c.mu.Unlock()

	c.network.mu.Lock()
	c.network.offers[token] = c
	c.network.mu.Unlock()

	c.events.emitCandidate(c.localCandidate())
	return SessionDescription{Type: "offer", SDP: token}, nil
}

func (c *MemoryConnection) CreateAnswer() (SessionDescription, error) {
	c.mu.Lock()
	if !c.remoteSet || c.peer == nil {
		c.mu.Unlock()
		return SessionDescription{}, ErrRemoteDescriptionNotSet
	}
	c.mu.Unlock()

	token := fmt.Sprintf("memory-answer-%d", c.id)
	c.network.mu.Lock()
	c.network.answers[token] = c
	c.network.mu.Unlock()

	c.events.emitCandidate(c.localCandidate())
	return SessionDescription{Type: "answer", SDP: token}, nil
}

func (c *MemoryConnection) SetRemoteDescription(description SessionDescription) error {
	switch description.Type {
	case "offer":
		c.network.mu.Lock()
		offerer, ok := c.network.offers[description.SDP]
		c.network.mu.Unlock()
		if !ok {
			return fmt.Errorf("setting remote description: unknown offer %q", description.SDP)
		}
		c.mu.Lock()
		c.peer = offerer
		c.remoteSet = true
		c.mu.Unlock()
		return nil

	case "answer":
		c.network.mu.Lock()
		answerer, ok := c.network.answers[description.SDP]
		c.network.mu.Unlock()
		if !ok {
			return fmt.Errorf("setting remote description: unknown answer %q", description.SDP)
		}
		c.mu.Lock()
		c.peer = answerer
		c.remoteSet = true
		c.mu.Unlock()
		connect(c, answerer)
		return nil

	default:
		return fmt.Errorf("setting remote description: unsupported type %q", description.Type)
	}
}

func (c *MemoryConnection) AddICECandidate(candidate ICECandidate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.remoteSet {
		return ErrRemoteDescriptionNotSet
	}
	c.candidates = append(c.candidates, candidate)
	return nil
}

// RemoteCandidates returns the candidates applied with AddICECandidate.
func (c *MemoryConnection) RemoteCandidates() []ICECandidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ICECandidate(nil), c.candidates...)
}

func (c *MemoryConnection) OnICECandidate(handler func(ICECandidate)) {
	c.events.setOnCandidate(handler)
}

func (c *MemoryConnection) OnChannel(handler func(Channel)) { c.events.setOnChannel(handler) }

func (c *MemoryConnection) OnStateChange(handler func(ConnectionState)) {
	c.events.setOnState(handler)
}

func (c *MemoryConnection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close closes every channel on both ends and reports the closed state.
// The peer sees its channels close and then a disconnected state.
// Idempotent.
func (c *MemoryConnection) Close() error {
	c.mu.Lock()
	if c.state == ConnectionClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = ConnectionClosed
	channels := append([]*MemoryChannel(nil), c.channels...)
	peer := c.peer
	c.mu.Unlock()

	for _, channel := range channels {
		channel.Close()
	}
	c.events.emitState(ConnectionClosed)
	if peer != nil {
		peer.setState(ConnectionDisconnected)
	}
	return nil
}

// SetState forces an ICE state change, as a network failure would.
func (c *MemoryConnection) SetState(state ConnectionState) {
	c.setState(state)
}

func (c *MemoryConnection) setState(state ConnectionState) {
	c.mu.Lock()
	if c.state == state || c.state == ConnectionClosed {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.mu.Unlock()
	c.events.emitState(state)
}

// Channels returns the connection's local channels, including mirrors
// of channels the peer created.
func (c *MemoryConnection) Channels() []*MemoryChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*MemoryChannel(nil), c.channels...)
}

// Channel returns the local channel with the given label, or nil.
func (c *MemoryConnection) Channel(label string) *MemoryChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, channel := range c.channels {
		if channel.label == label {
			return channel
		}
	}
	return nil
}

func (c *MemoryConnection) localCandidate() ICECandidate {
	mid := "0"
	var index uint16
	return ICECandidate{
		Candidate:     fmt.Sprintf("candidate:%d 1 udp 2130706431 127.0.0.1 %d typ host", c.id, 50000+c.id),
		SDPMid:        &mid,
		SDPMLineIndex: &index,
	}
}

// connect establishes the pair and opens every channel created so far
// on either side.
func connect(offerer, answerer *MemoryConnection) {
	offerer.setState(ConnectionConnected)
	answerer.setState(ConnectionConnected)

	for _, channel := range offerer.Channels() {
		if channel.twinChannel() == nil {
			mirror(channel, answerer)
		}
	}
	for _, channel := range answerer.Channels() {
		if channel.twinChannel() == nil {
			mirror(channel, offerer)
		}
	}
}

// mirror creates channel's counterpart on remote, announces it and
// opens both ends.
func mirror(channel *MemoryChannel, remote *MemoryConnection) {
	remote.mu.Lock()
	twin := remote.newChannelLocked(channel.label, channel.ordered)
	remote.mu.Unlock()

	channel.mu.Lock()
	channel.twin = twin
	channel.mu.Unlock()
	twin.mu.Lock()
	twin.twin = channel
	twin.mu.Unlock()

	remote.events.emitChannel(twin)
	channel.open()
	twin.open()
}

// MemoryChannel is one end of an in-process channel.
type MemoryChannel struct {
	network     *MemoryNetwork
	label       string
	ordered     bool
	supportsLow bool
	events      channelEvents

	mu           sync.Mutex
	state        ChannelState
	buffered     uint64
	lowThreshold uint64
	sent         [][]byte
	twin         *MemoryChannel
}

func (c *MemoryChannel) Label() string { return c.label }

// Ordered reports the ordering mode the channel was created with.
func (c *MemoryChannel) Ordered() bool { return c.ordered }

func (c *MemoryChannel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *MemoryChannel) Send(data []byte) error {
	c.mu.Lock()
	if c.state != ChannelOpen {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	message := append([]byte(nil), data...)
	c.sent = append(c.sent, message)
	if c.network.isBuffering() {
		c.buffered += uint64(len(message))
	}
	twin := c.twin
	c.mu.Unlock()

	if twin != nil {
		twin.deliver(message)
	}
	return nil
}

func (c *MemoryChannel) deliver(message []byte) {
	if c.State() != ChannelOpen {
		return
	}
	c.events.emitMessage(append([]byte(nil), message...))
}

// Close closes both ends. Idempotent.
func (c *MemoryChannel) Close() error {
	c.mu.Lock()
	if c.state == ChannelClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = ChannelClosed
	twin := c.twin
	c.mu.Unlock()

	c.events.emitClose()
	if twin != nil {
		twin.Close()
	}
	return nil
}

func (c *MemoryChannel) open() {
	c.mu.Lock()
	if c.state != ChannelConnecting {
		c.mu.Unlock()
		return
	}
	c.state = ChannelOpen
	c.mu.Unlock()
	c.events.emitOpen()
}

func (c *MemoryChannel) twinChannel() *MemoryChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.twin
}

func (c *MemoryChannel) BufferedAmount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffered
}

// SetBufferedAmount sets the buffered amount. Lowering it to or below
// the threshold from above fires buffered-amount-low when supported.
func (c *MemoryChannel) SetBufferedAmount(amount uint64) {
	c.mu.Lock()
	previous := c.buffered
	c.buffered = amount
	crossed := c.supportsLow && previous > c.lowThreshold && amount <= c.lowThreshold
	c.mu.Unlock()
	if crossed {
		c.events.emitLow()
	}
}

// Drain sets the buffered amount to zero.
func (c *MemoryChannel) Drain() { c.SetBufferedAmount(0) }

// Sent returns copies of every message sent on this end.
func (c *MemoryChannel) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

func (c *MemoryChannel) SupportsBufferedAmountLow() bool { return c.supportsLow }

// LowThreshold returns the configured buffered-amount-low threshold.
func (c *MemoryChannel) LowThreshold() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lowThreshold
}

func (c *MemoryChannel) SetBufferedAmountLowThreshold(threshold uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lowThreshold = threshold
}

// Fail reports err through the error handler.
func (c *MemoryChannel) Fail(err error) { c.events.emitError(err) }

func (c *MemoryChannel) OnOpen(handler func())              { c.events.setOnOpen(handler) }
func (c *MemoryChannel) OnClose(handler func())             { c.events.setOnClose(handler) }
func (c *MemoryChannel) OnMessage(handler func([]byte))     { c.events.setOnMessage(handler) }
func (c *MemoryChannel) OnBufferedAmountLow(handler func()) { c.events.setOnLow(handler) }
func (c *MemoryChannel) OnError(handler func(error))        { c.events.setOnError(handler) }

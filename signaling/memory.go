// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"fmt"
	"sync"
)

// MemoryHub is an in-process Relay for tests. Peers joined to the same
// hub exchange messages without a network. Every message is encoded and
// decoded on the way through so tests exercise the wire format.
type MemoryHub struct {
	mu    sync.Mutex
	next  int
	peers map[string]*MemoryPeer
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{peers: make(map[string]*MemoryPeer)}
}

// Join adds a peer with a fresh id.
func (h *MemoryHub) Join() *MemoryPeer {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	peer := &MemoryPeer{hub: h, id: fmt.Sprintf("peer-%d", h.next)}
	h.peers[peer.id] = peer
	return peer
}

func (h *MemoryHub) lookup(id string) *MemoryPeer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peers[id]
}

func (h *MemoryHub) leave(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, id)
}

// MemoryPeer is one peer of a MemoryHub. Delivery is synchronous on the
// sender's goroutine; messages that arrive before OnMessage is set are
// held and delivered on registration.
type MemoryPeer struct {
	hub *MemoryHub
	id  string

	mu      sync.Mutex
	handler func(Message)
	backlog []Message
	closed  bool
}

// LocalID returns the peer id.
func (p *MemoryPeer) LocalID() string { return p.id }

// OnMessage sets the handler for inbound messages.
func (p *MemoryPeer) OnMessage(handler func(Message)) {
	p.mu.Lock()
	p.handler = handler
	backlog := p.backlog
	p.backlog = nil
	p.mu.Unlock()
	for _, m := range backlog {
		handler(m)
	}
}

// Send stamps m with the local id and delivers it to the peer named by
// m.To. Messages for unknown peers are dropped.
func (p *MemoryPeer) Send(m Message) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}

	m.From = p.id
	data, err := Encode(m)
	if err != nil {
		return err
	}
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	if target := p.hub.lookup(m.To); target != nil {
		target.deliver(decoded)
	}
	return nil
}

func (p *MemoryPeer) deliver(m Message) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	handler := p.handler
	if handler == nil {
		p.backlog = append(p.backlog, m)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	handler(m)
}

// Close leaves the hub. Idempotent.
func (p *MemoryPeer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.hub.leave(p.id)
	return nil
}

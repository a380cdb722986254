// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Relay is the signaling rendezvous. Each websocket it accepts is a
// peer: the relay assigns it an id, tells it the id in a joinResponse
// frame, and from then on forwards every frame the peer sends to the
// peer named in the frame's "to" field. Frames for unknown peers are
// dropped. A peer is forgotten when its websocket closes.
type Relay struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	peers  map[string]*relayPeer
	closed bool
}

type relayPeer struct {
	id   string
	conn *websocket.Conn

	// gorilla connections support one concurrent writer.
	writeMu sync.Mutex
}

func (p *relayPeer) write(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// NewRelay creates a relay. Serve it with net/http.
func NewRelay(logger *slog.Logger) *Relay {
	return &Relay{
		logger: logger,
		upgrader: websocket.Upgrader{
			// Browser peers load their page from elsewhere.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		peers: make(map[string]*relayPeer),
	}
}

// Peers returns the number of connected peers.
func (r *Relay) Peers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}

// ServeHTTP upgrades the request to a websocket and serves the peer
// until it disconnects.
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		r.logger.Debug("websocket upgrade failed", "remote", req.RemoteAddr, "error", err)
		return
	}

	peer, ok := r.register(conn)
	if !ok {
		conn.Close()
		return
	}
	logger := r.logger.With("peer", peer.id, "remote", req.RemoteAddr)
	defer func() {
		r.unregister(peer.id)
		conn.Close()
		logger.Info("peer left")
	}()

	join, err := Encode(Message{Type: KindJoinResponse, ID: peer.id})
	if err != nil {
		logger.Error("encoding join response", "error", err)
		return
	}
	if err := peer.write(join); err != nil {
		logger.Warn("sending join response", "error", err)
		return
	}
	logger.Info("peer joined")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("reading from peer", "error", err)
			}
			return
		}
		r.forward(logger, data)
	}
}

// forward delivers data verbatim to the peer named by its "to" field.
func (r *Relay) forward(logger *slog.Logger, data []byte) {
	var envelope struct {
		Type string `json:"type"`
		To   string `json:"to"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		logger.Debug("dropping malformed frame", "error", err)
		return
	}
	target := r.lookup(envelope.To)
	if target == nil {
		logger.Debug("dropping frame for unknown peer", "to", envelope.To, "type", envelope.Type)
		return
	}
	if err := target.write(data); err != nil {
		logger.Warn("forwarding frame", "to", envelope.To, "type", envelope.Type, "error", err)
	}
}

// Close disconnects every peer. Handlers still running return once
// their reads fail. Later connections are refused.
func (r *Relay) Close() error {
	r.mu.Lock()
	r.closed = true
	peers := make([]*relayPeer, 0, len(r.peers))
	for _, peer := range r.peers {
		peers = append(peers, peer)
	}
	r.mu.Unlock()

	for _, peer := range peers {
		peer.conn.Close()
	}
	return nil
}

func (r *Relay) register(conn *websocket.Conn) (*relayPeer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, false
	}
	for {
		// The first uuid group is short enough to type into a web form.
		id, _, _ := strings.Cut(uuid.NewString(), "-")
		if _, taken := r.peers[id]; taken {
			continue
		}
		peer := &relayPeer{id: id, conn: conn}
		r.peers[id] = peer
		return peer, true
	}
}

func (r *Relay) unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
}

func (r *Relay) lookup(id string) *relayPeer {
	if id == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peers[id]
}

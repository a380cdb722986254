// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// joinTimeout bounds the wait for the relay's joinResponse when the
// dial context has no deadline.
const joinTimeout = 10 * time.Second

// Client is one peer's connection to a Relay.
type Client struct {
	conn   *websocket.Conn
	id     string
	logger *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to the relay at url and waits for the joinResponse that
// assigns the local peer id.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp == nil {
			return nil, fmt.Errorf("dialing relay %s: %w", url, err)
		}
		return nil, fmt.Errorf("dialing relay %s: %s: %w", url, resp.Status, err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(joinTimeout)
	}
	conn.SetReadDeadline(deadline)
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("waiting for join response from %s: %w", url, err)
	}
	conn.SetReadDeadline(time.Time{})

	join, err := Decode(data)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if join.Type != KindJoinResponse {
		conn.Close()
		return nil, fmt.Errorf("relay %s sent %s before joinResponse", url, join.Type)
	}

	logger.Info("joined relay", "url", url, "id", join.ID)
	return &Client{
		conn:   conn,
		id:     join.ID,
		logger: logger.With("peer", join.ID),
		closed: make(chan struct{}),
	}, nil
}

// LocalID returns the peer id the relay assigned.
func (c *Client) LocalID() string { return c.id }

// Send stamps m with the local id and writes it to the relay. Safe for
// concurrent use.
func (c *Client) Send(m Message) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	m.From = c.id
	data, err := Encode(m)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("sending %s to %s: %w", m.Type, m.To, err)
	}
	return nil
}

// Run reads messages and passes each to handler until ctx is cancelled,
// the client is closed, or the relay goes away. Malformed messages are
// logged and skipped. Run returns nil when stopped by ctx or Close.
func (c *Client) Run(ctx context.Context, handler func(Message)) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errors.New("relay closed the connection")
			}
			return fmt.Errorf("reading from relay: %w", err)
		}
		m, err := Decode(data)
		if err != nil {
			c.logger.Warn("dropping signaling message", "error", err)
			continue
		}
		handler(m)
	}
}

// Close sends a close frame and closes the websocket. Idempotent.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

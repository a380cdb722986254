// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
)

// ErrChannelClosed is returned by Channel.Send when the channel is not
// open.
var ErrChannelClosed = errors.New("transport: channel is not open")

// ErrRemoteDescriptionNotSet is returned when an operation requires the
// remote session description and none has been applied.
var ErrRemoteDescriptionNotSet = errors.New("transport: remote description not set")

// ChannelState is the ready state of a channel.
type ChannelState int

const (
	ChannelConnecting ChannelState = iota
	ChannelOpen
	ChannelClosing
	ChannelClosed
)

func (s ChannelState) String() string {
	switch s {
	case ChannelConnecting:
		return "connecting"
	case ChannelOpen:
		return "open"
	case ChannelClosing:
		return "closing"
	case ChannelClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ConnectionState is the ICE connection state of a connection.
type ConnectionState int

const (
	ConnectionNew ConnectionState = iota
	ConnectionChecking
	ConnectionConnected
	ConnectionCompleted
	ConnectionDisconnected
	ConnectionFailed
	ConnectionClosed
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionNew:
		return "new"
	case ConnectionChecking:
		return "checking"
	case ConnectionConnected:
		return "connected"
	case ConnectionCompleted:
		return "completed"
	case ConnectionDisconnected:
		return "disconnected"
	case ConnectionFailed:
		return "failed"
	case ConnectionClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Terminal reports whether the state ends the connection's useful life.
func (s ConnectionState) Terminal() bool {
	return s == ConnectionFailed || s == ConnectionDisconnected || s == ConnectionClosed
}

// SessionDescription is an SDP offer or answer in its browser JSON form.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate is a trickled candidate in its browser JSON form.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

// Factory creates connections.
type Factory interface {
	NewConnection() (Connection, error)
}

// Connection is one negotiated peer connection.
type Connection interface {
	// CreateChannel creates a local channel. It opens once the
	// connection is established.
	CreateChannel(label string, ordered bool) (Channel, error)

	// CreateOffer creates an offer and applies it as the local
	// description.
	CreateOffer() (SessionDescription, error)

	// CreateAnswer creates an answer to the applied remote offer and
	// applies it as the local description.
	CreateAnswer() (SessionDescription, error)

	SetRemoteDescription(description SessionDescription) error
	AddICECandidate(candidate ICECandidate) error

	// OnICECandidate is called for each locally gathered candidate.
	OnICECandidate(handler func(ICECandidate))

	// OnChannel is called when the remote peer announces a channel.
	OnChannel(handler func(Channel))

	// OnStateChange is called on every ICE connection state change.
	OnStateChange(handler func(ConnectionState))

	State() ConnectionState
	Close() error
}

// Channel is one message stream within a connection.
type Channel interface {
	Label() string
	State() ChannelState

	// Send transmits data as one message. The channel copies data
	// before returning.
	Send(data []byte) error
	Close() error

	// BufferedAmount is the number of bytes queued but not yet handed
	// to the network.
	BufferedAmount() uint64

	// SupportsBufferedAmountLow reports whether OnBufferedAmountLow
	// ever fires.
	SupportsBufferedAmountLow() bool
	SetBufferedAmountLowThreshold(threshold uint64)

	OnOpen(handler func())
	OnClose(handler func())
	OnMessage(handler func([]byte))
	OnBufferedAmountLow(handler func())
	OnError(handler func(error))
}

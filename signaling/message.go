// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package signaling carries the messages two peers exchange to set up
// their connections: offers, answers, trickled ICE candidates and the
// probe route announcement.
//
// Messages are JSON text frames routed by a relay keyed on ephemeral
// peer ids. The relay assigns each websocket an id, announces it in a
// joinResponse frame and forwards every later frame verbatim to the
// peer named in its "to" field. It never interprets anything else.
//
// The field names match the browser client of the same protocol, so Go
// peers and web peers can share a relay.
package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bureau-foundation/dctransfer/transport"
)

// ErrClosed is returned when sending on a closed signaling connection.
var ErrClosed = errors.New("signaling: connection closed")

// Kind identifies a message.
type Kind string

const (
	KindJoinResponse Kind = "joinResponse"
	KindOffer        Kind = "sdpOffer"
	KindAnswer       Kind = "sdpAnswer"
	KindCandidate    Kind = "iceCandidate"
	KindProbeSetup   Kind = "pingPongSetup"
)

// Message is one signaling frame. Which fields are set depends on Type.
type Message struct {
	Type Kind `json:"type"`

	// ID is the peer id assigned by the relay (joinResponse only).
	ID string `json:"id,omitempty"`

	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	Connection  *Connection                   `json:"connection,omitempty"`
	Description *transport.SessionDescription `json:"description,omitempty"`
	Candidate   *transport.ICECandidate       `json:"candidate,omitempty"`
	Setup       *Setup                        `json:"setup,omitempty"`
}

// Connection describes the connection a message refers to. Offers carry
// every parameter the receiver needs to mirror the pool entry; other
// kinds carry only the label, and the probe route announcement also
// names a channel.
type Connection struct {
	Label           string  `json:"label"`
	TotalChannels   int     `json:"totalChannels,omitempty"`
	OrderedData     bool    `json:"orderedData,omitempty"`
	PollingInterval int64   `json:"pollingInterval,omitempty"` // milliseconds
	ChunkSize       int     `json:"chunkSize,omitempty"`
	SafetyLimit     float64 `json:"safetyLimit,omitempty"` // MiB
	Role            string  `json:"role,omitempty"`

	Channel *Channel `json:"channel,omitempty"`
}

// Channel names a channel.
type Channel struct {
	Label string `json:"label"`
}

// Setup is the transfer description carried by every offer.
type Setup struct {
	Transfer TransferSetup `json:"transfer"`
	PingPong ProbeSetup    `json:"pingPong"`
}

// TransferSetup describes the bulk transfer.
type TransferSetup struct {
	BytesToSend     uint64 `json:"bytesToSend"`
	ChunksToSend    uint64 `json:"chunksToSend"`
	ChunkSize       int    `json:"chunkSize,omitempty"`
	PeerConnections int    `json:"peerConnections"`
	DataChannels    int    `json:"dataChannels"`
	OrderedData     bool   `json:"orderedData"`
	// PayloadDigest is the hex BLAKE3 digest of the chunk payload,
	// present when the sender asks the receiver to verify.
	PayloadDigest string `json:"payloadDigest,omitempty"`
}

// ProbeSetup describes round-trip probing. The dedicated flags mirror
// Mode for peers that only understand those.
type ProbeSetup struct {
	Enabled             bool   `json:"enabled"`
	Mode                string `json:"mode,omitempty"`
	DedicatedConnection bool   `json:"dedicatedConnection"`
	DedicatedChannel    bool   `json:"dedicatedChannel"`
	SendingPeriod       int64  `json:"sendingPeriod"` // milliseconds
	MetricsPeriod       int64  `json:"metricsPeriod"` // milliseconds
}

// Encode marshals m as a JSON text frame.
func Encode(m Message) ([]byte, error) {
	if m.Type == "" {
		return nil, errors.New("signaling: message has no type")
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding %s message: %w", m.Type, err)
	}
	return data, nil
}

// Decode parses a JSON text frame and checks that the fields its kind
// requires are present.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decoding signaling message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Validate reports a missing field required by the message kind.
func (m Message) Validate() error {
	switch m.Type {
	case KindJoinResponse:
		if m.ID == "" {
			return errors.New("signaling: joinResponse without id")
		}
	case KindOffer:
		if m.Connection == nil || m.Connection.Label == "" {
			return errors.New("signaling: sdpOffer without connection label")
		}
		if m.Description == nil {
			return errors.New("signaling: sdpOffer without description")
		}
		if m.Setup == nil {
			return errors.New("signaling: sdpOffer without setup")
		}
	case KindAnswer:
		if m.Connection == nil || m.Connection.Label == "" {
			return errors.New("signaling: sdpAnswer without connection label")
		}
		if m.Description == nil {
			return errors.New("signaling: sdpAnswer without description")
		}
	case KindCandidate:
		if m.Connection == nil || m.Connection.Label == "" {
			return errors.New("signaling: iceCandidate without connection label")
		}
		if m.Candidate == nil {
			return errors.New("signaling: iceCandidate without candidate")
		}
	case KindProbeSetup:
		// A shared route carries no connection.
	case "":
		return errors.New("signaling: message has no type")
	default:
		return fmt.Errorf("signaling: unknown message type %q", m.Type)
	}
	return nil
}

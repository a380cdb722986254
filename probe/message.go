// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package probe schedules ping-pong probe messages for round-trip
// measurement and routes them over a transfer's channels.
//
// The receiving peer sends a 4-byte big-endian probe id every sending
// period once the transfer starts; the sending peer echoes every
// non-chunk message it receives back along the announced route. A probe
// is told apart from a chunk by its length alone.
package probe

import (
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// MessageSize is the length of a probe message.
	MessageSize = 4

	// DefaultSendingPeriod is the interval between probes.
	DefaultSendingPeriod = 100 * time.Millisecond
)

// Mode selects where probes travel.
type Mode string

const (
	// ModeShared sends probes on a random transfer channel.
	ModeShared Mode = "shared"

	// ModeDedicatedChannel adds a probe-only channel to the first
	// transfer connection.
	ModeDedicatedChannel Mode = "dedicated-channel"

	// ModeDedicatedConnection opens a separate connection carrying
	// one probe channel.
	ModeDedicatedConnection Mode = "dedicated-connection"
)

// ParseMode validates a mode name.
func ParseMode(name string) (Mode, error) {
	switch mode := Mode(name); mode {
	case ModeShared, ModeDedicatedChannel, ModeDedicatedConnection:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown probe mode %q (want %s, %s or %s)",
			name, ModeShared, ModeDedicatedChannel, ModeDedicatedConnection)
	}
}

// Encode returns the probe message for id.
func Encode(id uint32) []byte {
	message := make([]byte, MessageSize)
	binary.BigEndian.PutUint32(message, id)
	return message
}

// Decode reads the probe id from message.
func Decode(message []byte) (uint32, error) {
	if len(message) < MessageSize {
		return 0, fmt.Errorf("probe message is %d bytes, want at least %d", len(message), MessageSize)
	}
	return binary.BigEndian.Uint32(message), nil
}

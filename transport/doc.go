// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport defines the peer-to-peer substrate the transfer
// core drives: connections that negotiate through offer/answer and
// trickled ICE candidates, each multiplexing many independent channels
// with bounded send buffers.
//
// The core consumes three interfaces. [Factory] creates connections.
// [Connection] creates local channels, announces remote ones, produces
// and applies session descriptions, and reports ICE state. [Channel]
// sends whole messages, exposes its buffered amount and, where the
// substrate supports it, a buffered-amount-low notification.
//
// Handlers may be invoked from any goroutine. A handler registered after
// the event already happened (OnOpen on an open channel, OnClose on a
// closed one) is invoked immediately, and messages that arrive before
// OnMessage is registered are held and delivered on registration, so a
// consumer that binds handlers asynchronously never misses the first
// events of a remotely announced channel. Registering nil detaches a
// handler.
//
// [WebRTC] is the production implementation on pion/webrtc. Session
// descriptions and candidates use the same JSON shapes as browsers, so a
// Go peer interoperates with web peers through the same relay.
// [MemoryNetwork] is an in-process implementation for tests: it pairs
// connections through opaque offer tokens and lets tests control
// buffered amounts and ICE state.
package transport

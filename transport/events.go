// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "sync"

// channelEvents holds a channel's handlers. It replays open and close to
// handlers registered after the fact and holds messages until a message
// handler exists.
type channelEvents struct {
	mu      sync.Mutex
	opened  bool
	closed  bool
	backlog [][]byte

	onOpen    func()
	onClose   func()
	onLow     func()
	onMessage func([]byte)
	onError   func(error)
}

func (e *channelEvents) setOnOpen(handler func()) {
	e.mu.Lock()
	e.onOpen = handler
	replay := handler != nil && e.opened
	e.mu.Unlock()
	if replay {
		handler()
	}
}

func (e *channelEvents) setOnClose(handler func()) {
	e.mu.Lock()
	e.onClose = handler
	replay := handler != nil && e.closed
	e.mu.Unlock()
	if replay {
		handler()
	}
}

func (e *channelEvents) setOnMessage(handler func([]byte)) {
	e.mu.Lock()
	e.onMessage = handler
	var held [][]byte
	if handler != nil {
		held = e.backlog
		e.backlog = nil
	}
	e.mu.Unlock()
	for _, message := range held {
		handler(message)
	}
}

func (e *channelEvents) setOnLow(handler func()) {
	e.mu.Lock()
	e.onLow = handler
	e.mu.Unlock()
}

func (e *channelEvents) setOnError(handler func(error)) {
	e.mu.Lock()
	e.onError = handler
	e.mu.Unlock()
}

func (e *channelEvents) emitOpen() {
	e.mu.Lock()
	if e.opened {
		e.mu.Unlock()
		return
	}
	e.opened = true
	handler := e.onOpen
	e.mu.Unlock()
	if handler != nil {
		handler()
	}
}

func (e *channelEvents) emitClose() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	handler := e.onClose
	e.mu.Unlock()
	if handler != nil {
		handler()
	}
}

func (e *channelEvents) emitMessage(data []byte) {
	e.mu.Lock()
	handler := e.onMessage
	if handler == nil {
		e.backlog = append(e.backlog, data)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	handler(data)
}

func (e *channelEvents) emitLow() {
	e.mu.Lock()
	handler := e.onLow
	e.mu.Unlock()
	if handler != nil {
		handler()
	}
}

func (e *channelEvents) emitError(err error) {
	e.mu.Lock()
	handler := e.onError
	e.mu.Unlock()
	if handler != nil {
		handler(err)
	}
}

// connectionEvents holds a connection's handlers.
type connectionEvents struct {
	mu          sync.Mutex
	onCandidate func(ICECandidate)
	onChannel   func(Channel)
	onState     func(ConnectionState)
}

func (e *connectionEvents) setOnCandidate(handler func(ICECandidate)) {
	e.mu.Lock()
	e.onCandidate = handler
	e.mu.Unlock()
}

func (e *connectionEvents) setOnChannel(handler func(Channel)) {
	e.mu.Lock()
	e.onChannel = handler
	e.mu.Unlock()
}

func (e *connectionEvents) setOnState(handler func(ConnectionState)) {
	e.mu.Lock()
	e.onState = handler
	e.mu.Unlock()
}

func (e *connectionEvents) emitCandidate(candidate ICECandidate) {
	e.mu.Lock()
	handler := e.onCandidate
	e.mu.Unlock()
	if handler != nil {
		handler(candidate)
	}
}

func (e *connectionEvents) emitChannel(channel Channel) {
	e.mu.Lock()
	handler := e.onChannel
	e.mu.Unlock()
	if handler != nil {
		handler(channel)
	}
}

func (e *connectionEvents) emitState(state ConnectionState) {
	e.mu.Lock()
	handler := e.onState
	e.mu.Unlock()
	if handler != nil {
		handler(state)
	}
}

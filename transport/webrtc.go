// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// Compile-time interface checks.
var (
	_ Factory    = (*WebRTC)(nil)
	_ Connection = (*webrtcConnection)(nil)
	_ Channel    = (*webrtcChannel)(nil)
)

// WebRTC creates pion PeerConnections. Candidates are trickled through
// OnICECandidate rather than gathered up front, so the first offer goes
// out as soon as it is created.
type WebRTC struct {
	api       *webrtc.API
	logger    *slog.Logger
	iceConfig ICEConfig
}

// NewWebRTC creates a factory using iceConfig for new connections.
func NewWebRTC(iceConfig ICEConfig, logger *slog.Logger) *WebRTC {
	// Loopback candidates make same-machine transfers and tests work on
	// hosts whose only interface is lo.
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(true)

	return &WebRTC{
		api:       webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine)),
		logger:    logger,
		iceConfig: iceConfig,
	}
}

// NewConnection creates a PeerConnection using the factory's ICE
// servers.
func (w *WebRTC) NewConnection() (Connection, error) {
	pc, err := w.api.NewPeerConnection(webrtc.Configuration{ICEServers: w.iceConfig.Servers})
	if err != nil {
		return nil, fmt.Errorf("creating PeerConnection: %w", err)
	}

	connection := &webrtcConnection{pc: pc, logger: w.logger}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		// A nil candidate marks the end of gathering.
		if candidate == nil {
			return
		}
		candidateInit := candidate.ToJSON()
		connection.events.emitCandidate(ICECandidate{
			Candidate:        candidateInit.Candidate,
			SDPMid:           candidateInit.SDPMid,
			SDPMLineIndex:    candidateInit.SDPMLineIndex,
			UsernameFragment: candidateInit.UsernameFragment,
		})
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		w.logger.Debug("inbound data channel announced", "label", dc.Label())
		connection.events.emitChannel(newWebRTCChannel(dc))
	})
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		w.logger.Info("ICE state change", "state", state.String())
		connection.notifyState(fromPionState(state))
	})

	return connection, nil
}

type webrtcConnection struct {
	pc     *webrtc.PeerConnection
	logger *slog.Logger
	events connectionEvents

	// closedNotified keeps Close and pion's own closed notification
	// from reporting the closed state twice.
	closedNotified atomic.Bool
}

func (c *webrtcConnection) CreateChannel(label string, ordered bool) (Channel, error) {
	dc, err := c.pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("creating data channel %s: %w", label, err)
	}
	return newWebRTCChannel(dc), nil
}

func (c *webrtcConnection) CreateOffer() (SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return SessionDescription{}, fmt.Errorf("creating SDP offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return SessionDescription{}, fmt.Errorf("setting local description: %w", err)
	}
	return SessionDescription{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

func (c *webrtcConnection) CreateAnswer() (SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return SessionDescription{}, fmt.Errorf("creating SDP answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return SessionDescription{}, fmt.Errorf("setting local description: %w", err)
	}
	return SessionDescription{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (c *webrtcConnection) SetRemoteDescription(description SessionDescription) error {
	err := c.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(description.Type),
		SDP:  description.SDP,
	})
	if err != nil {
		return fmt.Errorf("setting remote description: %w", err)
	}
	return nil
}

func (c *webrtcConnection) AddICECandidate(candidate ICECandidate) error {
	if c.pc.RemoteDescription() == nil {
		return ErrRemoteDescriptionNotSet
	}
	err := c.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        candidate.Candidate,
		SDPMid:           candidate.SDPMid,
		SDPMLineIndex:    candidate.SDPMLineIndex,
		UsernameFragment: candidate.UsernameFragment,
	})
	if err != nil {
		return fmt.Errorf("adding ICE candidate: %w", err)
	}
	return nil
}

func (c *webrtcConnection) OnICECandidate(handler func(ICECandidate)) {
	c.events.setOnCandidate(handler)
}

func (c *webrtcConnection) OnChannel(handler func(Channel)) { c.events.setOnChannel(handler) }

func (c *webrtcConnection) OnStateChange(handler func(ConnectionState)) {
	c.events.setOnState(handler)
}

func (c *webrtcConnection) State() ConnectionState {
	return fromPionState(c.pc.ICEConnectionState())
}

func (c *webrtcConnection) Close() error {
	err := c.pc.Close()
	c.notifyState(ConnectionClosed)
	return err
}

func (c *webrtcConnection) notifyState(state ConnectionState) {
	if state == ConnectionClosed && c.closedNotified.Swap(true) {
		return
	}
	c.events.emitState(state)
}

func fromPionState(state webrtc.ICEConnectionState) ConnectionState {
	switch state {
	case webrtc.ICEConnectionStateChecking:
		return ConnectionChecking
	case webrtc.ICEConnectionStateConnected:
		return ConnectionConnected
	case webrtc.ICEConnectionStateCompleted:
		return ConnectionCompleted
	case webrtc.ICEConnectionStateDisconnected:
		return ConnectionDisconnected
	case webrtc.ICEConnectionStateFailed:
		return ConnectionFailed
	case webrtc.ICEConnectionStateClosed:
		return ConnectionClosed
	default:
		return ConnectionNew
	}
}

// webrtcChannel adapts a pion DataChannel. Pion handlers are bound once
// at construction and forward to whatever the consumer registered.
type webrtcChannel struct {
	dc     *webrtc.DataChannel
	events channelEvents
}

func newWebRTCChannel(dc *webrtc.DataChannel) *webrtcChannel {
	channel := &webrtcChannel{dc: dc}
	dc.OnOpen(channel.events.emitOpen)
	dc.OnClose(channel.events.emitClose)
	dc.OnBufferedAmountLow(channel.events.emitLow)
	dc.OnError(channel.events.emitError)
	dc.OnMessage(func(message webrtc.DataChannelMessage) {
		channel.events.emitMessage(message.Data)
	})
	return channel
}

func (c *webrtcChannel) Label() string { return c.dc.Label() }

func (c *webrtcChannel) State() ChannelState {
	switch c.dc.ReadyState() {
	case webrtc.DataChannelStateOpen:
		return ChannelOpen
	case webrtc.DataChannelStateClosing:
		return ChannelClosing
	case webrtc.DataChannelStateClosed:
		return ChannelClosed
	default:
		return ChannelConnecting
	}
}

func (c *webrtcChannel) Send(data []byte) error {
	if c.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChannelClosed
	}
	if err := c.dc.Send(data); err != nil {
		return fmt.Errorf("sending on data channel %s: %w", c.dc.Label(), err)
	}
	return nil
}

func (c *webrtcChannel) Close() error { return c.dc.Close() }

func (c *webrtcChannel) BufferedAmount() uint64 { return c.dc.BufferedAmount() }

func (c *webrtcChannel) SupportsBufferedAmountLow() bool { return true }

func (c *webrtcChannel) SetBufferedAmountLowThreshold(threshold uint64) {
	c.dc.SetBufferedAmountLowThreshold(threshold)
}

func (c *webrtcChannel) OnOpen(handler func())              { c.events.setOnOpen(handler) }
func (c *webrtcChannel) OnClose(handler func())             { c.events.setOnClose(handler) }
func (c *webrtcChannel) OnMessage(handler func([]byte))     { c.events.setOnMessage(handler) }
func (c *webrtcChannel) OnBufferedAmountLow(handler func()) { c.events.setOnLow(handler) }
func (c *webrtcChannel) OnError(handler func(error))        { c.events.setOnError(handler) }

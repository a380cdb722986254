// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"testing"
)

// connectedPair negotiates two memory connections and returns them with
// the channels the answerer saw announced.
func connectedPair(t *testing.T, network *MemoryNetwork, labels ...string) (*MemoryConnection, *MemoryConnection, []Channel) {
	t.Helper()
	offererConnection, _ := network.NewConnection()
	answererConnection, _ := network.NewConnection()
	offerer := offererConnection.(*MemoryConnection)
	answerer := answererConnection.(*MemoryConnection)

	var announced []Channel
	answerer.OnChannel(func(channel Channel) { announced = append(announced, channel) })

	for _, label := range labels {
		if _, err := offerer.CreateChannel(label, true); err != nil {
			t.Fatalf("CreateChannel(%s): %v", label, err)
		}
	}
	offer, err := offerer.CreateOffer()
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if err := answerer.SetRemoteDescription(offer); err != nil {
		t.Fatalf("answerer SetRemoteDescription: %v", err)
	}
	answer, err := answerer.CreateAnswer()
	if err != nil {
		t.Fatalf("CreateAnswer: %v", err)
	}
	if err := offerer.SetRemoteDescription(answer); err != nil {
		t.Fatalf("offerer SetRemoteDescription: %v", err)
	}
	return offerer, answerer, announced
}

func TestMemoryNegotiationOpensMirroredChannels(t *testing.T) {
	network := NewMemoryNetwork()
	offerer, answerer, announced := connectedPair(t, network, "a", "b")

	if len(announced) != 2 {
		t.Fatalf("answerer saw %d channels, want 2", len(announced))
	}
	for _, channel := range announced {
		if channel.State() != ChannelOpen {
			t.Errorf("announced channel %s state = %s, want open", channel.Label(), channel.State())
		}
	}
	for _, channel := range offerer.Channels() {
		if channel.State() != ChannelOpen {
			t.Errorf("offerer channel %s state = %s, want open", channel.Label(), channel.State())
		}
	}
	if offerer.State() != ConnectionConnected || answerer.State() != ConnectionConnected {
		t.Fatalf("states = %s/%s, want connected", offerer.State(), answerer.State())
	}
}

func TestMemoryLateOpenHandlerIsReplayed(t *testing.T) {
	network := NewMemoryNetwork()
	offerer, _, _ := connectedPair(t, network, "a")

	opened := false
	offerer.Channel("a").OnOpen(func() { opened = true })
	if !opened {
		t.Fatal("OnOpen registered after open was not invoked")
	}
}

func TestMemoryMessagesHeldUntilHandlerRegistered(t *testing.T) {
	network := NewMemoryNetwork()
	offerer, _, announced := connectedPair(t, network, "a")

	offerer.Channel("a").Send([]byte("one"))
	offerer.Channel("a").Send([]byte("two"))

	var received []string
	announced[0].OnMessage(func(data []byte) { received = append(received, string(data)) })
	offerer.Channel("a").Send([]byte("three"))

	want := []string{"one", "two", "three"}
	if len(received) != len(want) {
		t.Fatalf("received %v, want %v", received, want)
	}
	for i := range want {
		if received[i] != want[i] {
			t.Fatalf("received %v, want %v", received, want)
		}
	}
}

func TestMemoryBufferingAndLowThreshold(t *testing.T) {
	network := NewMemoryNetwork()
	network.SetBuffering(true)
	offerer, _, _ := connectedPair(t, network, "a")
	channel := offerer.Channel("a")
	channel.SetBufferedAmountLowThreshold(8)

	lowEvents := 0
	channel.OnBufferedAmountLow(func() { lowEvents++ })

	channel.Send(make([]byte, 16))
	if got := channel.BufferedAmount(); got != 16 {
		t.Fatalf("BufferedAmount() = %d, want 16", got)
	}
	channel.SetBufferedAmount(12)
	if lowEvents != 0 {
		t.Fatal("low event fired above threshold")
	}
	channel.Drain()
	if lowEvents != 1 {
		t.Fatalf("lowEvents = %d, want 1", lowEvents)
	}
	channel.Drain()
	if lowEvents != 1 {
		t.Fatalf("draining an empty buffer fired again: lowEvents = %d", lowEvents)
	}
}

func TestMemoryLowThresholdUnsupported(t *testing.T) {
	network := NewMemoryNetwork()
	network.SetBufferedAmountLowSupported(false)
	network.SetBuffering(true)
	offerer, _, _ := connectedPair(t, network, "a")
	channel := offerer.Channel("a")

	if channel.SupportsBufferedAmountLow() {
		t.Fatal("channel reports low-threshold support")
	}
	fired := false
	channel.OnBufferedAmountLow(func() { fired = true })
	channel.Send(make([]byte, 4))
	channel.Drain()
	if fired {
		t.Fatal("low event fired on a channel without support")
	}
}

func TestMemorySendOnClosedChannel(t *testing.T) {
	network := NewMemoryNetwork()
	offerer, _, _ := connectedPair(t, network, "a")
	channel := offerer.Channel("a")
	channel.Close()

	if err := channel.Send([]byte("x")); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("Send on closed channel = %v, want ErrChannelClosed", err)
	}
}

func TestMemoryCloseClosesPeerChannels(t *testing.T) {
	network := NewMemoryNetwork()
	offerer, answerer, announced := connectedPair(t, network, "a")

	closed := 0
	announced[0].OnClose(func() { closed++ })
	var answererStates []ConnectionState
	answerer.OnStateChange(func(state ConnectionState) { answererStates = append(answererStates, state) })

	offerer.Close()
	offerer.Close()

	if closed != 1 {
		t.Fatalf("remote close events = %d, want 1", closed)
	}
	if len(answererStates) != 1 || answererStates[0] != ConnectionDisconnected {
		t.Fatalf("answerer states = %v, want [disconnected]", answererStates)
	}
}

func TestMemoryCandidateRequiresRemoteDescription(t *testing.T) {
	network := NewMemoryNetwork()
	connection, _ := network.NewConnection()
	err := connection.AddICECandidate(ICECandidate{Candidate: "candidate:1"})
	if !errors.Is(err, ErrRemoteDescriptionNotSet) {
		t.Fatalf("AddICECandidate before remote description = %v, want ErrRemoteDescriptionNotSet", err)
	}
}

func TestMemoryUnknownOfferRejected(t *testing.T) {
	network := NewMemoryNetwork()
	connection, _ := network.NewConnection()
	if err := connection.SetRemoteDescription(SessionDescription{Type: "offer", SDP: "bogus"}); err == nil {
		t.Fatal("SetRemoteDescription accepted an unknown offer")
	}
}

func TestMemoryChannelCreatedAfterConnect(t *testing.T) {
	network := NewMemoryNetwork()
	offerer, _, announced := connectedPair(t, network)
	if len(announced) != 0 {
		t.Fatalf("announced %d channels before any were created", len(announced))
	}

	var late []Channel
	offerer.peer.OnChannel(func(channel Channel) { late = append(late, channel) })
	channel, err := offerer.CreateChannel("late", false)
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	if channel.State() != ChannelOpen {
		t.Fatalf("late channel state = %s, want open", channel.State())
	}
	if len(late) != 1 || late[0].Label() != "late" {
		t.Fatalf("late announcements = %v", late)
	}
}

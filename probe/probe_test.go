// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bureau-foundation/dctransfer/flow"
	"github.com/bureau-foundation/dctransfer/lib/clock"
	"github.com/bureau-foundation/dctransfer/lib/loop"
	"github.com/bureau-foundation/dctransfer/rtt"
	"github.com/bureau-foundation/dctransfer/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type testEndpoint struct {
	label    string
	channels []*flow.Controller
}

func (e *testEndpoint) Label() string                { return e.label }
func (e *testEndpoint) Channels() []*flow.Controller { return e.channels }

func (e *testEndpoint) FindChannel(label string) *flow.Controller {
	for _, channel := range e.channels {
		if channel.Label() == label {
			return channel
		}
	}
	return nil
}

type testDirectory []*testEndpoint

func (d testDirectory) Endpoints() []Endpoint {
	endpoints := make([]Endpoint, len(d))
	for i, endpoint := range d {
		endpoints[i] = endpoint
	}
	return endpoints
}

func (d testDirectory) Endpoint(label string) Endpoint {
	for _, endpoint := range d {
		if endpoint.label == label {
			return endpoint
		}
	}
	return nil
}

// pair connects two memory connections carrying the given channels and
// returns the endpoints for the offering and answering sides.
func pair(t *testing.T, l *loop.Loop, label string, channelLabels ...string) (*testEndpoint, *testEndpoint) {
	t.Helper()
	network := transport.NewMemoryNetwork()
	offererConn, _ := network.NewConnection()
	answererConn, _ := network.NewConnection()
	offerer := offererConn.(*transport.MemoryConnection)
	answerer := answererConn.(*transport.MemoryConnection)

	for _, channelLabel := range channelLabels {
		if _, err := offerer.CreateChannel(channelLabel, true); err != nil {
			t.Fatalf("CreateChannel: %v", err)
		}
	}
	offer, _ := offerer.CreateOffer()
	if err := answerer.SetRemoteDescription(offer); err != nil {
		t.Fatalf("SetRemoteDescription(offer): %v", err)
	}
	answer, _ := answerer.CreateAnswer()
	if err := offerer.SetRemoteDescription(answer); err != nil {
		t.Fatalf("SetRemoteDescription(answer): %v", err)
	}

	local := &testEndpoint{label: label}
	remote := &testEndpoint{label: label}
	for _, channelLabel := range channelLabels {
		local.channels = append(local.channels,
			flow.New(l, offerer.Channel(channelLabel), flow.Config{ChunkSize: 1024}, testLogger()))
		remote.channels = append(remote.channels,
			flow.New(l, answerer.Channel(channelLabel), flow.Config{ChunkSize: 1024}, testLogger()))
	}
	l.RunPending()
	return local, remote
}

func TestEncodeDecode(t *testing.T) {
	message := Encode(0x0a0b0c0d)
	if len(message) != MessageSize {
		t.Fatalf("message length = %d, want %d", len(message), MessageSize)
	}
	if message[0] != 0x0a || message[3] != 0x0d {
		t.Fatalf("message = %x, want big-endian 0a0b0c0d", message)
	}
	id, err := Decode(message)
	if err != nil || id != 0x0a0b0c0d {
		t.Fatalf("Decode = %#x, %v", id, err)
	}
	if _, err := Decode([]byte{1, 2}); err == nil {
		t.Fatal("Decode accepted a 2-byte message")
	}
}

func TestParseMode(t *testing.T) {
	for _, name := range []string{"shared", "dedicated-channel", "dedicated-connection"} {
		if mode, err := ParseMode(name); err != nil || string(mode) != name {
			t.Fatalf("ParseMode(%q) = %q, %v", name, mode, err)
		}
	}
	if _, err := ParseMode("carrier-pigeon"); err == nil {
		t.Fatal("ParseMode accepted an unknown mode")
	}
}

func TestRouterDedicatedChannel(t *testing.T) {
	l := loop.New(clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	local, _ := pair(t, l, "PeerConnection-a", "DataChannel-0@PeerConnection-a", "DataChannel-pingpong@PeerConnection-a")

	router := NewRouter(testDirectory{local})
	router.SetRoute(Route{ConnectionLabel: "PeerConnection-a", ChannelLabel: "DataChannel-pingpong@PeerConnection-a"})
	channel, err := router.Channel()
	if err != nil {
		t.Fatalf("Channel: %v", err)
	}
	if channel.Label() != "DataChannel-pingpong@PeerConnection-a" {
		t.Fatalf("chose %s, want the probe channel", channel.Label())
	}

	router.SetRoute(Route{ConnectionLabel: "PeerConnection-a", ChannelLabel: "DataChannel-9@PeerConnection-a"})
	if _, err := router.Channel(); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("missing channel: got %v, want ErrNoRoute", err)
	}
	router.SetRoute(Route{ConnectionLabel: "PeerConnection-z"})
	if _, err := router.Channel(); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("missing connection: got %v, want ErrNoRoute", err)
	}
}

func TestRouterSharedPicksRandomly(t *testing.T) {
	l := loop.New(clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	first, _ := pair(t, l, "PeerConnection-a", "DataChannel-0@PeerConnection-a")
	second, _ := pair(t, l, "PeerConnection-b", "DataChannel-0@PeerConnection-b", "DataChannel-1@PeerConnection-b")

	router := NewRouter(testDirectory{first, second})
	var choices []int
	router.SetPicker(func(n int) int {
		choices = append(choices, n)
		return n - 1
	})
	channel, err := router.Channel()
	if err != nil {
		t.Fatalf("Channel: %v", err)
	}
	if channel.Label() != "DataChannel-1@PeerConnection-b" {
		t.Fatalf("chose %s, want the last channel of the last connection", channel.Label())
	}
	if len(choices) != 2 || choices[0] != 2 || choices[1] != 2 {
		t.Fatalf("picker called with %v, want [2 2]", choices)
	}

	if _, err := NewRouter(testDirectory{}).Channel(); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("empty directory: got %v, want ErrNoRoute", err)
	}
}

func TestProberRoundTrip(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	l := loop.New(fake)
	const channelLabel = "DataChannel-pingpong@PeerConnection-a"
	local, remote := pair(t, l, "PeerConnection-a", channelLabel)
	route := Route{ConnectionLabel: "PeerConnection-a", ChannelLabel: channelLabel}

	// The remote side echoes.
	echoRouter := NewRouter(testDirectory{remote})
	echoRouter.SetRoute(route)
	remote.channels[0].OnMessage(func(_ *flow.Controller, message []byte) {
		if err := Echo(echoRouter, message); err != nil {
			t.Errorf("Echo: %v", err)
		}
	})

	engine := rtt.New(l, rtt.Config{SendingPeriod: 100 * time.Millisecond, ReportingPeriod: time.Second}, testLogger())
	router := NewRouter(testDirectory{local})
	router.SetRoute(route)
	prober := NewProber(l, router, engine, 100*time.Millisecond, testLogger())
	local.channels[0].OnMessage(func(_ *flow.Controller, message []byte) { prober.HandleReply(message) })

	prober.Start()
	for i := 0; i < 3; i++ {
		fake.Advance(100 * time.Millisecond)
		l.RunPending()
	}
	if got := prober.Sent(); got != 3 {
		t.Fatalf("probes sent = %d, want 3", got)
	}

	prober.Stop()
	prober.Stop()
	final := engine.FinalStats()
	if final.Sent != 3 || final.Replied != 3 || len(final.Lost) != 0 {
		t.Fatalf("final stats = %+v, want 3 sent and replied", final)
	}
	// Memory delivery is immediate, so every round trip is zero.
	if final.RTT == nil || final.RTT.Max != 0 {
		t.Fatalf("RTT = %+v, want zero round trips", final.RTT)
	}
	if final.Jitter == nil || final.Jitter.Max != 0 {
		t.Fatalf("jitter = %+v, want zero against the sending period", final.Jitter)
	}

	fake.Advance(time.Second)
	l.RunPending()
	if got := prober.Sent(); got != 3 {
		t.Fatalf("probes sent after Stop = %d, want 3", got)
	}
}

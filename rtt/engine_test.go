// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rtt

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bureau-foundation/dctransfer/lib/clock"
	"github.com/bureau-foundation/dctransfer/lib/loop"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestEngine(config Config) (*Engine, *loop.Loop, *clock.FakeClock) {
	fake := clock.Fake(epoch)
	l := loop.New(fake)
	return New(l, config, slog.New(slog.NewJSONHandler(io.Discard, nil))), l, fake
}

func TestReplyCompletesSampleAndUnansweredProbeIsLost(t *testing.T) {
	engine, _, fake := newTestEngine(Config{SendingPeriod: 100 * time.Millisecond})
	engine.Start()
	defer engine.Stop()

	engine.PingSent(5)
	engine.PingSent(6)
	fake.Advance(42 * time.Millisecond)
	if !engine.PongReceived(5) {
		t.Fatal("reply for probe 5 not matched")
	}

	final := engine.FinalStats()
	if final.RTT == nil {
		t.Fatal("RTT stats missing")
	}
	want := Stats{Min: 42 * time.Millisecond, Max: 42 * time.Millisecond, Mean: 42 * time.Millisecond, Samples: 1}
	if *final.RTT != want {
		t.Fatalf("RTT = %+v, want %+v", *final.RTT, want)
	}
	if len(final.Lost) != 1 || final.Lost[0] != 6 {
		t.Fatalf("lost = %v, want [6]", final.Lost)
	}
	if final.Sent != 2 || final.Replied != 1 {
		t.Fatalf("sent %d replied %d, want 2 and 1", final.Sent, final.Replied)
	}
	if final.Jitter != nil {
		t.Fatalf("jitter from one reply = %+v, want nil", *final.Jitter)
	}
}

func TestUnknownAndRepeatedRepliesIgnored(t *testing.T) {
	engine, _, fake := newTestEngine(Config{})
	engine.PingSent(1)
	fake.Advance(10 * time.Millisecond)

	if engine.PongReceived(99) {
		t.Fatal("reply for unknown probe matched")
	}
	if !engine.PongReceived(1) {
		t.Fatal("first reply not matched")
	}
	fake.Advance(10 * time.Millisecond)
	if engine.PongReceived(1) {
		t.Fatal("repeated reply matched")
	}
	if got := engine.FinalStats().RTT.Max; got != 10*time.Millisecond {
		t.Fatalf("max RTT = %v, want 10ms", got)
	}
}

func TestNegativeRoundTripRejected(t *testing.T) {
	engine, _, _ := newTestEngine(Config{})
	engine.PingSent(3)
	if engine.recordReply(3, epoch.Add(-time.Millisecond)) {
		t.Fatal("negative round trip accepted")
	}
	final := engine.FinalStats()
	if final.Anomalies != 1 {
		t.Fatalf("anomalies = %d, want 1", final.Anomalies)
	}
	if final.RTT != nil {
		t.Fatalf("RTT stats from a rejected reply: %+v", *final.RTT)
	}
	if len(final.Lost) != 1 {
		t.Fatalf("lost = %v, want [3]", final.Lost)
	}
}

func TestWindowMeanExcludesEarlierWindows(t *testing.T) {
	engine, l, fake := newTestEngine(Config{ReportingPeriod: time.Second})
	var windows []*Window
	engine.OnWindow(func(window *Window) { windows = append(windows, window) })
	engine.Start()
	defer engine.Stop()

	// Completes before the first window opens.
	engine.PingSent(1)
	fake.Advance(50 * time.Millisecond)
	engine.PongReceived(1)

	fake.Advance(950 * time.Millisecond)
	l.RunPending()
	if len(windows) != 0 {
		t.Fatalf("window reported at the initial delay: %d", len(windows))
	}

	engine.PingSent(2)
	fake.Advance(20 * time.Millisecond)
	engine.PongReceived(2)
	engine.PingSent(3)
	fake.Advance(40 * time.Millisecond)
	engine.PongReceived(3)

	fake.Advance(940 * time.Millisecond)
	l.RunPending()
	if len(windows) != 1 {
		t.Fatalf("got %d windows, want 1", len(windows))
	}
	if windows[0] == nil {
		t.Fatal("window with samples reported as empty")
	}
	if windows[0].Mean != 30*time.Millisecond || windows[0].Samples != 2 {
		t.Fatalf("window = %+v, want mean 30ms over 2 samples", *windows[0])
	}

	fake.Advance(time.Second)
	l.RunPending()
	if len(windows) != 2 || windows[1] != nil {
		t.Fatalf("empty window not reported as nil: %v", windows)
	}

	// The session map still holds every probe.
	if got := engine.FinalStats().Replied; got != 3 {
		t.Fatalf("replied = %d, want 3", got)
	}
}

func TestStopCancelsAggregation(t *testing.T) {
	engine, l, fake := newTestEngine(Config{ReportingPeriod: time.Second})
	windows := 0
	engine.OnWindow(func(*Window) { windows++ })

	engine.Stop()
	engine.Start()
	fake.Advance(time.Second)
	l.RunPending()
	fake.Advance(time.Second)
	l.RunPending()
	if windows != 1 {
		t.Fatalf("windows before stop = %d, want 1", windows)
	}

	engine.Stop()
	engine.Stop()
	if engine.Running() {
		t.Fatal("engine still running after Stop")
	}
	fake.Advance(5 * time.Second)
	l.RunPending()
	if windows != 1 {
		t.Fatalf("windows after stop = %d, want 1", windows)
	}
}

func TestJitterAgainstSendingPeriod(t *testing.T) {
	engine, _, fake := newTestEngine(Config{SendingPeriod: 100 * time.Millisecond})

	// Replies arrive 100ms, 120ms and 80ms apart.
	gaps := []time.Duration{0, 100 * time.Millisecond, 120 * time.Millisecond, 80 * time.Millisecond}
	for id, gap := range gaps {
		fake.Advance(gap)
		engine.PingSent(uint32(id))
		engine.PongReceived(uint32(id))
	}

	jitter := engine.FinalStats().Jitter
	if jitter == nil {
		t.Fatal("jitter missing")
	}
	if jitter.Min != 0 || jitter.Max != 20*time.Millisecond || jitter.Samples != 3 {
		t.Fatalf("jitter = %+v, want min 0, max 20ms over 3 gaps", *jitter)
	}
	wantMean := 40 * time.Millisecond / 3
	if diff := jitter.Mean - wantMean; diff > time.Microsecond || diff < -time.Microsecond {
		t.Fatalf("jitter mean = %v, want about %v", jitter.Mean, wantMean)
	}
	if jitter.StdDev < 0 {
		t.Fatalf("negative standard deviation %v", jitter.StdDev)
	}
}

func TestJitterAgainstObservedMeanGap(t *testing.T) {
	engine, _, fake := newTestEngine(Config{})
	for id, gap := range []time.Duration{0, 50 * time.Millisecond, 150 * time.Millisecond} {
		fake.Advance(gap)
		engine.PingSent(uint32(id))
		engine.PongReceived(uint32(id))
	}
	// Mean gap 100ms; both gaps deviate by 50ms.
	jitter := engine.FinalStats().Jitter
	if jitter == nil || jitter.Min != 50*time.Millisecond || jitter.Max != 50*time.Millisecond || jitter.StdDev != 0 {
		t.Fatalf("jitter = %+v, want constant 50ms", jitter)
	}
}

func TestStartResetsSamples(t *testing.T) {
	engine, _, _ := newTestEngine(Config{})
	engine.PingSent(1)
	engine.Start()
	defer engine.Stop()
	if final := engine.FinalStats(); final.Sent != 0 || final.RTT != nil || final.Jitter != nil {
		t.Fatalf("stats after Start = %+v, want empty", final)
	}
}

func TestSummarizeKeepsPrecisionForLargeClusteredValues(t *testing.T) {
	base := time.Hour
	stats := summarize([]time.Duration{base, base + 2, base + 4})
	if stats.Mean != base+2 {
		t.Fatalf("mean = %v, want %v", stats.Mean, base+2)
	}
	// Population deviation of {-2, 0, 2} ns is sqrt(8/3), about 1.63 ns.
	if stats.StdDev != 2 {
		t.Fatalf("stddev = %dns, want 2ns", stats.StdDev)
	}
	if stats.Min != base || stats.Max != base+4 || stats.Samples != 3 {
		t.Fatalf("stats = %+v", *stats)
	}
}

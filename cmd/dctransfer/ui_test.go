// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bureau-foundation/dctransfer/probe"
	"github.com/bureau-foundation/dctransfer/rtt"
	"github.com/bureau-foundation/dctransfer/session"
	"github.com/bureau-foundation/dctransfer/transfer"
)

func TestConsolePrintsEvents(t *testing.T) {
	var out bytes.Buffer
	c := newConsole(&out)

	c.TransferStarted(session.TransferInfo{
		Direction:   session.DirectionSend,
		Peer:        "3f2a9c1d",
		Bytes:       4 * mebibyte,
		Chunks:      256,
		ChunkSize:   16384,
		Connections: 2,
		Channels:    3,
		Probe:       true,
		ProbeMode:   probe.ModeShared,
	})
	c.SendProgress(transfer.Progress{Bytes: 2 * mebibyte, Total: 4 * mebibyte, Elapsed: time.Second})
	c.WindowMetrics(nil)
	c.WindowMetrics(&rtt.Window{Mean: 12 * time.Millisecond, Samples: 9})
	c.SendComplete(transfer.SendSummary{Chunks: 256, Bytes: 4 * mebibyte, Elapsed: 2 * time.Second, ThroughputMBps: 2.1, SendErrors: 1})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	want := []string{
		"sending to 3f2a9c1d: 4.0 MiB in 256 chunks of 16384 B over 2 x 3 channels, probing (shared)",
		"sent     2.0 / 4.0 MiB",
		"rtt      no replies in window",
		"rtt      12ms mean over 9 probes",
		"sent 256 chunks (4.0 MiB) in 2s: 2.10 MB/s, 1 send errors",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(want), out.String())
	}
	for i := range want {
		if !strings.HasPrefix(lines[i], want[i]) {
			t.Fatalf("line %d = %q, want prefix %q", i, lines[i], want[i])
		}
	}
}

func TestFormatReceiveSummary(t *testing.T) {
	line := formatReceiveSummary(transfer.ReceiveSummary{
		ExpectedChunks: 64,
		ReceivedChunks: 62,
		Missing:        2,
		MissingIDs:     []uint32{7, 40},
		Duplicates:     1,
		Verified:       true,
		Bytes:          63 * 16384,
		Elapsed:        time.Second,
	})
	for _, fragment := range []string{"received 62/64 chunks", "2 missing", "1 duplicates", "0 corrupted"} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("%q does not contain %q", line, fragment)
		}
	}
}

func TestFormatFinalStatsWithoutReplies(t *testing.T) {
	text := formatFinalStats(rtt.FinalStats{Sent: 5, Lost: []uint32{0, 1, 2, 3, 4}})
	want := "probes: 5 sent, 0 replied, 5 lost\nrtt: no samples\njitter: no samples"
	if text != want {
		t.Fatalf("got %q, want %q", text, want)
	}
}

func TestViewModelTracksEvents(t *testing.T) {
	var model tea.Model = newViewModel()
	update := func(message tea.Msg) {
		t.Helper()
		var command tea.Cmd
		model, command = model.Update(message)
		if command != nil {
			t.Fatalf("Update(%T) returned a command", message)
		}
	}

	update(startedMsg(session.TransferInfo{Direction: session.DirectionReceive, Peer: "a1b2c3d4", Bytes: mebibyte, Chunks: 64, ChunkSize: 16384, Connections: 1, Channels: 1}))
	update(connectionsMsg(1))
	update(connectionsMsg(1))
	update(connectionsMsg(-1))
	update(progressMsg(transfer.Progress{Bytes: mebibyte / 2, Total: mebibyte, Elapsed: time.Second}))
	update(windowMsg{window: &rtt.Window{Mean: 3 * time.Millisecond, Samples: 4}})
	update(statusMsg("receiving"))
	update(summaryMsg("first"))
	update(summaryMsg("second"))
	update(logLineMsg{Line: "chunks missing at completion", Level: slog.LevelWarn})

	state := model.(viewModel)
	if state.connections != 1 {
		t.Fatalf("connections = %d, want 1", state.connections)
	}
	if state.summary != "first\nsecond" {
		t.Fatalf("summary = %q, want both lines", state.summary)
	}

	view := model.View()
	for _, fragment := range []string{"receiving from a1b2c3d4", "0.5 / 1.0 MiB", "3ms mean over 4 probes", "chunks missing at completion"} {
		if !strings.Contains(view, fragment) {
			t.Fatalf("view does not contain %q:\n%s", fragment, view)
		}
	}

	update(startedMsg(session.TransferInfo{Direction: session.DirectionReceive, Chunks: 1, ChunkSize: 16384}))
	if state := model.(viewModel); state.summary != "" || state.window != "-" {
		t.Fatalf("a new transfer kept summary %q and window %q", state.summary, state.window)
	}
}

func TestViewModelQuitsOnKey(t *testing.T) {
	_, command := newViewModel().Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if command == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := command().(tea.QuitMsg); !ok {
		t.Fatal("q did not quit")
	}
}

func TestViewLogHandler(t *testing.T) {
	handler := newViewLogHandler(slog.LevelInfo)
	logger := slog.New(handler).With("peer", "3f2a9c1d")

	logger.Info("dropped before attach")

	var delivered []any
	handler.attach(func(message any) { delivered = append(delivered, message) })

	logger.Debug("below level")
	logger.WithGroup("ignored").Warn("connection closed", "label", "transfer-0")

	if len(delivered) != 1 {
		t.Fatalf("got %d messages, want 1", len(delivered))
	}
	line, ok := delivered[0].(logLineMsg)
	if !ok {
		t.Fatalf("got %T, want logLineMsg", delivered[0])
	}
	want := "connection closed (peer=3f2a9c1d, label=transfer-0)"
	if line.Line != want || line.Level != slog.LevelWarn {
		t.Fatalf("got %q at %v, want %q at WARN", line.Line, line.Level, want)
	}
}

func TestStderrHandlerFormat(t *testing.T) {
	var out bytes.Buffer
	slog.New(newStderrHandler(&out, false, slog.LevelInfo)).Info("relay listening", "listen", ":8080")
	if !strings.HasPrefix(out.String(), "{") {
		t.Fatalf("non-terminal output %q is not JSON", out.String())
	}

	out.Reset()
	slog.New(newStderrHandler(&out, true, slog.LevelInfo)).Info("relay listening", "listen", ":8080")
	if !strings.Contains(out.String(), "msg=\"relay listening\"") {
		t.Fatalf("terminal output %q is not text", out.String())
	}
}

func TestParseLevel(t *testing.T) {
	if level, err := parseLevel("warn"); err != nil || level != slog.LevelWarn {
		t.Fatalf("parseLevel(warn) = %v, %v", level, err)
	}
	if _, err := parseLevel("loud"); err == nil {
		t.Fatal("parseLevel(loud) succeeded")
	}
}

func TestSendOutcome(t *testing.T) {
	var results []error
	outcome := &sendOutcome{finish: func(err error) { results = append(results, err) }}

	outcome.SendAborted(session.ErrConnectionsClosed)
	if len(results) != 1 || !errors.Is(results[0], session.ErrConnectionsClosed) {
		t.Fatalf("abort finished with %v", results)
	}
	if outcome.summary != nil {
		t.Fatal("an aborted send recorded a summary")
	}

	outcome.SendComplete(transfer.SendSummary{Chunks: 4})
	if len(results) != 2 || results[1] != nil {
		t.Fatalf("completion finished with %v", results)
	}
	if outcome.summary == nil || outcome.summary.Chunks != 4 {
		t.Fatalf("summary = %+v", outcome.summary)
	}
}

func TestReceiveOnce(t *testing.T) {
	finished := 0
	finish := func(error) { finished++ }

	(&receiveOnce{once: false, finish: finish}).ReceiveComplete(transfer.ReceiveSummary{})
	if finished != 0 {
		t.Fatal("finished without --once")
	}
	(&receiveOnce{once: true, finish: finish}).ReceiveComplete(transfer.ReceiveSummary{})
	if finished != 1 {
		t.Fatalf("finished %d times with --once, want 1", finished)
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/bureau-foundation/dctransfer/rtt"
	"github.com/bureau-foundation/dctransfer/session"
	"github.com/bureau-foundation/dctransfer/transfer"
)

// ui is how a run talks to the operator: a logger, an observer for
// session events and, with --tui, a view that owns the terminal.
type ui struct {
	logger   *slog.Logger
	observer session.Observer
	view     interface{ Run(ctx context.Context) error }
}

func newUI(tui bool, level slog.Level) (ui, error) {
	if !tui {
		return ui{logger: newLogger(level), observer: newConsole(os.Stdout)}, nil
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return ui{}, usageErrorf("--tui needs stdout to be a terminal")
	}
	logs := newViewLogHandler(level)
	view := newProgressView(logs)
	return ui{logger: slog.New(logs), observer: view.observer(), view: view}, nil
}

// console prints session events as plain lines.
type console struct {
	session.NopObserver
	out io.Writer
}

func newConsole(out io.Writer) *console { return &console{out: out} }

func (c *console) TransferStarted(info session.TransferInfo) {
	fmt.Fprintln(c.out, describeTransfer(info))
}

func (c *console) SendProgress(progress transfer.Progress) {
	fmt.Fprintf(c.out, "sent     %s\n", formatProgress(progress))
}

func (c *console) ReceiveProgress(progress transfer.Progress) {
	fmt.Fprintf(c.out, "received %s\n", formatProgress(progress))
}

func (c *console) WindowMetrics(window *rtt.Window) {
	fmt.Fprintf(c.out, "rtt      %s\n", formatWindow(window))
}

func (c *console) FinalStats(stats rtt.FinalStats) {
	fmt.Fprintln(c.out, formatFinalStats(stats))
}

func (c *console) SendComplete(summary transfer.SendSummary) {
	fmt.Fprintln(c.out, formatSendSummary(summary))
}

func (c *console) SendAborted(reason error) {
	fmt.Fprintf(c.out, "send aborted: %v\n", reason)
}

func (c *console) ReceiveComplete(summary transfer.ReceiveSummary) {
	fmt.Fprintln(c.out, formatReceiveSummary(summary))
}

const mebibyte = 1024 * 1024

func describeTransfer(info session.TransferInfo) string {
	peer := info.Peer
	if peer == "" {
		peer = "peer"
	}
	verb := "sending to"
	if info.Direction == session.DirectionReceive {
		verb = "receiving from"
	}
	line := fmt.Sprintf("%s %s: %.1f MiB in %d chunks of %d B over %d x %d channels",
		verb, peer, float64(info.Bytes)/mebibyte, info.Chunks, info.ChunkSize, info.Connections, info.Channels)
	if info.Probe {
		line += fmt.Sprintf(", probing (%s)", info.ProbeMode)
	}
	return line
}

func formatProgress(progress transfer.Progress) string {
	return fmt.Sprintf("%.1f / %.1f MiB  %.2f MB/s  %s",
		float64(progress.Bytes)/mebibyte,
		float64(progress.Total)/mebibyte,
		progress.ThroughputMBps(),
		progress.Elapsed.Round(time.Millisecond))
}

func formatWindow(window *rtt.Window) string {
	if window == nil {
		return "no replies in window"
	}
	return fmt.Sprintf("%s mean over %d probes", roundDuration(window.Mean), window.Samples)
}

func formatStats(name string, stats *rtt.Stats) string {
	if stats == nil {
		return name + ": no samples"
	}
	return fmt.Sprintf("%s: mean %s  min %s  max %s  stddev %s",
		name, roundDuration(stats.Mean), roundDuration(stats.Min), roundDuration(stats.Max), roundDuration(stats.StdDev))
}

func formatFinalStats(stats rtt.FinalStats) string {
	lines := []string{
		fmt.Sprintf("probes: %d sent, %d replied, %d lost", stats.Sent, stats.Replied, len(stats.Lost)),
		formatStats("rtt", stats.RTT),
		formatStats("jitter", stats.Jitter),
	}
	return strings.Join(lines, "\n")
}

func formatSendSummary(summary transfer.SendSummary) string {
	line := fmt.Sprintf("sent %d chunks (%.1f MiB) in %s: %.2f MB/s",
		summary.Chunks, float64(summary.Bytes)/mebibyte, summary.Elapsed.Round(time.Millisecond), summary.ThroughputMBps)
	if summary.SendErrors > 0 {
		line += fmt.Sprintf(", %d send errors", summary.SendErrors)
	}
	return line
}

func formatReceiveSummary(summary transfer.ReceiveSummary) string {
	line := fmt.Sprintf("received %d/%d chunks (%.1f MiB) in %s: %.2f MB/s, %d missing",
		summary.ReceivedChunks, summary.ExpectedChunks, float64(summary.Bytes)/mebibyte,
		summary.Elapsed.Round(time.Millisecond), summary.ThroughputMBps, summary.Missing)
	if summary.Duplicates > 0 {
		line += fmt.Sprintf(", %d duplicates", summary.Duplicates)
	}
	if summary.Verified {
		line += fmt.Sprintf(", %d corrupted", summary.Corrupted)
	}
	if len(summary.MissingIDs) > 0 {
		line += fmt.Sprintf("\nfirst missing: %v", summary.MissingIDs)
	}
	return line
}

func roundDuration(d time.Duration) time.Duration {
	if d < time.Millisecond {
		return d.Round(time.Microsecond)
	}
	return d.Round(10 * time.Microsecond)
}

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
	"sync/atomic"

	"golang.org/x/term"
)

func parseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}

// newLogger writes to stderr: text when stderr is a terminal, JSON
// when it is piped or redirected.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(newStderrHandler(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())), level))
}

func newStderrHandler(w io.Writer, terminal bool, level slog.Level) slog.Handler {
	options := &slog.HandlerOptions{Level: level}
	if terminal {
		return slog.NewTextHandler(w, options)
	}
	return slog.NewJSONHandler(w, options)
}

// logLineMsg carries one log record into the progress view.
type logLineMsg struct {
	Line  string
	Level slog.Level
}

// viewLogHandler routes records into the progress view while it owns
// the terminal. Records arriving before attach are dropped.
type viewLogHandler struct {
	level slog.Level
	send  *atomic.Pointer[func(any)]
	attrs []slog.Attr
}

func newViewLogHandler(level slog.Level) *viewLogHandler {
	return &viewLogHandler{level: level, send: &atomic.Pointer[func(any)]{}}
}

// attach sets the delivery function; derived handlers share it.
func (h *viewLogHandler) attach(send func(any)) {
	h.send.Store(&send)
}

func (h *viewLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *viewLogHandler) Handle(_ context.Context, record slog.Record) error {
	send := h.send.Load()
	if send == nil {
		return nil
	}
	var parts []string
	for _, attr := range h.attrs {
		parts = append(parts, attr.Key+"="+attr.Value.String())
	}
	record.Attrs(func(attr slog.Attr) bool {
		parts = append(parts, attr.Key+"="+attr.Value.String())
		return true
	})
	line := record.Message
	if len(parts) > 0 {
		line += " (" + strings.Join(parts, ", ") + ")"
	}
	(*send)(logLineMsg{Line: line, Level: record.Level})
	return nil
}

func (h *viewLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	combined := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	combined = append(combined, h.attrs...)
	combined = append(combined, attrs...)
	return &viewLogHandler{level: h.level, send: h.send, attrs: combined}
}

// WithGroup flattens groups; the view shows one line per record.
func (h *viewLogHandler) WithGroup(string) slog.Handler { return h }

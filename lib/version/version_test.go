// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
)

func TestFillFromSettings(t *testing.T) {
	settings := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef0123"},
		{Key: "vcs.modified", Value: "true"},
		{Key: "vcs.time", Value: "2026-04-01T10:00:00Z"},
	}

	got := fillFromSettings(Build{Version: "1.0.0", Commit: "unknown", BuildTime: "unknown"}, settings)
	if got.Commit != "0123456789ab" || !got.Dirty || got.BuildTime != "2026-04-01T10:00:00Z" {
		t.Fatalf("got %+v", got)
	}

	injected := fillFromSettings(Build{Version: "1.0.0", Commit: "feedbee", BuildTime: "now"}, settings)
	if injected.Commit != "feedbee" || injected.Dirty || injected.BuildTime != "now" {
		t.Fatalf("injected values were overridden: %+v", injected)
	}
}

func TestString(t *testing.T) {
	got := Build{Version: "0.2.0", Commit: "abc1234", Dirty: true, BuildTime: "today"}.String()
	if want := "0.2.0 (abc1234-dirty, today)"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if full := Full(); !strings.Contains(full, "Go: "+runtime.Version()) {
		t.Fatalf("Full() = %q, missing Go version", full)
	}
}

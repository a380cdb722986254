// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "testing"

func TestNewICEConfig_Empty(t *testing.T) {
	config := NewICEConfig(nil)
	if len(config.Servers) != 0 {
		t.Errorf("expected no ICE servers, got %d", len(config.Servers))
	}
}

func TestNewICEConfig_SkipsEntriesWithoutURLs(t *testing.T) {
	config := NewICEConfig([]ICEServer{
		{Username: "user", Credential: "pass"},
		{URLs: []string{"stun:stun.l.google.com:19302"}},
	})
	if len(config.Servers) != 1 {
		t.Fatalf("expected 1 ICE server, got %d", len(config.Servers))
	}
	if config.Servers[0].Username != "" {
		t.Errorf("STUN entry should carry no username, got %q", config.Servers[0].Username)
	}
}

func TestNewICEConfig_WithCredentials(t *testing.T) {
	config := NewICEConfig([]ICEServer{{
		URLs:       []string{"turn:turn.example.org:3478?transport=udp", "turn:turn.example.org:3478?transport=tcp"},
		Username:   "1234:user",
		Credential: "secret",
	}})
	if len(config.Servers) != 1 {
		t.Fatalf("expected 1 ICE server entry, got %d", len(config.Servers))
	}
	server := config.Servers[0]
	if len(server.URLs) != 2 {
		t.Errorf("expected 2 URLs, got %d", len(server.URLs))
	}
	if server.Username != "1234:user" {
		t.Errorf("username = %q, want %q", server.Username, "1234:user")
	}
	if server.Credential != "secret" {
		t.Errorf("credential = %v, want %q", server.Credential, "secret")
	}
}

func TestConnectionStateTerminal(t *testing.T) {
	tests := []struct {
		state ConnectionState
		want  bool
	}{
		{ConnectionNew, false},
		{ConnectionChecking, false},
		{ConnectionConnected, false},
		{ConnectionCompleted, false},
		{ConnectionDisconnected, true},
		{ConnectionFailed, true},
		{ConnectionClosed, true},
	}
	for _, test := range tests {
		if got := test.state.Terminal(); got != test.want {
			t.Errorf("%s.Terminal() = %v, want %v", test.state, got, test.want)
		}
	}
}

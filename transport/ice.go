// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "github.com/pion/webrtc/v4"

// ICEServer is one STUN or TURN server entry.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// ICEConfig holds ICE server configuration for WebRTC connections. An
// empty config gathers host candidates only, which is enough for
// same-machine and same-LAN transfers.
type ICEConfig struct {
	Servers []webrtc.ICEServer
}

// NewICEConfig converts server entries into pion form, skipping entries
// with no URLs.
func NewICEConfig(servers []ICEServer) ICEConfig {
	var config ICEConfig
	for _, server := range servers {
		if len(server.URLs) == 0 {
			continue
		}
		entry := webrtc.ICEServer{URLs: server.URLs}
		if server.Username != "" {
			entry.Username = server.Username
			entry.Credential = server.Credential
		}
		config.Servers = append(config.Servers, entry)
	}
	return config
}

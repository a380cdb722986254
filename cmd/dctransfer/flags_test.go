// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dctransfer/lib/config"
	"github.com/bureau-foundation/dctransfer/probe"
)

func parseFlags(t *testing.T, args ...string) (*pflag.FlagSet, *peerFlags, *transferFlags) {
	t.Helper()
	var peer peerFlags
	var transfer transferFlags
	flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
	peer.register(flagSet)
	transfer.register(flagSet)
	if err := flagSet.Parse(args); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return flagSet, &peer, &transfer
}

func TestUnsetFlagsKeepFileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dctransfer.yaml")
	contents := `
signaling:
  relay_url: ws://relay.example:9000/
transfer:
  connections: 3
  channels_per_connection: 2
  ordered: false
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	flagSet, peer, transfer := parseFlags(t, "--config", path, "--channels", "5")
	cfg, err := peer.load(flagSet)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	transfer.apply(flagSet, cfg)

	if cfg.Signaling.RelayURL != "ws://relay.example:9000/" {
		t.Fatalf("relay = %q, want the file value", cfg.Signaling.RelayURL)
	}
	if cfg.Transfer.Connections != 3 {
		t.Fatalf("connections = %d, want 3 from the file", cfg.Transfer.Connections)
	}
	if cfg.Transfer.ChannelsPerConnection != 5 {
		t.Fatalf("channels = %d, want 5 from the flag", cfg.Transfer.ChannelsPerConnection)
	}
	if cfg.Transfer.Ordered {
		t.Fatal("ordered = true, want the file's false to survive an unset --unordered")
	}
}

func TestFlagsOverrideDefaults(t *testing.T) {
	t.Setenv(config.EnvironmentVariable, "")
	flagSet, peer, transfer := parseFlags(t,
		"--relay", "ws://10.0.0.1:8080/",
		"--report", "/var/lib/dctransfer",
		"--compress-report",
		"--unordered",
		"--chunk-size", "65536",
		"--workaround",
		"--verify",
		"--probe",
		"--probe-mode", "dedicated-channel",
		"--probe-period", "50ms",
	)
	cfg, err := peer.load(flagSet)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	transfer.apply(flagSet, cfg)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	options := sessionOptions(cfg)
	if !options.Unordered {
		t.Fatal("Unordered = false, want true")
	}
	if options.ChunkSize != 65536 {
		t.Fatalf("ChunkSize = %d, want 65536", options.ChunkSize)
	}
	if !options.SafetyLimitWorkaround || !options.VerifyPayload {
		t.Fatalf("workaround=%v verify=%v, want both set", options.SafetyLimitWorkaround, options.VerifyPayload)
	}
	if !options.Probe.Enabled || options.Probe.Mode != probe.ModeDedicatedChannel {
		t.Fatalf("probe = %+v, want enabled dedicated-channel", options.Probe)
	}
	if options.Probe.SendingPeriod != 50*time.Millisecond {
		t.Fatalf("SendingPeriod = %v, want 50ms", options.Probe.SendingPeriod)
	}
	if options.Probe.MetricsPeriod != time.Second {
		t.Fatalf("MetricsPeriod = %v, want the 1s default", options.Probe.MetricsPeriod)
	}
	if cfg.Report.Directory != "/var/lib/dctransfer" || !cfg.Report.Compress {
		t.Fatalf("report = %+v, want compressed reports in /var/lib/dctransfer", cfg.Report)
	}
	if cfg.Signaling.RelayURL != "ws://10.0.0.1:8080/" {
		t.Fatalf("relay = %q", cfg.Signaling.RelayURL)
	}
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dctransfer.jsonc")
	contents := `{
  // relay on the lab network
  "signaling": {"relay_url": "ws://lab:8080/"},
}`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(config.EnvironmentVariable, path)

	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Signaling.RelayURL != "ws://lab:8080/" {
		t.Fatalf("relay = %q, want ws://lab:8080/", cfg.Signaling.RelayURL)
	}
}

func TestICEConfigCarriesServers(t *testing.T) {
	cfg := config.Default()
	cfg.ICE.Servers = []config.ICEServer{
		{URLs: []string{"stun:stun.example:3478"}},
		{URLs: []string{"turn:turn.example:3478"}, Username: "user", Credential: "secret"},
	}
	ice := iceConfig(cfg)
	if len(ice.Servers) != 2 {
		t.Fatalf("got %d servers, want 2", len(ice.Servers))
	}
	if ice.Servers[1].Username != "user" || ice.Servers[1].Credential != "secret" {
		t.Fatalf("turn server = %+v", ice.Servers[1])
	}
}

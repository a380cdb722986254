// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dctransfer/lib/config"
	"github.com/bureau-foundation/dctransfer/probe"
	"github.com/bureau-foundation/dctransfer/session"
	"github.com/bureau-foundation/dctransfer/transport"
)

// loadConfig reads the file named by --config, else DCTRANSFER_CONFIG,
// else starts from defaults.
func loadConfig(path string) (*config.Config, error) {
	switch {
	case path != "":
		return config.LoadFile(path)
	case os.Getenv(config.EnvironmentVariable) != "":
		return config.Load()
	default:
		return config.Default(), nil
	}
}

// override copies value into target when the flag was given on the
// command line.
func override[T any](flagSet *pflag.FlagSet, name string, target *T, value T) {
	if flagSet.Changed(name) {
		*target = value
	}
}

// peerFlags are shared by send and receive.
type peerFlags struct {
	configPath      string
	logLevel        string
	relayURL        string
	metricsListen   string
	reportDirectory string
	compressReport  bool
	tui             bool
}

func (f *peerFlags) register(flagSet *pflag.FlagSet) {
	defaults := config.Default()
	flagSet.StringVar(&f.configPath, "config", "", "configuration file (default: $DCTRANSFER_CONFIG)")
	flagSet.StringVar(&f.logLevel, "log-level", defaults.Log.Level, "log level: debug, info, warn, error")
	flagSet.StringVar(&f.relayURL, "relay", defaults.Signaling.RelayURL, "signaling relay websocket URL")
	flagSet.StringVar(&f.metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address")
	flagSet.StringVar(&f.reportDirectory, "report", "", "write a report file per transfer into this directory")
	flagSet.BoolVar(&f.compressReport, "compress-report", false, "zstd-compress report files")
	flagSet.BoolVar(&f.tui, "tui", false, "show an interactive progress view (needs a terminal)")
}

// load reads the configuration and applies the flags that were set.
func (f *peerFlags) load(flagSet *pflag.FlagSet) (*config.Config, error) {
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	override(flagSet, "log-level", &cfg.Log.Level, f.logLevel)
	override(flagSet, "relay", &cfg.Signaling.RelayURL, f.relayURL)
	override(flagSet, "metrics-listen", &cfg.Metrics.Listen, f.metricsListen)
	override(flagSet, "report", &cfg.Report.Directory, f.reportDirectory)
	override(flagSet, "compress-report", &cfg.Report.Compress, f.compressReport)
	return cfg, nil
}

// transferFlags override the transfer and probe sections for send.
type transferFlags struct {
	connections     int
	channels        int
	unordered       bool
	chunkSize       int
	pollingInterval time.Duration
	safetyLimitMB   float64
	workaround      bool
	verify          bool
	probe           bool
	probeMode       string
	probePeriod     time.Duration
	metricsPeriod   time.Duration
}

func (f *transferFlags) register(flagSet *pflag.FlagSet) {
	defaults := config.Default()
	flagSet.IntVar(&f.connections, "connections", defaults.Transfer.Connections, "number of peer connections")
	flagSet.IntVar(&f.channels, "channels", defaults.Transfer.ChannelsPerConnection, "data channels per connection")
	flagSet.BoolVar(&f.unordered, "unordered", false, "use unordered data channels")
	flagSet.IntVar(&f.chunkSize, "chunk-size", defaults.Transfer.ChunkSize, "chunk size in bytes, including the 4-byte header")
	flagSet.DurationVar(&f.pollingInterval, "polling-interval", defaults.Transfer.PollingInterval, "buffer polling and drain check interval")
	flagSet.Float64Var(&f.safetyLimitMB, "safety-limit-mb", 0, "cap on a channel's buffered amount in MiB (0: transport limit)")
	flagSet.BoolVar(&f.workaround, "workaround", false, "apply the 512 MiB per-channel safety limit")
	flagSet.BoolVar(&f.verify, "verify", false, "announce the payload digest so the receiver counts corrupted chunks")
	flagSet.BoolVar(&f.probe, "probe", false, "measure round-trip time with ping-pong probes")
	flagSet.StringVar(&f.probeMode, "probe-mode", defaults.Probe.Mode, "probe route: shared, dedicated-channel, dedicated-connection")
	flagSet.DurationVar(&f.probePeriod, "probe-period", defaults.Probe.SendingPeriod, "interval between probes")
	flagSet.DurationVar(&f.metricsPeriod, "metrics-period", defaults.Probe.MetricsPeriod, "round-trip reporting window")
}

func (f *transferFlags) apply(flagSet *pflag.FlagSet, cfg *config.Config) {
	override(flagSet, "connections", &cfg.Transfer.Connections, f.connections)
	override(flagSet, "channels", &cfg.Transfer.ChannelsPerConnection, f.channels)
	override(flagSet, "unordered", &cfg.Transfer.Ordered, !f.unordered)
	override(flagSet, "chunk-size", &cfg.Transfer.ChunkSize, f.chunkSize)
	override(flagSet, "polling-interval", &cfg.Transfer.PollingInterval, f.pollingInterval)
	override(flagSet, "safety-limit-mb", &cfg.Transfer.SafetyLimitMB, f.safetyLimitMB)
	override(flagSet, "workaround", &cfg.Transfer.SafetyLimitWorkaround, f.workaround)
	override(flagSet, "verify", &cfg.Transfer.VerifyPayload, f.verify)
	override(flagSet, "probe", &cfg.Probe.Enabled, f.probe)
	override(flagSet, "probe-mode", &cfg.Probe.Mode, f.probeMode)
	override(flagSet, "probe-period", &cfg.Probe.SendingPeriod, f.probePeriod)
	override(flagSet, "metrics-period", &cfg.Probe.MetricsPeriod, f.metricsPeriod)
}

// sessionOptions maps a validated configuration onto transfer options.
func sessionOptions(cfg *config.Config) session.Options {
	return session.Options{
		Connections:           cfg.Transfer.Connections,
		ChannelsPerConnection: cfg.Transfer.ChannelsPerConnection,
		Unordered:             !cfg.Transfer.Ordered,
		ChunkSize:             cfg.Transfer.ChunkSize,
		PollingInterval:       cfg.Transfer.PollingInterval,
		SafetyLimitMB:         cfg.Transfer.SafetyLimitMB,
		SafetyLimitWorkaround: cfg.Transfer.SafetyLimitWorkaround,
		VerifyPayload:         cfg.Transfer.VerifyPayload,
		ProgressInterval:      cfg.Transfer.ProgressInterval,
		Probe: session.ProbeOptions{
			Enabled:       cfg.Probe.Enabled,
			Mode:          probe.Mode(cfg.Probe.Mode),
			SendingPeriod: cfg.Probe.SendingPeriod,
			MetricsPeriod: cfg.Probe.MetricsPeriod,
		},
	}
}

func iceConfig(cfg *config.Config) transport.ICEConfig {
	servers := make([]transport.ICEServer, 0, len(cfg.ICE.Servers))
	for _, server := range cfg.ICE.Servers {
		servers = append(servers, transport.ICEServer{
			URLs:       server.URLs,
			Username:   server.Username,
			Credential: server.Credential,
		})
	}
	return transport.NewICEConfig(servers)
}

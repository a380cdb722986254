// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dctransfer/lib/config"
	"github.com/bureau-foundation/dctransfer/signaling"
	"github.com/bureau-foundation/dctransfer/telemetry"
)

type relayParams struct {
	configPath string
	logLevel   string
	listen     string
	metrics    bool
}

func relayCommand() *command {
	var params relayParams
	var flagSet *pflag.FlagSet

	return &command{
		Name:    "relay",
		Summary: "Run the signaling relay",
		Description: `Run the websocket signaling relay. Every peer that connects gets a
random id; frames are forwarded verbatim to the peer named in their
"to" field. The relay never inspects offers or answers.`,
		Examples: []example{
			{Description: "Relay on port 8080 with metrics at /metrics", Command: "dctransfer relay --listen :8080 --metrics"},
		},
		Flags: func() *pflag.FlagSet {
			defaults := config.Default()
			flagSet = pflag.NewFlagSet("relay", pflag.ContinueOnError)
			flagSet.StringVar(&params.configPath, "config", "", "configuration file (default: $DCTRANSFER_CONFIG)")
			flagSet.StringVar(&params.logLevel, "log-level", defaults.Log.Level, "log level: debug, info, warn, error")
			flagSet.StringVar(&params.listen, "listen", defaults.Signaling.Listen, "address to listen on")
			flagSet.BoolVar(&params.metrics, "metrics", false, "serve Prometheus metrics on the relay address")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return usageErrorf("unexpected argument: %s", args[0])
			}
			cfg, err := loadConfig(params.configPath)
			if err != nil {
				return err
			}
			override(flagSet, "log-level", &cfg.Log.Level, params.logLevel)
			override(flagSet, "listen", &cfg.Signaling.Listen, params.listen)
			if err := cfg.Validate(); err != nil {
				return &usageError{Err: err}
			}
			level, err := parseLevel(cfg.Log.Level)
			if err != nil {
				return &usageError{Err: err}
			}
			logger := newLogger(level)

			relay := signaling.NewRelay(logger)
			defer relay.Close()

			mux := http.NewServeMux()
			if params.metrics {
				registry := prometheus.NewRegistry()
				peers := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
					Namespace: "dctransfer",
					Name:      "relay_peers",
					Help:      "Peers connected to the relay.",
				}, func() float64 { return float64(relay.Peers()) })
				if err := registry.Register(peers); err != nil {
					return fmt.Errorf("registering relay metrics: %w", err)
				}
				mux.Handle(cfg.Metrics.Path, telemetry.Handler(registry))
			}
			mux.Handle("/", relay)

			logger.Info("relay starting", "listen", cfg.Signaling.Listen)
			return telemetry.ListenAndServe(ctx, cfg.Signaling.Listen, mux, logger)
		},
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Dctransfer measures bulk data-channel throughput and round-trip time
// between two peers.
//
// One process runs the signaling relay; a receiver joins it and stays
// up for successive transfers; a sender joins it and pushes a synthetic
// payload of the requested size to the receiver's id:
//
//	dctransfer relay --listen :8080
//	dctransfer receive --relay ws://relay:8080/
//	dctransfer send --relay ws://relay:8080/ --to 3f2a9c1d --megabytes 256 --connections 2 --channels 4 --probe
//
// Settings come from a YAML or JSONC file (--config or
// DCTRANSFER_CONFIG); flags given on the command line win.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if err := run(); err != nil {
		var silent *exitError
		if errors.As(err, &silent) {
			os.Exit(silent.Code)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return root().Execute(ctx, os.Args[1:])
}

func root() *command {
	return &command{
		Name:    "dctransfer",
		Summary: "Data-channel bulk transfer and round-trip benchmark",
		Description: `Dctransfer pushes a synthetic payload over one or more WebRTC
peer connections, each carrying several data channels, and reports
throughput, chunk loss and probe round-trip times.`,
		Subcommands: []*command{
			relayCommand(),
			sendCommand(),
			receiveCommand(),
			reportCommand(),
			versionCommand(),
		},
	}
}

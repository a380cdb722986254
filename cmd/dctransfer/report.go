// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dctransfer/report"
)

func reportCommand() *command {
	var jsonOutput bool

	return &command{
		Name:    "report",
		Summary: "Print a stored transfer report",
		Usage:   "dctransfer report [--json] FILE",
		Description: `Print a report written by send or receive with --report. Files ending
in .zst are decompressed first. Exits with status 3 when the report
records missing or corrupted chunks.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("report", pflag.ContinueOnError)
			flagSet.BoolVar(&jsonOutput, "json", false, "print the report as JSON")
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if len(args) != 1 {
				return usageErrorf("expected exactly one report file, got %d arguments", len(args))
			}
			stored, err := report.Read(args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(stored)
			}
			if err := report.Format(os.Stdout, stored); err != nil {
				return err
			}
			if !stored.Lossless() {
				return &exitError{Code: 3}
			}
			return nil
		},
	}
}

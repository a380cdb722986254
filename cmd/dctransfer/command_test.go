// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dctransfer/report"
	"github.com/bureau-foundation/dctransfer/session"
)

func TestDispatchesToSubcommand(t *testing.T) {
	var got []string
	var verbose bool
	tree := &command{
		Name: "tool",
		Subcommands: []*command{{
			Name: "run",
			Flags: func() *pflag.FlagSet {
				flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
				flagSet.BoolVar(&verbose, "verbose", false, "")
				return flagSet
			},
			Run: func(_ context.Context, args []string) error {
				got = args
				return nil
			},
		}},
	}

	if err := tree.Execute(context.Background(), []string{"run", "--verbose", "a", "b"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !verbose || strings.Join(got, ",") != "a,b" {
		t.Fatalf("verbose=%v args=%v, want true [a b]", verbose, got)
	}
}

func TestUsageErrorsExitWithTwo(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown command", []string{"fly"}, `unknown command "fly"`},
		{"missing subcommand", nil, "subcommand required"},
		{"unknown flag", []string{"relay", "--bogus"}, "unknown flag"},
		{"send without recipient", []string{"send", "--megabytes", "1"}, "--to is required"},
		{"send with bad size", []string{"send", "--to", "x", "--megabytes", "0"}, "--megabytes"},
		{"invalid probe mode", []string{"send", "--to", "x", "--probe-mode", "sideband"}, "probe.mode"},
		{"report without file", []string{"report"}, "exactly one report file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DCTRANSFER_CONFIG", "")
			err := root().Execute(context.Background(), tt.args)
			var usage *usageError
			if !errors.As(err, &usage) {
				t.Fatalf("got %v, want a usage error", err)
			}
			if usage.ExitCode() != 2 {
				t.Fatalf("exit code = %d, want 2", usage.ExitCode())
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestHelpIsNotAnError(t *testing.T) {
	for _, args := range [][]string{{"--help"}, {"send", "--help"}, {"report", "-h"}} {
		if err := root().Execute(context.Background(), args); err != nil {
			t.Fatalf("Execute(%v) = %v, want nil", args, err)
		}
	}
}

func TestReportCommandExitCodeReflectsLoss(t *testing.T) {
	directory := t.TempDir()
	lossless := report.Report{ID: "a", Role: session.DirectionReceive, StartedAt: time.Unix(0, 0), ExpectedChunks: 2, Chunks: 2}
	lossy := lossless
	lossy.ID = "b"
	lossy.Missing = 1

	losslessPath := filepath.Join(directory, "lossless.cbor")
	lossyPath := filepath.Join(directory, "lossy.cbor.zst")
	if err := report.Write(losslessPath, lossless); err != nil {
		t.Fatal(err)
	}
	if err := report.Write(lossyPath, lossy); err != nil {
		t.Fatal(err)
	}

	if err := root().Execute(context.Background(), []string{"report", losslessPath}); err != nil {
		t.Fatalf("report of a lossless transfer: %v", err)
	}
	err := root().Execute(context.Background(), []string{"report", lossyPath})
	var exit *exitError
	if !errors.As(err, &exit) || exit.Code != 3 {
		t.Fatalf("report of a lossy transfer: got %v, want exit code 3", err)
	}
	if err := root().Execute(context.Background(), []string{"report", "--json", lossyPath}); err != nil {
		t.Fatalf("report --json: %v", err)
	}
}

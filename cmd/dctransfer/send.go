// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dctransfer/session"
	"github.com/bureau-foundation/dctransfer/transfer"
)

type sendParams struct {
	peer      peerFlags
	transfer  transferFlags
	to        string
	megabytes float64
}

func sendCommand() *command {
	var params sendParams
	var flagSet *pflag.FlagSet

	return &command{
		Name:    "send",
		Summary: "Send a synthetic payload to a receiver",
		Description: `Join the relay, open the requested connections and channels to the
receiver with the given id, and push the payload as fast as the
channel buffers allow. Exits once every chunk has left the buffers.`,
		Examples: []example{
			{
				Description: "256 MiB over two connections with four channels each, measuring RTT",
				Command:     "dctransfer send --relay ws://relay:8080/ --to 3f2a9c1d --megabytes 256 --connections 2 --channels 4 --probe",
			},
			{
				Description: "Unordered channels with probes on their own connection",
				Command:     "dctransfer send --to 3f2a9c1d --megabytes 64 --unordered --probe --probe-mode dedicated-connection",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet = pflag.NewFlagSet("send", pflag.ContinueOnError)
			params.peer.register(flagSet)
			params.transfer.register(flagSet)
			flagSet.StringVar(&params.to, "to", "", "signaling id of the receiver (required)")
			flagSet.Float64Var(&params.megabytes, "megabytes", 16, "payload size in MiB")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return usageErrorf("unexpected argument: %s", args[0])
			}
			if params.to == "" {
				return usageErrorf("--to is required")
			}
			if params.megabytes <= 0 {
				return usageErrorf("--megabytes must be positive")
			}
			cfg, err := params.peer.load(flagSet)
			if err != nil {
				return err
			}
			params.transfer.apply(flagSet, cfg)
			if err := cfg.Validate(); err != nil {
				return &usageError{Err: err}
			}
			level, err := parseLevel(cfg.Log.Level)
			if err != nil {
				return &usageError{Err: err}
			}
			view, err := newUI(params.peer.tui, level)
			if err != nil {
				return err
			}

			totalBytes := uint64(params.megabytes * mebibyte)
			outcome := &sendOutcome{}
			view.observer = session.Observers(view.observer, outcome)
			err = runPeer(ctx, peerRun{
				cfg: cfg,
				ui:  view,
				start: func(s *session.Session, finish func(error)) error {
					outcome.finish = finish
					return s.Send(params.to, totalBytes, sessionOptions(cfg))
				},
			})
			if err != nil {
				return err
			}
			if outcome.summary == nil {
				return errors.New("interrupted before the transfer completed")
			}
			if params.peer.tui {
				fmt.Println(formatSendSummary(*outcome.summary))
			}
			return nil
		},
	}
}

// sendOutcome ends a send run when the transfer completes or aborts.
type sendOutcome struct {
	session.NopObserver
	finish  func(error)
	summary *transfer.SendSummary
}

func (o *sendOutcome) SendComplete(summary transfer.SendSummary) {
	o.summary = &summary
	if o.finish != nil {
		o.finish(nil)
	}
}

func (o *sendOutcome) SendAborted(reason error) {
	if o.finish != nil {
		o.finish(fmt.Errorf("send aborted: %w", reason))
	}
}

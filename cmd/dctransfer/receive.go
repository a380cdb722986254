// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dctransfer/session"
	"github.com/bureau-foundation/dctransfer/transfer"
)

type receiveParams struct {
	peer peerFlags
	once bool
}

func receiveCommand() *command {
	var params receiveParams
	var flagSet *pflag.FlagSet

	return &command{
		Name:    "receive",
		Summary: "Accept transfers from senders",
		Description: `Join the relay and print the assigned id. Every offer from a sender is
answered; each transfer is measured and reported. Runs until
interrupted, or until the first transfer completes with --once.`,
		Examples: []example{
			{Description: "Receive and keep a compressed report per transfer", Command: "dctransfer receive --relay ws://relay:8080/ --report ./reports --compress-report"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet = pflag.NewFlagSet("receive", pflag.ContinueOnError)
			params.peer.register(flagSet)
			flagSet.BoolVar(&params.once, "once", false, "exit after the first completed transfer")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return usageErrorf("unexpected argument: %s", args[0])
			}
			cfg, err := params.peer.load(flagSet)
			if err != nil {
				return err
			}
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

			watcher := &receiveOnce{once: params.once}
			view.observer = session.Observers(view.observer, watcher)
			return runPeer(ctx, peerRun{
				cfg: cfg,
				ui:  view,
				start: func(s *session.Session, finish func(error)) error {
					watcher.finish = finish
					fmt.Printf("receiver id: %s\n", s.LocalID())
					return nil
				},
			})
		},
	}
}

// receiveOnce ends the run after the first completed transfer when
// --once is set. Final probe statistics are delivered in the same loop
// task as the completion, so they are never cut off.
type receiveOnce struct {
	session.NopObserver
	once   bool
	finish func(error)
}

func (r *receiveOnce) ReceiveComplete(transfer.ReceiveSummary) {
	if r.once && r.finish != nil {
		r.finish(nil)
	}
}

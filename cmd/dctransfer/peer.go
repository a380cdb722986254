// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/dctransfer/lib/clock"
	"github.com/bureau-foundation/dctransfer/lib/config"
	"github.com/bureau-foundation/dctransfer/lib/loop"
	"github.com/bureau-foundation/dctransfer/report"
	"github.com/bureau-foundation/dctransfer/session"
	"github.com/bureau-foundation/dctransfer/signaling"
	"github.com/bureau-foundation/dctransfer/telemetry"
	"github.com/bureau-foundation/dctransfer/transport"
)

// peerRun describes one send or receive process.
type peerRun struct {
	cfg *config.Config
	ui  ui

	// start runs on the loop once the session exists. Calling finish
	// ends the run with a result; otherwise the run lasts until the
	// context is cancelled.
	start func(s *session.Session, finish func(error)) error
}

// runPeer joins the relay and runs a session until finish is called,
// ctx is cancelled, or a component fails. The loop, the signaling
// reader, the metrics server and the progress view run under one
// errgroup; the session is closed on the way out.
func runPeer(ctx context.Context, run peerRun) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	logger := run.ui.logger

	var (
		resultOnce sync.Once
		result     error
	)
	finish := func(err error) {
		resultOnce.Do(func() { result = err })
		cancel()
	}

	client, err := signaling.Dial(ctx, run.cfg.Signaling.RelayURL, logger)
	if err != nil {
		return fmt.Errorf("joining relay: %w", err)
	}
	defer client.Close()
	logger.Info("joined relay", "relay", run.cfg.Signaling.RelayURL, "id", client.LocalID())

	l := loop.New(clock.Real())
	defer l.Close()

	observers := []session.Observer{run.ui.observer}
	registry := prometheus.NewRegistry()
	if run.cfg.Metrics.Listen != "" {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics, err := telemetry.New(registry)
		if err != nil {
			return err
		}
		observers = append(observers, metrics)
	}
	if directory := run.cfg.Report.Directory; directory != "" {
		observers = append(observers, report.NewRecorder(l.Clock(), reportWriter(directory, run.cfg.Report.Compress, logger)))
	}

	s, err := session.New(session.Config{
		Loop:                    l,
		Factory:                 transport.NewWebRTC(iceConfig(run.cfg), logger),
		Signaler:                client,
		Observer:                session.Observers(observers...),
		Logger:                  logger,
		ReceiveProgressInterval: run.cfg.Transfer.ProgressInterval,
	})
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := l.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		err := client.Run(groupCtx, func(message signaling.Message) {
			l.Post(func() { s.HandleSignal(message) })
		})
		if err != nil {
			return fmt.Errorf("signaling: %w", err)
		}
		return nil
	})
	if run.cfg.Metrics.Listen != "" {
		group.Go(func() error {
			return telemetry.Serve(groupCtx, run.cfg.Metrics.Listen, run.cfg.Metrics.Path, registry, logger)
		})
	}
	if view := run.ui.view; view != nil {
		group.Go(func() error {
			// Quitting the view ends the run.
			defer cancel()
			return view.Run(groupCtx)
		})
	}
	if run.start != nil {
		l.Post(func() {
			if err := run.start(s, finish); err != nil {
				finish(err)
			}
		})
	}

	groupErr := group.Wait()

	// The loop has stopped; tear the session down on this goroutine.
	l.Post(s.Close)
	l.RunPending()

	if groupErr != nil {
		return groupErr
	}
	return result
}

func reportWriter(directory string, compress bool, logger *slog.Logger) func(report.Report) {
	return func(r report.Report) {
		path, err := report.WriteInto(directory, r, compress)
		if err != nil {
			logger.Error("writing report failed", "error", err)
			return
		}
		logger.Info("report written", "path", path)
	}
}

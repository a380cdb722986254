// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// DefaultPath is where metrics are served.
	DefaultPath = "/metrics"

	maxRequestsInFlight = 10
	shutdownTimeout     = 5 * time.Second
)

// Handler serves the metrics gathered by gatherer, in OpenMetrics format
// when the scraper asks for it.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics:   true,
		MaxRequestsInFlight: maxRequestsInFlight,
	})
}

// Serve serves Handler(gatherer) at path on listen until ctx is
// cancelled.
func Serve(ctx context.Context, listen, path string, gatherer prometheus.Gatherer, logger *slog.Logger) error {
	if path == "" {
		path = DefaultPath
	}
	mux := http.NewServeMux()
	mux.Handle(path, Handler(gatherer))
	return ListenAndServe(ctx, listen, mux, logger.With("path", path))
}

// ListenAndServe serves handler on listen until ctx is cancelled, then
// shuts the server down gracefully. A listen failure is returned
// immediately.
func ListenAndServe(ctx context.Context, listen string, handler http.Handler, logger *slog.Logger) error {
	listener, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", listen, err)
	}
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("serving http", "address", listener.Addr().String())
	if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-stopped
	return nil
}

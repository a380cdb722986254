// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bureau-foundation/dctransfer/pool"
	"github.com/bureau-foundation/dctransfer/rtt"
	"github.com/bureau-foundation/dctransfer/session"
	"github.com/bureau-foundation/dctransfer/transfer"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	metrics, err := New(registry)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return metrics, registry
}

func TestByteCountersFollowCumulativeProgress(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.TransferStarted(session.TransferInfo{Direction: session.DirectionSend})
	m.SendProgress(transfer.Progress{Bytes: 100, Elapsed: time.Second})
	m.SendProgress(transfer.Progress{Bytes: 300, Elapsed: 2 * time.Second})
	m.SendComplete(transfer.SendSummary{Bytes: 400})
	if got := testutil.ToFloat64(m.sentBytes); got != 400 {
		t.Fatalf("sent bytes = %v, want 400", got)
	}

	// A second transfer starts counting from zero again.
	m.TransferStarted(session.TransferInfo{Direction: session.DirectionSend})
	m.SendProgress(transfer.Progress{Bytes: 50, Elapsed: time.Second})
	if got := testutil.ToFloat64(m.sentBytes); got != 450 {
		t.Fatalf("sent bytes = %v, want 450", got)
	}
	if got := testutil.ToFloat64(m.transfers.WithLabelValues("send")); got != 1 {
		t.Fatalf("completed sends = %v, want 1", got)
	}
}

func TestSendAbortedCounts(t *testing.T) {
	m, _ := newTestMetrics(t)
	m.SendAborted(session.ErrConnectionsClosed)
	if got := testutil.ToFloat64(m.aborted); got != 1 {
		t.Fatalf("aborted sends = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.transfers.WithLabelValues("send")); got != 0 {
		t.Fatalf("completed sends = %v, want 0", got)
	}
}

func TestReceiveCompleteRecordsLoss(t *testing.T) {
	m, _ := newTestMetrics(t)
	m.ReceiveProgress(transfer.Progress{Bytes: 1 << 20, Elapsed: time.Second})
	m.ReceiveComplete(transfer.ReceiveSummary{Bytes: 2 << 20, Missing: 3, Corrupted: 1, ThroughputMBps: 2})

	if got := testutil.ToFloat64(m.receivedBytes); got != 2<<20 {
		t.Fatalf("received bytes = %v, want %v", got, 2<<20)
	}
	if got := testutil.ToFloat64(m.missingChunks); got != 3 {
		t.Fatalf("missing chunks = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.corruptedChunks); got != 1 {
		t.Fatalf("corrupted chunks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.throughput.WithLabelValues("receive")); got != 2 {
		t.Fatalf("receive throughput = %v, want 2", got)
	}
}

func TestConnectionGaugeByRole(t *testing.T) {
	m, _ := newTestMetrics(t)
	m.ConnectionOpened("a", pool.RoleTransfer)
	m.ConnectionOpened("b", pool.RoleTransfer)
	m.ConnectionOpened("c", pool.RoleProbe)
	m.ConnectionClosed("a", pool.RoleTransfer)

	if got := testutil.ToFloat64(m.connectionsOpen.WithLabelValues("transfer")); got != 1 {
		t.Fatalf("open transfer connections = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.connectionsOpen.WithLabelValues("pingpong")); got != 1 {
		t.Fatalf("open probe connections = %v, want 1", got)
	}
}

func TestWindowMetrics(t *testing.T) {
	m, _ := newTestMetrics(t)
	m.WindowMetrics(&rtt.Window{Mean: 20 * time.Millisecond, Samples: 10})
	if got := testutil.ToFloat64(m.rttWindow); got != 0.02 {
		t.Fatalf("rtt window = %v, want 0.02", got)
	}
	m.WindowMetrics(nil)
	if got := testutil.ToFloat64(m.rttWindow); !math.IsNaN(got) {
		t.Fatalf("rtt window after an empty window = %v, want NaN", got)
	}
	if got := testutil.CollectAndCount(m.rtt); got != 1 {
		t.Fatalf("rtt histogram series = %d, want 1", got)
	}

	m.FinalStats(rtt.FinalStats{Lost: []uint32{4, 9}})
	if got := testutil.ToFloat64(m.lostProbes); got != 2 {
		t.Fatalf("lost probes = %v, want 2", got)
	}
}

func TestDuplicateRegistrationFails(t *testing.T) {
	registry := prometheus.NewRegistry()
	if _, err := New(registry); err != nil {
		t.Fatalf("first New: %v", err)
	}
	if _, err := New(registry); err == nil {
		t.Fatal("second New on the same registry succeeded")
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	m, registry := newTestMetrics(t)
	m.SendComplete(transfer.SendSummary{Bytes: 1024})

	server := httptest.NewServer(Handler(registry))
	defer server.Close()

	response, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("status = %s, want 200", response.Status)
	}
	body, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	for _, name := range []string{"dctransfer_sent_bytes_total 1024", "dctransfer_transfers_total{direction=\"send\"} 1"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("body does not contain %q:\n%s", name, body)
		}
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		result <- ListenAndServe(ctx, "127.0.0.1:0", http.NotFoundHandler(), logger)
	}()
	cancel()
	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("ListenAndServe = %v, want nil after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return after cancel")
	}
}

func TestListenAndServeReportsListenFailure(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	err := ListenAndServe(context.Background(), "127.0.0.1:not-a-port", http.NotFoundHandler(), logger)
	if err == nil {
		t.Fatal("ListenAndServe on an invalid address succeeded")
	}
}

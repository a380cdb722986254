// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// Format writes a human-readable rendering of r to w.
func Format(w io.Writer, r Report) error {
	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "ID\t%s\n", r.ID)
	fmt.Fprintf(tw, "Role\t%s\n", r.Role)
	fmt.Fprintf(tw, "Peer\t%s\n", r.Peer)
	fmt.Fprintf(tw, "Started\t%s\n", r.StartedAt.Format(time.RFC3339Nano))
	fmt.Fprintf(tw, "Duration\t%s\n", r.Duration)
	fmt.Fprintf(tw, "Bytes\t%d\n", r.Bytes)
	fmt.Fprintf(tw, "Chunks\t%d x %d B\n", r.Chunks, r.ChunkSize)
	fmt.Fprintf(tw, "Layout\t%d connections x %d channels\n", r.Connections, r.Channels)
	fmt.Fprintf(tw, "Throughput\t%.2f MB/s\n", r.ThroughputMBps)
	if r.SendErrors > 0 {
		fmt.Fprintf(tw, "Send errors\t%d\n", r.SendErrors)
	}
	if r.ExpectedChunks > 0 {
		fmt.Fprintf(tw, "Expected chunks\t%d\n", r.ExpectedChunks)
		fmt.Fprintf(tw, "Missing\t%d\n", r.Missing)
		if len(r.MissingIDs) > 0 {
			fmt.Fprintf(tw, "First missing\t%v\n", r.MissingIDs)
		}
		if r.Duplicates > 0 {
			fmt.Fprintf(tw, "Duplicates\t%d\n", r.Duplicates)
		}
		if r.Verified {
			fmt.Fprintf(tw, "Corrupted\t%d\n", r.Corrupted)
		} else {
			fmt.Fprintf(tw, "Corrupted\tnot verified\n")
		}
	}
	if r.ProbeMode != "" {
		fmt.Fprintf(tw, "Probe mode\t%s\n", r.ProbeMode)
		fmt.Fprintf(tw, "Probes\t%d sent, %d replied, %d lost\n", r.ProbesSent, r.ProbesReplied, len(r.LostProbes))
		writeStats(tw, "RTT", r.RTT)
		writeStats(tw, "Jitter", r.Jitter)
	}
	return tw.Flush()
}

func writeStats(w io.Writer, name string, s *Stats) {
	if s == nil {
		fmt.Fprintf(w, "%s\tno samples\n", name)
		return
	}
	fmt.Fprintf(w, "%s\tmean %s  min %s  max %s  stddev %s  (%d samples)\n",
		name, s.Mean, s.Min, s.Max, s.StdDev, s.Samples)
}

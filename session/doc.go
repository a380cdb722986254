// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session orchestrates transfers between two peers.
//
// A Session owns every pool connection of one process, the bulk sender
// and receiver, and the probe machinery. It turns signaling messages
// into pool operations and pool events into signaling messages:
//
//   - Send opens the configured transfer connections (and, for
//     dedicated-connection probing, a probe connection), sends one
//     offer per connection and starts the burst sender once every
//     connection has its channels open and the probe route is known.
//   - An incoming offer creates the mirror pool entry. A transfer offer
//     that arrives while no transfer is being received resets the
//     receiver to the announced chunk count.
//   - When the receiver completes it stops probing, reports the final
//     statistics and closes its connections. The sender sees those
//     closes and finishes draining.
//
// All methods must be called on the session's loop. Signaling clients
// deliver on their own goroutines and must post into the loop:
//
//	client.Run(ctx, func(m signaling.Message) {
//		l.Post(func() { s.HandleSignal(m) })
//	})
package session

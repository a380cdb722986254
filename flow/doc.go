// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package flow implements per-channel flow control.
//
// A [Controller] wraps one transport channel and answers a single
// question for the burst sender: can this channel take another chunk
// without growing its send buffer past a threshold? When the transport
// provides a buffered-amount-low notification the controller is
// event-driven and uses a threshold of half a chunk. Otherwise it polls
// the buffered amount on a loop timer, armed by Send, and uses a
// threshold of twenty chunks. Polling reacts a full interval late, so it
// needs the larger buffer to keep the channel busy.
//
// A controller also counts the bytes it has sent. Once the count
// reaches a configured safety limit the channel is flagged for
// replacement; the flag never clears, and the above-limit handler fires
// only on that transition.
//
// All methods must be called on the controller's loop.
package flow

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transfer implements the bulk transfer protocol: fixed-size
// chunks stamped with a 4-byte big-endian sequence id, a burst sender
// that spreads chunks over whichever channels have buffer headroom, and
// a receiver that tracks a completion vector to report loss.
//
// The sender never blocks. A burst fills every ready channel of every
// source, round-robin in enumeration order, until the target is reached
// or a full pass finds nothing ready. The next ready-to-send event
// resumes it via [Sender.Resume].
//
// Sizes are always whole chunks: a target that does not divide evenly
// is rounded up, so the receiver's target is chunk count times chunk
// size rather than the requested byte count.
//
// Sender and Receiver are bound to a [loop.Loop]; call their methods on
// that loop.
package transfer

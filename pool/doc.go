// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pool manages one transport connection and the pool of flow
// controlled channels it carries.
//
// On the sending side a [Connection] creates its target number of
// channels up front and promotes each into the active list as it opens.
// The active list is a fixed arena of slots: once it is full, a newly
// opened channel only enters it by taking the slot of a member flagged
// for replacement, which is closed. This is how a channel that crossed
// its safety limit is retired mid-transfer without the burst sender
// noticing anything but a ready-to-send event.
//
// A channel that closes while still occupying an active slot was not
// retired by the pool, so the connection can no longer deliver its
// share of the transfer and is torn down. A channel that closes after
// being replaced is simply forgotten. When the last channel is gone the
// connection is closed.
//
// On the receiving side the pool accepts whatever channels the remote
// peer announces and only does bookkeeping.
//
// A terminal ICE state (failed, disconnected or closed) clears all
// bookkeeping and fires the close handler exactly once.
//
// All methods must be called on the connection's loop.
package pool

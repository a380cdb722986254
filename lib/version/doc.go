// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for dctransfer.
//
// [GitCommit], [GitDirty], [BuildTime] and [Version] are injected with
// -ldflags -X:
//
//	go build -ldflags "-X github.com/bureau-foundation/dctransfer/lib/version.GitCommit=$(git rev-parse --short HEAD)" ./cmd/dctransfer
//
// When a value was not injected, the VCS stamp the Go toolchain embeds
// in the binary is used instead, so plain `go build` from a checkout
// still reports its commit.
package version

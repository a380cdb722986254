// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for dctransfer.
//
// Configuration is loaded from a single file specified by either the
// DCTRANSFER_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no automatic file search. Without a
// file, commands run on [Default] plus their flags.
//
// Files are YAML. Files ending in .json or .jsonc are accepted too:
// comments and trailing commas are stripped with tidwall/jsonc and the
// result parsed as YAML, of which JSON is a subset. Durations are
// written as Go duration strings ("10ms", "1s").
//
// ${VAR} and ${VAR:-default} patterns are expanded in the relay URL,
// ICE credentials and the report directory. No other environment
// variables override config values; flags do, in the cmd layer.
//
// This package depends on no other dctransfer packages.
package config

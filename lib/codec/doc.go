// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the project's CBOR encoding configuration.
//
// Two serialization formats are in use with a clear boundary:
//
//   - JSON for everything a browser or a human reads: signaling
//     frames, configuration files and CLI --json output.
//   - CBOR for what the tool writes for itself: persisted transfer
//     reports.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. Same
// logical data always produces identical bytes. Times encode as
// RFC 3339 text with nanoseconds so stored reports keep sub-second
// start times.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// # Struct Tags
//
// Types that are only ever CBOR use `cbor` tags. Types that are also
// printed as JSON use `json` tags alone: fxamacker/cbor reads them as a
// fallback, so one tag names the field in both formats. Never put both
// on the same field.
package codec

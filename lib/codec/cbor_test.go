// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
	"time"
)

type sample struct {
	Label   string        `cbor:"label"`
	Chunks  uint64        `cbor:"chunks"`
	Elapsed time.Duration `cbor:"elapsed"`
	At      time.Time     `cbor:"at"`
	Missing []uint32      `cbor:"missing,omitempty"`
}

type sampleJSON struct {
	Peer  string `json:"peer"`
	Bytes uint64 `json:"bytes,omitempty"`
}

func TestRoundTripKeepsNanosecondTimes(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 123456789, time.UTC)
	original := sample{Label: "PeerConnection-1", Chunks: 64, Elapsed: 1500 * time.Millisecond, At: at}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sample
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !decoded.At.Equal(at) {
		t.Fatalf("At = %v, want %v", decoded.At, at)
	}
	if decoded.Label != original.Label || decoded.Chunks != 64 || decoded.Elapsed != original.Elapsed {
		t.Fatalf("decoded = %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]int{"zulu": 1, "alpha": 2, "mike": 3}
	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("encoding of the same map differs between calls")
		}
	}
}

func TestJSONTagFallback(t *testing.T) {
	data, err := Marshal(sampleJSON{Peer: "a1b2"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var fields map[string]any
	if err := Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if fields["peer"] != "a1b2" {
		t.Fatalf("fields = %v, want the json field name peer", fields)
	}
	if _, ok := fields["bytes"]; ok {
		t.Fatalf("fields = %v, include an omitempty zero field", fields)
	}
}

func TestDecodeIntoAnyGivesStringKeyedMaps(t *testing.T) {
	data, err := Marshal(map[string]any{"outer": map[string]any{"inner": 1}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	if _, ok := outer["outer"].(map[string]any); !ok {
		t.Fatalf("nested type = %T, want map[string]any", outer["outer"])
	}
}

func TestUnmarshalInvalid(t *testing.T) {
	var decoded sample
	if err := Unmarshal([]byte{0xff, 0x00}, &decoded); err == nil {
		t.Fatal("Unmarshal of invalid CBOR succeeded")
	}
}

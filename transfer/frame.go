// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
)

const (
	// HeaderSize is the length of the sequence id prefix of a chunk.
	HeaderSize = 4

	// DefaultChunkSize is the chunk size used when none is configured.
	DefaultChunkSize = 16 * 1024
)

// ErrInvalidConfig is wrapped by every configuration validation error.
var ErrInvalidConfig = errors.New("transfer: invalid configuration")

// ChunkCount returns the number of whole chunks needed to carry
// totalBytes.
func ChunkCount(totalBytes uint64, chunkSize int) uint64 {
	if chunkSize <= 0 {
		return 0
	}
	size := uint64(chunkSize)
	return (totalBytes + size - 1) / size
}

// PutSequence stamps id into the chunk header.
func PutSequence(chunk []byte, id uint32) {
	binary.BigEndian.PutUint32(chunk[:HeaderSize], id)
}

// Sequence reads the sequence id from the chunk header.
func Sequence(chunk []byte) uint32 {
	return binary.BigEndian.Uint32(chunk[:HeaderSize])
}

// Digest is the BLAKE3 hash of a chunk payload, header excluded.
type Digest [32]byte

// payloadKey separates payload digests from any other use of BLAKE3
// over the same bytes.
var payloadKey = blake3.Sum256([]byte("dctransfer chunk payload"))

// PayloadDigest hashes the payload of chunk. The header is excluded so
// every chunk of a transfer carries the same digest.
func PayloadDigest(chunk []byte) Digest {
	hasher, err := blake3.NewKeyed(payloadKey[:])
	if err != nil {
		panic("transfer: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(chunk[HeaderSize:])
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// String returns the hex encoding of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// ParseDigest parses a hex-encoded digest.
func ParseDigest(text string) (Digest, error) {
	var digest Digest
	decoded, err := hex.DecodeString(text)
	if err != nil {
		return digest, fmt.Errorf("parsing payload digest: %w", err)
	}
	if len(decoded) != len(digest) {
		return digest, fmt.Errorf("payload digest is %d bytes, want %d", len(decoded), len(digest))
	}
	copy(digest[:], decoded)
	return digest, nil
}

// NewChunk returns a chunkSize-byte chunk template with a zero header
// and a payload expanded from seed with the BLAKE3 extendable output.
// The same seed always yields the same payload.
func NewChunk(chunkSize int, seed []byte) []byte {
	chunk := make([]byte, chunkSize)
	hasher := blake3.New()
	hasher.Write(seed)
	// The extendable output never returns an error.
	_, _ = hasher.Digest().Read(chunk[HeaderSize:])
	return chunk
}

func validateChunkSize(chunkSize int) error {
	if chunkSize <= HeaderSize {
		return fmt.Errorf("%w: chunk size %d must exceed the %d-byte header", ErrInvalidConfig, chunkSize, HeaderSize)
	}
	return nil
}

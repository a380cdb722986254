// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/bureau-foundation/dctransfer/lib/codec"
)

// CompressedSuffix marks a zstd-compressed report file.
const CompressedSuffix = ".zst"

// maxDecodedSize bounds decompression of a report file.
const maxDecodedSize = 64 << 20

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("report: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedSize))
	if err != nil {
		panic("report: zstd decoder initialization failed: " + err.Error())
	}
}

// Write stores r at path, replacing any existing file. The write goes
// through a temporary file in the same directory and a rename, so
// readers never see a partial report.
func Write(path string, r Report) error {
	data, err := codec.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding report %s: %w", r.ID, err)
	}
	if strings.HasSuffix(path, CompressedSuffix) {
		data = zstdEncoder.EncodeAll(data, nil)
	}

	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	tmpFile, err := os.CreateTemp(directory, ".report-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp report file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing report: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp report file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming report file to %s: %w", path, err)
	}
	success = true
	return nil
}

// WriteInto stores r in directory under r.Filename and returns the
// path written.
func WriteInto(directory string, r Report, compress bool) (string, error) {
	path := filepath.Join(directory, r.Filename(compress))
	return path, Write(path, r)
}

// Read loads the report stored at path.
func Read(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, err
	}
	if strings.HasSuffix(path, CompressedSuffix) {
		data, err = zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return Report{}, fmt.Errorf("decompressing report %s: %w", path, err)
		}
	}
	var r Report
	if err := codec.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("decoding report %s: %w", path, err)
	}
	return r, nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/dctransfer/lib/version"
)

func versionCommand() *command {
	return &command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(context.Context, []string) error {
			fmt.Printf("dctransfer %s\n", version.Full())
			return nil
		},
	}
}

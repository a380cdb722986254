// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// These variables are set via -ldflags at build time.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty indicates whether there were uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version. Set manually for releases.
	Version = "0.1.0-dev"
)

// Build is the resolved build identity.
type Build struct {
	Version   string
	Commit    string
	Dirty     bool
	BuildTime string
}

// Current resolves the build identity, filling values that were not
// injected from the binary's embedded VCS settings.
func Current() Build {
	build := Build{
		Version:   Version,
		Commit:    GitCommit,
		Dirty:     GitDirty == "true",
		BuildTime: BuildTime,
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		build = fillFromSettings(build, info.Settings)
	}
	return build
}

func fillFromSettings(build Build, settings []debug.BuildSetting) Build {
	injected := build.Commit != "unknown"
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			if !injected {
				build.Commit = setting.Value
				if len(build.Commit) > 12 {
					build.Commit = build.Commit[:12]
				}
			}
		case "vcs.modified":
			if !injected {
				build.Dirty = setting.Value == "true"
			}
		case "vcs.time":
			if build.BuildTime == "unknown" {
				build.BuildTime = setting.Value
			}
		}
	}
	return build
}

// Info returns a formatted version string suitable for --version output.
func Info() string {
	return Current().String()
}

func (b Build) String() string {
	dirty := ""
	if b.Dirty {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", b.Version, b.Commit, dirty, b.BuildTime)
}

// Full returns detailed version information including Go version.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

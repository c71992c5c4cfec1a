// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
)

// Set with -ldflags -X, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/gorick/lib/version.GitCommit=$(git rev-parse --short HEAD)"
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// Build is the parsed form of the link-time variables.
type Build struct {
	Version string
	Commit  string
	Dirty   bool
	Time    string
}

// Current returns the running binary's build.
func Current() Build {
	return Build{Version: Version, Commit: GitCommit, Dirty: GitDirty == "true", Time: BuildTime}
}

// String is "0.1.0-dev (abc1234-dirty, 2026-...)".
func (b Build) String() string {
	commit := b.Commit
	if b.Dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s)", b.Version, commit, b.Time)
}

// Info returns the current build formatted for --version output.
func Info() string { return Current().String() }

// Full adds the Go version and platform to Info.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Short returns just the version number.
func Short() string { return Version }

// Commit returns the git commit SHA.
func Commit() string { return GitCommit }

// Banner returns the one-line greeting a binary named component prints
// when it starts interactively.
func Banner(component string) string {
	return fmt.Sprintf("%s %s, %s/%s", component, Info(), runtime.GOOS, runtime.GOARCH)
}

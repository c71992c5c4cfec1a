// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"testing"
)

// HelperEnv is set to "1" in the environment of a test binary started
// as a helper process.
const HelperEnv = "GORICK_COMPANION_HELPER"

// RunHelper runs main with the process arguments and exits, if the
// process was started by [HelperCommand]. Otherwise it returns
// immediately. Call it first in TestMain, before flag parsing:
//
//	func TestMain(m *testing.M) {
//		testutil.RunHelper(companiontest.Main)
//		os.Exit(m.Run())
//	}
func RunHelper(main func(args []string) int) {
	if os.Getenv(HelperEnv) != "1" {
		return
	}
	os.Exit(main(os.Args[1:]))
}

// HelperCommand returns the path of the running test binary and the
// environment that makes it run as a helper.
func HelperCommand(t *testing.T) (string, []string) {
	t.Helper()
	executable, err := os.Executable()
	if err != nil {
		t.Fatalf("locating test binary: %v", err)
	}
	return executable, append(os.Environ(), HelperEnv+"=1")
}

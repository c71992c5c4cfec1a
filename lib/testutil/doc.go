// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for gorick packages.
//
// [RequireReceive], [RequireClosed], and [RequireWithin] encapsulate
// the timeout safety valve pattern (select with time.After fallback)
// so that individual tests do not need direct time.After calls. A
// wedged companion then fails one test instead of hanging the suite.
//
// [RunHelper] and [HelperCommand] let a test binary stand in for the
// companion process: TestMain calls RunHelper first, and tests start
// the binary itself with HelperCommand. No separate binary is built.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no gorick-internal dependencies.
package testutil

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source used by the
// supervisor for kill grace periods and prompt timeouts.
//
// Production code uses [Real]. Tests use [Fake], which stands still
// until [FakeClock.Advance] is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go func() { done <- sup.Kill(true) }()
//	c.WaitForTimers(1)        // Kill has started its grace timer
//	c.Advance(2 * time.Second) // grace expires deterministically
//
// WaitForTimers closes the race between a goroutine registering a
// timer and the test advancing past it.
package clock

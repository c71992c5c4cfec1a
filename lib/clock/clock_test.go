// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeAfter(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(3 * time.Second)

	clock.Advance(2 * time.Second)
	select {
	case <-channel:
		t.Fatal("After fired before its deadline")
	default:
	}

	clock.Advance(time.Second)
	select {
	case fired := <-channel:
		if want := epoch.Add(3 * time.Second); !fired.Equal(want) {
			t.Errorf("fired at %v, want %v", fired, want)
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
	if n := clock.PendingCount(); n != 0 {
		t.Errorf("PendingCount = %d after firing, want 0", n)
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	clock := Fake(epoch)
	for _, d := range []time.Duration{0, -time.Second} {
		select {
		case <-clock.After(d):
		default:
			t.Errorf("After(%v) did not fire immediately", d)
		}
	}
}

func TestFakeSleepWaitForTimers(t *testing.T) {
	clock := Fake(epoch)
	done := make(chan struct{})
	go func() {
		clock.Sleep(time.Minute)
		close(done)
	}()
	clock.WaitForTimers(1)
	clock.Advance(time.Minute)
	select {
	case <-done:
	case <-time.After(5 * time.Second): //nolint:realclock test hang prevention
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestTimeout(t *testing.T) {
	clock := Fake(epoch)
	if Timeout(clock, 0) != nil {
		t.Error("Timeout(0) returned a channel")
	}
	channel := Timeout(clock, time.Second)
	if channel == nil {
		t.Fatal("Timeout(1s) returned nil")
	}
	clock.Advance(time.Second)
	select {
	case <-channel:
	default:
		t.Error("Timeout channel did not fire")
	}
}

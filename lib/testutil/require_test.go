// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

// recorder captures Fatalf instead of stopping the test.
type recorder struct {
	failed  bool
	message string
}

func (r *recorder) Helper() {}

func (r *recorder) Fatalf(format string, args ...any) {
	r.failed = true
	r.message = fmt.Sprintf(format, args...)
}

func TestRequireReceive(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 7
	if got := RequireReceive(t, ch, time.Second, "value"); got != 7 {
		t.Errorf("RequireReceive = %d, want 7", got)
	}
}

func TestRequireWithin(t *testing.T) {
	want := errors.New("done")
	if err := RequireWithin(t, time.Second, func() error { return want }); err != want {
		t.Errorf("RequireWithin = %v, want %v", err, want)
	}
}

func TestRequireClosedTimeout(t *testing.T) {
	r := &recorder{}
	RequireClosed(r, make(chan struct{}), time.Millisecond, "ready %d", 3)
	if !r.failed || r.message != "timed out after 1ms waiting for channel close: ready 3" {
		t.Errorf("RequireClosed failure = %v %q", r.failed, r.message)
	}
}

func TestFormatMessage(t *testing.T) {
	tests := []struct {
		args []any
		want string
	}{
		{nil, "(no message)"},
		{[]any{"plain"}, "plain"},
		{[]any{42}, "42"},
		{[]any{"%s=%d", "x", 1}, "x=1"},
		{[]any{1, 2}, "[1 2]"},
	}
	for _, tt := range tests {
		if got := formatMessage(tt.args); got != tt.want {
			t.Errorf("formatMessage(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import "testing"

func TestTranscript(t *testing.T) {
	tests := []struct {
		name   string
		writes []string
		since  uint64
		want   string
	}{
		{"empty", nil, 0, ""},
		{"all", []string{"abc", "de"}, 0, "abcde"},
		{"tail", []string{"abc", "de"}, 3, "de"},
		{"at end", []string{"abc"}, 3, ""},
		{"past end", []string{"abc"}, 9, ""},
		{"wrapped", []string{"abcdef", "ghij"}, 0, "cdefghij"},
		{"wrapped tail", []string{"abcdef", "ghij"}, 7, "hij"},
		{"oversized write", []string{"ab", "0123456789"}, 0, "23456789"},
		{"exact fill", []string{"abcdefgh", "ij"}, 9, "j"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buffer := newTranscript(8)
			for _, w := range tt.writes {
				buffer.Write([]byte(w))
			}
			if got := string(buffer.Since(tt.since)); got != tt.want {
				t.Errorf("Since(%d) = %q, want %q", tt.since, got, tt.want)
			}
		})
	}
}

func TestTranscriptOffset(t *testing.T) {
	buffer := newTranscript(4)
	buffer.Write([]byte("hello"))
	buffer.Write([]byte("!"))
	if got := buffer.Offset(); got != 6 {
		t.Errorf("Offset = %d, want 6", got)
	}
}

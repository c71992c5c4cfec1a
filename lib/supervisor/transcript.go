// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import "sync"

// transcript is a fixed-size circular buffer of companion text. It
// counts every byte ever written so a caller can remember an offset
// and later ask for everything since then. Old text is overwritten
// once the buffer is full.
type transcript struct {
	mutex    sync.Mutex
	data     []byte
	position int    // next write index
	written  uint64 // total bytes ever written
}

func newTranscript(capacity int) *transcript {
	return &transcript{data: make([]byte, capacity)}
}

func (t *transcript) Write(p []byte) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.written += uint64(len(p))
	if len(p) >= len(t.data) {
		copy(t.data, p[len(p)-len(t.data):])
		t.position = 0
		return
	}
	n := copy(t.data[t.position:], p)
	copy(t.data, p[n:])
	t.position = (t.position + len(p)) % len(t.data)
}

// Offset returns the total number of bytes written.
func (t *transcript) Offset() uint64 {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.written
}

// Since returns the bytes written after offset. If offset has already
// been overwritten, it returns everything still retained.
func (t *transcript) Since(offset uint64) []byte {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if offset >= t.written {
		return nil
	}
	stored := min(t.written, uint64(len(t.data)))
	oldest := t.written - stored
	offset = max(offset, oldest)

	size := int(t.written - offset)
	start := (t.position - size + len(t.data)) % len(t.data)
	out := make([]byte, size)
	n := copy(out, t.data[start:min(start+size, len(t.data))])
	copy(out[n:], t.data[:size-n])
	return out
}

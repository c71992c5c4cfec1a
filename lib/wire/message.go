// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"fmt"
	"io"
)

// Message is one protocol unit: an ordered sequence of packets. A
// message is built once, either by the encoder or by a [Reader], and
// then decoded. The methods never modify the packets.
type Message struct {
	packets []Packet
}

// NewMessage wraps packets as a message. The packets must form one
// complete clause; [Codec.Decode] reports a [ProtocolViolation] if they
// do not.
func NewMessage(packets []Packet) *Message {
	return &Message{packets: packets}
}

// Packets returns the message packets. Callers must not modify them.
func (m *Message) Packets() []Packet { return m.packets }

// Tag returns the clause tag from the header, or -1 for an empty
// message.
func (m *Message) Tag() Tag {
	if m == nil || len(m.packets) == 0 {
		return -1
	}
	return Tag(m.packets[0].Long(0))
}

// Info returns the auxiliary header word (rank, name length, flags).
func (m *Message) Info() int64 {
	if m == nil || len(m.packets) == 0 {
		return 0
	}
	return m.packets[0].Long(1)
}

// IsActive reports whether the message is a request requiring a reply.
func (m *Message) IsActive() bool { return m.Tag().IsActive() }

// Is reports whether the message is exactly the header [tag, info]
// with nothing after it. Used to recognize EOL replies.
func (m *Message) Is(tag Tag, info int64) bool {
	return m != nil && len(m.packets) == 1 && m.Tag() == tag && m.Info() == info
}

// Size returns the total byte length of all packets.
func (m *Message) Size() int {
	total := 0
	for i := range m.packets {
		total += len(m.packets[i].Data)
	}
	return total
}

// Bytes returns the concatenated packet bytes, the exact byte stream
// the message occupies on the wire.
func (m *Message) Bytes() []byte {
	out := make([]byte, 0, m.Size())
	for i := range m.packets {
		out = append(out, m.packets[i].Data...)
	}
	return out
}

// WriteTo writes every packet to w in order.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	var written int64
	for i := range m.packets {
		n, err := w.Write(m.packets[i].Data)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("write packet %d of %d: %w", i, len(m.packets), err)
		}
	}
	return written, nil
}

// ReadMessage builds one message from r using a [Reader]. An EOF before
// the first byte returns io.EOF; an EOF inside a message returns
// io.ErrUnexpectedEOF.
func ReadMessage(r io.Reader) (*Message, error) {
	reader := NewReader()
	first := true
	for {
		packet, err := reader.Next()
		if err != nil {
			return nil, err
		}
		if packet == nil {
			return reader.Message(), nil
		}
		if _, err := io.ReadFull(r, packet.Data); err != nil {
			if first && errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("read %s packet: %w", packet.Elem, err)
		}
		first = false
	}
}

// String renders the header for debug logs.
func (m *Message) String() string {
	if m == nil || len(m.packets) == 0 {
		return "<empty message>"
	}
	return fmt.Sprintf("%s(info=%d, packets=%d, bytes=%d)", m.Tag(), m.Info(), len(m.packets), m.Size())
}

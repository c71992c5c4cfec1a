// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"testing"
)

// feed runs a Reader over the packets of message, filling each
// requested packet from the corresponding encoded packet. It fails the
// test if the reader asks for a packet of a different shape.
func feed(t *testing.T, message *Message) *Message {
	t.Helper()
	reader := NewReader()
	for i, source := range message.Packets() {
		packet, err := reader.Next()
		if err != nil {
			t.Fatalf("Next before packet %d: %v", i, err)
		}
		if packet == nil {
			t.Fatalf("reader finished after %d of %d packets", i, len(message.Packets()))
		}
		if packet.Elem.Size() != source.Elem.Size() || packet.Count != source.Count {
			t.Fatalf("packet %d: reader asked for %s[%d], message has %s[%d]",
				i, packet.Elem, packet.Count, source.Elem, source.Count)
		}
		copy(packet.Data, source.Data)
	}
	packet, err := reader.Next()
	if err != nil {
		t.Fatalf("final Next: %v", err)
	}
	if packet != nil {
		t.Fatalf("reader wants more packets than the message has: %s", packet.String())
	}
	if !reader.Done() {
		t.Fatal("Done = false after completion")
	}
	return reader.Message()
}

func TestReaderEquivalence(t *testing.T) {
	c := NewCodec(Options{Fallback: true})
	values := make([]any, 0, len(roundtripCases)+4)
	for _, tt := range roundtripCases {
		values = append(values, tt.value)
	}
	values = append(values,
		FunCall("f", []any{1, []string{"a"}}, map[string]any{"k": nil}),
		SetSlice("a", 2.5, Span(1, 2), NewAxis),
		SetVar("", Var("y")),
		map[int]bool{1: true},
	)
	for _, value := range values {
		message, err := c.Encode(value)
		if err != nil {
			t.Fatalf("Encode(%#v): %v", value, err)
		}
		built := feed(t, message)
		want, err := c.Decode(message)
		if err != nil {
			t.Fatalf("Decode direct: %v", err)
		}
		got, err := c.Decode(built)
		if err != nil {
			t.Fatalf("Decode built: %v", err)
		}
		if opaque, ok := want.(*Opaque); ok {
			if !bytes.Equal(opaque.Bytes(), got.(*Opaque).Bytes()) {
				t.Errorf("opaque blob differs after reader")
			}
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("reader-built decode = %#v, want %#v", got, want)
		}
	}
}

func TestReadMessageStream(t *testing.T) {
	c := NewCodec(Options{})
	first, err := c.Encode([]any{"x", 2})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	second, err := c.Encode(Eval("1+1"))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var stream bytes.Buffer
	if _, err := first.WriteTo(&stream); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if _, err := second.WriteTo(&stream); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	for _, want := range []*Message{first, second} {
		got, err := ReadMessage(&stream)
		if err != nil {
			t.Fatalf("ReadMessage: %v", err)
		}
		if !bytes.Equal(got.Bytes(), want.Bytes()) {
			t.Errorf("ReadMessage bytes differ for %s", want)
		}
	}
	if _, err := ReadMessage(&stream); !errors.Is(err, io.EOF) {
		t.Errorf("ReadMessage at end = %v, want io.EOF", err)
	}
}

func TestReadMessageTruncated(t *testing.T) {
	message, err := NewCodec(Options{}).Encode([]float64{1, 2, 3})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	raw := message.Bytes()
	_, err = ReadMessage(bytes.NewReader(raw[:len(raw)-4]))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadMessage(truncated) = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestReaderViolations(t *testing.T) {
	tests := []struct {
		name    string
		packets []Packet
	}{
		{"unknown top-level tag", []Packet{headerPacket(Tag(22), 0)}},
		{"long double complex", []Packet{headerPacket(TagLongDoubleComplex, 0)}},
		{"eval in list", []Packet{headerPacket(TagList, 0), headerPacket(TagEval, 0)}},
		{"error eol in list", []Packet{headerPacket(TagList, 0), headerPacket(TagEOL, EOLError)}},
		{"positional in dict", []Packet{headerPacket(TagDict, 0), headerPacket(TagNil, 0)}},
		{"setvar in getslice", []Packet{headerPacket(TagGetSlice, 0), headerPacket(TagSetVar, 0)}},
		{"eol as setvar value", []Packet{headerPacket(TagSetVar, 0), headerPacket(TagEOL, 0)}},
		{"negative rank", []Packet{headerPacket(TagDouble, -1)}},
		{"negative dim", []Packet{headerPacket(TagDouble, 1), longPacket(-4)}},
		{"negative name length", []Packet{headerPacket(TagGetVar, -2)}},
		{"negative string length", []Packet{headerPacket(TagString, 0), longPacket(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := NewReader()
			var err error
			for _, source := range tt.packets {
				var packet *Packet
				packet, err = reader.Next()
				if err != nil {
					break
				}
				if packet == nil {
					t.Fatal("reader finished without detecting the violation")
				}
				copy(packet.Data, source.Data)
			}
			if err == nil {
				_, err = reader.Next()
			}
			var violation *ProtocolViolation
			if !errors.As(err, &violation) {
				t.Fatalf("error = %v, want *ProtocolViolation", err)
			}
			if _, again := reader.Next(); again == nil {
				t.Error("reader recovered after a violation")
			}
		})
	}
}

func TestReaderEOLTerminatesList(t *testing.T) {
	message := NewMessage([]Packet{
		headerPacket(TagList, 0),
		headerPacket(TagNil, 0),
		headerPacket(TagEOL, EOLEnd),
	})
	built := feed(t, message)
	value, err := NewCodec(Options{}).Decode(built)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(value, []any{nil}) {
		t.Errorf("Decode = %#v", value)
	}
}

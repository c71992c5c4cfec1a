// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"reflect"
	"testing"
)

// roundtripCases pairs host values with what decoding their encoding
// must produce. Go-sized ints come back as their fixed-width forms.
var roundtripCases = []struct {
	name  string
	value any
	want  any
}{
	{"int", 1, int64(1)},
	{"uint", uint(7), uint64(7)},
	{"int8", int8(-3), int8(-3)},
	{"int16", int16(-300), int16(-300)},
	{"int32", int32(1 << 20), int32(1 << 20)},
	{"int64", int64(-1 << 40), int64(-1 << 40)},
	{"uint8", uint8(200), uint8(200)},
	{"uint16", uint16(60000), uint16(60000)},
	{"uint32", uint32(1 << 31), uint32(1 << 31)},
	{"uint64", uint64(1 << 63), uint64(1 << 63)},
	{"float32", float32(1.5), float32(1.5)},
	{"float64", 2.25, 2.25},
	{"complex64", complex64(1 + 2i), complex64(1 + 2i)},
	{"complex128", 3 - 4i, 3 - 4i},
	{"long double", NewLongDouble(0.125), NewLongDouble(0.125)},
	{"bool", true, uint8(1)},
	{"float64 vector", []float64{1, 2, 3}, MustArray([]float64{1, 2, 3})},
	{"int matrix", [][]int{{1, 2, 3}, {4, 5, 6}}, MustArray([]int64{1, 2, 3, 4, 5, 6}, 2, 3)},
	{"int32 matrix", [][]int32{{1, 2}, {3, 4}}, MustArray([]int32{1, 2, 3, 4}, 2, 2)},
	{"bytes", []byte("xyz"), MustArray([]uint8("xyz"))},
	{"empty vector", []float64{}, MustArray([]float64{}, 0)},
	{"empty matrix", MustArray([]int16{}, 0, 3), MustArray([]int16{}, 0, 3)},
	{"long long array", Array{Type: TagLongLong, Shape: []int{2}, Data: []int64{5, 6}}, Array{Type: TagLongLong, Shape: []int{2}, Data: []int64{5, 6}}},
	{"complex array", []complex128{1i, 2}, MustArray([]complex128{1i, 2})},
	{"string", "hello", "hello"},
	{"empty string", "", ""},
	{"null string", NullString, NullString},
	{"latin1 string", "café", "café"},
	{"truncated string", "ab\x00cd", "ab"},
	{"string vector", []string{"a", "", NullString}, []string{"a", "", NullString}},
	{"string matrix", [][]string{{"a", "b", "c"}, {"d", "e", "f"}}, [][]string{{"a", "b", "c"}, {"d", "e", "f"}}},
	{"string cube", [][][]string{{{"a"}, {"b"}}}, [][][]string{{{"a"}, {"b"}}}},
	{"nil", nil, nil},
	{"range", Span(1, 5), Range{Start: 1, Stop: 5, Step: 1}},
	{"reverse range", Span(5, 1), Range{Start: 5, Stop: 1, Step: -1}},
	{"stepped range", SpanStep(1, 9, 2), Range{Start: 1, Stop: 9, Step: 2}},
	{"open start", To(4), Range{Stop: 4, Step: 1, OmitStart: true}},
	{"open stop", From(3), Range{Start: 3, Step: 1, OmitStop: true}},
	{"whole range", All(), Range{Step: 1, OmitStart: true, OmitStop: true}},
	{"new axis", NewAxis, NewAxis},
	{"ellipsis", Ellipsis, Ellipsis},
	{"empty list", []any{}, []any{}},
	{"list", []any{1, "two", nil, []any{3.0}}, []any{int64(1), "two", nil, []any{3.0}}},
	{"numeric []any stays a list", []any{1, 2}, []any{int64(1), int64(2)}},
	{"jagged slice", [][]int{{1}, {2, 3}}, []any{MustArray([]int64{1}), MustArray([]int64{2, 3})}},
	{"dict", map[string]any{"b": 2, "a": "one"}, map[string]any{"a": "one", "b": int64(2)}},
	{"typed dict", map[string]float64{"x": 1}, map[string]any{"x": 1.0}},
	{"empty dict", map[string]any{}, map[string]any{}},
	{"variable reference in list", []any{Var("x")}, []any{Var("x")}},
	{"nested aggregates", map[string]any{"k": []any{map[string]any{}}}, map[string]any{"k": []any{map[string]any{}}}},
}

func TestRoundtrip(t *testing.T) {
	c := NewCodec(Options{})
	for _, tt := range roundtripCases {
		t.Run(tt.name, func(t *testing.T) {
			message, err := c.Encode(tt.value)
			if err != nil {
				t.Fatalf("Encode(%#v): %v", tt.value, err)
			}
			got, err := c.Decode(message)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("roundtrip = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestNullStringDistinctFromEmpty(t *testing.T) {
	c := NewCodec(Options{})
	message, err := c.Encode([]string{"", NullString})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	lengths := message.Packets()[2].Longs()
	if !reflect.DeepEqual(lengths, []int64{1, 0}) {
		t.Errorf("lengths = %v, want [1 0]", lengths)
	}
	got, err := c.Decode(message)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	strings := got.([]string)
	if strings[0] != "" || strings[1] != NullString {
		t.Errorf("decoded %q, want [\"\" NullString]", strings)
	}
}

func TestConcreteListPackets(t *testing.T) {
	c := NewCodec(Options{})
	message, err := c.Encode([]any{1, "ab", nil})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	packets := message.Packets()

	want := []struct {
		elem  Tag
		longs []int64
		bytes string
	}{
		{TagLong, []int64{int64(TagList), 0}, ""},
		{TagLong, []int64{int64(TagLong), 0}, ""},
		{TagLong, []int64{1}, ""},
		{TagLong, []int64{int64(TagString), 0}, ""},
		{TagLong, []int64{3}, ""},
		{TagUChar, nil, "ab\x00"},
		{TagLong, []int64{int64(TagNil), 0}, ""},
		{TagLong, []int64{int64(TagEOL), EOLEnd}, ""},
	}
	if len(packets) != len(want) {
		t.Fatalf("got %d packets, want %d: %v", len(packets), len(want), packets)
	}
	for i, w := range want {
		p := packets[i]
		if p.Elem != w.elem {
			t.Errorf("packet %d elem = %s, want %s", i, p.Elem, w.elem)
			continue
		}
		if w.elem == TagLong && !reflect.DeepEqual(p.Longs(), w.longs) {
			t.Errorf("packet %d = %v, want %v", i, p.Longs(), w.longs)
		}
		if w.elem == TagUChar && string(p.Data) != w.bytes {
			t.Errorf("packet %d = %q, want %q", i, p.Data, w.bytes)
		}
	}

	got, err := c.Decode(message)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got, []any{int64(1), "ab", nil}) {
		t.Errorf("Decode = %#v", got)
	}
}

func TestArrayDimsOnWire(t *testing.T) {
	c := NewCodec(Options{})
	message, err := c.Encode([][]float32{{1, 2, 3}, {4, 5, 6}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	packets := message.Packets()
	if got := packets[0].Longs(); !reflect.DeepEqual(got, []int64{int64(TagFloat), 2}) {
		t.Errorf("header = %v", got)
	}
	if got := packets[1].Longs(); !reflect.DeepEqual(got, []int64{3, 2}) {
		t.Errorf("dims = %v, want fastest-varying first [3 2]", got)
	}
	if packets[2].Count != 6 || packets[2].Elem != TagFloat {
		t.Errorf("data packet = %v", packets[2].String())
	}
}

func TestZeroLengthArrayPackets(t *testing.T) {
	c := NewCodec(Options{})
	message, err := c.Encode([]int32{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	packets := message.Packets()
	if len(packets) != 3 {
		t.Fatalf("got %d packets, want header, dims, empty data", len(packets))
	}
	if packets[2].Count != 0 || len(packets[2].Data) != 0 {
		t.Errorf("data packet = %v, want empty", packets[2].String())
	}
}

func TestSliceEncoding(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		flags  int64
		bounds []int64
	}{
		{"explicit", Range{Start: 2, Stop: 8}, 0, []int64{2, 8, 1}},
		{"reversed default step", Range{Start: 8, Stop: 2}, 0, []int64{8, 2, -1}},
		{"omitted start never reverses", Range{Stop: -5, OmitStart: true}, SliceDefaultStart, []int64{0, -5, 1}},
		{"omitted stop", Range{Start: 4, OmitStop: true}, SliceDefaultStop, []int64{4, 0, 1}},
		{"all", All(), SliceDefaultStart | SliceDefaultStop, []int64{0, 0, 1}},
		{"explicit step", SpanStep(1, 10, 3), 0, []int64{1, 10, 3}},
		{"new axis", NewAxis, 7, []int64{0, 0, 1}},
		{"ellipsis", Ellipsis, 11, []int64{0, 0, 1}},
	}
	c := NewCodec(Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			message, err := c.Encode(tt.value)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if message.Tag() != TagSlice || message.Info() != tt.flags {
				t.Errorf("header = %s/%d, want slice/%d", message.Tag(), message.Info(), tt.flags)
			}
			if got := message.Packets()[1].Longs(); !reflect.DeepEqual(got, tt.bounds) {
				t.Errorf("bounds = %v, want %v", got, tt.bounds)
			}
		})
	}
}

func TestInstructionRoundtrip(t *testing.T) {
	tests := []struct {
		name        string
		instruction Instruction
	}{
		{"eval", Eval("x+1")},
		{"exec", Exec("x = 1")},
		{"exec empty", Exec("")},
		{"getvar", GetVar("x")},
		{"getshape", GetShape("x")},
		{"setvar", SetVar("x", int64(4))},
		{"funcall", FunCall("f", []any{int64(1), "s"}, map[string]any{"key": 2.5})},
		{"subcall", SubCall("g", []any{Var("y")}, nil)},
		{"getslice", GetSlice("a", int64(2), Range{Start: 1, Stop: 3, Step: 1})},
		{"setslice", SetSlice("a", []any{int64(9)}, Ellipsis)},
		{"eol", EOL(EOLError)},
	}
	c := NewCodec(Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			message, err := c.Encode(tt.instruction)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if message.Tag() != tt.instruction.Tag {
				t.Errorf("tag = %s, want %s", message.Tag(), tt.instruction.Tag)
			}
			got, err := c.Decode(message)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(got, tt.instruction) {
				t.Errorf("Decode = %#v, want %#v", got, tt.instruction)
			}
		})
	}
}

func TestKeywordsEncodeSorted(t *testing.T) {
	c := NewCodec(Options{})
	message, err := c.Encode(FunCall("f", nil, map[string]any{"zeta": 1, "alpha": 2}))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var names []string
	for _, p := range message.Packets() {
		if p.Elem == TagUChar {
			names = append(names, string(p.Data))
		}
	}
	if !reflect.DeepEqual(names, []string{"f", "alpha", "zeta"}) {
		t.Errorf("names in order = %v", names)
	}
}

func TestEncodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"non-string map keys", map[int]string{1: "one"}},
		{"function", func() {}},
		{"channel", make(chan int)},
		{"struct", struct{ A int }{1}},
		{"unrepresentable text", "日本"},
		{"nested function", []any{1, func() {}}},
		{"shape mismatch", Array{Type: TagDouble, Shape: []int{2, 2}, Data: []float64{1}}},
		{"type mismatch", Array{Type: TagFloat, Shape: []int{1}, Data: []float64{1}}},
		{"instruction in list", []any{Exec("x")}},
		{"numeric tag as instruction", Instruction{Tag: TagLong}},
	}
	c := NewCodec(Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Encode(tt.value)
			var encodeError *EncodeError
			if !errors.As(err, &encodeError) {
				t.Fatalf("Encode error = %v, want *EncodeError", err)
			}
			if c.Encodable(tt.value) {
				t.Error("Encodable = true for an unencodable value")
			}
		})
	}
}

func TestEncodable(t *testing.T) {
	c := NewCodec(Options{Fallback: true})
	for _, value := range []any{1, "s", []any{map[string]any{"a": nil}}, Var("v")} {
		if !c.Encodable(value) {
			t.Errorf("Encodable(%#v) = false", value)
		}
	}
	if c.Encodable(func() {}) {
		t.Error("Encodable ignores the fallback, but reported a function encodable")
	}
}

func TestFallbackByValue(t *testing.T) {
	c := NewCodec(Options{Fallback: true})
	original := map[int]string{1: "one", 2: "two"}

	message, err := c.Encode(original)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if message.Tag() != TagUChar || message.Info() != 1 {
		t.Fatalf("fallback header = %s/%d, want 1-D unsigned char", message.Tag(), message.Info())
	}
	decoded, err := c.Decode(message)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	opaque, ok := decoded.(*Opaque)
	if !ok {
		t.Fatalf("Decode = %T, want *Opaque", decoded)
	}
	var got map[int]string
	if err := opaque.Decode(&got); err != nil {
		t.Fatalf("Opaque.Decode: %v", err)
	}
	if !reflect.DeepEqual(got, original) {
		t.Errorf("opaque roundtrip = %v, want %v", got, original)
	}

	// Sending the opaque value back reproduces the same blob.
	again, err := c.Encode(opaque)
	if err != nil {
		t.Fatalf("re-Encode: %v", err)
	}
	if string(again.Bytes()) != string(message.Bytes()) {
		t.Error("re-encoded opaque value differs from the original blob")
	}
}

func TestFallbackByReference(t *testing.T) {
	c := NewCodec(Options{Fallback: true})
	calls := 0
	callback := func() { calls++ }

	message, err := c.Encode(callback)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := c.Decode(message)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	opaque := decoded.(*Opaque)
	if !opaque.ByReference() {
		t.Fatal("function was not stored by reference")
	}
	var got func()
	if err := opaque.Decode(&got); err != nil {
		t.Fatalf("Opaque.Decode: %v", err)
	}
	got()
	if calls != 1 {
		t.Errorf("decoded function is not the original (calls = %d)", calls)
	}

	// A different codec has no such object.
	other, err := NewCodec(Options{Fallback: true}).Decode(message)
	if err != nil {
		t.Fatalf("Decode with other codec: %v", err)
	}
	if _, err := other.(*Opaque).Object(); err == nil {
		t.Error("Object succeeded on a codec that never registered the reference")
	}
}

func TestFallbackCompression(t *testing.T) {
	large := make(map[int]string)
	for i := range 500 {
		large[i] = "repeated payload text"
	}
	for _, compression := range []Compression{CompressAuto, CompressNone, CompressLZ4, CompressZstd} {
		t.Run(compression.String(), func(t *testing.T) {
			c := NewCodec(Options{Fallback: true, Compression: compression})
			message, err := c.Encode(large)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			decoded, err := c.Decode(message)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			var got map[int]string
			if err := decoded.(*Opaque).Decode(&got); err != nil {
				t.Fatalf("Opaque.Decode: %v", err)
			}
			if !reflect.DeepEqual(got, large) {
				t.Error("compressed opaque roundtrip mismatch")
			}
		})
	}
}

func TestFallbackDisabledDecodesBytes(t *testing.T) {
	blob, err := NewCodec(Options{Fallback: true}).Encode(map[int]int{1: 1})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := NewCodec(Options{}).Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, ok := decoded.(Array); !ok {
		t.Errorf("Decode without fallback = %T, want plain Array", decoded)
	}
}

func TestDecodeViolations(t *testing.T) {
	c := NewCodec(Options{})
	tests := []struct {
		name    string
		packets []Packet
	}{
		{"empty", nil},
		{"unknown tag", []Packet{headerPacket(Tag(25), 0)}},
		{"long double complex", []Packet{headerPacket(TagLongDoubleComplex, 0), {Elem: TagLong, Count: 1, Data: make([]byte, 8)}}},
		{"error flag inside list", []Packet{headerPacket(TagList, 0), headerPacket(TagEOL, EOLError)}},
		{"exec inside list", []Packet{headerPacket(TagList, 0), headerPacket(TagExec, 0), headerPacket(TagEOL, 0)}},
		{"missing terminator", []Packet{headerPacket(TagList, 0), headerPacket(TagNil, 0)}},
		{"trailing packets", []Packet{headerPacket(TagNil, 0), headerPacket(TagNil, 0)}},
		{"nil in dict", []Packet{headerPacket(TagDict, 0), headerPacket(TagNil, 0), headerPacket(TagEOL, 0)}},
		{"negative dim", []Packet{headerPacket(TagDouble, 1), longPacket(-4), {Elem: TagDouble, Count: 0}}},
		{"negative string dims", []Packet{headerPacket(TagString, 2), longPacket(-2, -2), longPacket(1, 1, 1, 1), {Elem: TagUChar, Count: 4, Data: make([]byte, 4)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Decode(NewMessage(tt.packets))
			var violation *ProtocolViolation
			if !errors.As(err, &violation) {
				t.Fatalf("Decode error = %v, want *ProtocolViolation", err)
			}
		})
	}
}

func TestTagFor(t *testing.T) {
	tests := []struct {
		kind  Kind
		width int
		want  Tag
	}{
		{KindSigned, 8, TagLong},
		{KindUnsigned, 8, TagULong},
		{KindFloat, 8, TagDouble},
		{KindSigned, 4, TagInt},
		{KindComplex, 16, TagDoubleComplex},
	}
	for _, tt := range tests {
		if got, ok := TagFor(tt.kind, tt.width); !ok || got != tt.want {
			t.Errorf("TagFor(%d, %d) = %s, %v; want %s", tt.kind, tt.width, got, ok, tt.want)
		}
	}
	if _, ok := TagFor(KindFloat, 2); ok {
		t.Error("TagFor(float, 2) should fail")
	}
}

func TestLongDouble(t *testing.T) {
	for _, f := range []float64{0, 1, -1, 0.1, 1e300, -2.5e-300, 123456789.125} {
		if got := NewLongDouble(f).Float64(); got != f {
			t.Errorf("NewLongDouble(%g).Float64() = %g", f, got)
		}
	}
	// 1.0 in x87 layout: mantissa 0x8000000000000000, exponent 16383.
	one := NewLongDouble(1)
	want := LongDouble{0, 0, 0, 0, 0, 0, 0, 0x80, 0xff, 0x3f}
	if one != want {
		t.Errorf("NewLongDouble(1) = %x, want %x", one, want)
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"
)

// Decode converts a complete message into a host value.
//
// Data clauses decode as follows: rank-zero numeric arrays become the
// Go scalar of their element type, higher ranks an [Array]; tag 16 a
// string, []string, [][]string, and so on by rank, with [NullString]
// for null elements; tag 17 a [Range], [NewAxis], or [Ellipsis]; nil
// nil; lists []any; dicts map[string]any. Get-variable clauses nested
// inside data decode as [Var]. Active messages and EOL decode as an
// [Instruction], signaling the message is not data.
//
// With the fallback enabled, one-dimensional byte arrays carrying the
// opaque magic prefix decode as *[Opaque].
func (c *Codec) Decode(m *Message) (any, error) {
	if m == nil || len(m.packets) == 0 {
		return nil, &ProtocolViolation{Tag: -1, Context: "message", Reason: "empty message"}
	}
	d := &decoder{codec: c, packets: m.packets}
	value, err := d.value(contextMessage)
	if err != nil {
		return nil, err
	}
	if d.pos != len(d.packets) {
		return nil, &ProtocolViolation{Tag: m.Tag(), Context: "message", Reason: fmt.Sprintf("%d trailing packets", len(d.packets)-d.pos)}
	}
	return value, nil
}

// decoder is a read cursor over the packets of one message.
type decoder struct {
	codec   *Codec
	packets []Packet
	pos     int
}

// next consumes one packet, checking its element type.
func (d *decoder) next(elem Tag) (*Packet, error) {
	if d.pos >= len(d.packets) {
		return nil, &ProtocolViolation{Tag: elem, Context: "message", Reason: "truncated packet list"}
	}
	packet := &d.packets[d.pos]
	if packet.Elem != elem && (packet.Elem.Kind() != elem.Kind() || packet.Elem.Size() != elem.Size()) {
		return nil, &ProtocolViolation{Tag: elem, Context: "message", Reason: fmt.Sprintf("packet %d holds %s", d.pos, packet.Elem)}
	}
	d.pos++
	return packet, nil
}

// header consumes and validates a clause header.
func (d *decoder) header() (*Packet, error) {
	header, err := d.next(TagLong)
	if err != nil {
		return nil, err
	}
	if header.Count != 2 {
		return nil, &ProtocolViolation{Tag: -1, Context: "message", Reason: fmt.Sprintf("header with %d elements", header.Count)}
	}
	return header, nil
}

// value decodes one clause in context c.
func (d *decoder) value(c context) (any, error) {
	header, err := d.header()
	if err != nil {
		return nil, err
	}
	entry, err := lookup(Tag(header.Long(0)), c)
	if err != nil {
		return nil, err
	}
	return entry.decode(d, header)
}

// list decodes items in context c up to EOL(0). Nested setvar clauses
// go to keywords; nested getvar clauses become Var.
func (d *decoder) list(c context) ([]any, map[string]any, error) {
	var items []any
	var keywords map[string]any
	for {
		if d.pos >= len(d.packets) {
			return nil, nil, &ProtocolViolation{Tag: TagEOL, Context: c.String(), Reason: "missing terminator"}
		}
		peek := &d.packets[d.pos]
		if peek.Elem == TagLong && peek.Count == 2 && Tag(peek.Long(0)) == TagEOL {
			if peek.Long(1) != EOLEnd {
				return nil, nil, &ProtocolViolation{Tag: TagEOL, Context: c.String(), Reason: fmt.Sprintf("flag %d", peek.Long(1))}
			}
			d.pos++
			break
		}
		item, err := d.value(c)
		if err != nil {
			return nil, nil, err
		}
		if i, ok := item.(Instruction); ok {
			switch i.Tag {
			case TagSetVar:
				if keywords == nil {
					keywords = make(map[string]any)
				}
				keywords[i.Name] = i.Value
				continue
			case TagGetVar:
				item = Var(i.Name)
			}
		}
		items = append(items, item)
	}
	return items, keywords, nil
}

// nested decodes the value of setvar or setslice.
func (d *decoder) nested() (any, error) {
	value, err := d.value(contextValue)
	if err != nil {
		return nil, err
	}
	if i, ok := value.(Instruction); ok && i.Tag == TagGetVar {
		return Var(i.Name), nil
	}
	return value, nil
}

// dims consumes the dims packet of an array header and returns the
// row-major shape and element count.
func (d *decoder) dims(header *Packet) ([]int, int, error) {
	rank := int(header.Long(1))
	if rank == 0 {
		return nil, 1, nil
	}
	if rank < 0 || rank > maxRank {
		return nil, 0, &ProtocolViolation{Tag: Tag(header.Long(0)), Context: "array header", Reason: fmt.Sprintf("rank %d out of range", rank)}
	}
	packet, err := d.next(TagLong)
	if err != nil {
		return nil, 0, err
	}
	if packet.Count != rank {
		return nil, 0, &ProtocolViolation{Tag: Tag(header.Long(0)), Context: "array header", Reason: "dims do not match rank"}
	}
	shape := make([]int, rank)
	for i, dim := range packet.Longs() {
		if dim < 0 {
			return nil, 0, &ProtocolViolation{Tag: Tag(header.Long(0)), Context: "array header", Reason: fmt.Sprintf("negative dimension %d", dim)}
		}
		shape[rank-1-i] = int(dim)
	}
	return shape, product(shape), nil
}

func decodeNumeric(d *decoder, header *Packet) (any, error) {
	tag := Tag(header.Long(0))
	shape, count, err := d.dims(header)
	if err != nil {
		return nil, err
	}
	packet, err := d.next(tag)
	if err != nil {
		return nil, err
	}
	if packet.Count != count {
		return nil, &ProtocolViolation{Tag: tag, Context: "array", Reason: fmt.Sprintf("%d elements for %d dims", packet.Count, count)}
	}
	if len(shape) == 1 && (tag == TagUChar || tag == TagChar) && d.codec.options.Fallback && isOpaque(packet.Data) {
		return d.codec.unwrap(packet.Data)
	}
	data, err := elementsFromBytes(tag, packet.Data, packet.Count)
	if err != nil {
		return nil, &ProtocolViolation{Tag: tag, Context: "array", Reason: err.Error()}
	}
	if len(shape) == 0 {
		return scalarOf(data), nil
	}
	return Array{Type: tag, Shape: shape, Data: data}, nil
}

// scalarOf returns element 0 of a one-element typed slice.
func scalarOf(data any) any {
	switch values := data.(type) {
	case []int8:
		return values[0]
	case []int16:
		return values[0]
	case []int32:
		return values[0]
	case []int64:
		return values[0]
	case []uint8:
		return values[0]
	case []uint16:
		return values[0]
	case []uint32:
		return values[0]
	case []uint64:
		return values[0]
	case []float32:
		return values[0]
	case []float64:
		return values[0]
	case []LongDouble:
		return values[0]
	case []complex64:
		return values[0]
	case []complex128:
		return values[0]
	}
	return nil
}

func decodeString(d *decoder, header *Packet) (any, error) {
	shape, count, err := d.dims(header)
	if err != nil {
		return nil, err
	}
	lengths, err := d.next(TagLong)
	if err != nil {
		return nil, err
	}
	if lengths.Count != count {
		return nil, &ProtocolViolation{Tag: TagString, Context: "string array", Reason: "lengths do not match dims"}
	}
	var text []byte
	total := 0
	for _, n := range lengths.Longs() {
		if n < 0 {
			return nil, &ProtocolViolation{Tag: TagString, Context: "string array", Reason: fmt.Sprintf("length %d", n)}
		}
		total += int(n)
	}
	if total > 0 {
		packet, err := d.next(TagUChar)
		if err != nil {
			return nil, err
		}
		if packet.Count != total {
			return nil, &ProtocolViolation{Tag: TagString, Context: "string array", Reason: "text does not match lengths"}
		}
		text = packet.Data
	}
	flat := make([]string, count)
	offset := 0
	for i, n := range lengths.Longs() {
		flat[i] = unterminated(text[offset : offset+int(n)])
		offset += int(n)
	}
	return nestStrings(shape, flat), nil
}

func decodeSlice(d *decoder, header *Packet) (any, error) {
	bounds, err := d.next(TagLong)
	if err != nil {
		return nil, err
	}
	if bounds.Count != 3 {
		return nil, &ProtocolViolation{Tag: TagSlice, Context: "slice", Reason: "bounds must have 3 elements"}
	}
	switch flags := header.Long(1); flags {
	case sliceFlagsNewAxis:
		return NewAxis, nil
	case sliceFlagsEllipsis:
		return Ellipsis, nil
	default:
		r := Range{Start: bounds.Long(0), Stop: bounds.Long(1), Step: bounds.Long(2)}
		r.OmitStart = flags&SliceDefaultStart != 0
		r.OmitStop = flags&SliceDefaultStop != 0
		if r.OmitStart {
			r.Start = 0
		}
		if r.OmitStop {
			r.Stop = 0
		}
		return r, nil
	}
}

func decodeNil(*decoder, *Packet) (any, error) { return nil, nil }

func decodeList(d *decoder, _ *Packet) (any, error) {
	items, _, err := d.list(contextList)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []any{}
	}
	return items, nil
}

func decodeDict(d *decoder, _ *Packet) (any, error) {
	_, members, err := d.list(contextKeywords)
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = map[string]any{}
	}
	return members, nil
}

func decodeEOL(_ *decoder, header *Packet) (any, error) {
	return Instruction{Tag: TagEOL, Flag: header.Long(1)}, nil
}

// name consumes the name packet of an active header.
func (d *decoder) name(header *Packet) (string, error) {
	length := header.Long(1)
	if length <= 0 {
		return "", nil
	}
	packet, err := d.next(TagUChar)
	if err != nil {
		return "", err
	}
	if int64(packet.Count) != length {
		return "", &ProtocolViolation{Tag: Tag(header.Long(0)), Context: "message", Reason: "name length mismatch"}
	}
	return nameText(packet.Data), nil
}

func decodeNamed(d *decoder, header *Packet) (any, error) {
	name, err := d.name(header)
	if err != nil {
		return nil, err
	}
	return Instruction{Tag: Tag(header.Long(0)), Name: name}, nil
}

func decodeSetVar(d *decoder, header *Packet) (any, error) {
	name, err := d.name(header)
	if err != nil {
		return nil, err
	}
	value, err := d.nested()
	if err != nil {
		return nil, err
	}
	return Instruction{Tag: TagSetVar, Name: name, Value: value}, nil
}

func decodeCall(d *decoder, header *Packet) (any, error) {
	name, err := d.name(header)
	if err != nil {
		return nil, err
	}
	args, keywords, err := d.list(contextArguments)
	if err != nil {
		return nil, err
	}
	return Instruction{Tag: Tag(header.Long(0)), Name: name, Args: args, Keywords: keywords}, nil
}

func decodeGetSlice(d *decoder, header *Packet) (any, error) {
	name, err := d.name(header)
	if err != nil {
		return nil, err
	}
	args, _, err := d.list(contextList)
	if err != nil {
		return nil, err
	}
	return Instruction{Tag: TagGetSlice, Name: name, Args: args}, nil
}

func decodeSetSlice(d *decoder, header *Packet) (any, error) {
	name, err := d.name(header)
	if err != nil {
		return nil, err
	}
	args, _, err := d.list(contextList)
	if err != nil {
		return nil, err
	}
	value, err := d.nested()
	if err != nil {
		return nil, err
	}
	return Instruction{Tag: TagSetSlice, Name: name, Args: args, Value: value}, nil
}

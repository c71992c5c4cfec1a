// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// longSize is the width of the protocol's integer type (C long on an
// LP64 platform). Headers, dims, and string length tables use it.
const longSize = 8

// Packet is one fixed-shape, fixed-type buffer of a message. Data holds
// Count elements of the Elem encoding in native byte order. Packets are
// never modified after a message is complete.
type Packet struct {
	Elem  Tag
	Count int
	Data  []byte
}

// newPacket allocates a zeroed packet ready to be filled.
func newPacket(elem Tag, count int) *Packet {
	return &Packet{Elem: elem, Count: count, Data: make([]byte, count*elem.Size())}
}

// longPacket builds a packet of longs.
func longPacket(values ...int64) Packet {
	data := make([]byte, len(values)*longSize)
	for i, value := range values {
		binary.NativeEndian.PutUint64(data[i*longSize:], uint64(value))
	}
	return Packet{Elem: TagLong, Count: len(values), Data: data}
}

// headerPacket builds the [tag, info] packet that opens every clause.
func headerPacket(tag Tag, info int64) Packet {
	return longPacket(int64(tag), info)
}

// bytePacket builds a packet of unsigned chars holding data.
func bytePacket(data []byte) Packet {
	return Packet{Elem: TagUChar, Count: len(data), Data: data}
}

// Long returns the i-th element of a long packet.
func (p *Packet) Long(i int) int64 {
	return int64(binary.NativeEndian.Uint64(p.Data[i*longSize:]))
}

// Longs returns all elements of a long packet.
func (p *Packet) Longs() []int64 {
	values := make([]int64, p.Count)
	for i := range values {
		values[i] = p.Long(i)
	}
	return values
}

// Size returns the byte length of the packet.
func (p *Packet) Size() int { return len(p.Data) }

// String renders a short description for debug logs.
func (p *Packet) String() string {
	if p.Elem == TagLong && p.Count <= 4 {
		return fmt.Sprintf("long%v", p.Longs())
	}
	return fmt.Sprintf("%s[%d]", p.Elem, p.Count)
}

// element is the set of Go element types a numeric packet can hold.
type element interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64 | ~complex64 | ~complex128 |
		LongDouble
}

// bytesOf copies the memory of values into a new byte slice. The copy
// keeps a message independent of the caller's slice.
func bytesOf[T element](values []T) []byte {
	if len(values) == 0 {
		return []byte{}
	}
	size := int(unsafe.Sizeof(values[0]))
	raw := unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(values))), len(values)*size)
	out := make([]byte, len(raw))
	copy(out, raw)
	return out
}

// valuesOf copies data into a new slice of count elements.
func valuesOf[T element](data []byte, count int) []T {
	out := make([]T, count)
	if count == 0 {
		return out
	}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(out))), len(data))
	copy(raw, data)
	return out
}

// elementsFromBytes converts a numeric data packet into the typed
// slice for its tag.
func elementsFromBytes(tag Tag, data []byte, count int) (any, error) {
	switch tag {
	case TagChar:
		return valuesOf[int8](data, count), nil
	case TagShort:
		return valuesOf[int16](data, count), nil
	case TagInt:
		return valuesOf[int32](data, count), nil
	case TagLong, TagLongLong:
		return valuesOf[int64](data, count), nil
	case TagFloat:
		return valuesOf[float32](data, count), nil
	case TagDouble:
		return valuesOf[float64](data, count), nil
	case TagLongDouble:
		return valuesOf[LongDouble](data, count), nil
	case TagUChar:
		return valuesOf[uint8](data, count), nil
	case TagUShort:
		return valuesOf[uint16](data, count), nil
	case TagUInt:
		return valuesOf[uint32](data, count), nil
	case TagULong, TagULongLong:
		return valuesOf[uint64](data, count), nil
	case TagComplex:
		return valuesOf[complex64](data, count), nil
	case TagDoubleComplex:
		return valuesOf[complex128](data, count), nil
	}
	return nil, fmt.Errorf("no element type for %s", tag)
}

// elementsToBytes returns the canonical tag, element count, and raw
// bytes of a typed slice. ok is false if data is not a numeric slice.
func elementsToBytes(data any) (tag Tag, count int, raw []byte, ok bool) {
	switch values := data.(type) {
	case []int8:
		return TagChar, len(values), bytesOf(values), true
	case []int16:
		return TagShort, len(values), bytesOf(values), true
	case []int32:
		return TagInt, len(values), bytesOf(values), true
	case []int64:
		return TagLong, len(values), bytesOf(values), true
	case []float32:
		return TagFloat, len(values), bytesOf(values), true
	case []float64:
		return TagDouble, len(values), bytesOf(values), true
	case []LongDouble:
		return TagLongDouble, len(values), bytesOf(values), true
	case []uint8:
		return TagUChar, len(values), bytesOf(values), true
	case []uint16:
		return TagUShort, len(values), bytesOf(values), true
	case []uint32:
		return TagUInt, len(values), bytesOf(values), true
	case []uint64:
		return TagULong, len(values), bytesOf(values), true
	case []complex64:
		return TagComplex, len(values), bytesOf(values), true
	case []complex128:
		return TagDoubleComplex, len(values), bytesOf(values), true
	}
	return 0, 0, nil, false
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"

	"github.com/bureau-foundation/gorick/lib/codec"
)

// OpaquePrefix begins every opaque fallback blob. The companion stores
// the blob as a plain byte array; the prefix is how it is recognized on
// the way back.
const OpaquePrefix = "gorick-opaque_5d0b8f3a9c7e41d2b6a04e1f37c29a85"

// Blob layout after the prefix: one mode byte, one compression tag
// byte, the uncompressed payload length as a uvarint, the payload.
const (
	opaqueByValue     = 'v'
	opaqueByReference = 'r'
)

// Opaque is a decoded fallback blob. By-value blobs carry a CBOR
// serialization; by-reference blobs carry an id into the object table
// of the [Codec] that produced them. Encoding an Opaque sends the
// original blob back unchanged.
type Opaque struct {
	blob    []byte
	payload []byte
	object  any
	found   bool
	byRef   bool
}

// ByReference reports whether the blob refers to a live host object
// rather than carrying a serialization.
func (o *Opaque) ByReference() bool { return o.byRef }

// Bytes returns the raw blob as it appears on the wire.
func (o *Opaque) Bytes() []byte { return o.blob }

// Decode unmarshals a by-value blob into target, which must be a
// pointer. A by-reference blob is assigned to target if the types
// match.
func (o *Opaque) Decode(target any) error {
	if !o.byRef {
		if err := codec.Unmarshal(o.payload, target); err != nil {
			return fmt.Errorf("decode opaque value: %w", err)
		}
		return nil
	}
	object, err := o.Object()
	if err != nil {
		return err
	}
	return assignObject(target, object)
}

// Object returns the host value the blob stands for: the referenced
// object, or a generic decoding of a by-value blob (maps decode as
// map[any]any).
func (o *Opaque) Object() (any, error) {
	if o.byRef {
		if !o.found {
			return nil, errors.New("opaque reference is not registered with this codec")
		}
		return o.object, nil
	}
	var value any
	if err := codec.Unmarshal(o.payload, &value); err != nil {
		return nil, fmt.Errorf("decode opaque value: %w", err)
	}
	return value, nil
}

func (o *Opaque) String() string {
	if o.byRef {
		return "opaque(reference)"
	}
	if diagnostic, err := codec.Diagnose(o.payload); err == nil && len(diagnostic) <= 80 {
		return "opaque(" + diagnostic + ")"
	}
	return fmt.Sprintf("opaque(%d bytes)", len(o.payload))
}

func isOpaque(data []byte) bool {
	return bytes.HasPrefix(data, []byte(OpaquePrefix))
}

// wrap serializes v as an opaque blob. Values CBOR accepts are stored
// by value; the rest are registered in the object table.
func (c *Codec) wrap(v any) ([]byte, error) {
	blob := []byte(OpaquePrefix)
	payload, err := codec.Marshal(v)
	if err != nil {
		c.mu.Lock()
		c.nextObject++
		id := c.nextObject
		c.objects[id] = v
		c.mu.Unlock()
		payload = binary.AppendUvarint(nil, id)
		blob = append(blob, opaqueByReference, byte(codec.CompressionNone))
		blob = binary.AppendUvarint(blob, uint64(len(payload)))
		return append(blob, payload...), nil
	}

	compressed, tag, err := c.compress(payload)
	if err != nil {
		return nil, err
	}
	blob = append(blob, opaqueByValue, byte(tag))
	blob = binary.AppendUvarint(blob, uint64(len(payload)))
	return append(blob, compressed...), nil
}

func (c *Codec) compress(payload []byte) ([]byte, codec.CompressionTag, error) {
	switch c.options.Compression {
	case CompressNone:
		return payload, codec.CompressionNone, nil
	case CompressLZ4:
		return codec.CompressWith(payload, codec.CompressionLZ4)
	case CompressZstd:
		return codec.CompressWith(payload, codec.CompressionZstd)
	default:
		compressed, tag := codec.Compress(payload)
		return compressed, tag, nil
	}
}

// unwrap parses an opaque blob.
func (c *Codec) unwrap(blob []byte) (*Opaque, error) {
	rest := blob[len(OpaquePrefix):]
	violation := func(reason string) error {
		return &ProtocolViolation{Tag: TagUChar, Context: "opaque blob", Reason: reason}
	}
	if len(rest) < 2 {
		return nil, violation("truncated")
	}
	mode, tag := rest[0], codec.CompressionTag(rest[1])
	size, n := binary.Uvarint(rest[2:])
	if n <= 0 || size > MaxPacketSize {
		return nil, violation("bad payload length")
	}
	payload, err := codec.Decompress(rest[2+n:], tag, int(size))
	if err != nil {
		return nil, violation(err.Error())
	}
	o := &Opaque{blob: append([]byte(nil), blob...), payload: payload}
	switch mode {
	case opaqueByValue:
	case opaqueByReference:
		id, n := binary.Uvarint(payload)
		if n <= 0 {
			return nil, violation("bad reference id")
		}
		o.byRef = true
		c.mu.Lock()
		o.object, o.found = c.objects[id]
		c.mu.Unlock()
	default:
		return nil, violation(fmt.Sprintf("unknown mode %q", mode))
	}
	return o, nil
}

// assignObject stores object through the pointer target.
func assignObject(target, object any) error {
	pointer := reflect.ValueOf(target)
	if pointer.Kind() != reflect.Pointer || pointer.IsNil() {
		return fmt.Errorf("decode opaque reference: target %T is not a non-nil pointer", target)
	}
	value := reflect.ValueOf(object)
	if !value.IsValid() {
		pointer.Elem().SetZero()
		return nil
	}
	if !value.Type().AssignableTo(pointer.Elem().Type()) {
		return fmt.Errorf("decode opaque reference: %T is not assignable to %s", object, pointer.Elem().Type())
	}
	pointer.Elem().Set(value)
	return nil
}

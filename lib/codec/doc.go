// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec serializes host values that have no representation in
// the companion wire protocol.
//
// The wire protocol carries numbers, strings, ranges, nil, and string
// keyed aggregates. Everything else (structs, maps with non-string
// keys, nested slices of mixed type) can still cross the boundary as
// an opaque byte blob when the wire codec's fallback is enabled. The
// companion stores the blob as an unsigned char array and hands it back
// unchanged, so the host must be able to reconstruct the value from the
// bytes alone.
//
// Values are serialized as CBOR with Core Deterministic Encoding
// (RFC 8949 §4.2): the same value always yields the same blob, which
// keeps fallback round trips comparable byte for byte.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Large payloads are compressed before they are wrapped. [Compress]
// selects between zstd and LZ4 by probing the payload and reports the
// [CompressionTag] that [Decompress] needs to reverse it.
package codec

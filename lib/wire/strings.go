// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// stringArray is the encoder form of a tag-16 clause: a row-major
// shape and the flattened strings.
type stringArray struct {
	shape  []int
	values []string
}

// latin1 transcodes Go (UTF-8) text to the single-byte encoding the
// companion uses. Runes above U+00FF are rejected.
func latin1(s string) ([]byte, error) {
	if isASCII(s) {
		return []byte(s), nil
	}
	out, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, &EncodeError{Value: s, Reason: "text is not representable in Latin-1", Err: err}
	}
	return out, nil
}

// fromLatin1 transcodes companion text back to Go text.
func fromLatin1(b []byte) string {
	if isASCII(string(b)) {
		return string(b)
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		// Every byte has a Latin-1 decoding.
		return string(b)
	}
	return string(out)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// terminated returns the wire bytes of one string element: the text
// with exactly one trailing NUL, truncated after the first embedded
// NUL if there is one. NullString has no bytes at all.
func terminated(s string) ([]byte, error) {
	if s == NullString {
		return nil, nil
	}
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i+1]
	} else {
		s += "\x00"
	}
	return latin1(s)
}

// unterminated is the inverse of terminated for one element.
func unterminated(b []byte) string {
	if len(b) == 0 {
		return NullString
	}
	b = b[:len(b)-1]
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return fromLatin1(b)
}

// nameText decodes an active-message name or text packet, dropping one
// trailing NUL if the peer sent it.
func nameText(b []byte) string {
	b = bytes.TrimSuffix(b, []byte{0})
	return fromLatin1(b)
}

// nestStrings rebuilds the Go nesting of a decoded string array:
// string for rank 0, []string for rank 1, [][]string for rank 2, and
// so on.
func nestStrings(shape []int, flat []string) any {
	if len(shape) == 0 {
		return flat[0]
	}
	if len(shape) == 1 {
		return flat
	}
	typ := reflect.TypeOf([]string(nil))
	for range shape[1:] {
		typ = reflect.SliceOf(typ)
	}
	return nest(typ, shape, reflect.ValueOf(flat)).Interface()
}

// nest reshapes the flat slice into nested slices of typ following
// shape.
func nest(typ reflect.Type, shape []int, flat reflect.Value) reflect.Value {
	if len(shape) == 1 {
		return flat
	}
	stride := product(shape[1:])
	out := reflect.MakeSlice(typ, shape[0], shape[0])
	for i := 0; i < shape[0]; i++ {
		out.Index(i).Set(nest(typ.Elem(), shape[1:], flat.Slice(i*stride, (i+1)*stride)))
	}
	return out
}

func (s stringArray) String() string {
	return fmt.Sprintf("string%v", s.shape)
}

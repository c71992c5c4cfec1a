// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handle

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/bureau-foundation/gorick/lib/wire"
)

// Companion object codes reported in place of a type tag.
const (
	InfoFunction   = -1
	InfoList       = -2
	InfoDict       = -3
	InfoRange      = -4
	InfoNil        = -5
	InfoBinaryFile = -6
	InfoTextFile   = -7
	InfoObject     = -8
)

// Info describes a companion variable without fetching it. Type is a
// wire tag for arrays and strings, otherwise one of the negative Info
// codes. Dims is in companion order, fastest-varying first.
type Info struct {
	Type int64
	Rank int
	Dims []int
}

// parseInfo reads a GETSHAPE reply: [type, rank, dims...] for arrays
// and strings, a lone negative code for anything else.
func parseInfo(reply any) (Info, error) {
	var values []int64
	switch x := reply.(type) {
	case wire.Array:
		data, ok := x.Data.([]int64)
		if !ok || x.Rank() != 1 {
			return Info{}, fmt.Errorf("shape reply is a %s array of rank %d", x.Type, x.Rank())
		}
		values = data
	case []int64:
		values = x
	case int64:
		values = []int64{x}
	default:
		if reply == nil {
			return Info{}, fmt.Errorf("empty shape reply")
		}
		return Info{}, fmt.Errorf("shape reply is a %s", reflect.TypeOf(reply))
	}
	if len(values) == 0 {
		return Info{}, fmt.Errorf("empty shape reply")
	}
	info := Info{Type: values[0]}
	if info.Type < 0 {
		return info, nil
	}
	if len(values) < 2 || values[1] < 0 || int(values[1]) != len(values)-2 {
		return Info{}, fmt.Errorf("malformed shape reply %v", values)
	}
	info.Rank = int(values[1])
	info.Dims = make([]int, info.Rank)
	for i, dim := range values[2:] {
		info.Dims[i] = int(dim)
	}
	return info, nil
}

func (i Info) tag() wire.Tag { return wire.Tag(i.Type) }

// IsString reports a string or string array.
func (i Info) IsString() bool { return i.tag() == wire.TagString }

// IsNumber reports any numeric array except long double complex.
func (i Info) IsNumber() bool { return i.Type >= int64(wire.TagChar) && i.Type < int64(wire.TagLongDoubleComplex) }

// IsBytes reports an unsigned char array.
func (i Info) IsBytes() bool { return i.tag() == wire.TagUChar }

func (i Info) IsInteger() bool {
	return (i.Type >= int64(wire.TagChar) && i.Type <= int64(wire.TagLongLong)) ||
		(i.Type >= int64(wire.TagUChar) && i.Type <= int64(wire.TagULongLong))
}

func (i Info) IsReal() bool {
	return i.Type >= int64(wire.TagFloat) && i.Type <= int64(wire.TagLongDouble)
}

func (i Info) IsComplex() bool {
	return i.Type >= int64(wire.TagComplex) && i.Type <= int64(wire.TagLongDoubleComplex)
}

func (i Info) IsFunc() bool   { return i.Type == InfoFunction }
func (i Info) IsList() bool   { return i.Type == InfoList }
func (i Info) IsDict() bool   { return i.Type == InfoDict }
func (i Info) IsRange() bool  { return i.Type == InfoRange }
func (i Info) IsNil() bool    { return i.Type == InfoNil }
func (i Info) IsObject() bool { return i.Type == InfoObject }

// File is 1 for a binary file, 2 for a text file, 0 otherwise.
func (i Info) File() int {
	switch i.Type {
	case InfoBinaryFile:
		return 1
	case InfoTextFile:
		return 2
	}
	return 0
}

// Shape returns the dimensions in host (row-major) order, or nil for
// non-array codes.
func (i Info) Shape() []int {
	if i.Type < 0 {
		return nil
	}
	shape := slices.Clone(i.Dims)
	slices.Reverse(shape)
	return shape
}

func (i Info) String() string {
	if i.Type < 0 {
		return fmt.Sprintf("info(%d)", i.Type)
	}
	return fmt.Sprintf("info(%s, %v)", i.tag(), i.Shape())
}

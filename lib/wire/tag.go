// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "fmt"

// Tag identifies a grammar clause. Tags 0-15 double as element
// encodings for numeric packets. These values are protocol constants
// shared with the companion's bootstrap code.
type Tag int64

// Numeric element encodings. The names follow the C types the
// companion uses; the Go element type for each is listed in
// [Tag.GoType].
const (
	TagChar Tag = iota
	TagShort
	TagInt
	TagLong
	TagLongLong
	TagFloat
	TagDouble
	TagLongDouble
	TagUChar
	TagUShort
	TagUInt
	TagULong
	TagULongLong
	TagComplex
	TagDoubleComplex
	TagLongDoubleComplex
)

// Passive (data) clauses. A passive message never requires a reply.
const (
	TagString Tag = 16
	TagSlice  Tag = 17
	TagNil    Tag = 18
	TagList   Tag = 19
	TagDict   Tag = 20
	TagEOL    Tag = 21
)

// Active (request) clauses. Each requires a passive reply.
const (
	TagEval     Tag = 32
	TagExec     Tag = 33
	TagGetVar   Tag = 34
	TagSetVar   Tag = 35
	TagFunCall  Tag = 36
	TagSubCall  Tag = 37
	TagGetSlice Tag = 38
	TagSetSlice Tag = 39
	TagGetShape Tag = 40
)

// Slice flag bits carried in the info word of a tag-17 header.
const (
	SliceDefaultStart = 1
	SliceDefaultStop  = 2
	SliceNewAxis      = 4
	SliceEllipsis     = 8

	sliceFlagsNewAxis  = SliceDefaultStart | SliceDefaultStop | SliceNewAxis
	sliceFlagsEllipsis = SliceDefaultStart | SliceDefaultStop | SliceEllipsis
)

// EOL flag values. EOL(0) closes a list; the others are replies.
const (
	EOLEnd             = 0
	EOLError           = 1
	EOLUnrepresentable = 2
	EOLExiting         = -1
)

// Kind is the broad class of a numeric element encoding.
type Kind int

const (
	KindSigned Kind = iota
	KindUnsigned
	KindFloat
	KindComplex
)

type elementInfo struct {
	name  string
	kind  Kind
	width int
}

// elements describes tags 0-15 on an LP64 platform. Tag 15 has no
// portable representation and is rejected by the reader.
var elements = [16]elementInfo{
	{"char", KindSigned, 1},
	{"short", KindSigned, 2},
	{"int", KindSigned, 4},
	{"long", KindSigned, 8},
	{"long long", KindSigned, 8},
	{"float", KindFloat, 4},
	{"double", KindFloat, 8},
	{"long double", KindFloat, 16},
	{"unsigned char", KindUnsigned, 1},
	{"unsigned short", KindUnsigned, 2},
	{"unsigned int", KindUnsigned, 4},
	{"unsigned long", KindUnsigned, 8},
	{"unsigned long long", KindUnsigned, 8},
	{"complex", KindComplex, 8},
	{"double complex", KindComplex, 16},
	{"long double complex", KindComplex, 32},
}

// canonical lists, per kind, the preferred tag at each width. At width
// 8 both long and long long exist; long wins so that equal-width
// alternatives never produce ambiguous encodings.
var canonical = map[Kind]map[int]Tag{
	KindSigned:   {1: TagChar, 2: TagShort, 4: TagInt, 8: TagLong},
	KindUnsigned: {1: TagUChar, 2: TagUShort, 4: TagUInt, 8: TagULong},
	KindFloat:    {4: TagFloat, 8: TagDouble, 16: TagLongDouble},
	KindComplex:  {8: TagComplex, 16: TagDoubleComplex},
}

// TagFor returns the numeric tag for an element of the given kind and
// byte width, preferring the canonical type at equal width.
func TagFor(kind Kind, width int) (Tag, bool) {
	tag, ok := canonical[kind][width]
	return tag, ok
}

// IsNumeric reports whether the tag is a numeric array clause.
func (t Tag) IsNumeric() bool { return t >= TagChar && t <= TagLongDoubleComplex }

// IsActive reports whether the tag is a request requiring a reply.
func (t Tag) IsActive() bool { return t >= TagEval }

// IsData reports whether the tag is a passive clause that carries a
// value (everything below EOL).
func (t Tag) IsData() bool { return t >= TagChar && t < TagEOL }

// Size returns the element width in bytes of a numeric tag, or 0.
func (t Tag) Size() int {
	if !t.IsNumeric() {
		return 0
	}
	return elements[t].width
}

// Kind returns the element class of a numeric tag.
func (t Tag) Kind() Kind {
	if !t.IsNumeric() {
		return -1
	}
	return elements[t].kind
}

var clauseNames = map[Tag]string{
	TagString:   "string",
	TagSlice:    "slice",
	TagNil:      "nil",
	TagList:     "list",
	TagDict:     "dict",
	TagEOL:      "eol",
	TagEval:     "eval",
	TagExec:     "exec",
	TagGetVar:   "getvar",
	TagSetVar:   "setvar",
	TagFunCall:  "funcall",
	TagSubCall:  "subcall",
	TagGetSlice: "getslice",
	TagSetSlice: "setslice",
	TagGetShape: "getshape",
}

// String returns the clause name of the tag.
func (t Tag) String() string {
	if t.IsNumeric() {
		return elements[t].name
	}
	if name, ok := clauseNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tag(%d)", int64(t))
}

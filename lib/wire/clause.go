// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// context is the grammatical position a clause appears in. Each
// context allows a fixed set of tags.
type context int

const (
	// contextMessage is the top level of a message: any clause.
	contextMessage context = iota
	// contextList is an llist (list items, slice indices): data
	// clauses and getvar.
	contextList
	// contextKeywords is a dlist (dict members): setvar only.
	contextKeywords
	// contextArguments is an alist (call arguments): llist plus
	// setvar for keywords.
	contextArguments
	// contextValue is the value of setvar or setslice: same as llist.
	contextValue
)

func (c context) String() string {
	switch c {
	case contextMessage:
		return "message"
	case contextList:
		return "list"
	case contextKeywords:
		return "keyword list"
	case contextArguments:
		return "argument list"
	case contextValue:
		return "assigned value"
	}
	return "unknown context"
}

// allows reports whether tag may begin a clause in this context. The
// EOL(0) terminator of a list is handled by the list itself and is not
// "allowed" here.
func (c context) allows(tag Tag) bool {
	switch c {
	case contextMessage:
		_, ok := clauses[tag]
		return ok
	case contextList, contextValue:
		return tag.IsData() || tag == TagGetVar
	case contextKeywords:
		return tag == TagSetVar
	case contextArguments:
		return tag.IsData() || tag == TagGetVar || tag == TagSetVar
	}
	return false
}

// clause is the {reader, encoder, decoder} triplet for one tag.
//
// read returns the steps that fill the rest of the clause after its
// header has arrived, in order. encode appends the packets of v, whose
// Go form is specific to the clause (see the encoders). decode consumes
// the rest of the clause after its header.
type clause struct {
	read   func(r *Reader, header *Packet) ([]step, error)
	encode func(e *encoder, tag Tag, v any) error
	decode func(d *decoder, header *Packet) (any, error)
}

// clauses is the static dispatch table. It is filled once in init and
// never modified afterwards.
var clauses map[Tag]*clause

func init() {
	numeric := &clause{read: readNumeric, encode: encodeNumeric, decode: decodeNumeric}
	named := &clause{read: readNamed, encode: encodeNamed, decode: decodeNamed}
	call := &clause{read: readCall, encode: encodeCall, decode: decodeCall}

	clauses = map[Tag]*clause{
		TagString:   {read: readString, encode: encodeString, decode: decodeString},
		TagSlice:    {read: readSlice, encode: encodeSlice, decode: decodeSlice},
		TagNil:      {read: readNothing, encode: encodeNil, decode: decodeNil},
		TagList:     {read: readList, encode: encodeList, decode: decodeList},
		TagDict:     {read: readDict, encode: encodeDict, decode: decodeDict},
		TagEOL:      {read: readNothing, encode: encodeEOL, decode: decodeEOL},
		TagEval:     named,
		TagExec:     named,
		TagGetVar:   named,
		TagGetShape: named,
		TagSetVar:   {read: readSetVar, encode: encodeSetVar, decode: decodeSetVar},
		TagFunCall:  call,
		TagSubCall:  call,
		TagGetSlice: {read: readGetSlice, encode: encodeGetSlice, decode: decodeGetSlice},
		TagSetSlice: {read: readSetSlice, encode: encodeSetSlice, decode: decodeSetSlice},
	}
	// Tag 15 (long double complex) has no Go element type and stays
	// out of the table.
	for tag := TagChar; tag < TagLongDoubleComplex; tag++ {
		clauses[tag] = numeric
	}
}

// lookup returns the clause for tag in context c, or a
// ProtocolViolation.
func lookup(tag Tag, c context) (*clause, error) {
	if !c.allows(tag) {
		return nil, &ProtocolViolation{Tag: tag, Context: c.String()}
	}
	entry, ok := clauses[tag]
	if !ok {
		return nil, &ProtocolViolation{Tag: tag, Context: c.String(), Reason: "unsupported tag"}
	}
	return entry, nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the binary message protocol spoken between
// the host and a companion array interpreter: the tag registry, the
// encoder that turns Go values into messages, the decoder that turns
// messages back into Go values, and the incremental [Reader] that
// builds a message from a byte stream whose packet shapes are only
// known once earlier packets have arrived.
//
// A [Message] is an ordered list of [Packet] values. Packet 0 is always
// a two-long header [tag, info]. The tag selects a grammar clause:
//
//	message  := narray | sarray | slice | nil | list | dict | eol
//	          | eval | exec | getvar | setvar | funcall | subcall
//	          | getslice | setslice | getshape
//	narray   := long[2]=(0..15, rank) dims data
//	sarray   := long[2]=(16, rank) dims lens text
//	slice    := long[2]=(17, flags) long[3]=(start, stop, step)
//	nil      := long[2]=(18, 0)
//	list     := long[2]=(19, 0) llist
//	dict     := long[2]=(20, 0) dlist
//	eol      := long[2]=(21, flag)
//	eval     := long[2]=(32, textlen) text       (exec = 33)
//	getvar   := long[2]=(34, namelen) name       (getshape = 40)
//	setvar   := long[2]=(35, namelen) name value
//	funcall  := long[2]=(36, namelen) name alist (subcall = 37)
//	getslice := long[2]=(38, namelen) name llist
//	setslice := long[2]=(39, namelen) name llist value
//
//	llist := eol(0) | value llist
//	dlist := eol(0) | setvar dlist
//	alist := eol(0) | value alist | setvar alist
//	value := narray | sarray | slice | nil | list | dict | getvar
//
// Dims are sent fastest-varying first. [Array.Shape] is row-major
// (slowest-varying first), so the codec reverses it on the wire.
//
// Each tag owns a clause of three functions (reader, encoder, decoder)
// registered in a single static table built at package initialization.
// Tags not in the table, or not allowed in the context where they
// appear, produce a [ProtocolViolation].
//
// A [Codec] carries the encoding options. With the fallback enabled,
// values that have no wire representation are serialized into an
// opaque byte blob recognized by a fixed magic prefix and decode as
// [Opaque].
package wire

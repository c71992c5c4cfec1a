// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"
	"math"
)

// maxRank bounds the rank field of array headers. The companion's own
// limit is far lower; anything above this is a corrupt header.
const maxRank = 32

// MaxPacketSize bounds the byte length of a single packet. A larger
// request from the peer is treated as a corrupt header rather than
// allocated.
const MaxPacketSize = 1 << 34

// step is one state of the [Reader]. It may request a packet to be
// filled and may schedule further steps to run, in order, before the
// steps already pending.
type step func() (packet *Packet, next []step, err error)

// Reader builds one message from a byte stream whose packet shapes are
// only known once earlier packets have arrived. It is a pull state
// machine:
//
//	reader := wire.NewReader()
//	for {
//		packet, err := reader.Next()
//		if err != nil { ... }          // ProtocolViolation: drop the connection
//		if packet == nil { break }     // message complete
//		fill(packet.Data)              // read exactly len(packet.Data) bytes
//	}
//	message := reader.Message()
//
// The caller must fill each packet completely before calling Next
// again. A Reader is single-use.
type Reader struct {
	packets []*Packet
	pending []step
	err     error
	done    bool
}

// NewReader returns a reader positioned before the header of a
// top-level message.
func NewReader() *Reader {
	r := &Reader{}
	r.pending = []step{r.clauseStep(contextMessage)}
	return r
}

// Next returns the next packet to fill, or nil once the message is
// complete. After an error every later call returns the same error.
func (r *Reader) Next() (*Packet, error) {
	if r.err != nil {
		return nil, r.err
	}
	for len(r.pending) > 0 {
		current := r.pending[len(r.pending)-1]
		r.pending = r.pending[:len(r.pending)-1]
		packet, next, err := current()
		if err != nil {
			r.err = err
			return nil, err
		}
		for i := len(next) - 1; i >= 0; i-- {
			r.pending = append(r.pending, next[i])
		}
		if packet != nil {
			return packet, nil
		}
	}
	r.done = true
	return nil, nil
}

// Done reports whether the message is complete.
func (r *Reader) Done() bool { return r.done }

// Message returns the completed message, or nil if the reader has not
// finished.
func (r *Reader) Message() *Message {
	if !r.done {
		return nil
	}
	packets := make([]Packet, len(r.packets))
	for i, packet := range r.packets {
		packets[i] = *packet
	}
	return &Message{packets: packets}
}

// alloc appends a zeroed packet to the message under construction.
func (r *Reader) alloc(elem Tag, count int64) (*Packet, error) {
	if count < 0 || count > MaxPacketSize/int64(elem.Size()) {
		return nil, &ProtocolViolation{Tag: elem, Context: "packet", Reason: fmt.Sprintf("element count %d out of range", count)}
	}
	packet := newPacket(elem, int(count))
	r.packets = append(r.packets, packet)
	return packet, nil
}

// clauseStep reads one header and dispatches on its tag.
func (r *Reader) clauseStep(c context) step {
	return func() (*Packet, []step, error) {
		header, err := r.alloc(TagLong, 2)
		if err != nil {
			return nil, nil, err
		}
		dispatch := func() (*Packet, []step, error) {
			entry, err := lookup(Tag(header.Long(0)), c)
			if err != nil {
				return nil, nil, err
			}
			next, err := entry.read(r, header)
			return nil, next, err
		}
		return header, []step{dispatch}, nil
	}
}

// listStep reads list items in context c until the EOL(0) terminator.
func (r *Reader) listStep(c context) step {
	return func() (*Packet, []step, error) {
		header, err := r.alloc(TagLong, 2)
		if err != nil {
			return nil, nil, err
		}
		dispatch := func() (*Packet, []step, error) {
			tag := Tag(header.Long(0))
			if !c.allows(tag) {
				if tag == TagEOL && header.Long(1) == EOLEnd {
					return nil, nil, nil
				}
				return nil, nil, &ProtocolViolation{Tag: tag, Context: c.String()}
			}
			entry, err := lookup(tag, c)
			if err != nil {
				return nil, nil, err
			}
			next, err := entry.read(r, header)
			if err != nil {
				return nil, nil, err
			}
			return nil, append(next, r.listStep(c)), nil
		}
		return header, []step{dispatch}, nil
	}
}

// dimsStep reads the dimension list of an array header. filled is
// called with the dims once they have arrived.
func (r *Reader) dimsStep(header *Packet, filled func(count int64) ([]step, error)) []step {
	tag := Tag(header.Long(0))
	rank := header.Long(1)
	if rank < 0 || rank > maxRank {
		return []step{func() (*Packet, []step, error) {
			return nil, nil, &ProtocolViolation{Tag: tag, Context: "array header", Reason: fmt.Sprintf("rank %d out of range", rank)}
		}}
	}
	if rank == 0 {
		return []step{func() (*Packet, []step, error) {
			next, err := filled(1)
			return nil, next, err
		}}
	}
	var dims *Packet
	return []step{
		func() (*Packet, []step, error) {
			var err error
			dims, err = r.alloc(TagLong, rank)
			return dims, nil, err
		},
		func() (*Packet, []step, error) {
			count := int64(1)
			for _, d := range dims.Longs() {
				if d < 0 || (d > 0 && count > math.MaxInt64/d) {
					return nil, nil, &ProtocolViolation{Tag: tag, Context: "array header", Reason: fmt.Sprintf("dimension %d out of range", d)}
				}
				count *= d
			}
			next, err := filled(count)
			return nil, next, err
		},
	}
}

func readNumeric(r *Reader, header *Packet) ([]step, error) {
	tag := Tag(header.Long(0))
	return r.dimsStep(header, func(count int64) ([]step, error) {
		return []step{func() (*Packet, []step, error) {
			data, err := r.alloc(tag, count)
			return data, nil, err
		}}, nil
	}), nil
}

func readString(r *Reader, header *Packet) ([]step, error) {
	return r.dimsStep(header, func(count int64) ([]step, error) {
		var lengths *Packet
		return []step{
			func() (*Packet, []step, error) {
				var err error
				lengths, err = r.alloc(TagLong, count)
				return lengths, nil, err
			},
			func() (*Packet, []step, error) {
				var total int64
				for _, n := range lengths.Longs() {
					if n < 0 || total+n > MaxPacketSize {
						return nil, nil, &ProtocolViolation{Tag: TagString, Context: "string lengths", Reason: fmt.Sprintf("length %d out of range", n)}
					}
					total += n
				}
				if total == 0 {
					return nil, nil, nil
				}
				text, err := r.alloc(TagUChar, total)
				return text, nil, err
			},
		}, nil
	}), nil
}

func readSlice(r *Reader, header *Packet) ([]step, error) {
	return []step{func() (*Packet, []step, error) {
		bounds, err := r.alloc(TagLong, 3)
		return bounds, nil, err
	}}, nil
}

func readNothing(*Reader, *Packet) ([]step, error) { return nil, nil }

func readList(r *Reader, _ *Packet) ([]step, error) {
	return []step{r.listStep(contextList)}, nil
}

func readDict(r *Reader, _ *Packet) ([]step, error) {
	return []step{r.listStep(contextKeywords)}, nil
}

// readNamed reads the name or text that follows an active header.
func readNamed(r *Reader, header *Packet) ([]step, error) {
	length := header.Long(1)
	if length < 0 {
		return nil, &ProtocolViolation{Tag: Tag(header.Long(0)), Context: "message", Reason: fmt.Sprintf("name length %d", length)}
	}
	if length == 0 {
		return nil, nil
	}
	return []step{func() (*Packet, []step, error) {
		name, err := r.alloc(TagUChar, length)
		return name, nil, err
	}}, nil
}

func readSetVar(r *Reader, header *Packet) ([]step, error) {
	steps, err := readNamed(r, header)
	if err != nil {
		return nil, err
	}
	return append(steps, r.clauseStep(contextValue)), nil
}

func readCall(r *Reader, header *Packet) ([]step, error) {
	steps, err := readNamed(r, header)
	if err != nil {
		return nil, err
	}
	return append(steps, r.listStep(contextArguments)), nil
}

func readGetSlice(r *Reader, header *Packet) ([]step, error) {
	steps, err := readNamed(r, header)
	if err != nil {
		return nil, err
	}
	return append(steps, r.listStep(contextList)), nil
}

func readSetSlice(r *Reader, header *Packet) ([]step, error) {
	steps, err := readNamed(r, header)
	if err != nil {
		return nil, err
	}
	return append(steps, r.listStep(contextList), r.clauseStep(contextValue)), nil
}

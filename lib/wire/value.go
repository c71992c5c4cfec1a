// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"strings"
)

// NullString is the sentinel for an explicitly null remote string. The
// companion distinguishes a null string from an empty one; on the wire
// NullString has length 0 while "" has length 1 (its terminating NUL).
// Ordinary strings are truncated after their first NUL, so no other
// string value can collide with the sentinel.
const NullString = "\x00"

// LongDouble holds one x87 extended-precision value in its 16-byte
// in-memory layout: a 64-bit mantissa with explicit integer bit, then
// sign and 15-bit exponent, then padding.
type LongDouble [16]byte

// NewLongDouble converts f to extended precision. The conversion is
// exact.
func NewLongDouble(f float64) LongDouble {
	var x LongDouble
	sign := uint16(0)
	if math.Signbit(f) {
		sign = 0x8000
	}
	var exponent uint16
	var mantissa uint64
	switch {
	case f == 0:
	case math.IsInf(f, 0):
		exponent = 0x7fff
		mantissa = 1 << 63
	case math.IsNaN(f):
		exponent = 0x7fff
		mantissa = 0xc000000000000000
	default:
		frac, exp := math.Frexp(math.Abs(f))
		mantissa = uint64(math.Ldexp(frac, 64))
		exponent = uint16(exp - 1 + 16383)
	}
	binary.LittleEndian.PutUint64(x[0:8], mantissa)
	binary.LittleEndian.PutUint16(x[8:10], sign|exponent)
	return x
}

// Float64 converts x to the nearest float64.
func (x LongDouble) Float64() float64 {
	mantissa := binary.LittleEndian.Uint64(x[0:8])
	top := binary.LittleEndian.Uint16(x[8:10])
	negative := top&0x8000 != 0
	exponent := int(top & 0x7fff)
	var f float64
	switch {
	case exponent == 0x7fff && mantissa<<1 == 0:
		f = math.Inf(1)
	case exponent == 0x7fff:
		return math.NaN()
	case exponent == 0 && mantissa == 0:
		f = 0
	default:
		if exponent == 0 {
			exponent = 1
		}
		f = math.Ldexp(float64(mantissa), exponent-16383-63)
	}
	if negative {
		f = -f
	}
	return f
}

// String formats the value as its float64 approximation.
func (x LongDouble) String() string { return fmt.Sprint(x.Float64()) }

// Array is a numeric array of rank one or more. Shape is row-major
// (slowest-varying dimension first) and Data is the flat typed slice
// ([]float64, []int32, ...) holding product(Shape) elements. Type is
// the element tag; it may name a non-canonical tag of the same Go
// element type, such as TagLongLong for []int64.
//
// Rank-zero values travel as Go scalars instead of Arrays.
type Array struct {
	Type  Tag
	Shape []int
	Data  any
}

// NewArray builds an Array over data. With no shape the array is one
// dimensional. The element tag is the canonical tag of data's element
// type.
func NewArray(data any, shape ...int) (Array, error) {
	tag, count, _, ok := elementsToBytes(data)
	if !ok {
		return Array{}, &EncodeError{Value: data, Reason: "not a numeric slice"}
	}
	if len(shape) == 0 {
		shape = []int{count}
	}
	if product(shape) != count {
		return Array{}, &EncodeError{Value: data, Reason: fmt.Sprintf("shape %v does not hold %d elements", shape, count)}
	}
	return Array{Type: tag, Shape: append([]int(nil), shape...), Data: data}, nil
}

// MustArray is [NewArray] for literals in tests and examples. It
// panics on a shape mismatch.
func MustArray(data any, shape ...int) Array {
	a, err := NewArray(data, shape...)
	if err != nil {
		panic(err)
	}
	return a
}

// Len returns the number of elements.
func (a Array) Len() int { return product(a.Shape) }

// Rank returns the number of dimensions.
func (a Array) Rank() int { return len(a.Shape) }

// At returns the element at a row-major multi-index.
func (a Array) At(index ...int) (any, error) {
	if len(index) != len(a.Shape) {
		return nil, fmt.Errorf("index rank %d does not match array rank %d", len(index), len(a.Shape))
	}
	offset := 0
	for i, n := range a.Shape {
		if index[i] < 0 || index[i] >= n {
			return nil, fmt.Errorf("index %d out of range for dimension %d of length %d", index[i], i, n)
		}
		offset = offset*n + index[i]
	}
	return reflect.ValueOf(a.Data).Index(offset).Interface(), nil
}

// Equal reports whether two arrays have the same type, shape, and
// elements.
func (a Array) Equal(b Array) bool {
	return a.Type == b.Type && reflect.DeepEqual(a.Shape, b.Shape) && reflect.DeepEqual(a.Data, b.Data)
}

func (a Array) String() string {
	return fmt.Sprintf("%s%v%v", a.Type, a.Shape, a.Data)
}

func product(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Range is an index range in the remote language's sense. Omitted
// bounds are carried as flags rather than values. Construct ranges with
// [Span], [From], [To], or [All] so the step follows the default rule.
type Range struct {
	Start, Stop, Step   int64
	OmitStart, OmitStop bool
}

// Span returns the range start:stop with a step of +1, or -1 when
// start is greater than stop.
func Span(start, stop int64) Range {
	return Range{Start: start, Stop: stop, Step: defaultStep(start, stop, false, false)}
}

// SpanStep returns the range start:stop:step.
func SpanStep(start, stop, step int64) Range {
	return Range{Start: start, Stop: stop, Step: step}
}

// From returns the range start: with an omitted stop.
func From(start int64) Range { return Range{Start: start, OmitStop: true, Step: 1} }

// To returns the range :stop with an omitted start.
func To(stop int64) Range { return Range{Stop: stop, OmitStart: true, Step: 1} }

// All returns the range : selecting a whole dimension.
func All() Range { return Range{OmitStart: true, OmitStop: true, Step: 1} }

// defaultStep is the step used when none is given: +1 unless both
// bounds are present and start exceeds stop.
func defaultStep(start, stop int64, omitStart, omitStop bool) int64 {
	if omitStart || omitStop || start <= stop {
		return 1
	}
	return -1
}

// StepOrDefault returns the step, or the default step when Step is
// zero.
func (r Range) StepOrDefault() int64 {
	if r.Step != 0 {
		return r.Step
	}
	return defaultStep(r.Start, r.Stop, r.OmitStart, r.OmitStop)
}

// flags returns the wire flag word for the range.
func (r Range) flags() int64 {
	var flags int64
	if r.OmitStart {
		flags |= SliceDefaultStart
	}
	if r.OmitStop {
		flags |= SliceDefaultStop
	}
	return flags
}

func (r Range) String() string {
	var b strings.Builder
	if !r.OmitStart {
		fmt.Fprint(&b, r.Start)
	}
	b.WriteByte(':')
	if !r.OmitStop {
		fmt.Fprint(&b, r.Stop)
	}
	if r.Step != 1 {
		fmt.Fprintf(&b, ":%d", r.Step)
	}
	return b.String()
}

// Marker is an index sentinel with no range payload.
type Marker int

const (
	// NewAxis inserts a dimension of length one (the remote "-").
	NewAxis Marker = iota + 1
	// Ellipsis stands for as many full dimensions as needed (the
	// remote "..").
	Ellipsis
)

func (m Marker) String() string {
	switch m {
	case NewAxis:
		return "newaxis"
	case Ellipsis:
		return "ellipsis"
	}
	return fmt.Sprintf("marker(%d)", int(m))
}

// Referencer is implemented by host values that stand for a remote
// variable. Encoding one produces a get-variable clause, so the remote
// side substitutes the variable's current value in place.
type Referencer interface {
	RemoteName() string
}

// Var names a remote variable. Nested get-variable clauses decode as
// Var.
type Var string

// RemoteName returns the variable name.
func (v Var) RemoteName() string { return string(v) }

// Instruction is the decoded form of an active message or of an EOL
// marker. Name is the text of EVAL and EXEC and the variable or function
// name of the others. Args holds positional arguments (or slice indices)
// and Keywords the keyword arguments of a call. Value is the right-hand
// side of SETVAR and SETSLICE. Flag is the EOL flag.
type Instruction struct {
	Tag      Tag
	Name     string
	Args     []any
	Keywords map[string]any
	Value    any
	Flag     int64
}

func (i Instruction) String() string {
	if i.Tag == TagEOL {
		return fmt.Sprintf("eol(%d)", i.Flag)
	}
	return fmt.Sprintf("%s(%q, args=%d, keywords=%d)", i.Tag, i.Name, len(i.Args), len(i.Keywords))
}

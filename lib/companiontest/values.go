// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package companiontest

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/bureau-foundation/gorick/lib/wire"
)

// Values the interpreter holds but the wire cannot carry. Encoding one
// fails, so a reply containing it becomes EOL(2).
type (
	// textFile and binaryFile are what open and openb return.
	textFile   struct{ name string }
	binaryFile struct{ name string }
	// object is an opaque companion object of no wire type.
	object struct{ class string }
)

// numeric is the arithmetic view of a number or numeric array. Exactly
// one of ints and reals is populated.
type numeric struct {
	shape []int
	ints  []int64
	reals []float64
	real  bool
}

func (n numeric) len() int {
	if n.real {
		return len(n.reals)
	}
	return len(n.ints)
}

func (n numeric) float(i int) float64 {
	if n.real {
		return n.reals[i]
	}
	return float64(n.ints[i])
}

// toNumeric converts Go numeric scalars and numeric Arrays. Complex
// and long double values are not supported by the arithmetic.
func toNumeric(v any) (numeric, bool) {
	var shape []int
	var data reflect.Value
	switch x := v.(type) {
	case wire.Array:
		shape = x.Shape
		data = reflect.ValueOf(x.Data)
	default:
		rv := reflect.ValueOf(v)
		if !rv.IsValid() {
			return numeric{}, false
		}
		data = reflect.Append(reflect.MakeSlice(reflect.SliceOf(rv.Type()), 0, 1), rv)
	}
	out := numeric{shape: shape}
	switch data.Type().Elem().Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		out.ints = make([]int64, data.Len())
		for i := range out.ints {
			out.ints[i] = data.Index(i).Int()
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		out.ints = make([]int64, data.Len())
		for i := range out.ints {
			out.ints[i] = int64(data.Index(i).Uint())
		}
	case reflect.Float32, reflect.Float64:
		out.real = true
		out.reals = make([]float64, data.Len())
		for i := range out.reals {
			out.reals[i] = data.Index(i).Float()
		}
	default:
		return numeric{}, false
	}
	return out, true
}

// value converts back: a Go scalar for rank zero, otherwise a long or
// double Array.
func (n numeric) value() any {
	if len(n.shape) == 0 {
		if n.real {
			return n.reals[0]
		}
		return n.ints[0]
	}
	if n.real {
		return wire.MustArray(n.reals, n.shape...)
	}
	return wire.MustArray(n.ints, n.shape...)
}

func (n numeric) promote() numeric {
	if n.real {
		return n
	}
	reals := make([]float64, len(n.ints))
	for i, x := range n.ints {
		reals[i] = float64(x)
	}
	return numeric{shape: n.shape, reals: reals, real: true}
}

func integerValue(v any) (int64, error) {
	n, ok := toNumeric(v)
	if !ok || len(n.shape) != 0 {
		return 0, fmt.Errorf("expecting an integer scalar, got %s", typeName(v))
	}
	if n.real {
		if n.reals[0] != math.Trunc(n.reals[0]) {
			return 0, fmt.Errorf("expecting an integer, got %v", n.reals[0])
		}
		return int64(n.reals[0]), nil
	}
	return n.ints[0], nil
}

// binary applies an arithmetic or comparison operator with scalar
// broadcasting. Strings support concatenation and equality.
func binary(op string, a, b any) (any, error) {
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			switch op {
			case "+":
				return sa + sb, nil
			case "==":
				return boolean(sa == sb), nil
			case "!=":
				return boolean(sa != sb), nil
			}
		}
	}
	x, okx := toNumeric(a)
	y, oky := toNumeric(b)
	if !okx || !oky {
		return nil, fmt.Errorf("operator %s: unsupported operands %s and %s", op, typeName(a), typeName(b))
	}
	shape := x.shape
	switch {
	case len(x.shape) == 0:
		shape = y.shape
	case len(y.shape) == 0:
	case !equalShape(x.shape, y.shape):
		return nil, fmt.Errorf("operator %s: non-conformable dimensions %v and %v", op, x.shape, y.shape)
	}
	count := max(x.len(), y.len())
	at := func(n numeric, i int) int {
		if n.len() == 1 {
			return 0
		}
		return i
	}

	switch op {
	case "==", "!=", "<", ">", "<=", ">=":
		out := numeric{shape: shape, ints: make([]int64, count)}
		for i := range count {
			out.ints[i] = boolean(compare(op, x.float(at(x, i)), y.float(at(y, i))))
		}
		return out.value(), nil
	}

	if x.real || y.real || (op == "^" && hasNegative(y)) {
		x, y = x.promote(), y.promote()
		out := numeric{shape: shape, reals: make([]float64, count), real: true}
		for i := range count {
			p, q := x.reals[at(x, i)], y.reals[at(y, i)]
			switch op {
			case "+":
				out.reals[i] = p + q
			case "-":
				out.reals[i] = p - q
			case "*":
				out.reals[i] = p * q
			case "/":
				out.reals[i] = p / q
			case "%":
				out.reals[i] = math.Mod(p, q)
			case "^":
				out.reals[i] = math.Pow(p, q)
			default:
				return nil, fmt.Errorf("unknown operator %s", op)
			}
		}
		return out.value(), nil
	}
	out := numeric{shape: shape, ints: make([]int64, count)}
	for i := range count {
		p, q := x.ints[at(x, i)], y.ints[at(y, i)]
		switch op {
		case "+":
			out.ints[i] = p + q
		case "-":
			out.ints[i] = p - q
		case "*":
			out.ints[i] = p * q
		case "/", "%":
			if q == 0 {
				return nil, fmt.Errorf("integer division by zero")
			}
			if op == "/" {
				out.ints[i] = p / q
			} else {
				out.ints[i] = p % q
			}
		case "^":
			power := int64(1)
			for range q {
				power *= p
			}
			out.ints[i] = power
		default:
			return nil, fmt.Errorf("unknown operator %s", op)
		}
	}
	return out.value(), nil
}

func negate(v any) (any, error) {
	n, ok := toNumeric(v)
	if !ok {
		return nil, fmt.Errorf("unary minus: unsupported operand %s", typeName(v))
	}
	for i := range n.ints {
		n.ints[i] = -n.ints[i]
	}
	for i := range n.reals {
		n.reals[i] = -n.reals[i]
	}
	return n.value(), nil
}

func compare(op string, p, q float64) bool {
	switch op {
	case "==":
		return p == q
	case "!=":
		return p != q
	case "<":
		return p < q
	case ">":
		return p > q
	case "<=":
		return p <= q
	}
	return p >= q
}

func hasNegative(n numeric) bool {
	for _, x := range n.ints {
		if x < 0 {
			return true
		}
	}
	return false
}

func boolean(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func equalShape(a, b []int) bool {
	return reflect.DeepEqual(a, b)
}

// typeName is what typeof returns.
func typeName(v any) string {
	switch x := v.(type) {
	case nil:
		return "void"
	case string, []string, [][]string:
		return "string"
	case *builtin:
		return "builtin"
	case []any:
		return "list"
	case map[string]any:
		return "oxy"
	case wire.Range:
		return "range"
	case textFile:
		return "text_stream"
	case binaryFile:
		return "stream"
	case object:
		return x.class
	case wire.Array:
		return elementName(x.Type)
	}
	if tag, ok := scalarTag(v); ok {
		return elementName(tag)
	}
	return fmt.Sprintf("%T", v)
}

func elementName(tag wire.Tag) string {
	switch tag {
	case wire.TagChar, wire.TagUChar:
		return "char"
	case wire.TagShort, wire.TagUShort:
		return "short"
	case wire.TagInt, wire.TagUInt:
		return "int"
	case wire.TagLong, wire.TagLongLong, wire.TagULong, wire.TagULongLong:
		return "long"
	case wire.TagFloat:
		return "float"
	case wire.TagDouble, wire.TagLongDouble:
		return "double"
	}
	return "complex"
}

// scalarTag returns the canonical element tag of a Go numeric scalar.
func scalarTag(v any) (wire.Tag, bool) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return 0, false
	}
	a, err := wire.NewArray(reflect.Append(reflect.MakeSlice(reflect.SliceOf(rv.Type()), 0, 1), rv).Interface())
	if err != nil {
		return 0, false
	}
	return a.Type, true
}

// format renders a value the way the interpreter prints it.
func format(v any) string {
	switch x := v.(type) {
	case nil:
		return "[]"
	case string:
		return strconv.Quote(x)
	case wire.Array:
		data := reflect.ValueOf(x.Data)
		var b strings.Builder
		var emit func(dim, offset int) int
		emit = func(dim, offset int) int {
			b.WriteByte('[')
			for i := range x.Shape[dim] {
				if i > 0 {
					b.WriteByte(',')
				}
				if dim == len(x.Shape)-1 {
					fmt.Fprint(&b, data.Index(offset).Interface())
					offset++
				} else {
					offset = emit(dim+1, offset)
				}
			}
			b.WriteByte(']')
			return offset
		}
		emit(0, 0)
		return b.String()
	case []string:
		quoted := make([]string, len(x))
		for i, s := range x {
			quoted[i] = strconv.Quote(s)
		}
		return "[" + strings.Join(quoted, ",") + "]"
	case []any:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = format(item)
		}
		return "_lst(" + strings.Join(parts, ",") + ")"
	case *builtin:
		return "builtin " + x.name + "()"
	case textFile:
		return "text stream " + x.name
	case binaryFile:
		return "binary stream " + x.name
	case object:
		return "object " + x.class
	}
	return fmt.Sprint(v)
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package companiontest

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/bureau-foundation/gorick/lib/wire"
)

// builtin is a companion function. sub is set when it is invoked as a
// subroutine ("f, a, b") rather than for its value ("f(a, b)").
type builtin struct {
	name string
	fn   func(in *Interpreter, args []any, keywords map[string]any, sub bool) (any, error)
}

func (b *builtin) call(in *Interpreter, args []any, keywords map[string]any, sub bool) (any, error) {
	value, err := b.fn(in, args, keywords, sub)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.name, err)
	}
	return value, nil
}

func builtins() map[string]*builtin {
	table := map[string]func(*Interpreter, []any, map[string]any, bool) (any, error){
		"indgen":        builtinIndgen,
		"array":         builtinArray,
		"numberof":      builtinNumberof,
		"dimsof":        builtinDimsof,
		"sum":           builtinSum,
		"typeof":        builtinTypeof,
		"print":         builtinPrint,
		"error":         builtinError,
		"_lst":          builtinList,
		"save":          builtinSave,
		"range":         builtinRange,
		"open":          builtinOpen,
		"openb":         builtinOpenb,
		"object":        builtinObject,
		"py":            builtinPy,
		"pyorick":       builtinPyorick,
		"quit":          builtinQuit,
		"_pyorick_refs": builtinRefs,
	}
	out := make(map[string]*builtin, len(table))
	for name, fn := range table {
		out[name] = &builtin{name: name, fn: fn}
	}
	return out
}

func arity(args []any, low, high int) error {
	if len(args) < low || (high >= 0 && len(args) > high) {
		return fmt.Errorf("wrong number of arguments (%d)", len(args))
	}
	return nil
}

func builtinIndgen(_ *Interpreter, args []any, _ map[string]any, _ bool) (any, error) {
	if err := arity(args, 1, 1); err != nil {
		return nil, err
	}
	n, err := integerValue(args[0])
	if err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, fmt.Errorf("length %d", n)
	}
	data := make([]int64, n)
	for i := range data {
		data[i] = int64(i + 1)
	}
	return wire.MustArray(data), nil
}

// builtinArray is array(value, d1, d2, ...) with dimensions fastest
// first.
func builtinArray(_ *Interpreter, args []any, _ map[string]any, _ bool) (any, error) {
	if err := arity(args, 2, -1); err != nil {
		return nil, err
	}
	shape := make([]int, len(args)-1)
	count := 1
	for i, arg := range args[1:] {
		d, err := integerValue(arg)
		if err != nil {
			return nil, err
		}
		if d < 1 {
			return nil, fmt.Errorf("dimension %d", d)
		}
		shape[len(shape)-1-i] = int(d)
		count *= int(d)
	}
	if s, ok := args[0].(string); ok {
		if len(shape) != 1 {
			return nil, errors.New("string arrays must be one dimensional")
		}
		out := make([]string, count)
		for i := range out {
			out[i] = s
		}
		return out, nil
	}
	n, ok := toNumeric(args[0])
	if !ok || len(n.shape) != 0 {
		return nil, fmt.Errorf("fill value must be a number or string, got %s", typeName(args[0]))
	}
	out := numeric{shape: shape, real: n.real}
	if n.real {
		out.reals = make([]float64, count)
		for i := range out.reals {
			out.reals[i] = n.reals[0]
		}
	} else {
		out.ints = make([]int64, count)
		for i := range out.ints {
			out.ints[i] = n.ints[0]
		}
	}
	return out.value(), nil
}

func builtinNumberof(_ *Interpreter, args []any, _ map[string]any, _ bool) (any, error) {
	if err := arity(args, 1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case nil:
		return int64(0), nil
	case wire.Array:
		return int64(x.Len()), nil
	}
	if rv := reflect.ValueOf(args[0]); rv.Kind() == reflect.Slice || rv.Kind() == reflect.Map {
		return int64(rv.Len()), nil
	}
	return int64(1), nil
}

// builtinDimsof returns [rank, dims fastest first].
func builtinDimsof(_ *Interpreter, args []any, _ map[string]any, _ bool) (any, error) {
	if err := arity(args, 1, 1); err != nil {
		return nil, err
	}
	shape := Shape(args[0])
	if shape[0] < 0 {
		return nil, fmt.Errorf("%s has no dimensions", typeName(args[0]))
	}
	return wire.MustArray(shape[1:]), nil
}

func builtinSum(_ *Interpreter, args []any, _ map[string]any, _ bool) (any, error) {
	if err := arity(args, 1, 1); err != nil {
		return nil, err
	}
	n, ok := toNumeric(args[0])
	if !ok {
		return nil, fmt.Errorf("cannot sum a %s", typeName(args[0]))
	}
	if n.real {
		total := 0.0
		for _, x := range n.reals {
			total += x
		}
		return total, nil
	}
	var total int64
	for _, x := range n.ints {
		total += x
	}
	return total, nil
}

func builtinTypeof(_ *Interpreter, args []any, _ map[string]any, _ bool) (any, error) {
	if err := arity(args, 1, 1); err != nil {
		return nil, err
	}
	return typeName(args[0]), nil
}

func builtinPrint(in *Interpreter, args []any, _ map[string]any, _ bool) (any, error) {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = format(arg)
	}
	in.printf("%s\n", strings.Join(parts, " "))
	return nil, nil
}

func builtinError(_ *Interpreter, args []any, _ map[string]any, _ bool) (any, error) {
	message := "error called"
	if len(args) > 0 {
		if s, ok := args[0].(string); ok {
			message = s
		} else {
			message = format(args[0])
		}
	}
	return nil, errors.New(message)
}

func builtinList(_ *Interpreter, args []any, _ map[string]any, _ bool) (any, error) {
	return append([]any{}, args...), nil
}

func builtinSave(_ *Interpreter, args []any, keywords map[string]any, _ bool) (any, error) {
	if len(args) > 0 {
		return nil, errors.New("members must be given as keywords")
	}
	out := make(map[string]any, len(keywords))
	for k, v := range keywords {
		out[k] = v
	}
	return out, nil
}

func builtinRange(_ *Interpreter, args []any, _ map[string]any, _ bool) (any, error) {
	if err := arity(args, 2, 3); err != nil {
		return nil, err
	}
	bounds := make([]int64, len(args))
	for i, arg := range args {
		n, err := integerValue(arg)
		if err != nil {
			return nil, err
		}
		bounds[i] = n
	}
	if len(bounds) == 3 {
		return wire.SpanStep(bounds[0], bounds[1], bounds[2]), nil
	}
	return wire.Span(bounds[0], bounds[1]), nil
}

func fileName(args []any) (string, error) {
	if err := arity(args, 1, 2); err != nil {
		return "", err
	}
	name, ok := args[0].(string)
	if !ok {
		return "", fmt.Errorf("file name must be a string, got %s", typeName(args[0]))
	}
	return name, nil
}

func builtinOpen(_ *Interpreter, args []any, _ map[string]any, _ bool) (any, error) {
	name, err := fileName(args)
	if err != nil {
		return nil, err
	}
	return textFile{name: name}, nil
}

func builtinOpenb(_ *Interpreter, args []any, _ map[string]any, _ bool) (any, error) {
	name, err := fileName(args)
	if err != nil {
		return nil, err
	}
	return binaryFile{name: name}, nil
}

func builtinObject(_ *Interpreter, args []any, _ map[string]any, _ bool) (any, error) {
	class := "closure"
	if len(args) > 0 {
		if s, ok := args[0].(string); ok {
			class = s
		}
	}
	return object{class: class}, nil
}

// builtinPy calls back into the host. "py, code" executes, py(expr)
// evaluates, and py("f", args...) or py("f", key=v) calls f.
func builtinPy(in *Interpreter, args []any, keywords map[string]any, sub bool) (any, error) {
	if in.host == nil {
		return nil, errNoHost
	}
	if err := arity(args, 1, -1); err != nil {
		return nil, err
	}
	text, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("expecting a string, got %s", typeName(args[0]))
	}
	var request wire.Instruction
	switch {
	case len(args) > 1 || len(keywords) > 0:
		var kw map[string]any
		if len(keywords) > 0 {
			kw = keywords
		}
		if sub {
			request = wire.SubCall(text, args[1:], kw)
		} else {
			request = wire.FunCall(text, args[1:], kw)
		}
	case sub:
		request = wire.Exec(text)
	default:
		request = wire.Eval(text)
	}
	message, err := in.codec.Encode(request)
	if err != nil {
		return nil, err
	}
	reply, err := in.host(message)
	if err != nil {
		return nil, err
	}
	value, err := in.codec.Decode(reply)
	if err != nil {
		return nil, err
	}
	if instruction, ok := value.(wire.Instruction); ok {
		if instruction.Tag == wire.TagEOL && instruction.Flag == wire.EOLError {
			return nil, fmt.Errorf("host reported an error for %q", text)
		}
		return nil, fmt.Errorf("unexpected host reply %s", instruction)
	}
	return value, nil
}

func builtinPyorick(in *Interpreter, args []any, _ map[string]any, _ bool) (any, error) {
	if in.control == nil {
		return nil, errors.New("not connected to a host")
	}
	if err := arity(args, 0, 1); err != nil {
		return nil, err
	}
	var mode int64
	if len(args) == 1 {
		n, err := integerValue(args[0])
		if err != nil {
			return nil, err
		}
		mode = n
	}
	return nil, in.control(mode)
}

func builtinQuit(in *Interpreter, _ []any, _ map[string]any, _ bool) (any, error) {
	if !in.ignoreQuit {
		in.quitting = true
	}
	return nil, nil
}

// builtinRefs is "_pyorick_refs, 1, id" to release a hold and
// _pyorick_refs(0, id) to read its reference count.
func builtinRefs(in *Interpreter, args []any, _ map[string]any, _ bool) (any, error) {
	if err := arity(args, 2, 2); err != nil {
		return nil, err
	}
	op, err := integerValue(args[0])
	if err != nil {
		return nil, err
	}
	id, err := integerValue(args[1])
	if err != nil {
		return nil, err
	}
	switch op {
	case 0:
		return int64(in.References(id)), nil
	case 1:
		return nil, in.release(id)
	}
	return nil, fmt.Errorf("unknown operation %d", op)
}

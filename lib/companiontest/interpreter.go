// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package companiontest

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/bureau-foundation/gorick/lib/wire"
)

// HoldPrefix marks a request name whose result is kept in a hold slot
// and answered with the slot id.
const HoldPrefix = "\x05"

// FirstSlot is the id of the first hold slot. Ids 1 to 3 are never
// issued.
const FirstSlot = 4

// Host delivers a request to the host while the interpreter is
// serving one, or from terminal mode, and returns the host's reply.
type Host func(request *wire.Message) (*wire.Message, error)

// errNoHost is returned by py when no host is reachable.
var errNoHost = errors.New("py: no host connection")

type slot struct {
	value any
	refs  int
}

// Interpreter is the companion's evaluator. It is not safe for
// concurrent use; the protocol serves one request at a time.
type Interpreter struct {
	codec     *wire.Codec
	output    io.Writer
	logger    *slog.Logger
	variables map[string]any
	builtins  map[string]*builtin
	slots     map[int64]*slot
	nextSlot  int64

	// parked is the last unrepresentable result, waiting for GETVAR "".
	parked    any
	hasParked bool

	host       Host
	quitting   bool
	ignoreQuit bool
	// control runs the pyorick builtin; Main installs it.
	control func(mode int64) error
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the logger for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(in *Interpreter) { in.logger = logger }
}

// NewInterpreter returns an interpreter printing to output.
func NewInterpreter(output io.Writer, options ...Option) *Interpreter {
	in := &Interpreter{
		codec:     wire.NewCodec(wire.Options{}),
		output:    output,
		logger:    slog.New(slog.DiscardHandler),
		variables: make(map[string]any),
		slots:     make(map[int64]*slot),
		nextSlot:  FirstSlot,
	}
	in.builtins = builtins()
	for _, option := range options {
		option(in)
	}
	return in
}

// Define sets a variable.
func (in *Interpreter) Define(name string, value any) { in.variables[name] = value }

// Lookup returns a variable's value, or nil when it is undefined.
func (in *Interpreter) Lookup(name string) any { return in.variables[name] }

// Holds returns the ids of the live hold slots, ascending.
func (in *Interpreter) Holds() []int64 {
	ids := make([]int64, 0, len(in.slots))
	for id := range in.slots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// References returns the reference count of hold slot id, or 0 when
// the slot does not exist.
func (in *Interpreter) References(id int64) int {
	if s, ok := in.slots[id]; ok {
		return s.refs
	}
	return 0
}

// Quitting reports whether quit has run.
func (in *Interpreter) Quitting() bool { return in.quitting }

func (in *Interpreter) printf(format string, args ...any) {
	fmt.Fprintf(in.output, format, args...)
}

// Run executes code, statement by statement, printing the value of
// bare expressions. The first error is printed and returned; the
// statements after it do not run.
func (in *Interpreter) Run(code string, host Host) error {
	previous := in.host
	in.host = host
	defer func() { in.host = previous }()
	if err := in.run(code); err != nil {
		in.printf("ERROR (*main*) %v\n", err)
		return err
	}
	return nil
}

func (in *Interpreter) run(code string) error {
	tokens, err := lex(code)
	if err != nil {
		return err
	}
	for _, statement := range splitStatements(tokens) {
		if err := in.statement(statement); err != nil {
			return err
		}
		if in.quitting {
			return nil
		}
	}
	return nil
}

// Handle serves one request and returns the reply. While it runs, py
// callbacks reach the host through host.
func (in *Interpreter) Handle(request *wire.Message, host Host) *wire.Message {
	previous := in.host
	in.host = host
	defer func() { in.host = previous }()

	reply, err := in.handle(request)
	switch {
	case in.quitting:
		return in.encode(wire.EOL(wire.EOLExiting))
	case err != nil:
		in.logger.Debug("request failed", "request", request.Tag(), "error", err)
		in.printf("ERROR (*main*) %v\n", err)
		return in.encode(wire.EOL(wire.EOLError))
	}
	return reply
}

func (in *Interpreter) handle(request *wire.Message) (*wire.Message, error) {
	decoded, err := in.codec.Decode(request)
	if err != nil {
		return nil, err
	}
	instruction, ok := decoded.(wire.Instruction)
	if !ok || instruction.Tag == wire.TagEOL {
		return nil, fmt.Errorf("expecting a request, got %s", request.Tag())
	}
	name, hold := strings.CutPrefix(instruction.Name, HoldPrefix)
	in.logger.Debug("request", "tag", instruction.Tag, "name", name, "hold", hold)

	var result any
	switch instruction.Tag {
	case wire.TagExec:
		if err := in.run(name); err != nil {
			return nil, err
		}
		return in.encode(nil), nil
	case wire.TagEval:
		if hold {
			if id, ok := in.slotID(name); ok {
				in.slots[id].refs++
				return in.encode(id), nil
			}
		}
		result, err = in.evaluate(name)
	case wire.TagGetVar:
		if name == "" {
			return in.park()
		}
		result, err = in.resolve(name)
	case wire.TagSetVar:
		return in.encode(nil), in.assign(name, instruction.Value)
	case wire.TagFunCall, wire.TagSubCall:
		var target any
		if target, err = in.resolve(name); err != nil {
			return nil, err
		}
		sub := instruction.Tag == wire.TagSubCall
		result, err = in.apply(target, instruction.Args, instruction.Keywords, sub)
		if sub && err == nil {
			return in.encode(nil), nil
		}
	case wire.TagGetSlice:
		var target any
		if target, err = in.resolve(name); err != nil {
			return nil, err
		}
		result, err = selectValue(target, instruction.Args)
	case wire.TagSetSlice:
		var target any
		if target, err = in.resolve(name); err != nil {
			return nil, err
		}
		if _, err := storeValue(target, instruction.Args, instruction.Value); err != nil {
			return nil, err
		}
		return in.encode(nil), nil
	case wire.TagGetShape:
		var target any
		if target, err = in.resolve(name); err != nil {
			return nil, err
		}
		return in.encode(Shape(target)), nil
	default:
		return nil, fmt.Errorf("unsupported request %s", instruction.Tag)
	}
	if err != nil {
		return nil, err
	}
	if hold {
		return in.encode(in.newSlot(result)), nil
	}
	reply, err := in.codec.Encode(result)
	if err != nil {
		in.parked, in.hasParked = result, true
		return in.encode(wire.EOL(wire.EOLUnrepresentable)), nil
	}
	return reply, nil
}

// encode encodes values the interpreter constructs itself, which are
// always representable.
func (in *Interpreter) encode(value any) *wire.Message {
	message, err := in.codec.Encode(value)
	if err != nil {
		panic(fmt.Sprintf("companiontest: encode %T: %v", value, err))
	}
	return message
}

// park moves the last unrepresentable result into a new hold slot.
func (in *Interpreter) park() (*wire.Message, error) {
	if !in.hasParked {
		return nil, errors.New("no unrepresentable result to hold")
	}
	value := in.parked
	in.parked, in.hasParked = nil, false
	return in.encode(in.newSlot(value)), nil
}

func (in *Interpreter) newSlot(value any) int64 {
	id := in.nextSlot
	in.nextSlot++
	in.slots[id] = &slot{value: value, refs: 1}
	return id
}

func (in *Interpreter) release(id int64) error {
	s, ok := in.slots[id]
	if !ok {
		return fmt.Errorf("no hold slot %d", id)
	}
	s.refs--
	if s.refs <= 0 {
		delete(in.slots, id)
	}
	return nil
}

// slotID parses a hold slot name: a decimal id naming a live slot.
func (in *Interpreter) slotID(name string) (int64, bool) {
	id, err := strconv.ParseInt(name, 10, 64)
	if err != nil {
		return 0, false
	}
	_, ok := in.slots[id]
	return id, ok
}

// resolve looks up a request name: a hold slot id, a variable, or a
// builtin. Undefined variables are nil.
func (in *Interpreter) resolve(name string) (any, error) {
	if name != "" && isDigit(name[0]) {
		id, ok := in.slotID(name)
		if !ok {
			return nil, fmt.Errorf("no hold slot %s", name)
		}
		return in.slots[id].value, nil
	}
	if value, ok := in.variables[name]; ok {
		return value, nil
	}
	if b, ok := in.builtins[name]; ok {
		return b, nil
	}
	return nil, nil
}

func (in *Interpreter) assign(name string, value any) error {
	if !validName(name) {
		return fmt.Errorf("cannot assign to %q", name)
	}
	in.variables[name] = value
	return nil
}

func validName(name string) bool {
	if name == "" || !isNameStart(name[0]) {
		return false
	}
	for i := 1; i < len(name); i++ {
		if !isNameStart(name[i]) && !isDigit(name[i]) {
			return false
		}
	}
	return true
}

// apply calls a builtin, or indexes a value the way a call on it does.
func (in *Interpreter) apply(target any, args []any, keywords map[string]any, sub bool) (any, error) {
	if b, ok := target.(*builtin); ok {
		return b.call(in, args, keywords, sub)
	}
	if len(keywords) > 0 {
		return nil, fmt.Errorf("keywords given when indexing a %s", typeName(target))
	}
	return selectValue(target, args)
}

// evaluate runs a single expression.
func (in *Interpreter) evaluate(expression string) (any, error) {
	tokens, err := lex(expression)
	if err != nil {
		return nil, err
	}
	p := &parser{in: in, tokens: tokens}
	value, err := p.expression()
	if err != nil {
		return nil, err
	}
	if err := p.end(); err != nil {
		return nil, err
	}
	return value, nil
}

// Shape returns the GETSHAPE answer for a value: element tag, rank,
// and dimensions fastest first for arrays and strings, or a single
// negative type code for everything else.
func Shape(value any) []int64 {
	dims := func(tag wire.Tag, shape []int) []int64 {
		out := []int64{int64(tag), int64(len(shape))}
		for i := len(shape) - 1; i >= 0; i-- {
			out = append(out, int64(shape[i]))
		}
		return out
	}
	switch x := value.(type) {
	case wire.Array:
		return dims(x.Type, x.Shape)
	case string:
		return dims(wire.TagString, nil)
	case []string:
		return dims(wire.TagString, []int{len(x)})
	case [][]string:
		inner := 0
		if len(x) > 0 {
			inner = len(x[0])
		}
		return dims(wire.TagString, []int{len(x), inner})
	case *builtin:
		return []int64{-1}
	case []any:
		return []int64{-2}
	case map[string]any:
		return []int64{-3}
	case wire.Range:
		return []int64{-4}
	case nil:
		return []int64{-5}
	case binaryFile:
		return []int64{-6}
	case textFile:
		return []int64{-7}
	}
	if tag, ok := scalarTag(value); ok {
		return dims(tag, nil)
	}
	return []int64{-8}
}

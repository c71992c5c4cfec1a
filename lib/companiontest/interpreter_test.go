// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package companiontest

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/bureau-foundation/gorick/lib/wire"
)

var testCodec = wire.NewCodec(wire.Options{})

// request sends value to in and decodes the reply.
func request(t *testing.T, in *Interpreter, value any, host Host) any {
	t.Helper()
	message, err := testCodec.Encode(value)
	if err != nil {
		t.Fatalf("Encode(%v): %v", value, err)
	}
	reply := in.Handle(message, host)
	decoded, err := testCodec.Decode(reply)
	if err != nil {
		t.Fatalf("Decode reply to %v: %v", value, err)
	}
	return decoded
}

func isEOL(value any, flag int64) bool {
	instruction, ok := value.(wire.Instruction)
	return ok && instruction.Tag == wire.TagEOL && instruction.Flag == flag
}

func TestInterpreterRequests(t *testing.T) {
	var output bytes.Buffer
	in := NewInterpreter(&output)
	if got := request(t, in, wire.Exec("x = 3; y = [1.5, 2.5]; s = \"hi\""), nil); got != nil {
		t.Fatalf("EXEC reply = %v, want nil", got)
	}

	tests := []struct {
		name    string
		request wire.Instruction
		want    any
	}{
		{"eval arithmetic", wire.Eval("x * 2 + 1"), int64(7)},
		{"eval integer division", wire.Eval("7 / 2"), int64(3)},
		{"eval real", wire.Eval("x / 2.0"), 1.5},
		{"eval power", wire.Eval("2 ^ 10"), int64(1024)},
		{"eval comparison", wire.Eval("x >= 3"), int64(1)},
		{"eval array", wire.Eval("y + 1"), wire.MustArray([]float64{2.5, 3.5})},
		{"eval concatenation", wire.Eval("s + \"!\""), "hi!"},
		{"getvar", wire.GetVar("x"), int64(3)},
		{"getvar undefined", wire.GetVar("nothing"), nil},
		{"funcall", wire.FunCall("indgen", []any{3}, nil), wire.MustArray([]int64{1, 2, 3})},
		{"funcall keywords", wire.FunCall("save", nil, map[string]any{"a": int64(1)}), map[string]any{"a": int64(1)}},
		{"funcall on array indexes", wire.FunCall("y", []any{2}, nil), 2.5},
		{"subcall", wire.SubCall("print", []any{"hello"}, nil), nil},
		{"getslice", wire.GetSlice("y", 0), 2.5},
		{"getshape scalar", wire.GetShape("x"), wire.MustArray([]int64{int64(wire.TagLong), 0})},
		{"getshape array", wire.GetShape("y"), wire.MustArray([]int64{int64(wire.TagDouble), 1, 2})},
		{"getshape function", wire.GetShape("sum"), wire.MustArray([]int64{-1})},
		{"getshape nil", wire.GetShape("nothing"), wire.MustArray([]int64{-5})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := request(t, in, tt.request, nil)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("reply = %#v, want %#v", got, tt.want)
			}
		})
	}
	if !strings.Contains(output.String(), `"hello"`) {
		t.Errorf("print output missing from %q", output.String())
	}
}

func TestInterpreterSetters(t *testing.T) {
	in := NewInterpreter(&bytes.Buffer{})
	if got := request(t, in, wire.SetVar("a", wire.MustArray([]int64{1, 2, 3, 4, 5, 6}, 2, 3)), nil); got != nil {
		t.Fatalf("SETVAR reply = %v", got)
	}
	// Companion order: a(3, 1) is the third element of the first row.
	if got := request(t, in, wire.SetSlice("a", int64(30), int64(3), int64(1)), nil); got != nil {
		t.Fatalf("SETSLICE reply = %v", got)
	}
	want := wire.MustArray([]int64{1, 2, 30, 4, 5, 6}, 2, 3)
	if got := in.Lookup("a"); !reflect.DeepEqual(got, want) {
		t.Errorf("after SETSLICE a = %v, want %v", got, want)
	}
	if got := request(t, in, wire.SetVar("2bad", 1), nil); !isEOL(got, wire.EOLError) {
		t.Errorf("SETVAR of an invalid name = %v, want EOL(1)", got)
	}
}

func TestInterpreterIndexing(t *testing.T) {
	in := NewInterpreter(&bytes.Buffer{})
	// Host shape (2, 3): companion dimensions 3 (fastest) by 2.
	in.Define("a", wire.MustArray([]int64{1, 2, 3, 4, 5, 6}, 2, 3))
	in.Define("l", []any{"x", int64(2), 3.5})

	tests := []struct {
		expression string
		want       any
	}{
		{"a(1, 1)", int64(1)},
		{"a(3, 2)", int64(6)},
		{"a(0, 1)", int64(3)},
		{"a(-1, 0)", int64(5)},
		{"a(:, 2)", wire.MustArray([]int64{4, 5, 6})},
		{"a(2, :)", wire.MustArray([]int64{2, 5})},
		{"a(2:3, 1)", wire.MustArray([]int64{2, 3})},
		{"a(::-1, 1)", wire.MustArray([]int64{3, 2, 1})},
		{"a(.., 1)", wire.MustArray([]int64{1, 2, 3})},
		{"a([3, 1], 2)", wire.MustArray([]int64{6, 4})},
		{"a(1, -, 2)", wire.MustArray([]int64{4}, 1)},
		{"l(1)", "x"},
		{"l(0)", 3.5},
		{"l(2:3)", []any{int64(2), 3.5}},
		{"dimsof(a)", wire.MustArray([]int64{2, 3, 2})},
		{"numberof(l)", int64(3)},
		{"sum(a(:, 1))", int64(6)},
		{"array(0.5, 2, 1)", wire.MustArray([]float64{0.5, 0.5}, 1, 2)},
		{"[[1, 2], [3, 4]]", wire.MustArray([]int64{1, 2, 3, 4}, 2, 2)},
		{"typeof(open(\"f\"))", "text_stream"},
	}
	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			got, err := in.evaluate(tt.expression)
			if err != nil {
				t.Fatalf("evaluate(%q): %v", tt.expression, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("evaluate(%q) = %#v, want %#v", tt.expression, got, tt.want)
			}
		})
	}

	for _, bad := range []string{"a(4, 1)", "a(1, 1, 1)", "l(5)", "1 +", "\"open", "[1, \"a\"]", "1 / 0"} {
		if _, err := in.evaluate(bad); err == nil {
			t.Errorf("evaluate(%q) succeeded", bad)
		}
	}
}

func TestInterpreterStatements(t *testing.T) {
	var output bytes.Buffer
	in := NewInterpreter(&output)
	if err := in.Run("a = indgen(4)\na(2) = 20; print, a; b = a(0)", nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := in.Lookup("b"); got != int64(4) {
		t.Errorf("b = %v, want 4", got)
	}
	if got := output.String(); got != "[1,20,3,4]\n" {
		t.Errorf("output = %q", got)
	}

	output.Reset()
	if err := in.Run("b + 1", nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := output.String(); got != "5\n" {
		t.Errorf("bare expression printed %q, want %q", got, "5\n")
	}

	output.Reset()
	if err := in.Run("error, \"boom\"; c = 1", nil); err == nil {
		t.Fatal("Run of error succeeded")
	}
	if !strings.Contains(output.String(), "ERROR (*main*) error: boom") {
		t.Errorf("error output = %q", output.String())
	}
	if in.Lookup("c") != nil {
		t.Error("statement after an error ran")
	}
}

func TestInterpreterHolds(t *testing.T) {
	in := NewInterpreter(&bytes.Buffer{})
	in.Define("f", mustBuiltin(t, in, "sum"))

	id := request(t, in, wire.Eval(HoldPrefix+"indgen(5)"), nil)
	if id != int64(FirstSlot) {
		t.Fatalf("hold id = %v, want %d", id, FirstSlot)
	}
	if got := request(t, in, wire.GetSlice("4", 2), nil); got != int64(2) {
		t.Errorf("GETSLICE of slot 4 = %v, want 2", got)
	}
	if got := request(t, in, wire.FunCall(HoldPrefix+"f", []any{int64(1)}, nil), nil); got != int64(5) {
		t.Errorf("held FUNCALL id = %v, want 5", got)
	}

	// Holding the slot again shares it.
	if got := request(t, in, wire.Eval(HoldPrefix+"4"), nil); got != int64(4) {
		t.Errorf("re-hold id = %v, want 4", got)
	}
	if got := in.References(4); got != 2 {
		t.Fatalf("references = %d, want 2", got)
	}
	for want := 1; want >= 0; want-- {
		if got := request(t, in, wire.Exec("_pyorick_refs, 1, 4"), nil); got != nil {
			t.Fatalf("release reply = %v", got)
		}
		if got := in.References(4); got != want {
			t.Fatalf("references after release = %d, want %d", got, want)
		}
	}
	if got := request(t, in, wire.GetVar("4"), nil); !isEOL(got, wire.EOLError) {
		t.Errorf("GETVAR of a released slot = %v, want EOL(1)", got)
	}
	if !reflect.DeepEqual(in.Holds(), []int64{5}) {
		t.Errorf("Holds = %v, want [5]", in.Holds())
	}
}

func mustBuiltin(t *testing.T, in *Interpreter, name string) *builtin {
	t.Helper()
	b, ok := in.builtins[name]
	if !ok {
		t.Fatalf("no builtin %s", name)
	}
	return b
}

func TestInterpreterUnrepresentable(t *testing.T) {
	in := NewInterpreter(&bytes.Buffer{})
	if got := request(t, in, wire.Eval("openb(\"data\")"), nil); !isEOL(got, wire.EOLUnrepresentable) {
		t.Fatalf("EVAL of a stream = %v, want EOL(2)", got)
	}
	id := request(t, in, wire.GetVar(""), nil)
	if id != int64(FirstSlot) {
		t.Fatalf("parked id = %v, want %d", id, FirstSlot)
	}
	if got := request(t, in, wire.GetShape("4"), nil); !reflect.DeepEqual(got, wire.MustArray([]int64{-6})) {
		t.Errorf("GETSHAPE of parked stream = %v", got)
	}
	if got := request(t, in, wire.GetVar(""), nil); !isEOL(got, wire.EOLError) {
		t.Errorf("second GETVAR \"\" = %v, want EOL(1)", got)
	}
	if got := request(t, in, wire.GetVar("sum"), nil); !isEOL(got, wire.EOLUnrepresentable) {
		t.Errorf("GETVAR of a builtin = %v, want EOL(2)", got)
	}
}

func TestInterpreterCallbacks(t *testing.T) {
	in := NewInterpreter(&bytes.Buffer{})
	var seen []wire.Instruction
	host := func(message *wire.Message) (*wire.Message, error) {
		if !message.IsActive() {
			t.Errorf("callback message %s is not active", message)
		}
		decoded, err := testCodec.Decode(message)
		if err != nil {
			t.Fatalf("decode callback: %v", err)
		}
		instruction := decoded.(wire.Instruction)
		seen = append(seen, instruction)
		switch instruction.Tag {
		case wire.TagEval:
			return testCodec.Encode(int64(41))
		case wire.TagFunCall:
			return testCodec.Encode(instruction.Args[0])
		case wire.TagExec:
			return testCodec.Encode(wire.EOL(wire.EOLError))
		}
		return testCodec.Encode(nil)
	}

	if got := request(t, in, wire.Eval("py(\"answer\") + 1"), host); got != int64(42) {
		t.Errorf("EVAL with callback = %v, want 42", got)
	}
	if got := request(t, in, wire.Eval("py(\"echo\", \"x\")"), host); got != "x" {
		t.Errorf("py function call = %v, want x", got)
	}
	if got := request(t, in, wire.Exec("py, \"raise\""), host); !isEOL(got, wire.EOLError) {
		t.Errorf("failing host EXEC = %v, want EOL(1)", got)
	}
	wantTags := []wire.Tag{wire.TagEval, wire.TagFunCall, wire.TagExec}
	if len(seen) != len(wantTags) {
		t.Fatalf("host saw %d requests, want %d", len(seen), len(wantTags))
	}
	for i, tag := range wantTags {
		if seen[i].Tag != tag {
			t.Errorf("callback %d tag = %s, want %s", i, seen[i].Tag, tag)
		}
	}
	if got := request(t, in, wire.Eval("py(\"x\")"), nil); !isEOL(got, wire.EOLError) {
		t.Errorf("py with no host = %v, want EOL(1)", got)
	}
}

func TestInterpreterQuit(t *testing.T) {
	in := NewInterpreter(&bytes.Buffer{})
	if got := request(t, in, wire.Exec("quit"), nil); !isEOL(got, wire.EOLExiting) {
		t.Fatalf("EXEC quit = %v, want EOL(-1)", got)
	}
	if !in.Quitting() {
		t.Error("Quitting = false after quit")
	}
}

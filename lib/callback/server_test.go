// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package callback

import (
	"errors"
	"reflect"
	"testing"

	"github.com/bureau-foundation/gorick/lib/wire"
)

func encode(t *testing.T, codec *wire.Codec, value any) *wire.Message {
	t.Helper()
	message, err := codec.Encode(value)
	if err != nil {
		t.Fatalf("Encode(%#v): %v", value, err)
	}
	return message
}

func decode(t *testing.T, codec *wire.Codec, message *wire.Message) any {
	t.Helper()
	value, err := codec.Decode(message)
	if err != nil {
		t.Fatalf("Decode(%s): %v", message, err)
	}
	return value
}

func isError(message *wire.Message) bool {
	return message != nil && message.Is(wire.TagEOL, wire.EOLError)
}

func newTestServer() (*Server, *Variables, *wire.Codec) {
	codec := wire.NewCodec(wire.Options{})
	variables := NewVariables()
	variables.Register("add", func(args []any, keywords map[string]any) (any, error) {
		var sum int64
		for _, arg := range args {
			n, ok := arg.(int64)
			if !ok {
				return nil, errors.New("add wants integers")
			}
			sum += n
		}
		if scale, ok := keywords["scale"].(int64); ok {
			sum *= scale
		}
		return sum, nil
	})
	return NewServer(variables, WithCodec(codec)), variables, codec
}

func TestServerTerminalSession(t *testing.T) {
	server, variables, codec := newTestServer()
	server.Start()

	reply, more := server.Reply(encode(t, codec, wire.Exec("x = 41")))
	if !more || decode(t, codec, reply) != nil {
		t.Fatalf("EXEC reply = %v, %v; want nil data, true", reply, more)
	}
	reply, more = server.Reply(encode(t, codec, wire.Eval("$x + 1")))
	if !more {
		t.Fatal("EVAL ended the session")
	}
	if got := decode(t, codec, reply); got != int64(42) {
		t.Errorf("EVAL $x + 1 = %#v, want 42", got)
	}

	reply, more = server.Reply(encode(t, codec, wire.Exec("")))
	if more || reply != nil {
		t.Fatalf("empty EXEC = %v, %v; want session end", reply, more)
	}
	if !server.Done() || !server.Entered() {
		t.Errorf("Done = %v, Entered = %v after exit; want true, true", server.Done(), server.Entered())
	}

	// Nothing further is consumed once the session has ended.
	reply, more = server.Reply(encode(t, codec, wire.Exec("x = 0")))
	if more || reply != nil {
		t.Errorf("Reply after exit = %v, %v", reply, more)
	}
	if x, _ := variables.Lookup("x"); x != 41 {
		t.Errorf("x = %#v after ended session, want 41", x)
	}

	final, err := server.Final()
	if err != nil {
		t.Fatalf("Final: %v", err)
	}
	if final.Tag() != wire.TagNil {
		t.Errorf("Final tag = %s, want nil", final.Tag())
	}
}

func TestServerExitSignals(t *testing.T) {
	for _, request := range []any{wire.Exec(""), wire.EOL(wire.EOLEnd)} {
		server, _, codec := newTestServer()
		server.Start()
		if reply, more := server.Reply(encode(t, codec, request)); more || reply != nil {
			t.Errorf("Reply(%v) = %v, %v; want exit", request, reply, more)
		}
		if !server.Entered() {
			t.Errorf("Reply(%v) marked the session as never entered", request)
		}
	}
}

func TestServerEmptySetVarIsError(t *testing.T) {
	server, _, codec := newTestServer()
	server.Start()
	reply, more := server.Reply(encode(t, codec, wire.SetVar("", 1)))
	if !more || !isError(reply) {
		t.Errorf("Reply(setvar \"\") = %v, %v; want EOL(1), true", reply, more)
	}
	if !server.Entered() {
		t.Error("Entered = false after an answered first request")
	}
}

func TestServerNeverEntered(t *testing.T) {
	server, _, codec := newTestServer()
	server.Start()
	reply, more := server.Reply(encode(t, codec, 5))
	if more || reply != nil {
		t.Fatalf("Reply(data) = %v, %v; want exit", reply, more)
	}
	if server.Entered() {
		t.Error("Entered = true after an unrecognized first request")
	}
}

func TestServerUnrecognizedLaterIsError(t *testing.T) {
	server, _, codec := newTestServer()
	server.Start()
	if _, more := server.Reply(encode(t, codec, wire.Exec("y = 1"))); !more {
		t.Fatal("first request ended the session")
	}
	reply, more := server.Reply(encode(t, codec, wire.GetShape("y")))
	if !more || !isError(reply) {
		t.Errorf("unrecognized request = %v, %v; want EOL(1), true", reply, more)
	}
	if !server.Entered() {
		t.Error("Entered = false after a recognized first request")
	}
}

func TestServerAnswer(t *testing.T) {
	server, variables, codec := newTestServer()
	variables.Define("a", wire.MustArray([]float64{1, 2, 3, 4, 5, 6}, 3, 2))
	variables.Define("names", []string{"x", "y", "z"})

	tests := []struct {
		name    string
		request any
		want    any
		error   bool
	}{
		{"getvar", wire.GetVar("names"), []string{"x", "y", "z"}, false},
		{"undefined", wire.GetVar("missing"), nil, true},
		{"eval jq", wire.Eval("$names | length"), int64(3), false},
		{"eval syntax error", wire.Eval("$$$"), nil, true},
		{"setvar", wire.SetVar("b", "text"), nil, false},
		{"funcall", wire.FunCall("add", []any{1, 2}, map[string]any{"scale": 10}), int64(30), false},
		{"funcall failure", wire.FunCall("add", []any{"x"}, nil), nil, true},
		{"subcall discards", wire.SubCall("add", []any{1}, nil), nil, false},
		{"call non-function", wire.FunCall("names", nil, nil), nil, true},
		{"getslice row", wire.GetSlice("a", 1, wire.All()), wire.MustArray([]float64{3, 4}), false},
		{"getslice element", wire.GetSlice("a", -1, 0), 5.0, false},
		{"getslice list", wire.GetSlice("names", wire.Span(1, 3)), []string{"y", "z"}, false},
		{"getslice out of range", wire.GetSlice("a", 7, 0), nil, true},
		{"setslice", wire.SetSlice("a", 9.5, 0, 0), nil, false},
		{"multiline exec", wire.Exec("c = 1\x00d = $c + 1"), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, result := server.Answer(encode(t, codec, tt.request))
			if result != Answered {
				t.Fatalf("result = %s, want answered", result)
			}
			if tt.error {
				if !isError(reply) {
					t.Fatalf("reply = %s, want EOL(1)", reply)
				}
				return
			}
			if isError(reply) {
				t.Fatalf("reply is an error")
			}
			if got := decode(t, codec, reply); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("reply = %#v, want %#v", got, tt.want)
			}
		})
	}

	if b, _ := variables.Lookup("b"); b != "text" {
		t.Errorf("b = %#v after SETVAR", b)
	}
	if d, _ := variables.Lookup("d"); d != 2 {
		t.Errorf("d = %#v after multi-line EXEC, want 2", d)
	}
	a, _ := variables.Lookup("a")
	if got := a.(wire.Array).Data.([]float64)[0]; got != 9.5 {
		t.Errorf("a[0,0] = %v after SETSLICE, want 9.5", got)
	}
}

func TestServerUnencodableResult(t *testing.T) {
	server, variables, codec := newTestServer()
	variables.Define("ch", make(chan int))
	reply, result := server.Answer(encode(t, codec, wire.GetVar("ch")))
	if result != Answered || !isError(reply) {
		t.Errorf("unencodable result = %s, %s; want EOL(1), answered", reply, result)
	}
}

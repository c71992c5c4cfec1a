// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package companiontest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/bureau-foundation/gorick/lib/callback"
	"github.com/bureau-foundation/gorick/lib/supervisor"
	"github.com/bureau-foundation/gorick/lib/wire"
)

func encode(t *testing.T, value any) *wire.Message {
	t.Helper()
	message, err := testCodec.Encode(value)
	if err != nil {
		t.Fatalf("Encode(%v): %v", value, err)
	}
	return message
}

func decode(t *testing.T, message *wire.Message) any {
	t.Helper()
	value, err := testCodec.Decode(message)
	if err != nil {
		t.Fatalf("Decode(%s): %v", message, err)
	}
	return value
}

func TestLoopbackNestedCallback(t *testing.T) {
	ctx := context.Background()
	l := NewLoopback()

	reply, err := l.Request(ctx, encode(t, wire.Eval("py(\"v\") * 2")))
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !reply.IsActive() {
		t.Fatalf("first reply %s is not a callback", reply)
	}
	if got := decode(t, reply).(wire.Instruction); got.Tag != wire.TagEval || got.Name != "v" {
		t.Fatalf("callback = %v, want EVAL v", got)
	}

	var misuse *supervisor.ProtocolMisuse
	if _, err := l.Request(ctx, encode(t, wire.Eval("1"))); !errors.As(err, &misuse) {
		t.Errorf("Request while answering = %v, want *ProtocolMisuse", err)
	}

	if err := l.Send(ctx, encode(t, int64(21))); err != nil {
		t.Fatalf("Send: %v", err)
	}
	reply, err = l.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if got := decode(t, reply); got != int64(42) {
		t.Errorf("final reply = %v, want 42", got)
	}
	if err := l.Send(ctx, encode(t, nil)); !errors.As(err, &misuse) {
		t.Errorf("Send while idle = %v, want *ProtocolMisuse", err)
	}
}

func TestLoopbackTextAndQuit(t *testing.T) {
	ctx := context.Background()
	l := NewLoopback()

	offset := l.TextOffset()
	reply, err := l.Request(ctx, encode(t, wire.Exec("error, \"broken\"")))
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !reply.Is(wire.TagEOL, wire.EOLError) {
		t.Fatalf("reply = %s, want EOL(1)", reply)
	}
	if text := l.TextSince(offset); !strings.Contains(text, "broken") {
		t.Errorf("TextSince = %q, want the error message", text)
	}

	reply, err = l.Request(ctx, encode(t, wire.Exec("quit")))
	if err != nil || reply != nil {
		t.Fatalf("Request(quit) = %v, %v; want nil, nil", reply, err)
	}
	if l.Alive() {
		t.Error("Alive after quit")
	}
	var misuse *supervisor.ProtocolMisuse
	if _, err := l.Request(ctx, encode(t, wire.Eval("1"))); !errors.As(err, &misuse) {
		t.Errorf("Request after quit = %v, want *ProtocolMisuse", err)
	}
}

func TestLoopbackTerminal(t *testing.T) {
	ctx := context.Background()
	variables := callback.NewVariables()
	server := callback.NewServer(variables)

	l := NewLoopback()
	l.SetTerminalInput(`py, "z = 5"`, `w = py("z")`, "py")
	if err := l.EnterTerminal(ctx, server); err != nil {
		t.Fatalf("EnterTerminal: %v", err)
	}
	if !server.Done() || !server.Entered() {
		t.Errorf("server Done=%v Entered=%v, want both true", server.Done(), server.Entered())
	}
	z, ok := variables.Lookup("z")
	if !ok || fmt.Sprint(z) != "5" {
		t.Errorf("host z = %v (defined %v), want 5", z, ok)
	}
	if w := l.Interpreter().Lookup("w"); fmt.Sprint(w) != "5" {
		t.Errorf("companion w = %v, want 5", w)
	}
	if !l.Alive() {
		t.Error("loopback died leaving terminal mode")
	}

	l.SetTerminalInput("x = 1")
	if err := l.EnterTerminal(ctx, callback.NewServer(variables)); err != nil {
		t.Fatalf("EnterTerminal: %v", err)
	}
	if l.Alive() {
		t.Error("loopback alive after terminal input ran out")
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handle

import (
	"context"
	"fmt"
	"strings"

	"github.com/bureau-foundation/gorick/lib/wire"
)

// Semantics selects how a Handle resolves names.
type Semantics int

const (
	// Call resolves names to proxies with subroutine calls and
	// host-convention indexing.
	Call Semantics = iota
	// Evaluate resolves names to proxies with function calls and
	// companion-convention indexing.
	Evaluate
	// Value resolves names to their decoded values.
	Value
)

func (s Semantics) String() string {
	switch s {
	case Call:
		return "call"
	case Evaluate:
		return "evaluate"
	case Value:
		return "value"
	}
	return fmt.Sprintf("semantics(%d)", int(s))
}

// Handle is a view of the companion's variables with one Semantics.
type Handle struct {
	conn      *Conn
	semantics Semantics
}

// Handle returns a view with the given semantics.
func (c *Conn) Handle(semantics Semantics) *Handle {
	return &Handle{conn: c, semantics: semantics}
}

// Semantics returns the handle's semantics.
func (h *Handle) Semantics() Semantics { return h.semantics }

// Conn returns the underlying connection.
func (h *Handle) Conn() *Conn { return h.conn }

// Resolve looks up name. Under Value semantics it fetches the value
// (a call-semantics *Proxy when it has no wire form, nil when
// undefined); otherwise it returns a *Proxy without I/O.
func (h *Handle) Resolve(ctx context.Context, name string) (any, error) {
	if h.semantics == Value {
		return h.conn.Get(ctx, name)
	}
	return h.Proxy(name), nil
}

// Proxy returns a proxy for name. Value handles produce call-semantics
// proxies.
func (h *Handle) Proxy(name string) *Proxy {
	semantics := h.semantics
	if semantics == Value {
		semantics = Call
	}
	return h.conn.proxy(name, semantics)
}

// Set assigns a companion variable.
func (h *Handle) Set(ctx context.Context, name string, value any) error {
	return h.conn.Set(ctx, name, value)
}

// Run sends code the way the handle's semantics call for. Call
// semantics executes it and returns nil. Other semantics evaluate it.
// A leading "=" forces evaluation and a leading "@" evaluates into a
// hold slot, returning a *Hold.
func (h *Handle) Run(ctx context.Context, code string) (any, error) {
	if rest, ok := strings.CutPrefix(code, "@"); ok {
		held, err := h.conn.EvalHold(ctx, rest)
		if err != nil {
			return nil, err
		}
		return held, nil
	}
	if rest, ok := strings.CutPrefix(code, "="); ok {
		return h.conn.Eval(ctx, rest)
	}
	if h.semantics == Call {
		return nil, h.conn.Exec(ctx, code)
	}
	return h.conn.do(ctx, wire.Eval(code))
}

// Runf is Run with fmt.Sprintf formatting.
func (h *Handle) Runf(ctx context.Context, format string, args ...any) (any, error) {
	return h.Run(ctx, fmt.Sprintf(format, args...))
}

// Exec runs code regardless of semantics.
func (h *Handle) Exec(ctx context.Context, code string) error {
	return h.conn.Exec(ctx, code)
}

// Execf is Exec with fmt.Sprintf formatting.
func (h *Handle) Execf(ctx context.Context, format string, args ...any) error {
	return h.conn.Execf(ctx, format, args...)
}

// Eval evaluates an expression regardless of semantics.
func (h *Handle) Eval(ctx context.Context, expression string) (any, error) {
	return h.conn.Eval(ctx, expression)
}

// Evalf is Eval with fmt.Sprintf formatting.
func (h *Handle) Evalf(ctx context.Context, format string, args ...any) (any, error) {
	return h.conn.Evalf(ctx, format, args...)
}

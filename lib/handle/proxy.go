// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handle

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/gorick/lib/wire"
)

// Proxy refers to a companion variable by name. Creating one does no
// I/O; each method sends one request.
type Proxy struct {
	conn      *Conn
	name      string
	semantics Semantics
}

// Name returns the companion variable name.
func (p *Proxy) Name() string { return p.name }

// Semantics returns Call or Evaluate.
func (p *Proxy) Semantics() Semantics { return p.semantics }

func (p *Proxy) String() string {
	return fmt.Sprintf("proxy(%s, %s)", p.name, p.semantics)
}

// AsCall returns a proxy for the same variable with call semantics.
func (p *Proxy) AsCall() *Proxy { return p.conn.proxy(p.name, Call) }

// AsEvaluate returns a proxy for the same variable with evaluate
// semantics.
func (p *Proxy) AsEvaluate() *Proxy { return p.conn.proxy(p.name, Evaluate) }

// Call invokes the variable. Under call semantics it is a subroutine
// call and the result is nil; under evaluate semantics the function
// result is returned.
func (p *Proxy) Call(ctx context.Context, args []any, keywords map[string]any) (any, error) {
	if p.semantics == Call {
		return p.conn.do(ctx, wire.SubCall(p.name, args, keywords))
	}
	return p.conn.do(ctx, wire.FunCall(p.name, args, keywords))
}

// CallHold calls the variable as a function and keeps the result in a
// hold slot.
func (p *Proxy) CallHold(ctx context.Context, args []any, keywords map[string]any) (*Hold, error) {
	return p.conn.hold(ctx, wire.FunCall(HoldPrefix+p.name, args, keywords))
}

// Get indexes the variable.
func (p *Proxy) Get(ctx context.Context, indices ...any) (any, error) {
	remote, err := p.indices(indices)
	if err != nil {
		return nil, err
	}
	return p.conn.do(ctx, wire.GetSlice(p.name, remote...))
}

// GetHold indexes the variable and keeps the result in a hold slot.
func (p *Proxy) GetHold(ctx context.Context, indices ...any) (*Hold, error) {
	remote, err := p.indices(indices)
	if err != nil {
		return nil, err
	}
	return p.conn.hold(ctx, wire.GetSlice(HoldPrefix+p.name, remote...))
}

// Set stores value into the indexed part of the variable.
func (p *Proxy) Set(ctx context.Context, value any, indices ...any) error {
	remote, err := p.indices(indices)
	if err != nil {
		return err
	}
	_, err = p.conn.do(ctx, wire.SetSlice(p.name, value, remote...))
	return err
}

// Info fetches the variable's type and dimensions.
func (p *Proxy) Info(ctx context.Context) (Info, error) {
	reply, err := p.conn.do(ctx, wire.GetShape(p.name))
	if err != nil {
		return Info{}, err
	}
	return parseInfo(reply)
}

// Value fetches the variable. An unrepresentable value comes back as a
// call-semantics *Proxy.
func (p *Proxy) Value(ctx context.Context) (any, error) {
	return p.conn.Get(ctx, p.name)
}

func (p *Proxy) indices(indices []any) ([]any, error) {
	if p.semantics != Call {
		return indices, nil
	}
	remote, err := remoteIndices(indices)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", p.name, err)
	}
	return remote, nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/gorick/lib/callback"
	"github.com/bureau-foundation/gorick/lib/supervisor"
	"github.com/bureau-foundation/gorick/lib/wire"
)

// HoldPrefix, leading a request name, asks the companion to keep the
// result in a hold slot and answer with the slot id.
const HoldPrefix = "\x05"

// Transport carries requests to a companion. *supervisor.Supervisor
// is the production implementation.
type Transport interface {
	Request(ctx context.Context, request *wire.Message) (*wire.Message, error)
	Send(ctx context.Context, message *wire.Message) error
	Receive(ctx context.Context) (*wire.Message, error)
	EnterTerminal(ctx context.Context, responder supervisor.Responder) error
	Kill(graceful bool) error
	Alive() bool
	TextOffset() uint64
	TextSince(offset uint64) string
}

// Conn is a connection to one companion. Its methods are safe for
// concurrent use; requests are serialized. Namespace functions run
// while a request is in progress and must not use the Conn.
type Conn struct {
	transport Transport
	codec     *wire.Codec
	server    *callback.Server
	namespace callback.Namespace
	logger    *slog.Logger

	mutex sync.Mutex
}

type settings struct {
	logger     *slog.Logger
	codec      wire.Options
	namespace  callback.Namespace
	supervisor []supervisor.Option
}

// Option configures a Conn.
type Option func(*settings)

// WithLogger sets the logger for the connection and, with Open, its
// supervisor.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithCodecOptions sets the codec options. The default enables the
// opaque fallback.
func WithCodecOptions(options wire.Options) Option {
	return func(s *settings) { s.codec = options }
}

// WithNamespace sets the namespace that answers the companion's
// requests. The default is an empty *callback.Variables.
func WithNamespace(namespace callback.Namespace) Option {
	return func(s *settings) { s.namespace = namespace }
}

// WithSupervisorOptions passes options through to supervisor.Start.
func WithSupervisorOptions(options ...supervisor.Option) Option {
	return func(s *settings) { s.supervisor = append(s.supervisor, options...) }
}

func newSettings(options []Option) settings {
	s := settings{
		logger: slog.New(slog.DiscardHandler),
		codec:  wire.Options{Fallback: true},
	}
	for _, option := range options {
		option(&s)
	}
	if s.namespace == nil {
		s.namespace = callback.NewVariables()
	}
	return s
}

// Open starts a supervised companion and connects to it.
func Open(ctx context.Context, config supervisor.Config, options ...Option) (*Conn, error) {
	s := newSettings(options)
	supervisorOptions := append([]supervisor.Option{supervisor.WithLogger(s.logger)}, s.supervisor...)
	process, err := supervisor.Start(ctx, config, supervisorOptions...)
	if err != nil {
		return nil, err
	}
	return newConn(process, s), nil
}

// New connects over an existing transport.
func New(transport Transport, options ...Option) *Conn {
	return newConn(transport, newSettings(options))
}

func newConn(transport Transport, s settings) *Conn {
	codec := wire.NewCodec(s.codec)
	return &Conn{
		transport: transport,
		codec:     codec,
		namespace: s.namespace,
		server:    callback.NewServer(s.namespace, callback.WithCodec(codec), callback.WithLogger(s.logger)),
		logger:    s.logger,
	}
}

// Namespace returns the namespace answering the companion's requests.
func (c *Conn) Namespace() callback.Namespace { return c.namespace }

// Codec returns the connection's codec.
func (c *Conn) Codec() *wire.Codec { return c.codec }

// Encodable reports whether value can be sent, without sending it.
func (c *Conn) Encodable(value any) bool { return c.codec.Encodable(value) }

// Alive reports whether the companion is still running.
func (c *Conn) Alive() bool { return c.transport.Alive() }

// Kill stops the companion, giving it the grace period to quit.
func (c *Conn) Kill() error { return c.transport.Kill(true) }

// Exec runs code in the companion. A companion that exits in response
// (quit) is not an error.
func (c *Conn) Exec(ctx context.Context, code string) error {
	_, err := c.do(ctx, wire.Exec(code))
	if errors.Is(err, ErrExited) {
		return nil
	}
	return err
}

// Execf is Exec with fmt.Sprintf formatting.
func (c *Conn) Execf(ctx context.Context, format string, args ...any) error {
	return c.Exec(ctx, fmt.Sprintf(format, args...))
}

// Eval evaluates an expression and returns its value, or a *Hold when
// the value has no wire representation.
func (c *Conn) Eval(ctx context.Context, expression string) (any, error) {
	return c.do(ctx, wire.Eval(expression))
}

// Evalf is Eval with fmt.Sprintf formatting.
func (c *Conn) Evalf(ctx context.Context, format string, args ...any) (any, error) {
	return c.Eval(ctx, fmt.Sprintf(format, args...))
}

// EvalHold evaluates an expression and keeps the result in a hold
// slot.
func (c *Conn) EvalHold(ctx context.Context, expression string) (*Hold, error) {
	return c.hold(ctx, wire.Eval(HoldPrefix+expression))
}

// Get returns the value of a companion variable, or a call-semantics
// *Proxy when it has no wire representation. Undefined variables are
// nil.
func (c *Conn) Get(ctx context.Context, name string) (any, error) {
	return c.do(ctx, wire.GetVar(name))
}

// Set assigns a companion variable.
func (c *Conn) Set(ctx context.Context, name string, value any) error {
	_, err := c.do(ctx, wire.SetVar(name, value))
	return err
}

// Debug turns the companion's protocol diagnostics on or off.
func (c *Conn) Debug(ctx context.Context, on bool) error {
	var flag int64
	if on {
		flag = 1
	}
	c.logger.Debug("companion debug", "on", on)
	return c.Set(ctx, "pydebug", flag)
}

// Terminal gives the host terminal to the companion until the user
// returns with "py" (or the companion quits).
func (c *Conn) Terminal(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.transport.EnterTerminal(ctx, c.server)
}

// WithHold acquires a hold, passes it to fn, and releases it however fn
// ends, panics included. The release error is returned when fn
// succeeded.
func (c *Conn) WithHold(ctx context.Context, acquire func(context.Context) (*Hold, error), fn func(*Hold) error) (err error) {
	h, err := acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := h.Release(context.WithoutCancel(ctx)); err == nil {
			err = releaseErr
		}
	}()
	return fn(h)
}

// do sends instruction and converts an unrepresentable result: a
// GETVAR becomes a call proxy, anything else is parked in a hold.
func (c *Conn) do(ctx context.Context, instruction wire.Instruction) (any, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	value, err := c.exchange(ctx, instruction)
	if !errors.Is(err, errUnrepresentable) {
		return value, err
	}
	if instruction.Tag == wire.TagGetVar {
		return c.proxy(instruction.Name, Call), nil
	}
	h, err := c.park(ctx)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// hold sends an instruction whose name carries HoldPrefix and wraps
// the slot id it returns.
func (c *Conn) hold(ctx context.Context, instruction wire.Instruction) (*Hold, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	value, err := c.exchange(ctx, instruction)
	if err != nil {
		return nil, err
	}
	return c.newHold(value)
}

// park moves the last unrepresentable result into a hold slot.
func (c *Conn) park(ctx context.Context) (*Hold, error) {
	value, err := c.exchange(ctx, wire.GetVar(""))
	if err != nil {
		return nil, fmt.Errorf("hold unrepresentable result: %w", err)
	}
	return c.newHold(value)
}

// exchange runs one request to completion, answering any requests the
// companion makes in between. The caller holds the mutex.
func (c *Conn) exchange(ctx context.Context, instruction wire.Instruction) (any, error) {
	request, err := c.codec.Encode(instruction)
	if err != nil {
		return nil, err
	}
	offset := c.transport.TextOffset()
	reply, err := c.transport.Request(ctx, request)
	var unexpected error
	for err == nil && reply != nil && reply.IsActive() {
		answer, result := c.server.Answer(reply)
		if result != callback.Answered {
			c.logger.Warn("unrecognized companion request", "request", reply.String())
			unexpected = fmt.Errorf("%w: %s", ErrUnexpectedRequest, reply.Tag())
			if answer, err = c.codec.Encode(wire.EOL(wire.EOLError)); err != nil {
				return nil, err
			}
		}
		if err = c.transport.Send(ctx, answer); err != nil {
			break
		}
		reply, err = c.transport.Receive(ctx)
	}
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, ErrExited
	}
	if unexpected != nil {
		return nil, unexpected
	}
	value, err := c.codec.Decode(reply)
	if err != nil {
		return nil, err
	}
	if eol, ok := value.(wire.Instruction); ok && eol.Tag == wire.TagEOL {
		switch eol.Flag {
		case wire.EOLUnrepresentable:
			return nil, errUnrepresentable
		case wire.EOLExiting:
			return nil, ErrExited
		}
		return nil, &RemoteError{
			Op:   instruction.Tag.String(),
			Name: instruction.Name,
			Text: ansi.Strip(c.transport.TextSince(offset)),
		}
	}
	return value, nil
}

func (c *Conn) proxy(name string, semantics Semantics) *Proxy {
	return &Proxy{conn: c, name: name, semantics: semantics}
}

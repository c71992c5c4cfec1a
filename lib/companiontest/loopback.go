// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package companiontest

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/bureau-foundation/gorick/lib/supervisor"
	"github.com/bureau-foundation/gorick/lib/wire"
)

// errTerminalDone unwinds a terminal line when the host ends the
// session.
var errTerminalDone = errors.New("terminal session ended by host")

type loopbackState int

const (
	loopbackIdle loopbackState = iota
	loopbackWaiting
	loopbackAnswering
	loopbackClosed
)

func (s loopbackState) String() string {
	switch s {
	case loopbackIdle:
		return "idle"
	case loopbackWaiting:
		return "waiting for a reply"
	case loopbackAnswering:
		return "answering a companion request"
	}
	return "closed"
}

// Loopback serves requests from an in-process Interpreter with the
// request, send and receive discipline of a supervised companion.
// Requests run on their own goroutine so nested callbacks suspend them
// exactly as a real companion would block on its pipe.
type Loopback struct {
	interpreter *Interpreter

	mutex  sync.Mutex
	output bytes.Buffer
	state  loopbackState

	replies  chan *wire.Message
	answers  chan *wire.Message
	terminal []string
}

// NewLoopback returns a Loopback around a fresh Interpreter.
func NewLoopback(options ...Option) *Loopback {
	l := &Loopback{
		replies: make(chan *wire.Message),
		answers: make(chan *wire.Message),
	}
	l.interpreter = NewInterpreter(writerFunc(l.write), options...)
	return l
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func (l *Loopback) write(p []byte) (int, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.output.Write(p)
}

// Interpreter returns the interpreter behind the loopback. Inspect it
// only while no request is outstanding.
func (l *Loopback) Interpreter() *Interpreter { return l.interpreter }

// SetTerminalInput sets the lines EnterTerminal reads, as if typed.
func (l *Loopback) SetTerminalInput(lines ...string) { l.terminal = lines }

func (l *Loopback) transition(op string, from, to loopbackState) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.state != from {
		return &supervisor.ProtocolMisuse{Op: op, State: l.state.String()}
	}
	l.state = to
	return nil
}

func (l *Loopback) setState(to loopbackState) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.state != loopbackClosed {
		l.state = to
	}
}

// Request starts request on the interpreter and returns its first
// reply.
func (l *Loopback) Request(ctx context.Context, request *wire.Message) (*wire.Message, error) {
	if err := l.transition("request", loopbackIdle, loopbackWaiting); err != nil {
		return nil, err
	}
	go func() {
		reply := l.interpreter.Handle(request, l.callback)
		l.replies <- reply
	}()
	return l.Receive(ctx)
}

// callback carries a request of the interpreter's to the host and
// waits for the answer.
func (l *Loopback) callback(request *wire.Message) (*wire.Message, error) {
	l.replies <- request
	answer, ok := <-l.answers
	if !ok {
		return nil, errors.New("host connection closed")
	}
	return answer, nil
}

// Send answers an active reply.
func (l *Loopback) Send(ctx context.Context, message *wire.Message) error {
	if err := l.transition("send", loopbackAnswering, loopbackWaiting); err != nil {
		return err
	}
	select {
	case l.answers <- message:
		return nil
	case <-ctx.Done():
		return &supervisor.TransportError{Op: "send", Err: ctx.Err()}
	}
}

// Receive returns the next reply of the outstanding request. A nil
// reply means the interpreter quit.
func (l *Loopback) Receive(ctx context.Context) (*wire.Message, error) {
	l.mutex.Lock()
	current := l.state
	l.mutex.Unlock()
	if current != loopbackWaiting {
		return nil, &supervisor.ProtocolMisuse{Op: "receive", State: current.String()}
	}
	var reply *wire.Message
	select {
	case reply = <-l.replies:
	case <-ctx.Done():
		return nil, &supervisor.TransportError{Op: "receive", Err: ctx.Err()}
	}
	switch {
	case reply.Is(wire.TagEOL, wire.EOLExiting):
		l.setState(loopbackClosed)
		return nil, nil
	case reply.IsActive():
		l.setState(loopbackAnswering)
	default:
		l.setState(loopbackIdle)
	}
	return reply, nil
}

// EnterTerminal runs the lines set by SetTerminalInput, answering the
// interpreter's requests with responder. A "py" line ends terminal
// mode; running out of lines kills the loopback, as end of input does
// for a supervised companion.
func (l *Loopback) EnterTerminal(ctx context.Context, responder supervisor.Responder) error {
	if err := l.transition("terminal", loopbackIdle, loopbackIdle); err != nil {
		return err
	}
	responder.Start()
	host := func(request *wire.Message) (*wire.Message, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		reply, more := responder.Reply(request)
		if !more {
			return nil, errTerminalDone
		}
		return reply, nil
	}
	lines := l.terminal
	l.terminal = nil
	for _, line := range lines {
		if line == "py" {
			if _, more := responder.Reply(l.interpreter.encode(wire.Exec(""))); more {
				continue
			}
			if responder.Entered() {
				if _, err := responder.Final(); err != nil {
					return err
				}
			}
			return nil
		}
		if err := l.interpreter.Run(line, host); errors.Is(err, errTerminalDone) {
			return nil
		}
		if l.interpreter.Quitting() {
			l.setState(loopbackClosed)
			return nil
		}
	}
	return l.Kill(true)
}

// Kill closes the loopback. Later requests fail with
// *supervisor.ProtocolMisuse.
func (l *Loopback) Kill(bool) error {
	l.setState(loopbackClosed)
	return nil
}

// Alive reports whether the loopback still accepts requests.
func (l *Loopback) Alive() bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.state != loopbackClosed
}

// TextOffset returns the number of bytes the interpreter has printed.
func (l *Loopback) TextOffset() uint64 {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return uint64(l.output.Len())
}

// TextSince returns what the interpreter printed after offset.
func (l *Loopback) TextSince(offset uint64) string {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if offset >= uint64(l.output.Len()) {
		return ""
	}
	return string(l.output.Bytes()[offset:])
}

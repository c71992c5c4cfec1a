// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package callback

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/bureau-foundation/gorick/lib/wire"
)

// Result classifies how a request was handled.
type Result int

const (
	// Answered means the returned message is the reply to send.
	Answered Result = iota
	// Unrecognized means the message was not a request this package
	// understands.
	Unrecognized
	// Exit means the message asked to end terminal mode.
	Exit
)

func (r Result) String() string {
	switch r {
	case Answered:
		return "answered"
	case Unrecognized:
		return "unrecognized"
	case Exit:
		return "exit"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

type state int

const (
	stateIdle state = iota
	stateAwaiting
	stateProcessing
	stateDone
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithCodec sets the codec used to decode requests and encode replies.
// Sharing the connection's codec lets opaque values round-trip.
func WithCodec(codec *wire.Codec) Option {
	return func(s *Server) { s.codec = codec }
}

// Server answers companion requests against a Namespace.
type Server struct {
	namespace Namespace
	codec     *wire.Codec
	logger    *slog.Logger

	state   state
	started bool
	never   bool
}

// NewServer returns an idle Server.
func NewServer(namespace Namespace, options ...Option) *Server {
	s := &Server{
		namespace: namespace,
		codec:     wire.NewCodec(wire.Options{Fallback: true}),
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Namespace returns the namespace requests are resolved against.
func (s *Server) Namespace() Namespace { return s.namespace }

// Start begins a terminal session: the server now awaits its first
// request.
func (s *Server) Start() {
	s.state = stateAwaiting
	s.started = false
	s.never = false
}

// Done reports whether the session has ended.
func (s *Server) Done() bool { return s.state == stateDone }

// Entered is false only when the first request of the session showed
// that the companion never switched into terminal mode.
func (s *Server) Entered() bool { return !s.never }

// Reply answers one request of a terminal session. A false second
// result ends the session; once ended, Reply returns (nil, false)
// without looking at its argument.
func (s *Server) Reply(request *wire.Message) (*wire.Message, bool) {
	switch s.state {
	case stateDone:
		return nil, false
	case stateIdle:
		s.Start()
	}
	s.state = stateProcessing

	reply, result := s.Answer(request)
	switch result {
	case Exit:
		s.logger.Debug("terminal session ended by companion")
		s.state = stateDone
		return nil, false
	case Unrecognized:
		if !s.started {
			s.logger.Warn("first request unrecognized, companion never entered terminal mode", "request", request.String())
			s.never = true
			s.state = stateDone
			return nil, false
		}
		reply = s.errorReply()
	}
	s.started = true
	s.state = stateAwaiting
	return reply, true
}

// Final returns the handshake that releases the companion from
// terminal mode: a nil data message.
func (s *Server) Final() (*wire.Message, error) {
	return s.codec.Encode(nil)
}

// Answer handles one request without any session bookkeeping. It is
// used directly for requests that arrive in the middle of an ordinary
// host request. Failures of the host evaluator produce an EOL(1) reply
// with result Answered.
func (s *Server) Answer(request *wire.Message) (*wire.Message, Result) {
	value, err := s.codec.Decode(request)
	if err != nil {
		s.logger.Debug("undecodable request", "error", err)
		return nil, Unrecognized
	}
	instruction, ok := value.(wire.Instruction)
	if !ok {
		return nil, Unrecognized
	}

	switch instruction.Tag {
	case wire.TagEOL:
		if instruction.Flag == wire.EOLEnd {
			return nil, Exit
		}
		return nil, Unrecognized
	case wire.TagExec:
		if instruction.Name == "" {
			return nil, Exit
		}
	case wire.TagSetVar, wire.TagEval, wire.TagGetVar, wire.TagFunCall, wire.TagSubCall, wire.TagGetSlice, wire.TagSetSlice:
	default:
		return nil, Unrecognized
	}

	// The companion sends multi-line code with NUL separators.
	text := strings.ReplaceAll(instruction.Name, "\x00", "\n")
	result, err := s.dispatch(instruction, text)
	if err != nil {
		s.logger.Debug("request failed", "request", instruction.String(), "error", err)
		return s.errorReply(), Answered
	}
	reply, err := s.codec.Encode(result)
	if err != nil {
		s.logger.Debug("result not encodable", "request", instruction.String(), "error", err)
		return s.errorReply(), Answered
	}
	return reply, Answered
}

func (s *Server) dispatch(instruction wire.Instruction, text string) (any, error) {
	ns := s.namespace
	switch instruction.Tag {
	case wire.TagExec:
		return nil, ns.Exec(text)
	case wire.TagEval, wire.TagGetVar:
		return ns.Eval(text)
	case wire.TagSetVar:
		return nil, ns.Set(text, instruction.Value)
	case wire.TagFunCall:
		return ns.Call(text, instruction.Args, instruction.Keywords)
	case wire.TagSubCall:
		_, err := ns.Call(text, instruction.Args, instruction.Keywords)
		return nil, err
	case wire.TagGetSlice:
		return ns.GetSlice(text, instruction.Args)
	case wire.TagSetSlice:
		return nil, ns.SetSlice(text, instruction.Args, instruction.Value)
	}
	return nil, fmt.Errorf("unsupported request %s", instruction.Tag)
}

func (s *Server) errorReply() *wire.Message {
	reply, err := s.codec.Encode(wire.EOL(wire.EOLError))
	if err != nil {
		panic(fmt.Sprintf("callback: encode error reply: %v", err))
	}
	return reply
}

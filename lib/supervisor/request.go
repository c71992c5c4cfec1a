// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/gorick/lib/wire"
)

// Request sends request to the companion and returns its reply. An
// active reply (the companion asking the host something) leaves the
// request outstanding: answer it with Send and collect the next reply
// with Receive. A nil reply with a nil error means the companion exited.
//
// Request fails with *ProtocolMisuse if another request is outstanding
// or the connection is closed, and with *TransportError if any I/O
// fails, in which case the companion has been killed.
func (s *Supervisor) Request(ctx context.Context, request *wire.Message) (*wire.Message, error) {
	if err := s.begin("request", stateIdle); err != nil {
		return nil, err
	}
	if _, err := s.drain(); err != nil {
		return nil, s.failure("drain text", err)
	}
	s.prompted = false
	if s.interactive() {
		if err := s.writeText(s.config.Protocol.RequestCommand, true); err != nil {
			return nil, s.failure("announce request", err)
		}
	}
	if err := s.send(request); err != nil {
		return nil, err
	}
	return s.Receive(ctx)
}

// Send answers an active reply returned by Request or Receive.
func (s *Supervisor) Send(ctx context.Context, message *wire.Message) error {
	if err := s.begin("send", stateAnswering); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return s.failure("send", err)
	}
	return s.send(message)
}

// Receive reads the next reply to the outstanding request. After a
// passive reply in interactive mode it also waits for the prompt that
// marks the companion idle again.
func (s *Supervisor) Receive(ctx context.Context) (*wire.Message, error) {
	s.mutex.Lock()
	current := s.state
	s.mutex.Unlock()
	if current != stateWaiting {
		return nil, &ProtocolMisuse{Op: "receive", State: current.String()}
	}

	reply, err := s.read(ctx)
	if errors.Is(err, errQuit) {
		s.logger.Info("companion quit while a request was outstanding")
		s.stop(false)
		return nil, nil
	}
	if err != nil {
		return nil, s.failure("receive", err)
	}

	if reply.Is(wire.TagEOL, wire.EOLExiting) {
		s.logger.Info("companion is exiting")
		s.stop(false)
		return nil, nil
	}
	if reply.IsActive() {
		s.setState(stateAnswering)
		return reply, nil
	}
	if s.interactive() && !s.prompted {
		if _, err := s.waitPrompt(ctx); errors.Is(err, errQuit) {
			s.stop(false)
			return reply, nil
		} else if err != nil {
			return nil, s.failure("wait for prompt", err)
		}
	}
	s.setState(stateIdle)
	return reply, nil
}

// send writes every packet of message to the data pipe.
func (s *Supervisor) send(message *wire.Message) error {
	for _, packet := range message.Packets() {
		if len(packet.Data) == 0 {
			continue
		}
		if _, err := s.dataOut.Write(packet.Data); err != nil {
			return s.failure("send", err)
		}
		if s.config.Trace {
			s.logger.Debug("sent packet",
				"elem", packet.Elem,
				"count", packet.Count,
				"size", humanize.Bytes(uint64(len(packet.Data))),
			)
		}
	}
	s.traceMessage("sent message", message)
	return nil
}

// read pulls one complete message off the data pipe.
func (s *Supervisor) read(ctx context.Context) (*wire.Message, error) {
	reader := wire.NewReader()
	for {
		packet, err := reader.Next()
		if err != nil {
			return nil, err
		}
		if packet == nil {
			break
		}
		if err := s.fill(ctx, packet.Data); err != nil {
			return nil, err
		}
		if s.config.Trace {
			s.logger.Debug("received packet",
				"elem", packet.Elem,
				"count", packet.Count,
				"size", humanize.Bytes(uint64(len(packet.Data))),
			)
		}
	}
	message := reader.Message()
	s.traceMessage("received message", message)
	return message, nil
}

func (s *Supervisor) traceMessage(event string, message *wire.Message) {
	if !s.config.Trace {
		return
	}
	digest := blake3.Sum256(message.Bytes())
	s.logger.Debug(event,
		"message", message.String(),
		"size", humanize.Bytes(uint64(message.Size())),
		"digest", hex.EncodeToString(digest[:8]),
	)
}

// failure kills the companion and wraps err as a TransportError.
// Errors that are already transport errors pass through.
func (s *Supervisor) failure(op string, err error) error {
	var transport *TransportError
	if errors.As(err, &transport) {
		return err
	}
	s.logger.Error("companion transport failed, killing it", "op", op, "error", err)
	s.stop(true)
	return &TransportError{Op: op, Err: err}
}

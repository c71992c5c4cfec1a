// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/bureau-foundation/gorick/lib/wire"
)

// Responder answers the requests the companion makes in terminal mode.
// *callback.Server implements it.
type Responder interface {
	// Start resets the responder for a new terminal session.
	Start()
	// Reply answers one request. A false second result ends terminal
	// mode; the request that ended it gets no reply.
	Reply(request *wire.Message) (*wire.Message, bool)
	// Entered reports whether the companion actually entered terminal
	// mode, as judged from the requests seen so far.
	Entered() bool
	// Final is the handshake message that releases the companion from
	// terminal mode.
	Final() (*wire.Message, error)
}

// EnterTerminal hands the host's input to the companion. Prompts are
// shown to the user and each line typed is forwarded; requests from the
// companion are answered by responder. It returns when responder ends
// the session, when the companion quits, or when host input reaches
// end of file (which stops the companion).
func (s *Supervisor) EnterTerminal(ctx context.Context, responder Responder) error {
	if !s.interactive() {
		return &ProtocolMisuse{Op: "terminal", State: "in batch mode"}
	}
	if err := s.transition("terminal", stateIdle, stateTerminal); err != nil {
		return err
	}
	defer s.setState(stateIdle)

	if _, err := s.drain(); err != nil {
		return s.terminalExit(err)
	}
	responder.Start()
	s.logger.Info("entering terminal mode")
	if err := s.writeText(s.config.Protocol.TerminalCommand, true); err != nil {
		return s.failure("enter terminal", err)
	}

	lines := s.newLineReader()
	for {
		ready, prompt, err := s.await(ctx, true, nil)
		if err != nil {
			return s.terminalExit(err)
		}
		if ready {
			request, err := s.read(ctx)
			if err != nil {
				return s.terminalExit(err)
			}
			reply, more := responder.Reply(request)
			if !more {
				break
			}
			if err := s.send(reply); err != nil {
				return err
			}
			continue
		}

		line, err := lines.ReadLine(prompt)
		if errors.Is(err, io.EOF) {
			s.logger.Info("terminal input ended, stopping companion")
			return s.Kill(true)
		}
		if err != nil {
			return s.failure("read terminal input", err)
		}
		if err := s.writeText(line, true); err != nil {
			return s.failure("forward terminal input", err)
		}
	}

	if responder.Entered() {
		if _, err := s.drain(); err != nil {
			return s.terminalExit(err)
		}
		final, err := responder.Final()
		if err != nil {
			return s.failure("leave terminal", err)
		}
		if err := s.send(final); err != nil {
			return err
		}
	} else {
		s.logger.Warn("companion never entered terminal mode")
	}
	if _, err := s.waitPrompt(ctx); err != nil {
		return s.terminalExit(err)
	}
	s.logger.Info("left terminal mode")
	return nil
}

// terminalExit maps a wait error inside terminal mode: the quit prompt
// ends the session cleanly, anything else is a transport failure.
func (s *Supervisor) terminalExit(err error) error {
	if errors.Is(err, errQuit) {
		s.logger.Info("companion quit from terminal mode")
		s.stop(false)
		return nil
	}
	return s.failure("terminal", err)
}

// lineReader reads host input lines. On a real terminal it uses a line
// editor with history; otherwise it reads plain lines.
type lineReader struct {
	fd     int
	editor *term.Terminal
	plain  *bufio.Reader
	output io.Writer
}

func (s *Supervisor) newLineReader() *lineReader {
	if f, ok := s.input.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		screen := struct {
			io.Reader
			io.Writer
		}{f, s.output}
		return &lineReader{fd: int(f.Fd()), editor: term.NewTerminal(screen, "")}
	}
	return &lineReader{plain: bufio.NewReader(s.input), output: s.output}
}

// ReadLine shows prompt and returns one line without its terminator.
func (r *lineReader) ReadLine(prompt string) (string, error) {
	if r.editor != nil {
		state, err := term.MakeRaw(r.fd)
		if err != nil {
			return "", fmt.Errorf("set terminal raw mode: %w", err)
		}
		defer term.Restore(r.fd, state)
		r.editor.SetPrompt(prompt)
		return r.editor.ReadLine()
	}

	if _, err := io.WriteString(r.output, prompt); err != nil {
		return "", err
	}
	line, err := r.plain.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package companiontest

import (
	"bufio"
	encbinary "encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gorick/lib/wire"
)

// Prompts printed on the text surface.
const (
	Prompt     = "> "
	QuitPrompt = "PYORICK-QUIT> "
)

// Main runs the companion as a child process and returns its exit
// status. args are the arguments after the program name: flags, then
// the companion's read and write descriptor numbers.
//
// Flags:
//
//	--batch         serve requests from the read descriptor with no text protocol
//	--ignore-quit   ignore quit and end of input, so only a kill stops the process
//	--banner TEXT   print TEXT before the startup handshake
//	--exit-early    exit with status 3 before the handshake
//	--log-file PATH write JSON request logs to PATH
//	--corrupt MODE  after the handshake answer every request with a bad
//	                reply: "truncated" writes half a header and closes the
//	                reply pipe, "unknown-tag" writes a header with tag 99
func Main(args []string) int {
	return run(args, os.Stdin, os.Stdout, os.Stderr)
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("companion", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	batch := flags.Bool("batch", false, "serve requests with no text protocol")
	ignoreQuit := flags.Bool("ignore-quit", false, "ignore quit and end of input")
	banner := flags.String("banner", "", "text printed before the handshake")
	exitEarly := flags.Bool("exit-early", false, "exit before the handshake")
	logFile := flags.String("log-file", "", "JSON request log")
	corrupt := flags.String("corrupt", "", "bad reply mode: truncated or unknown-tag")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	switch *corrupt {
	case "", corruptTruncated, corruptUnknownTag:
	default:
		fmt.Fprintf(stderr, "companion: unknown --corrupt mode %q\n", *corrupt)
		return 2
	}
	if flags.NArg() < 2 {
		fmt.Fprintln(stderr, "companion: expecting read and write descriptor numbers")
		return 2
	}
	requests, err := descriptor(flags.Arg(0), "requests")
	if err != nil {
		fmt.Fprintln(stderr, "companion:", err)
		return 2
	}
	replies, err := descriptor(flags.Arg(1), "replies")
	if err != nil {
		fmt.Fprintln(stderr, "companion:", err)
		return 2
	}

	logger := slog.New(slog.DiscardHandler)
	if *logFile != "" {
		file, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintln(stderr, "companion:", err)
			return 2
		}
		defer file.Close()
		logger = slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	if *banner != "" {
		fmt.Fprintln(stdout, *banner)
	}
	if *exitEarly {
		return 3
	}

	s := &session{
		stdout:   stdout,
		lines:    bufio.NewReader(stdin),
		requests: requests,
		replies:  replies,
	}
	s.in = NewInterpreter(stdout, WithLogger(logger))
	s.in.ignoreQuit = *ignoreQuit
	s.in.control = s.control

	if *batch {
		s.corrupt = *corrupt
		return s.serveBatch()
	}
	// The startup EXEC arrives on the request pipe with no text
	// announcement.
	if err := s.serve(); err != nil {
		fmt.Fprintln(stderr, "companion: handshake:", err)
		return 1
	}
	s.corrupt = *corrupt
	return s.interact(*ignoreQuit)
}

func descriptor(arg, name string) (*os.File, error) {
	fd, err := strconv.Atoi(arg)
	if err != nil || fd < 0 {
		return nil, fmt.Errorf("bad %s descriptor %q", name, arg)
	}
	return os.NewFile(uintptr(fd), name), nil
}

const (
	corruptTruncated  = "truncated"
	corruptUnknownTag = "unknown-tag"
)

type session struct {
	in       *Interpreter
	stdout   io.Writer
	lines    *bufio.Reader
	requests io.Reader
	replies  io.WriteCloser
	terminal bool
	corrupt  string
}

// host sends a request of the companion's own and reads the answer.
func (s *session) host(request *wire.Message) (*wire.Message, error) {
	if _, err := request.WriteTo(s.replies); err != nil {
		return nil, err
	}
	return wire.ReadMessage(s.requests)
}

// serve reads one request from the pipe and writes its reply.
func (s *session) serve() error {
	request, err := wire.ReadMessage(s.requests)
	if err != nil {
		return err
	}
	if s.corrupt != "" {
		return s.badReply()
	}
	reply := s.in.Handle(request, s.host)
	_, err = reply.WriteTo(s.replies)
	return err
}

// badReply writes a reply the host must reject.
func (s *session) badReply() error {
	switch s.corrupt {
	case corruptTruncated:
		if _, err := s.replies.Write([]byte{3, 0}); err != nil {
			return err
		}
		return s.replies.Close()
	default:
		header := encbinary.NativeEndian.AppendUint64(nil, 99)
		header = encbinary.NativeEndian.AppendUint64(header, 0)
		_, err := s.replies.Write(header)
		return err
	}
}

func (s *session) serveBatch() int {
	for !s.in.Quitting() {
		if err := s.serve(); err != nil {
			if errors.Is(err, io.EOF) {
				return 0
			}
			return 1
		}
	}
	return 0
}

// control implements the pyorick builtin: no argument serves one
// request, 1 is the startup handshake, -1 enters terminal mode.
func (s *session) control(mode int64) error {
	switch mode {
	case 0:
		return s.serve()
	case 1:
		return nil
	case -1:
		s.terminal = true
		return nil
	}
	return fmt.Errorf("unknown mode %d", mode)
}

func (s *session) interact(ignoreQuit bool) int {
	for !s.in.Quitting() {
		fmt.Fprint(s.stdout, Prompt)
		line, err := s.lines.ReadString('\n')
		if err != nil && line == "" {
			if ignoreQuit {
				for {
					time.Sleep(time.Hour)
				}
			}
			return 0
		}
		line = strings.TrimRight(line, "\r\n")
		if s.terminal && strings.TrimSpace(line) == "py" {
			if err := s.leaveTerminal(); err != nil {
				fmt.Fprintln(s.stdout, "ERROR (*main*)", err)
			}
			continue
		}
		s.in.Run(line, s.host)
	}
	if s.terminal {
		fmt.Fprint(s.stdout, QuitPrompt)
	}
	return 0
}

// leaveTerminal tells the host terminal mode is over and collects the
// host's final message.
func (s *session) leaveTerminal() error {
	s.terminal = false
	_, err := s.host(s.in.encode(wire.Exec("")))
	return err
}

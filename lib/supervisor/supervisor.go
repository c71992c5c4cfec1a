// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/gorick/lib/clock"
	"github.com/bureau-foundation/gorick/lib/wire"
)

// Child-side numbers of the two binary pipes. exec.Cmd.ExtraFiles
// places its entries at descriptor 3 onward.
const (
	childReadFD  = 3
	childWriteFD = 4
)

type state int

const (
	stateIdle state = iota
	stateWaiting
	stateAnswering
	stateTerminal
	stateClosed
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateWaiting:
		return "a request is outstanding"
	case stateAnswering:
		return "an active reply awaits an answer"
	case stateTerminal:
		return "in terminal mode"
	default:
		return "the connection is closed"
	}
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = logger }
}

// WithClock sets the time source for grace periods and prompt
// timeouts.
func WithClock(c clock.Clock) Option {
	return func(s *Supervisor) { s.clock = c }
}

// WithOutput sets where companion text is echoed. The default is
// standard output.
func WithOutput(w io.Writer) Option {
	return func(s *Supervisor) { s.output = w }
}

// WithInput sets where terminal mode reads host input lines. The
// default is standard input.
func WithInput(r io.Reader) Option {
	return func(s *Supervisor) { s.input = r }
}

// Supervisor owns one companion process.
type Supervisor struct {
	config  Config
	logger  *slog.Logger
	clock   clock.Clock
	output  io.Writer
	input   io.Reader
	session string
	codec   *wire.Codec

	cmd      *exec.Cmd
	exited   chan struct{}
	waitErr  error
	stopOnce sync.Once

	// text reads the child's output; textInput writes its input. In
	// pty mode both are the master.
	text      *os.File
	textInput *os.File
	dataIn    *os.File
	dataOut   *os.File
	textFD    int
	dataFD    int

	transcript *transcript
	tail       []byte
	textClosed bool
	prompted   bool

	mutex sync.Mutex
	state state
}

// Start launches the companion described by config and, in interactive
// mode, completes the startup handshake under ctx. The process outlives
// ctx; stop it with Kill.
func Start(ctx context.Context, config Config, options ...Option) (*Supervisor, error) {
	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return nil, &SpawnError{Command: config.Command, Err: err}
	}
	s := &Supervisor{
		config:     config,
		logger:     slog.New(slog.DiscardHandler),
		clock:      clock.Real(),
		output:     os.Stdout,
		input:      os.Stdin,
		session:    uuid.NewString(),
		codec:      wire.NewCodec(wire.Options{}),
		exited:     make(chan struct{}),
		transcript: newTranscript(config.TranscriptSize),
	}
	for _, option := range options {
		option(s)
	}
	s.logger = s.logger.With("session", s.session)

	if err := s.spawn(); err != nil {
		return nil, &SpawnError{Command: config.Command, Err: err}
	}
	s.logger.Info("companion started",
		"command", config.Command,
		"pid", s.cmd.Process.Pid,
		"text", config.Text,
		"startup", config.Startup,
	)

	if config.Startup == Interactive {
		if err := s.handshake(ctx); err != nil {
			s.stop(true)
			return nil, &SpawnError{Command: config.Command, Err: fmt.Errorf("handshake: %w", err)}
		}
	}
	return s, nil
}

// spawn creates the pipes and the text surface and starts the child.
// On failure every descriptor it opened is closed.
func (s *Supervisor) spawn() (err error) {
	var parentSide, childSide []*os.File
	defer func() {
		for _, f := range childSide {
			f.Close()
		}
		if err != nil {
			for _, f := range parentSide {
				f.Close()
			}
		}
	}()

	toChild, hostWrite, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create request pipe: %w", err)
	}
	childSide, parentSide = append(childSide, toChild), append(parentSide, hostWrite)
	hostRead, fromChild, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create reply pipe: %w", err)
	}
	childSide, parentSide = append(childSide, fromChild), append(parentSide, hostRead)

	arguments := append([]string{}, s.config.Arguments...)
	arguments = append(arguments, strconv.Itoa(childReadFD), strconv.Itoa(childWriteFD))
	arguments = append(arguments, s.config.Extra...)
	cmd := exec.Command(s.config.Command, arguments...)
	cmd.ExtraFiles = []*os.File{toChild, fromChild}
	cmd.Dir = s.config.Dir
	cmd.Env = s.config.Env

	switch s.config.Text {
	case TextPTY:
		master, slave, err := pty.Open()
		if err != nil {
			return fmt.Errorf("allocate pty: %w", err)
		}
		childSide, parentSide = append(childSide, slave), append(parentSide, master)
		if err := disableEcho(slave); err != nil {
			return err
		}
		cmd.Stdin, cmd.Stdout, cmd.Stderr = slave, slave, slave
		cmd.SysProcAttr = &syscall.SysProcAttr{
			Setsid:  true,
			Setctty: true,
			Ctty:    0, // fd 0 in child = slave PTY
		}
		s.text, s.textInput = master, master
	case TextPipe:
		stdin, stdinWrite, err := os.Pipe()
		if err != nil {
			return fmt.Errorf("create stdin pipe: %w", err)
		}
		childSide, parentSide = append(childSide, stdin), append(parentSide, stdinWrite)
		stdoutRead, stdout, err := os.Pipe()
		if err != nil {
			return fmt.Errorf("create stdout pipe: %w", err)
		}
		childSide, parentSide = append(childSide, stdout), append(parentSide, stdoutRead)
		cmd.Stdin, cmd.Stdout, cmd.Stderr = stdin, stdout, stdout
		// A separate process group keeps terminal interrupts aimed at
		// the host from reaching the child unforwarded.
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		s.text, s.textInput = stdoutRead, stdinWrite
	}

	if err := cmd.Start(); err != nil {
		return err
	}
	s.cmd = cmd
	s.dataIn, s.dataOut = hostRead, hostWrite
	s.textFD = int(s.text.Fd())
	s.dataFD = int(s.dataIn.Fd())

	go func() {
		s.waitErr = cmd.Wait()
		close(s.exited)
	}()
	return nil
}

// disableEcho turns off terminal echo on the pty so text written to
// the companion does not come back as output.
func disableEcho(tty *os.File) error {
	fd := int(tty.Fd())
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("read pty attributes: %w", err)
	}
	termios.Lflag &^= unix.ECHO | unix.ECHONL
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("disable pty echo: %w", err)
	}
	return nil
}

// handshake sends the startup command as an EXEC message, without the
// request announcement, and waits for its reply and the first prompt.
func (s *Supervisor) handshake(ctx context.Context) error {
	request, err := s.codec.Encode(wire.Exec(s.config.Protocol.StartupCommand))
	if err != nil {
		return err
	}
	if err := s.begin("handshake", stateIdle); err != nil {
		return err
	}
	if err := s.send(request); err != nil {
		return err
	}
	reply, err := s.Receive(ctx)
	if err != nil {
		return err
	}
	if reply == nil {
		return fmt.Errorf("companion exited during startup")
	}
	if reply.IsActive() {
		return fmt.Errorf("unexpected active reply %s", reply)
	}
	if reply.Is(wire.TagEOL, wire.EOLError) {
		return fmt.Errorf("companion rejected the startup command")
	}
	return nil
}

// Session returns the id attached to this supervisor's log records.
func (s *Supervisor) Session() string { return s.session }

// Interactive reports whether the supervisor runs the prompt protocol.
func (s *Supervisor) Interactive() bool { return s.interactive() }

func (s *Supervisor) interactive() bool { return s.config.Startup == Interactive }

// Alive reports whether the companion is running and usable.
func (s *Supervisor) Alive() bool {
	s.mutex.Lock()
	closed := s.state == stateClosed
	s.mutex.Unlock()
	if closed {
		return false
	}
	select {
	case <-s.exited:
		return false
	default:
		return true
	}
}

// TextOffset returns the current position in the text transcript.
func (s *Supervisor) TextOffset() uint64 { return s.transcript.Offset() }

// TextSince returns the companion text received after offset, or as
// much of it as the transcript still holds.
func (s *Supervisor) TextSince(offset uint64) string {
	return latin1(s.transcript.Since(offset))
}

func (s *Supervisor) promptTimeout() <-chan time.Time {
	return clock.Timeout(s.clock, s.config.PromptTimeout)
}

// begin moves from the required state into the waiting state.
func (s *Supervisor) begin(op string, required state) error {
	return s.transition(op, required, stateWaiting)
}

func (s *Supervisor) transition(op string, from, to state) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state != from {
		return &ProtocolMisuse{Op: op, State: s.state.String()}
	}
	s.state = to
	return nil
}

func (s *Supervisor) setState(to state) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state != stateClosed {
		s.state = to
	}
}

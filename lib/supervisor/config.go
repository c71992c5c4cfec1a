// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"errors"
	"fmt"
	"time"
)

// TextMode selects how the companion's standard streams are connected.
type TextMode string

const (
	// TextPTY gives the child a pseudo-terminal with echo disabled.
	// Interrupts reach it as a typed control-C.
	TextPTY TextMode = "pty"
	// TextPipe gives the child a stdin pipe and a single pipe shared
	// by stdout and stderr. Interrupts reach it as SIGINT.
	TextPipe TextMode = "pipe"
)

// StartupMode selects whether the text surface takes part in the
// protocol.
type StartupMode string

const (
	// Interactive mode sends the startup handshake, announces every
	// request on the text surface, and waits for prompts.
	Interactive StartupMode = "interactive"
	// Batch mode talks over the binary pipes only.
	Batch StartupMode = "batch"
)

// Protocol holds the text commands and prompts of the companion's
// bootstrap code.
type Protocol struct {
	// RequestCommand tells the companion to read one request from its
	// binary pipe.
	RequestCommand string `yaml:"request_command" toml:"request_command"`
	// StartupCommand is sent as an EXEC message, without the request
	// command, to complete the interactive handshake.
	StartupCommand string `yaml:"startup_command" toml:"startup_command"`
	// TerminalCommand switches the companion into terminal mode.
	TerminalCommand string `yaml:"terminal_command" toml:"terminal_command"`
	// QuitCommand asks the companion to exit.
	QuitCommand string `yaml:"quit_command" toml:"quit_command"`
	// PromptSuffix ends every prompt line.
	PromptSuffix string `yaml:"prompt_suffix" toml:"prompt_suffix"`
	// QuitPrompt is the prompt the companion prints as it exits.
	QuitPrompt string `yaml:"quit_prompt" toml:"quit_prompt"`
}

// DefaultProtocol returns the commands understood by the stock
// companion bootstrap.
func DefaultProtocol() Protocol {
	return Protocol{
		RequestCommand:  "pyorick;",
		StartupCommand:  "pyorick, 1;",
		TerminalCommand: "pyorick, -1;",
		QuitCommand:     "\nquit;",
		PromptSuffix:    "> ",
		QuitPrompt:      "PYORICK-QUIT> ",
	}
}

const (
	// DefaultKillGrace is how long Kill waits for the companion to exit
	// on its own before killing it.
	DefaultKillGrace = 2 * time.Second

	// DefaultTranscriptSize bounds the retained text transcript.
	DefaultTranscriptSize = 256 * 1024

	// pollInterval is the longest a poll call blocks before the loop
	// rechecks cancellation, timers, and interrupts.
	pollInterval = 50 * time.Millisecond
)

// Config describes how to launch and talk to the companion.
type Config struct {
	// Command is the companion executable, resolved through PATH.
	Command string
	// Arguments precede the two descriptor numbers.
	Arguments []string
	// Extra follow the two descriptor numbers.
	Extra []string
	// Dir is the child's working directory; empty means inherit.
	Dir string
	// Env is the child's environment; nil means inherit.
	Env []string

	Text    TextMode
	Startup StartupMode

	Protocol Protocol

	// KillGrace bounds the wait for a voluntary exit. Zero selects
	// DefaultKillGrace; a negative value kills without waiting.
	KillGrace time.Duration
	// PromptTimeout bounds each wait for a prompt. Zero waits forever.
	PromptTimeout time.Duration
	// TranscriptSize bounds the retained text. Zero selects
	// DefaultTranscriptSize.
	TranscriptSize int
	// ForwardInterrupts relays SIGINT received by the host during a
	// blocked wait to the companion.
	ForwardInterrupts bool
	// Trace logs every packet and a digest of every message at debug
	// level.
	Trace bool
}

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	if c.Text == "" {
		c.Text = TextPTY
	}
	if c.Startup == "" {
		c.Startup = Interactive
	}
	defaults := DefaultProtocol()
	fill := func(field *string, value string) {
		if *field == "" {
			*field = value
		}
	}
	fill(&c.Protocol.RequestCommand, defaults.RequestCommand)
	fill(&c.Protocol.StartupCommand, defaults.StartupCommand)
	fill(&c.Protocol.TerminalCommand, defaults.TerminalCommand)
	fill(&c.Protocol.QuitCommand, defaults.QuitCommand)
	fill(&c.Protocol.PromptSuffix, defaults.PromptSuffix)
	fill(&c.Protocol.QuitPrompt, defaults.QuitPrompt)
	if c.KillGrace == 0 {
		c.KillGrace = DefaultKillGrace
	}
	if c.TranscriptSize <= 0 {
		c.TranscriptSize = DefaultTranscriptSize
	}
	return c
}

// Validate checks c, treating zero fields as their defaults.
func (c Config) Validate() error {
	c = c.withDefaults()
	var errs []error
	if c.Command == "" {
		errs = append(errs, errors.New("command is required"))
	}
	switch c.Text {
	case TextPTY, TextPipe:
	default:
		errs = append(errs, fmt.Errorf("text mode must be %q or %q, got %q", TextPTY, TextPipe, c.Text))
	}
	switch c.Startup {
	case Interactive, Batch:
	default:
		errs = append(errs, fmt.Errorf("startup mode must be %q or %q, got %q", Interactive, Batch, c.Startup))
	}
	if c.Startup == Interactive && c.Protocol.PromptSuffix == "" {
		errs = append(errs, errors.New("interactive startup needs a prompt suffix"))
	}
	return errors.Join(errs...)
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/text/encoding/charmap"
)

const (
	textReadSize = 16384
	// maxPromptLength bounds the unterminated line kept for prompt
	// detection.
	maxPromptLength = 1024
)

// errQuit reports that the companion printed its quit prompt.
var errQuit = errors.New("companion quit")

// absorb records a chunk of companion text and reports the prompt it
// completes, if any. The prompt itself is kept out of the echoed
// output; everything else is echoed as it arrives.
func (s *Supervisor) absorb(chunk []byte) string {
	s.transcript.Write(chunk)

	if cut := bytes.LastIndexByte(chunk, '\n'); cut >= 0 {
		s.tail = append(s.tail[:0], chunk[cut+1:]...)
	} else {
		s.tail = append(s.tail, chunk...)
	}
	if len(s.tail) > maxPromptLength {
		s.tail = append(s.tail[:0], s.tail[len(s.tail)-maxPromptLength:]...)
	}

	echo := chunk
	prompt := ""
	if s.interactive() && bytes.HasSuffix(s.tail, []byte(s.config.Protocol.PromptSuffix)) {
		prompt = latin1(s.tail)
		echo = chunk[:len(chunk)-min(len(chunk), len(s.tail))]
		s.tail = s.tail[:0]
	}
	if len(echo) > 0 {
		text := latin1(echo)
		s.logger.Debug("companion output", "text", text)
		if _, err := io.WriteString(s.output, text); err != nil {
			s.logger.Warn("echo companion output", "error", err)
		}
	}
	if prompt != "" {
		s.logger.Debug("companion prompt", "prompt", prompt)
	}
	return prompt
}

// readText performs one read of the text surface. It returns
// io.EOF once the surface has closed.
func (s *Supervisor) readText() (string, error) {
	buffer := make([]byte, textReadSize)
	for {
		n, err := unix.Read(s.textFD, buffer)
		if err == unix.EINTR {
			continue
		}
		if n > 0 {
			return s.absorb(buffer[:n]), nil
		}
		// A pty master reports EIO once the last slave descriptor is
		// closed; a pipe reports a zero-length read.
		if err == nil || err == unix.EIO {
			s.textClosed = true
			return "", io.EOF
		}
		return "", err
	}
}

// drain consumes whatever text is already pending without blocking and
// returns the last prompt seen. The companion often emits a burst in
// several writes, so draining stops only after a few consecutive empty
// polls.
func (s *Supervisor) drain() (string, error) {
	last := ""
	for empty := 0; empty < 3 && !s.textClosed; {
		fds := []unix.PollFd{{Fd: int32(s.textFD), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return last, err
		}
		if n == 0 || fds[0].Revents == 0 {
			empty++
			continue
		}
		prompt, err := s.readText()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return last, err
		}
		if prompt != "" {
			last = prompt
			if prompt == s.config.Protocol.QuitPrompt {
				return last, errQuit
			}
		}
	}
	return last, nil
}

// writeText sends a line of text to the companion's input. Text that
// has no Latin-1 encoding is replaced with a blank line.
func (s *Supervisor) writeText(text string, newline bool) error {
	if newline && !bytes.HasSuffix([]byte(text), []byte("\n")) {
		text += "\n"
	}
	encoded, err := charmap.ISO8859_1.NewEncoder().String(text)
	if err != nil {
		s.logger.Warn("text for companion is not Latin-1, sending a blank line instead", "text", text)
		encoded = "\n"
	}
	s.logger.Debug("companion input", "text", text)
	if _, err := s.textInput.WriteString(encoded); err != nil {
		return fmt.Errorf("write text: %w", err)
	}
	return nil
}

// interrupt relays a host interrupt to the companion.
func (s *Supervisor) interrupt() {
	s.logger.Info("forwarding interrupt to companion")
	var err error
	if s.config.Text == TextPTY {
		_, err = s.textInput.Write([]byte{0x03})
	} else {
		err = s.cmd.Process.Signal(os.Interrupt)
	}
	if err != nil {
		s.logger.Warn("forward interrupt", "error", err)
	}
}

func latin1(b []byte) string {
	text, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(text)
}

func milliseconds(d time.Duration) int {
	return int(d / time.Millisecond)
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sys/unix"
)

var errPromptTimeout = errors.New("timed out waiting for the companion prompt")

// await services the text surface until the data pipe becomes
// readable (when wantData is set) or a prompt arrives. It returns
// ready=true for the former and the prompt text for the latter. The
// quit prompt yields errQuit. Cancelling ctx or the timeout firing
// ends the wait with an error.
func (s *Supervisor) await(ctx context.Context, wantData bool, timeout <-chan time.Time) (ready bool, prompt string, err error) {
	var interrupts chan os.Signal
	if s.config.ForwardInterrupts {
		interrupts = make(chan os.Signal, 1)
		signal.Notify(interrupts, os.Interrupt)
		defer signal.Stop(interrupts)
	}

	for {
		select {
		case <-ctx.Done():
			return false, "", ctx.Err()
		case <-timeout:
			return false, "", errPromptTimeout
		case <-interrupts:
			s.interrupt()
		default:
		}

		var fds []unix.PollFd
		textIndex, dataIndex := -1, -1
		if !s.textClosed {
			textIndex = len(fds)
			fds = append(fds, unix.PollFd{Fd: int32(s.textFD), Events: unix.POLLIN})
		}
		if wantData {
			dataIndex = len(fds)
			fds = append(fds, unix.PollFd{Fd: int32(s.dataFD), Events: unix.POLLIN})
		}
		if len(fds) == 0 {
			return false, "", fmt.Errorf("text surface closed: %w", io.ErrUnexpectedEOF)
		}

		n, err := unix.Poll(fds, milliseconds(pollInterval))
		if err == unix.EINTR || n == 0 {
			continue
		}
		if err != nil {
			return false, "", fmt.Errorf("poll: %w", err)
		}

		// Text is serviced before data so output printed ahead of a
		// reply is echoed ahead of it.
		if textIndex >= 0 && fds[textIndex].Revents != 0 {
			prompt, err := s.readText()
			switch {
			case errors.Is(err, io.EOF):
				s.logger.Debug("companion text surface closed")
			case err != nil:
				return false, "", fmt.Errorf("read text: %w", err)
			case prompt == s.config.Protocol.QuitPrompt:
				return false, prompt, errQuit
			case prompt != "":
				return false, prompt, nil
			}
		}
		if dataIndex >= 0 && fds[dataIndex].Revents != 0 {
			return true, "", nil
		}
	}
}

// waitPrompt blocks until the companion prints a prompt.
func (s *Supervisor) waitPrompt(ctx context.Context) (string, error) {
	timeout := s.promptTimeout()
	for {
		_, prompt, err := s.await(ctx, false, timeout)
		if err != nil || prompt != "" {
			return prompt, err
		}
	}
}

// fill reads exactly len(buffer) bytes from the data pipe, servicing
// the text surface while the companion is still producing them. A
// prompt seen while filling is remembered in s.prompted.
func (s *Supervisor) fill(ctx context.Context, buffer []byte) error {
	for filled := 0; filled < len(buffer); {
		ready, prompt, err := s.await(ctx, true, nil)
		if err != nil {
			return err
		}
		if !ready {
			if prompt != "" {
				s.prompted = true
			}
			continue
		}
		n, err := unix.Read(s.dataFD, buffer[filled:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("read data: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("read data: %w", io.ErrUnexpectedEOF)
		}
		filled += n
	}
	return nil
}

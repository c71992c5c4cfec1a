// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"errors"
	"io"
	"time"

	"golang.org/x/sys/unix"
)

type stopMode int

const (
	// stopQuit asks the companion to quit, then waits out the grace
	// period.
	stopQuit stopMode = iota
	// stopWait waits out the grace period for a companion that is
	// already exiting.
	stopWait
	// stopNow kills immediately.
	stopNow
)

// Kill stops the companion and releases its descriptors. A graceful
// kill sends the quit command and gives the companion the configured
// grace period to exit; otherwise it is killed at once. Kill is
// idempotent: only the first call has any effect.
//
// Kill must not race with a request running on another goroutine;
// cancel that request's context instead.
func (s *Supervisor) Kill(graceful bool) error {
	mode := stopNow
	if graceful {
		mode = stopQuit
	}
	s.shutdown(mode)
	return nil
}

// stop ends a session the companion itself is leaving (exit reply,
// quit prompt) or that failed. A failure kills at once.
func (s *Supervisor) stop(failed bool) {
	if failed {
		s.shutdown(stopNow)
		return
	}
	s.shutdown(stopWait)
}

func (s *Supervisor) shutdown(mode stopMode) {
	s.stopOnce.Do(func() {
		s.mutex.Lock()
		s.state = stateClosed
		s.mutex.Unlock()

		if mode == stopQuit && !s.hasExited() {
			if err := s.writeText(s.config.Protocol.QuitCommand, true); err != nil {
				s.logger.Debug("send quit command", "error", err)
			}
		}
		// End of input also tells the companion to exit. A pty master
		// carries output too, so it stays open until the child is gone.
		if s.textInput != s.text {
			s.textInput.Close()
		}

		if mode == stopNow {
			s.signalKill()
		} else {
			s.awaitExit(s.clock.After(s.config.KillGrace))
		}
		<-s.exited

		s.text.Close()
		s.dataIn.Close()
		s.dataOut.Close()

		var status string
		if s.waitErr != nil {
			status = s.waitErr.Error()
		} else {
			status = "exit status 0"
		}
		s.logger.Info("companion stopped", "status", status)
	})
}

// awaitExit keeps the text surface drained until the child exits or
// grace fires, killing it in the latter case.
func (s *Supervisor) awaitExit(grace <-chan time.Time) {
	for {
		if s.textClosed {
			select {
			case <-s.exited:
				return
			case <-grace:
				s.signalKill()
				return
			}
		}
		select {
		case <-s.exited:
			return
		case <-grace:
			s.signalKill()
			return
		default:
		}
		fds := []unix.PollFd{{Fd: int32(s.textFD), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, milliseconds(pollInterval))
		if err != nil && err != unix.EINTR {
			s.textClosed = true
			continue
		}
		if n > 0 && fds[0].Revents != 0 {
			if _, err := s.readText(); err != nil && !errors.Is(err, io.EOF) {
				s.textClosed = true
			}
		}
	}
}

func (s *Supervisor) signalKill() {
	if s.hasExited() {
		return
	}
	s.logger.Warn("killing companion", "pid", s.cmd.Process.Pid)
	if err := s.cmd.Process.Kill(); err != nil {
		s.logger.Debug("kill companion", "error", err)
	}
}

func (s *Supervisor) hasExited() bool {
	select {
	case <-s.exited:
		return true
	default:
		return false
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handle

import (
	"errors"
	"fmt"
	"strings"
)

// ErrExited is returned by requests the companion answered by exiting.
var ErrExited = errors.New("companion exited")

// ErrUnexpectedRequest is returned when the companion, while serving a
// request, asks the host something no namespace can answer. The
// companion is sent an error reply and the connection stays usable.
var ErrUnexpectedRequest = errors.New("companion sent an unrecognized request")

// errUnrepresentable marks an EOL(2) reply.
var errUnrepresentable = errors.New("companion result has no wire representation")

// RemoteError is an error reply from the companion. Text holds what the
// companion printed while handling the request, with terminal escape
// sequences removed.
type RemoteError struct {
	Op   string
	Name string
	Text string
}

func (e *RemoteError) Error() string {
	message := fmt.Sprintf("companion error in %s %q", e.Op, e.Name)
	if text := strings.TrimSpace(e.Text); text != "" {
		message += ": " + text
	}
	return message
}

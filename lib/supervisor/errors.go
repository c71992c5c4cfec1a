// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import "fmt"

// SpawnError reports that the companion could not be launched or did
// not complete its startup handshake. Every descriptor opened for it
// has been released.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("start companion %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// TransportError reports an I/O failure on one of the companion's
// descriptors. The companion has been killed by the time it is
// returned.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("companion %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolMisuse reports an operation issued in a state that does not
// allow it: a second request while one is outstanding, a Send with no
// active reply to answer, or any request on a closed connection.
type ProtocolMisuse struct {
	Op    string
	State string
}

func (e *ProtocolMisuse) Error() string {
	return fmt.Sprintf("%s: not allowed while %s", e.Op, e.State)
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervisor runs the companion interpreter as a child process
// and carries wire messages to and from it.
//
// The child gets two binary pipes as inherited descriptors 3 (read) and
// 4 (write); their numbers are appended to its argument list ahead of
// any configured extra arguments. Its standard input, output and error
// are a pseudo-terminal or a pipe pair (see [TextMode]). That text
// surface is unstructured: diagnostics, results printed by the
// interpreter, and prompts ending in "> ".
//
// Both surfaces are serviced from a single poll loop so the child can
// never block on a full text buffer while the host waits for a binary
// reply. Text is echoed to the configured output, logged at debug
// level, and retained in a bounded transcript that callers can read
// back with [Supervisor.TextSince].
//
// In interactive startup mode a request is announced by writing the
// request command on the text surface before its packets are sent, and
// after every passive reply the supervisor waits for the next prompt.
// Batch mode skips both.
//
// A Supervisor carries one outstanding request at a time. Active
// replies (the companion asking the host something mid-request) are
// returned by [Supervisor.Receive] and answered with [Supervisor.Send];
// the handle package drives that loop.
package supervisor

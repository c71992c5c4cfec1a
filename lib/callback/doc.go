// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package callback answers requests the companion sends to the host.
//
// The companion calls back in two situations: while it is in terminal
// mode, where every line the user types may issue requests, and in the
// middle of an ordinary request, when companion code asks the host for
// a value. In both cases a request is an EXEC, EVAL, GETVAR, SETVAR,
// FUNCALL, SUBCALL, GETSLICE or SETSLICE message resolved against a
// [Namespace], and the answer is a data message or an EOL(1) error.
//
// [Server] adds the terminal-mode session rules on top: an EXEC (or
// SETVAR) with empty text, or an EOL(0), ends the session, and an
// unrecognized first request means the companion never entered
// terminal mode at all.
//
// [Variables] is a ready-made Namespace holding named host values and
// Go functions. Names evaluate directly; any other expression is a jq
// program (github.com/itchyny/gojq) with every variable bound as
// $name.
package callback

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package companiontest provides a stand-in for the companion
// interpreter, for tests and for the gorick-companion binary.
//
// [Interpreter] implements a small Yorick-flavoured language and
// answers every wire request the bridge sends: EXEC, EVAL, GETVAR,
// SETVAR, FUNCALL, SUBCALL, GETSLICE, SETSLICE and GETSHAPE, with hold
// slots (ids from 4, released by "_pyorick_refs, 1, id"), parking of
// unrepresentable results, and 1-based, inclusive, fastest-dimension-
// first indexing.
//
// [Main] runs an Interpreter as a child process speaking the full
// protocol: descriptors from the argument list, prompts on the text
// surface, the startup handshake, terminal mode, and the quit prompt.
// Test binaries re-exec themselves into Main from TestMain.
//
// [Loopback] runs an Interpreter in-process behind the same method set
// the supervisor offers, so the handle layer can be tested without
// spawning anything.
//
// The language:
//
//	x = expr               assignment
//	f, a, b, key=v         subroutine call
//	expr                   evaluate and print
//	f(a, b)  x(i, j)       call a function or index a value
//	x(2:5)  x(::-1)  x(-)  x(..)   ranges, new axis, ellipsis
//	[1, 2, 3]              array literal
//	+ - * / % ^ == != < > <= >=
//
// Builtins include indgen, array, numberof, dimsof, sum, typeof,
// print, error, _lst, save, range, open, openb, object, py, pyorick and
// quit. py(expr) and "py, code" call back into the host.
package companiontest

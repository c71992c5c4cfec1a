// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package handle is the host-facing API of the companion bridge.
//
// A [Conn] owns one companion connection (normally a supervised
// process, see [Open]) and serializes requests over it. Values cross
// with [Conn.Eval], [Conn.Get], and [Conn.Set]; code runs with
// [Conn.Exec]; [Conn.Terminal] hands the host terminal to the
// companion.
//
// Remote variables are named through a [Handle] with one of three
// semantics:
//
//   - [Value]: names resolve to their current decoded value.
//   - [Call]: names resolve to a [Proxy]; calls are subroutine calls
//     and indices use host conventions (0-based, row-major order,
//     exclusive stop), translated for the companion.
//   - [Evaluate]: names resolve to a [Proxy]; calls return values
//     and indices are passed through in the companion's conventions.
//
// Results the wire cannot represent (functions, file handles, other
// companion objects) come back as a [*Hold]: a proxy for a companion
// slot that keeps the object alive until released. A request that the
// companion answers with a request of its own is served by the
// connection's callback namespace before the original reply arrives.
package handle

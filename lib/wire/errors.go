// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "fmt"

// EncodeError reports a host value with no wire representation. It is
// recoverable: enable the codec fallback, or send something else.
type EncodeError struct {
	Value  any
	Reason string
	Err    error
}

func (e *EncodeError) Error() string {
	message := fmt.Sprintf("wire: cannot encode %T: %s", e.Value, e.Reason)
	if e.Err != nil {
		message += ": " + e.Err.Error()
	}
	return message
}

func (e *EncodeError) Unwrap() error { return e.Err }

// ProtocolViolation reports a tag that is not allowed where it
// appeared, or a message whose packets do not form a clause. It is
// fatal to the connection that produced it: once the packet boundaries
// are in doubt nothing after them can be trusted.
type ProtocolViolation struct {
	// Tag is the offending tag.
	Tag Tag
	// Context names where the tag appeared ("message", "list",
	// "keyword list", "argument list", "setvar value", ...).
	Context string
	Reason  string
}

func (e *ProtocolViolation) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("wire: protocol violation: %s in %s: %s", e.Tag, e.Context, e.Reason)
	}
	return fmt.Sprintf("wire: protocol violation: %s not allowed in %s", e.Tag, e.Context)
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handle

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/bureau-foundation/gorick/lib/wire"
)

// firstSlot is the lowest hold slot id the companion hands out.
const firstSlot = 4

// Hold is one reference to a companion hold slot. The companion keeps
// the slot's object until every reference is released. Indexing and
// calls go through the embedded evaluate-semantics Proxy, whose name
// is the slot id.
type Hold struct {
	*Proxy
	id int64

	once       sync.Once
	releaseErr error
}

func (c *Conn) newHold(reply any) (*Hold, error) {
	id, ok := reply.(int64)
	if !ok || id < firstSlot {
		return nil, fmt.Errorf("companion returned %v (%T) for a hold slot id", reply, reply)
	}
	return &Hold{Proxy: c.proxy(strconv.FormatInt(id, 10), Evaluate), id: id}, nil
}

// ID returns the companion slot id.
func (h *Hold) ID() int64 { return h.id }

func (h *Hold) String() string { return fmt.Sprintf("hold(%d)", h.id) }

// Hold adds a reference to the same slot. The new Hold must be released
// separately.
func (h *Hold) Hold(ctx context.Context) (*Hold, error) {
	return h.conn.hold(ctx, wire.Eval(HoldPrefix+h.name))
}

// Release drops this reference. Only the first call sends anything;
// later calls return the first call's result.
func (h *Hold) Release(ctx context.Context) error {
	h.once.Do(func() {
		h.releaseErr = h.conn.Exec(ctx, fmt.Sprintf("_pyorick_refs,1,%d", h.id))
	})
	return h.releaseErr
}

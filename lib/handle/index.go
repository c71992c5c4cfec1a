// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package handle

import (
	"fmt"
	"reflect"

	"github.com/bureau-foundation/gorick/lib/wire"
)

// remoteIndices converts host-convention indices to the companion's:
// the order is reversed, positions become 1-based, and a negative-step
// range's exclusive stop becomes inclusive. Host negative positions
// map onto the companion's count-from-end positions (-1 becomes 0, the
// last element). Markers and string keys pass through.
func remoteIndices(indices []any) ([]any, error) {
	out := make([]any, len(indices))
	for i, index := range indices {
		converted, err := remoteIndex(index)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		out[len(indices)-1-i] = converted
	}
	return out, nil
}

func remoteIndex(index any) (any, error) {
	switch x := index.(type) {
	case wire.Marker, string, nil:
		return index, nil
	case bool:
		if x {
			return int64(2), nil
		}
		return int64(1), nil
	case wire.Range:
		r := x
		r.Step = r.StepOrDefault()
		if !r.OmitStart {
			r.Start++
		}
		if !r.OmitStop && r.Step < 0 {
			r.Stop += 2
		}
		return r, nil
	case wire.Array:
		if x.Rank() != 1 {
			return nil, fmt.Errorf("index array of rank %d", x.Rank())
		}
		return remoteIndex(x.Data)
	}
	rv := reflect.ValueOf(index)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() + 1, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()) + 1, nil
	case reflect.Slice:
		positions := make([]int64, rv.Len())
		for i := range positions {
			p, err := remoteIndex(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			n, ok := p.(int64)
			if !ok {
				return nil, fmt.Errorf("index list element %d is a %T", i, rv.Index(i).Interface())
			}
			positions[i] = n
		}
		return positions, nil
	}
	return nil, fmt.Errorf("unsupported index type %T", index)
}

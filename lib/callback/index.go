// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package callback

import (
	"fmt"
	"reflect"

	"github.com/bureau-foundation/gorick/lib/wire"
)

// Index selects part of a host value. A wire.Array takes one index per
// dimension in host convention; a map takes a string key; any other
// slice takes a position, a wire.Range, or a list of positions, and
// further indices apply to each selected element.
func Index(target any, indices []any) (any, error) {
	if len(indices) == 0 {
		return target, nil
	}
	switch x := target.(type) {
	case wire.Array:
		axes, err := wire.ExpandAxes(x.Shape, indices, wire.HostIndex)
		if err != nil {
			return nil, err
		}
		return x.Select(axes)
	case map[string]any:
		key, ok := indices[0].(string)
		if !ok {
			return nil, fmt.Errorf("map index must be a string, got %T", indices[0])
		}
		value, ok := x[key]
		if !ok {
			return nil, fmt.Errorf("key %q: %w", key, ErrUndefined)
		}
		return Index(value, indices[1:])
	}

	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("cannot index %T", target)
	}
	axis, err := wire.HostIndex(indices[0], rv.Len())
	if err != nil {
		return nil, err
	}
	rest := indices[1:]
	if axis.Drop {
		return Index(rv.Index(axis.Positions[0]).Interface(), rest)
	}
	if len(rest) == 0 {
		out := reflect.MakeSlice(rv.Type(), len(axis.Positions), len(axis.Positions))
		for i, p := range axis.Positions {
			out.Index(i).Set(rv.Index(p))
		}
		return out.Interface(), nil
	}
	out := make([]any, len(axis.Positions))
	for i, p := range axis.Positions {
		item, err := Index(rv.Index(p).Interface(), rest)
		if err != nil {
			return nil, err
		}
		out[i] = item
	}
	return out, nil
}

// Store assigns value into part of target in place, with the index
// rules of [Index]. A slice value whose length matches a multi-element
// selection is stored elementwise; anything else is broadcast.
func Store(target any, indices []any, value any) error {
	if len(indices) == 0 {
		return fmt.Errorf("store into %T needs at least one index", target)
	}
	switch x := target.(type) {
	case wire.Array:
		axes, err := wire.ExpandAxes(x.Shape, indices, wire.HostIndex)
		if err != nil {
			return err
		}
		return x.Assign(axes, value)
	case map[string]any:
		key, ok := indices[0].(string)
		if !ok {
			return fmt.Errorf("map index must be a string, got %T", indices[0])
		}
		if len(indices) == 1 {
			x[key] = value
			return nil
		}
		inner, ok := x[key]
		if !ok {
			return fmt.Errorf("key %q: %w", key, ErrUndefined)
		}
		return Store(inner, indices[1:], value)
	}

	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Slice {
		return fmt.Errorf("cannot index %T", target)
	}
	axis, err := wire.HostIndex(indices[0], rv.Len())
	if err != nil {
		return err
	}
	if rest := indices[1:]; len(rest) > 0 {
		for _, p := range axis.Positions {
			if err := Store(rv.Index(p).Interface(), rest, value); err != nil {
				return err
			}
		}
		return nil
	}

	source := reflect.ValueOf(value)
	elementwise := !axis.Drop && source.Kind() == reflect.Slice && source.Len() == len(axis.Positions)
	for i, p := range axis.Positions {
		item := source
		if elementwise {
			item = source.Index(i)
		}
		if err := storeElement(rv.Index(p), item); err != nil {
			return err
		}
	}
	return nil
}

func storeElement(slot, item reflect.Value) error {
	if item.Kind() == reflect.Interface {
		item = item.Elem()
	}
	if !item.IsValid() {
		slot.SetZero()
		return nil
	}
	switch {
	case item.Type().AssignableTo(slot.Type()):
		slot.Set(item)
	case slot.Kind() == reflect.String && item.Kind() != reflect.String:
		return fmt.Errorf("cannot store %s in a %s slot", item.Type(), slot.Type())
	case item.CanConvert(slot.Type()):
		slot.Set(item.Convert(slot.Type()))
	default:
		return fmt.Errorf("cannot store %s in a %s slot", item.Type(), slot.Type())
	}
	return nil
}

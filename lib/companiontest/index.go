// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package companiontest

import (
	"fmt"
	"slices"

	"github.com/bureau-foundation/gorick/lib/wire"
)

// Index resolves one index in the companion's convention against a
// dimension of length n: 1-based, zero and negative values counting
// back from the end (0 is the last element), ranges inclusive of both
// bounds. It is a [wire.Resolver].
func Index(index any, n int) (wire.Axis, error) {
	position := func(i int64) (int, error) {
		if i <= 0 {
			i += int64(n)
		}
		if i < 1 || i > int64(n) {
			return 0, fmt.Errorf("index %d out of range for length %d", i, n)
		}
		return int(i - 1), nil
	}
	switch x := index.(type) {
	case wire.Range:
		step := x.Step
		if step == 0 {
			step = 1
		}
		start, stop := int64(1), int64(n)
		if step < 0 {
			start, stop = stop, start
		}
		if !x.OmitStart {
			start = x.Start
		}
		if !x.OmitStop {
			stop = x.Stop
		}
		first, err := position(start)
		if err != nil {
			return wire.Axis{}, err
		}
		last, err := position(stop)
		if err != nil {
			return wire.Axis{}, err
		}
		var positions []int
		for p := first; (step > 0 && p <= last) || (step < 0 && p >= last); p += int(step) {
			positions = append(positions, p)
		}
		return wire.Axis{Positions: positions}, nil
	case string:
		return wire.Axis{}, fmt.Errorf("string index %q on an array", x)
	}
	if i, err := integerValue(index); err == nil {
		p, err := position(i)
		if err != nil {
			return wire.Axis{}, err
		}
		return wire.Axis{Positions: []int{p}, Drop: true}, nil
	}
	if list, ok := toNumeric(index); ok && !list.real && len(list.shape) == 1 {
		positions := make([]int, len(list.ints))
		for k, i := range list.ints {
			p, err := position(i)
			if err != nil {
				return wire.Axis{}, err
			}
			positions[k] = p
		}
		return wire.Axis{Positions: positions}, nil
	}
	return wire.Axis{}, fmt.Errorf("unsupported index %s", typeName(index))
}

// axes reverses companion-order indices (fastest dimension first) into
// the row-major order the wire package selects in.
func axes(shape []int, indices []any) ([]wire.Axis, error) {
	reversed := slices.Clone(indices)
	slices.Reverse(reversed)
	return wire.ExpandAxes(shape, reversed, Index)
}

// selectValue indexes target with companion-order indices.
func selectValue(target any, indices []any) (any, error) {
	switch x := target.(type) {
	case wire.Array:
		resolved, err := axes(x.Shape, indices)
		if err != nil {
			return nil, err
		}
		return x.Select(resolved)
	case []string:
		return selectList(x, indices)
	case []any:
		return selectList(x, indices)
	case map[string]any:
		key, err := memberKey(indices)
		if err != nil {
			return nil, err
		}
		value, ok := x[key]
		if !ok {
			return nil, fmt.Errorf("no member %q", key)
		}
		return value, nil
	case nil:
		return nil, fmt.Errorf("indexing an undefined value")
	}
	if len(indices) == 0 {
		return target, nil
	}
	return nil, fmt.Errorf("cannot index a %s", typeName(target))
}

func selectList[T any](list []T, indices []any) (any, error) {
	if len(indices) == 0 {
		return list, nil
	}
	if len(indices) != 1 {
		return nil, fmt.Errorf("%d indices for a one-dimensional value", len(indices))
	}
	axis, err := Index(indices[0], len(list))
	if err != nil {
		return nil, err
	}
	if axis.Drop {
		return list[axis.Positions[0]], nil
	}
	out := make([]T, len(axis.Positions))
	for i, p := range axis.Positions {
		out[i] = list[p]
	}
	return out, nil
}

func memberKey(indices []any) (string, error) {
	if len(indices) != 1 {
		return "", fmt.Errorf("object members take one key, got %d", len(indices))
	}
	key, ok := indices[0].(string)
	if !ok {
		return "", fmt.Errorf("object member key must be a string, got %s", typeName(indices[0]))
	}
	return key, nil
}

// storeValue assigns value into the selection of target and returns the
// updated target. Arrays are updated in place.
func storeValue(target any, indices []any, value any) (any, error) {
	switch x := target.(type) {
	case wire.Array:
		resolved, err := axes(x.Shape, indices)
		if err != nil {
			return nil, err
		}
		return x, x.Assign(resolved, value)
	case []any:
		return storeList(x, indices, value)
	case map[string]any:
		key, err := memberKey(indices)
		if err != nil {
			return nil, err
		}
		x[key] = value
		return x, nil
	}
	return nil, fmt.Errorf("cannot assign into a %s", typeName(target))
}

func storeList(list []any, indices []any, value any) (any, error) {
	if len(indices) != 1 {
		return nil, fmt.Errorf("%d indices for a one-dimensional value", len(indices))
	}
	axis, err := Index(indices[0], len(list))
	if err != nil {
		return nil, err
	}
	for _, p := range axis.Positions {
		list[p] = value
	}
	return list, nil
}

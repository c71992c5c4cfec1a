// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"
	"reflect"
)

// Axis is an index resolved against one dimension of an array.
type Axis struct {
	// Positions are the selected 0-based positions, in order.
	Positions []int
	// Drop marks a scalar index: the dimension is removed from the
	// result.
	Drop bool
	// Insert marks a new axis of length one that consumes no source
	// dimension.
	Insert bool
}

// Resolver resolves one index against a dimension of length n.
type Resolver func(index any, n int) (Axis, error)

// ExpandAxes resolves indices against shape (both row-major). NewAxis
// inserts a unit dimension, Ellipsis expands to as many whole
// dimensions as the other indices leave, and dimensions past the last
// index are taken whole.
func ExpandAxes(shape []int, indices []any, resolve Resolver) ([]Axis, error) {
	consuming := 0
	ellipses := 0
	for _, index := range indices {
		switch index {
		case NewAxis:
		case Ellipsis:
			ellipses++
		default:
			consuming++
		}
	}
	if ellipses > 1 {
		return nil, fmt.Errorf("at most one ellipsis allowed, got %d", ellipses)
	}
	if consuming > len(shape) {
		return nil, fmt.Errorf("%d indices for an array of rank %d", consuming, len(shape))
	}

	axes := make([]Axis, 0, len(shape)+len(indices))
	dim := 0
	whole := func() {
		axes = append(axes, Axis{Positions: sequence(shape[dim])})
		dim++
	}
	for _, index := range indices {
		switch index {
		case NewAxis:
			axes = append(axes, Axis{Positions: []int{0}, Insert: true})
		case Ellipsis:
			for range len(shape) - consuming {
				whole()
			}
		default:
			axis, err := resolve(index, shape[dim])
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", dim, err)
			}
			axes = append(axes, axis)
			dim++
		}
	}
	for dim < len(shape) {
		whole()
	}
	return axes, nil
}

func sequence(n int) []int {
	positions := make([]int, n)
	for i := range positions {
		positions[i] = i
	}
	return positions
}

// HostIndex resolves one index in host convention: 0-based, negative
// counting from the end, ranges with an exclusive stop.
func HostIndex(index any, n int) (Axis, error) {
	if i, ok := integer(index); ok {
		if i < 0 {
			i += int64(n)
		}
		if i < 0 || i >= int64(n) {
			return Axis{}, fmt.Errorf("position %v out of range for length %d", index, n)
		}
		return Axis{Positions: []int{int(i)}, Drop: true}, nil
	}
	if r, ok := index.(Range); ok {
		return hostRange(r, n)
	}
	if list, ok := integers(index); ok {
		positions := make([]int, len(list))
		for k, i := range list {
			if i < 0 {
				i += int64(n)
			}
			if i < 0 || i >= int64(n) {
				return Axis{}, fmt.Errorf("position %d out of range for length %d", list[k], n)
			}
			positions[k] = int(i)
		}
		return Axis{Positions: positions}, nil
	}
	return Axis{}, fmt.Errorf("unsupported index %T", index)
}

// hostRange follows the host slice rules: bounds clamp to the
// dimension and an omitted bound means "from the end the step runs
// from" or "to the end it runs toward".
func hostRange(r Range, n int) (Axis, error) {
	step := r.StepOrDefault()
	clamp := func(i int64, low, high int64) int64 {
		if i < 0 {
			i += int64(n)
		}
		return max(low, min(i, high))
	}
	var start, stop int64
	if step > 0 {
		start, stop = 0, int64(n)
		if !r.OmitStart {
			start = clamp(r.Start, 0, int64(n))
		}
		if !r.OmitStop {
			stop = clamp(r.Stop, 0, int64(n))
		}
	} else {
		start, stop = int64(n)-1, -1
		if !r.OmitStart {
			start = clamp(r.Start, -1, int64(n)-1)
		}
		if !r.OmitStop {
			stop = clamp(r.Stop, -1, int64(n)-1)
		}
	}
	var positions []int
	for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
		positions = append(positions, int(i))
	}
	return Axis{Positions: positions}, nil
}

// integer reports whether v is a Go integer scalar and returns it.
func integer(v any) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), true
	}
	return 0, false
}

// integers reports whether v is a list of integer positions: a Go
// integer slice or a one-dimensional integer Array.
func integers(v any) ([]int64, bool) {
	if a, ok := v.(Array); ok {
		if a.Rank() != 1 || (a.Type.Kind() != KindSigned && a.Type.Kind() != KindUnsigned) {
			return nil, false
		}
		v = a.Data
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]int64, rv.Len())
	for i := range out {
		n, ok := integer(rv.Index(i).Interface())
		if !ok {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}

// offsets returns the flat source offsets of a selection in row-major
// order, and the result shape.
func (a Array) offsets(axes []Axis) ([]int, []int) {
	strides := make([]int, len(a.Shape))
	stride := 1
	for i := len(a.Shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= a.Shape[i]
	}
	var shape []int
	var source []Axis
	var sourceStrides []int
	dim := 0
	for _, axis := range axes {
		if !axis.Drop {
			shape = append(shape, len(axis.Positions))
		}
		if axis.Insert {
			continue
		}
		source = append(source, axis)
		sourceStrides = append(sourceStrides, strides[dim])
		dim++
	}
	offsets := []int{0}
	for k, axis := range source {
		next := make([]int, 0, len(offsets)*len(axis.Positions))
		for _, base := range offsets {
			for _, p := range axis.Positions {
				next = append(next, base+p*sourceStrides[k])
			}
		}
		offsets = next
	}
	return offsets, shape
}

// Select returns the elements chosen by axes: a Go scalar when every
// axis is a scalar index, otherwise an Array of the same type.
func (a Array) Select(axes []Axis) (any, error) {
	if err := a.checkAxes(axes); err != nil {
		return nil, err
	}
	offsets, shape := a.offsets(axes)
	data := reflect.ValueOf(a.Data)
	if len(shape) == 0 {
		return data.Index(offsets[0]).Interface(), nil
	}
	out := reflect.MakeSlice(data.Type(), len(offsets), len(offsets))
	for i, offset := range offsets {
		out.Index(i).Set(data.Index(offset))
	}
	return Array{Type: a.Type, Shape: shape, Data: out.Interface()}, nil
}

// Assign stores value into the elements chosen by axes, in place. A
// scalar value is broadcast; otherwise value must supply exactly one
// element per selected position.
func (a Array) Assign(axes []Axis, value any) error {
	if err := a.checkAxes(axes); err != nil {
		return err
	}
	offsets, _ := a.offsets(axes)
	data := reflect.ValueOf(a.Data)
	elem := data.Type().Elem()

	var source reflect.Value
	broadcast := false
	switch x := value.(type) {
	case Array:
		source = reflect.ValueOf(x.Data)
	default:
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Slice {
			source = rv
		} else {
			source = reflect.ValueOf([]any{value})
			broadcast = true
		}
	}
	if !broadcast && source.Len() != len(offsets) {
		return fmt.Errorf("assigning %d elements to a selection of %d", source.Len(), len(offsets))
	}
	for i, offset := range offsets {
		item := source.Index(0)
		if !broadcast {
			item = source.Index(i)
		}
		if item.Kind() == reflect.Interface {
			item = item.Elem()
		}
		if !item.IsValid() {
			return fmt.Errorf("cannot store nil in a %s array", elem)
		}
		if !item.CanConvert(elem) {
			return fmt.Errorf("cannot store %s in a %s array", item.Type(), elem)
		}
		data.Index(offset).Set(item.Convert(elem))
	}
	return nil
}

func (a Array) checkAxes(axes []Axis) error {
	dim := 0
	for _, axis := range axes {
		if axis.Insert {
			continue
		}
		if dim >= len(a.Shape) {
			return fmt.Errorf("selection has more axes than array rank %d", len(a.Shape))
		}
		for _, p := range axis.Positions {
			if p < 0 || p >= a.Shape[dim] {
				return fmt.Errorf("position %d out of range for dimension %d of length %d", p, dim, a.Shape[dim])
			}
		}
		dim++
	}
	if dim != len(a.Shape) {
		return fmt.Errorf("selection covers %d of %d dimensions", dim, len(a.Shape))
	}
	return nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package callback

import (
	"fmt"
	"math"
	"math/big"
	"reflect"

	"github.com/itchyny/gojq"

	"github.com/bureau-foundation/gorick/lib/wire"
)

// query runs expr as a jq program with no input. Variables whose values
// have no jq form (functions, opaque values) are left unbound.
func query(expr string, names []string, values []any) (any, error) {
	parsed, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", expr, err)
	}
	var variables []string
	var bound []any
	for i, name := range names {
		value, err := toJQ(values[i])
		if err != nil {
			continue
		}
		variables = append(variables, "$"+name)
		bound = append(bound, value)
	}
	code, err := gojq.Compile(parsed, gojq.WithVariables(variables))
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, err)
	}

	var results []any
	iterator := code.Run(nil, bound...)
	for {
		value, ok := iterator.Next()
		if !ok {
			break
		}
		if err, isErr := value.(error); isErr {
			return nil, fmt.Errorf("evaluate %q: %w", expr, err)
		}
		results = append(results, fromJQ(value))
	}
	switch len(results) {
	case 0:
		return nil, fmt.Errorf("evaluate %q: no result", expr)
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// toJQ converts a decoded wire value to the plain JSON-like values jq
// operates on. Arrays become nested lists in row-major order.
func toJQ(value any) (any, error) {
	switch x := value.(type) {
	case nil, bool, string, int, float64:
		return x, nil
	case float32:
		return float64(x), nil
	case wire.LongDouble:
		return x.Float64(), nil
	case wire.Array:
		return nestArray(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			converted, err := toJQ(item)
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for key, item := range x {
			converted, err := toJQ(item)
			if err != nil {
				return nil, err
			}
			out[key] = converted
		}
		return out, nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if u := rv.Uint(); u <= math.MaxInt {
			return int(u), nil
		}
		return float64(rv.Uint()), nil
	case reflect.Slice:
		out := make([]any, rv.Len())
		for i := range out {
			converted, err := toJQ(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	}
	return nil, fmt.Errorf("%T has no jq form", value)
}

func nestArray(a wire.Array) (any, error) {
	data := reflect.ValueOf(a.Data)
	var nest func(dim, offset int) (any, error)
	stride := func(dim int) int {
		n := 1
		for _, d := range a.Shape[dim+1:] {
			n *= d
		}
		return n
	}
	nest = func(dim, offset int) (any, error) {
		if dim == len(a.Shape) {
			return toJQ(data.Index(offset).Interface())
		}
		out := make([]any, a.Shape[dim])
		step := stride(dim)
		for i := range out {
			item, err := nest(dim+1, offset+i*step)
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	}
	return nest(0, 0)
}

// fromJQ narrows jq results for encoding: big integers become int64
// when they fit.
func fromJQ(value any) any {
	switch x := value.(type) {
	case *big.Int:
		if x.IsInt64() {
			return x.Int64()
		}
		f, _ := new(big.Float).SetInt(x).Float64()
		return f
	case []any:
		for i, item := range x {
			x[i] = fromJQ(item)
		}
		return x
	case map[string]any:
		for key, item := range x {
			x[key] = fromJQ(item)
		}
		return x
	}
	return value
}

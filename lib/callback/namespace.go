// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package callback

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Namespace is the host-side evaluator companion requests run against.
// Implementations decide what code and expressions mean; indices
// follow host conventions (0-based, exclusive stop).
type Namespace interface {
	// Exec runs code for its effect.
	Exec(code string) error
	// Eval evaluates an expression. Variable reads (GETVAR) arrive here
	// too, with the variable name as the expression.
	Eval(expr string) (any, error)
	// Set assigns value to name.
	Set(name string, value any) error
	// Call invokes the function expr evaluates to.
	Call(expr string, args []any, keywords map[string]any) (any, error)
	// GetSlice returns the part of expr's value selected by indices.
	GetSlice(expr string, indices []any) (any, error)
	// SetSlice stores value into the part of a variable selected by
	// indices.
	SetSlice(name string, indices []any, value any) error
}

// Func is a host function callable from the companion.
type Func func(args []any, keywords map[string]any) (any, error)

// ErrUndefined reports a name with no value.
var ErrUndefined = errors.New("undefined")

var (
	identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	assignment = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*=([^=].*)$`)
)

// Variables is a Namespace of named values and functions. It is safe
// for concurrent use.
type Variables struct {
	mutex     sync.Mutex
	values    map[string]any
	functions map[string]Func
}

// NewVariables returns an empty Variables.
func NewVariables() *Variables {
	return &Variables{
		values:    make(map[string]any),
		functions: make(map[string]Func),
	}
}

// Define sets a variable.
func (v *Variables) Define(name string, value any) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	v.values[name] = value
}

// Lookup returns a variable's value.
func (v *Variables) Lookup(name string) (any, bool) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	value, ok := v.values[name]
	return value, ok
}

// Register makes f callable under name.
func (v *Variables) Register(name string, f Func) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	v.functions[name] = f
}

// Names returns the defined variable names in sorted order.
func (v *Variables) Names() []string {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	names := make([]string, 0, len(v.values))
	for name := range v.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Exec runs each line of code. A line of the form "name = expr"
// assigns; any other line is evaluated and its value discarded.
func (v *Variables) Exec(code string) error {
	for number, line := range strings.Split(code, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if match := assignment.FindStringSubmatch(line); match != nil {
			value, err := v.Eval(match[2])
			if err != nil {
				return fmt.Errorf("line %d: %w", number+1, err)
			}
			v.Define(match[1], value)
			continue
		}
		if _, err := v.Eval(line); err != nil {
			return fmt.Errorf("line %d: %w", number+1, err)
		}
	}
	return nil
}

// Eval returns the value of a bare name unchanged. Any other
// expression runs as a jq program with each variable bound as $name;
// a program yielding several outputs returns them as a list.
func (v *Variables) Eval(expr string) (any, error) {
	expr = strings.TrimSpace(expr)
	if identifier.MatchString(expr) {
		v.mutex.Lock()
		defer v.mutex.Unlock()
		if value, ok := v.values[expr]; ok {
			return value, nil
		}
		if f, ok := v.functions[expr]; ok {
			return f, nil
		}
		return nil, fmt.Errorf("%s: %w", expr, ErrUndefined)
	}
	v.mutex.Lock()
	names := make([]string, 0, len(v.values))
	values := make([]any, 0, len(v.values))
	for name, value := range v.values {
		names = append(names, name)
		values = append(values, value)
	}
	v.mutex.Unlock()
	return query(expr, names, values)
}

// Set assigns value to name.
func (v *Variables) Set(name string, value any) error {
	name = strings.TrimSpace(name)
	if !identifier.MatchString(name) {
		return fmt.Errorf("cannot assign to %q", name)
	}
	v.Define(name, value)
	return nil
}

// Call invokes a registered function, or a variable holding a Func.
func (v *Variables) Call(expr string, args []any, keywords map[string]any) (any, error) {
	target, err := v.Eval(expr)
	if err != nil {
		return nil, err
	}
	f, ok := target.(Func)
	if !ok {
		if plain, isFunc := target.(func([]any, map[string]any) (any, error)); isFunc {
			f, ok = plain, true
		}
	}
	if !ok {
		return nil, fmt.Errorf("%s is %T, not a function", expr, target)
	}
	return f(args, keywords)
}

// GetSlice indexes the value of expr. See [Index].
func (v *Variables) GetSlice(expr string, indices []any) (any, error) {
	target, err := v.Eval(expr)
	if err != nil {
		return nil, err
	}
	return Index(target, indices)
}

// SetSlice stores value into part of the variable name. See [Store].
func (v *Variables) SetSlice(name string, indices []any, value any) error {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	target, ok := v.values[strings.TrimSpace(name)]
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrUndefined)
	}
	return Store(target, indices, value)
}

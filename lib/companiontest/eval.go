// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package companiontest

import (
	"fmt"

	"github.com/bureau-foundation/gorick/lib/wire"
)

// splitStatements splits tokens at top-level ";" and newlines. Each
// statement ends with a tokenEnd.
func splitStatements(tokens []token) [][]token {
	var statements [][]token
	var current []token
	depth := 0
	flush := func() {
		if len(current) > 0 {
			statements = append(statements, append(current, token{kind: tokenEnd}))
			current = nil
		}
	}
	for _, t := range tokens {
		switch {
		case t.kind == tokenEnd:
			flush()
		case t.is("(") || t.is("["):
			depth++
			current = append(current, t)
		case t.is(")") || t.is("]"):
			depth--
			current = append(current, t)
		case depth == 0 && (t.is(";") || t.is("\n")):
			flush()
		default:
			current = append(current, t)
		}
	}
	flush()
	return statements
}

// statement runs one statement: an assignment, a subroutine call, an
// indexed store, or an expression whose value is printed.
func (in *Interpreter) statement(tokens []token) error {
	p := &parser{in: in, tokens: tokens}
	first := tokens[0]
	if first.kind == tokenName && len(tokens) > 1 {
		next := tokens[1]
		switch {
		case next.is("="):
			p.pos = 2
			value, err := p.expression()
			if err != nil {
				return err
			}
			if err := p.end(); err != nil {
				return err
			}
			return in.assign(first.text, value)
		case next.is(",") || next.kind == tokenEnd:
			if b, ok := in.callable(first.text); ok {
				p.pos = 1
				var args []any
				keywords := map[string]any{}
				for p.peek().is(",") {
					p.pos++
					if err := p.argument(&args, keywords, false); err != nil {
						return err
					}
				}
				if err := p.end(); err != nil {
					return err
				}
				_, err := b.call(in, args, keywords, true)
				return err
			}
		case next.is("("):
			if closing := matching(tokens, 1); closing > 0 && tokens[closing+1].is("=") {
				return in.store(p, first.text, closing)
			}
		}
	}
	value, err := p.expression()
	if err != nil {
		return err
	}
	if err := p.end(); err != nil {
		return err
	}
	if value != nil {
		in.printf("%s\n", format(value))
	}
	return nil
}

// store runs "name(indices) = expr".
func (in *Interpreter) store(p *parser, name string, closing int) error {
	target, err := in.resolve(name)
	if err != nil {
		return err
	}
	p.pos = 2
	indices, _, err := p.arguments(true)
	if err != nil {
		return err
	}
	p.pos = closing + 2
	value, err := p.expression()
	if err != nil {
		return err
	}
	if err := p.end(); err != nil {
		return err
	}
	updated, err := storeValue(target, indices, value)
	if err != nil {
		return err
	}
	return in.assign(name, updated)
}

// callable returns the builtin a statement-leading name refers to.
func (in *Interpreter) callable(name string) (*builtin, bool) {
	if v, ok := in.variables[name]; ok {
		b, isBuiltin := v.(*builtin)
		return b, isBuiltin
	}
	b, ok := in.builtins[name]
	return b, ok
}

// matching returns the index of the parenthesis closing tokens[open].
func matching(tokens []token, open int) int {
	depth := 0
	for i := open; i < len(tokens); i++ {
		switch {
		case tokens[i].is("(") || tokens[i].is("["):
			depth++
		case tokens[i].is(")") || tokens[i].is("]"):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

type parser struct {
	in     *Interpreter
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokenEnd {
		p.pos++
	}
	return t
}

func (p *parser) expect(punct string) error {
	if t := p.next(); !t.is(punct) {
		return fmt.Errorf("syntax error: expecting %q, got %q", punct, t.text)
	}
	return nil
}

func (p *parser) end() error {
	if t := p.peek(); t.kind != tokenEnd {
		return fmt.Errorf("syntax error near %q", t.text)
	}
	return nil
}

func (p *parser) expression() (any, error) {
	left, err := p.additive()
	if err != nil {
		return nil, err
	}
	for _, op := range []string{"==", "!=", "<=", ">=", "<", ">"} {
		if p.peek().is(op) {
			p.pos++
			right, err := p.additive()
			if err != nil {
				return nil, err
			}
			return binary(op, left, right)
		}
	}
	return left, nil
}

func (p *parser) additive() (any, error) {
	left, err := p.multiplicative()
	if err != nil {
		return nil, err
	}
	for p.peek().is("+") || p.peek().is("-") {
		op := p.next().text
		right, err := p.multiplicative()
		if err != nil {
			return nil, err
		}
		if left, err = binary(op, left, right); err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *parser) multiplicative() (any, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.peek().is("*") || p.peek().is("/") || p.peek().is("%") {
		op := p.next().text
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		if left, err = binary(op, left, right); err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (p *parser) unary() (any, error) {
	if p.peek().is("-") {
		p.pos++
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return negate(operand)
	}
	if p.peek().is("+") {
		p.pos++
		return p.unary()
	}
	return p.power()
}

func (p *parser) power() (any, error) {
	base, err := p.postfix()
	if err != nil {
		return nil, err
	}
	if p.peek().is("^") {
		p.pos++
		exponent, err := p.unary()
		if err != nil {
			return nil, err
		}
		return binary("^", base, exponent)
	}
	return base, nil
}

func (p *parser) postfix() (any, error) {
	value, err := p.primary()
	if err != nil {
		return nil, err
	}
	for p.peek().is("(") {
		p.pos++
		_, isBuiltin := value.(*builtin)
		args, keywords, err := p.arguments(!isBuiltin)
		if err != nil {
			return nil, err
		}
		if value, err = p.in.apply(value, args, keywords, false); err != nil {
			return nil, err
		}
	}
	return value, nil
}

func (p *parser) primary() (any, error) {
	t := p.next()
	switch t.kind {
	case tokenNumber, tokenString:
		return t.value, nil
	case tokenName:
		return p.in.resolve(t.text)
	case tokenEnd:
		return nil, fmt.Errorf("syntax error: unexpected end of statement")
	}
	switch {
	case t.is("("):
		value, err := p.expression()
		if err != nil {
			return nil, err
		}
		return value, p.expect(")")
	case t.is("["):
		var items []any
		for !p.peek().is("]") {
			item, err := p.expression()
			if err != nil {
				return nil, err
			}
			items = append(items, item)
			if !p.peek().is(",") {
				break
			}
			p.pos++
		}
		if err := p.expect("]"); err != nil {
			return nil, err
		}
		return arrayLiteral(items)
	}
	return nil, fmt.Errorf("syntax error near %q", t.text)
}

// arguments parses the list after an opening parenthesis through the
// closing one. With indexing set, ranges, "-" and ".." are allowed.
func (p *parser) arguments(indexing bool) ([]any, map[string]any, error) {
	var args []any
	keywords := map[string]any{}
	if p.peek().is(")") {
		p.pos++
		return args, keywords, nil
	}
	for {
		if err := p.argument(&args, keywords, indexing); err != nil {
			return nil, nil, err
		}
		if p.peek().is(")") {
			p.pos++
			return args, keywords, nil
		}
		if err := p.expect(","); err != nil {
			return nil, nil, err
		}
	}
}

func (p *parser) argument(args *[]any, keywords map[string]any, indexing bool) error {
	t := p.peek()
	after := p.tokens[min(p.pos+1, len(p.tokens)-1)]
	delimiter := after.is(",") || after.is(")") || after.kind == tokenEnd
	switch {
	case t.kind == tokenName && after.is("="):
		p.pos += 2
		value, err := p.expression()
		if err != nil {
			return err
		}
		keywords[t.text] = value
		return nil
	case indexing && t.is("-") && delimiter:
		p.pos++
		*args = append(*args, wire.NewAxis)
		return nil
	case indexing && t.is(".."):
		p.pos++
		*args = append(*args, wire.Ellipsis)
		return nil
	}

	var start any
	if !p.peek().is(":") {
		value, err := p.expression()
		if err != nil {
			return err
		}
		if !indexing || !p.peek().is(":") {
			*args = append(*args, value)
			return nil
		}
		start = value
	}
	r, err := p.rangeFrom(start)
	if err != nil {
		return err
	}
	*args = append(*args, r)
	return nil
}

// rangeFrom parses ":stop:step" after an optional start.
func (p *parser) rangeFrom(start any) (wire.Range, error) {
	r := wire.Range{Step: 1, OmitStart: start == nil, OmitStop: true}
	if start != nil {
		n, err := integerValue(start)
		if err != nil {
			return r, err
		}
		r.Start = n
	}
	if err := p.expect(":"); err != nil {
		return r, err
	}
	bound := func() (int64, bool, error) {
		t := p.peek()
		if t.is(":") || t.is(",") || t.is(")") || t.kind == tokenEnd {
			return 0, false, nil
		}
		value, err := p.expression()
		if err != nil {
			return 0, false, err
		}
		n, err := integerValue(value)
		return n, true, err
	}
	stop, ok, err := bound()
	if err != nil {
		return r, err
	}
	r.Stop, r.OmitStop = stop, !ok
	if p.peek().is(":") {
		p.pos++
		step, ok, err := bound()
		if err != nil {
			return r, err
		}
		if ok {
			if step == 0 {
				return r, fmt.Errorf("range step of zero")
			}
			r.Step = step
		}
	}
	return r, nil
}

// arrayLiteral builds [a, b, ...]: strings make a string array,
// numbers a long or double array, equally shaped arrays stack along a
// new slowest dimension.
func arrayLiteral(items []any) (any, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if _, ok := items[0].(string); ok {
		out := make([]string, len(items))
		for i, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("array literal mixes string and %s", typeName(item))
			}
			out[i] = s
		}
		return out, nil
	}
	parts := make([]numeric, len(items))
	real := false
	for i, item := range items {
		n, ok := toNumeric(item)
		if !ok {
			return nil, fmt.Errorf("array literal element %d is a %s", i+1, typeName(item))
		}
		if !equalShape(n.shape, parts[0].shape) && i > 0 {
			return nil, fmt.Errorf("array literal elements have different dimensions")
		}
		parts[i] = n
		real = real || n.real
	}
	out := numeric{shape: append([]int{len(items)}, parts[0].shape...), real: real}
	for _, n := range parts {
		if real {
			out.reals = append(out.reals, n.promote().reals...)
		} else {
			out.ints = append(out.ints, n.ints...)
		}
	}
	return out.value(), nil
}

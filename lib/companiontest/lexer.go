// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package companiontest

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokenEnd tokenKind = iota
	tokenNumber
	tokenString
	tokenName
	tokenPunct
)

type token struct {
	kind  tokenKind
	text  string
	value any // parsed literal for numbers and strings
}

func (t token) is(punct string) bool { return t.kind == tokenPunct && t.text == punct }

// twoCharPunct lists the operators longer than one character.
var twoCharPunct = []string{"==", "!=", "<=", ">=", ".."}

func lex(source string) ([]token, error) {
	var tokens []token
	for i := 0; i < len(source); {
		c := source[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '"':
			text, n, err := lexString(source[i:])
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokenString, text: source[i : i+n], value: text})
			i += n
		case isDigit(c) || (c == '.' && i+1 < len(source) && isDigit(source[i+1])):
			n, value, err := lexNumber(source[i:])
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokenNumber, text: source[i : i+n], value: value})
			i += n
		case isNameStart(c):
			j := i + 1
			for j < len(source) && (isNameStart(source[j]) || isDigit(source[j])) {
				j++
			}
			tokens = append(tokens, token{kind: tokenName, text: source[i:j]})
			i = j
		default:
			width := 1
			for _, op := range twoCharPunct {
				if strings.HasPrefix(source[i:], op) {
					width = 2
					break
				}
			}
			punct := source[i : i+width]
			if width == 1 && !strings.ContainsAny(punct, "()[],;=:+-*/%^<>\n") {
				return nil, fmt.Errorf("unexpected character %q", punct)
			}
			tokens = append(tokens, token{kind: tokenPunct, text: punct})
			i += width
		}
	}
	return append(tokens, token{kind: tokenEnd}), nil
}

func lexString(source string) (string, int, error) {
	var out strings.Builder
	for i := 1; i < len(source); i++ {
		switch c := source[i]; c {
		case '"':
			return out.String(), i + 1, nil
		case '\\':
			i++
			if i == len(source) {
				break
			}
			switch source[i] {
			case 'n':
				out.WriteByte('\n')
			case 't':
				out.WriteByte('\t')
			case '0':
				out.WriteByte(0)
			default:
				out.WriteByte(source[i])
			}
		default:
			out.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("unterminated string")
}

// lexNumber reads an integer (int64) or a real (float64). A number
// written with a decimal point or exponent is real.
func lexNumber(source string) (int, any, error) {
	i := 0
	real := false
	for i < len(source) && isDigit(source[i]) {
		i++
	}
	// "1..2" is not a number followed by ".."; only consume a point
	// that does not begin an ellipsis.
	if i < len(source) && source[i] == '.' && !strings.HasPrefix(source[i:], "..") {
		real = true
		i++
		for i < len(source) && isDigit(source[i]) {
			i++
		}
	}
	if i < len(source) && (source[i] == 'e' || source[i] == 'E') {
		j := i + 1
		if j < len(source) && (source[j] == '+' || source[j] == '-') {
			j++
		}
		if j < len(source) && isDigit(source[j]) {
			real = true
			i = j
			for i < len(source) && isDigit(source[i]) {
				i++
			}
		}
	}
	text := source[:i]
	if real {
		value, err := strconv.ParseFloat(text, 64)
		return i, value, err
	}
	value, err := strconv.ParseInt(text, 10, 64)
	return i, value, err
}

func isDigit(c byte) bool     { return c >= '0' && c <= '9' }
func isNameStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

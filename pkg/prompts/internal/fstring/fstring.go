// Package fstring interpolates python-style f-string templates:
// {name} substitutes a value, {{ and }} escape literal braces.
package fstring

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrEmptyExpression is returned on a "{}" placeholder.
	ErrEmptyExpression = errors.New("empty expression not allowed")
	// ErrArgsNotDefined is returned when the template references a
	// variable that is not in the values map.
	ErrArgsNotDefined = errors.New("args not defined")
	// ErrLeftBraceNotClosed is returned on a '{' without a matching '}'.
	ErrLeftBraceNotClosed = errors.New("single '{' is not allowed")
	// ErrRightBraceNotClosed is returned on a '}' outside an expression.
	ErrRightBraceNotClosed = errors.New("single '}' is not allowed")
)

// Format renders the template with the given values.
func Format(template string, values map[string]any) (string, error) {
	var sb strings.Builder
	runes := []rune(template)

	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '{':
			if i+1 < len(runes) && runes[i+1] == '{' {
				sb.WriteRune('{')
				i++
				continue
			}
			end := indexFrom(runes, i+1, '}')
			if end < 0 {
				return "", ErrLeftBraceNotClosed
			}
			name := strings.TrimSpace(string(runes[i+1 : end]))
			if name == "" {
				return "", ErrEmptyExpression
			}
			value, ok := values[name]
			if !ok {
				return "", errors.WithMessagef(ErrArgsNotDefined, "%q", name)
			}
			fmt.Fprintf(&sb, "%v", value)
			i = end
		case '}':
			if i+1 < len(runes) && runes[i+1] == '}' {
				sb.WriteRune('}')
				i++
				continue
			}
			return "", ErrRightBraceNotClosed
		default:
			sb.WriteRune(runes[i])
		}
	}
	return sb.String(), nil
}

func indexFrom(runes []rune, start int, r rune) int {
	for i := start; i < len(runes); i++ {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

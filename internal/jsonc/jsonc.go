// Package jsonc reads JSON with comments, trailing commas and single-quoted
// strings, the form map configurations take when embedded in a host page.
package jsonc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tailscale/hujson"
)

// Standardize rewrites src into plain JSON. Single-quoted strings become
// double-quoted (an escaped \' stays a literal quote), then comments and
// trailing commas are stripped.
func Standardize(src []byte) ([]byte, error) {
	quoted, err := normalizeQuotes(src)
	if err != nil {
		return nil, err
	}
	out, err := hujson.Standardize(quoted)
	if err != nil {
		return nil, fmt.Errorf("jsonc: %w", err)
	}
	return out, nil
}

// Unmarshal standardizes src and decodes it into v.
func Unmarshal(src []byte, v any) error {
	out, err := Standardize(src)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(out, v); err != nil {
		return fmt.Errorf("jsonc: %w", err)
	}
	return nil
}

type scanState int

const (
	stateCode scanState = iota
	stateDouble
	stateSingle
	stateLineComment
	stateBlockComment
)

// normalizeQuotes converts single-quoted string literals outside comments
// into double-quoted ones.
func normalizeQuotes(src []byte) ([]byte, error) {
	var out bytes.Buffer
	out.Grow(len(src))
	state := stateCode
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch state {
		case stateCode:
			switch {
			case c == '"':
				state = stateDouble
			case c == '\'':
				state = stateSingle
				c = '"'
			case c == '/' && i+1 < len(src) && src[i+1] == '/':
				state = stateLineComment
			case c == '/' && i+1 < len(src) && src[i+1] == '*':
				state = stateBlockComment
				out.WriteString("/*")
				i++
				continue
			}
			out.WriteByte(c)
		case stateDouble:
			out.WriteByte(c)
			if c == '\\' && i+1 < len(src) {
				i++
				out.WriteByte(src[i])
			} else if c == '"' {
				state = stateCode
			}
		case stateSingle:
			switch {
			case c == '\\' && i+1 < len(src) && src[i+1] == '\'':
				out.WriteByte('\'')
				i++
			case c == '\\' && i+1 < len(src):
				out.WriteByte(c)
				i++
				out.WriteByte(src[i])
			case c == '"':
				out.WriteString(`\"`)
			case c == '\'':
				out.WriteByte('"')
				state = stateCode
			default:
				out.WriteByte(c)
			}
		case stateLineComment:
			out.WriteByte(c)
			if c == '\n' {
				state = stateCode
			}
		case stateBlockComment:
			out.WriteByte(c)
			if c == '*' && i+1 < len(src) && src[i+1] == '/' {
				out.WriteByte('/')
				i++
				state = stateCode
			}
		}
	}
	if state == stateSingle || state == stateDouble {
		return nil, fmt.Errorf("jsonc: unterminated string literal")
	}
	return out.Bytes(), nil
}

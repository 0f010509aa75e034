package jsonutil

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractObject strips markdown fences and prose around the outermost JSON object
// or array in s. It returns s trimmed when no opening bracket exists.
func ExtractObject(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if nl := strings.Index(s, "\n"); nl >= 0 {
			s = s[nl+1:]
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	open := s[start]
	closer := byte('}')
	if open == '[' {
		closer = ']'
	}
	if end := strings.LastIndexByte(s, closer); end > start {
		return s[start : end+1]
	}
	return s[start:]
}

// Repair closes an unterminated string and any open brackets so that output cut off
// by a token limit still parses. A dangling key or trailing comma is dropped.
func Repair(s string) string {
	var (
		stack    []byte
		inString bool
		escaped  bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	var b strings.Builder
	b.WriteString(s)
	if inString {
		if escaped {
			b.WriteString(`\`)
		}
		b.WriteString(`"`)
	}
	out := strings.TrimRight(b.String(), " \t\r\n")
	out = strings.TrimSuffix(out, ",")
	if strings.HasSuffix(out, ":") {
		// {"a": 1, "b": → drop the dangling key.
		if i := strings.LastIndex(out, `"`); i > 0 {
			if j := strings.LastIndex(out[:i], `"`); j >= 0 {
				out = strings.TrimRight(strings.TrimSuffix(strings.TrimRight(out[:j], " \t\r\n"), ","), " \t\r\n")
			}
		}
	}
	for i := len(stack) - 1; i >= 0; i-- {
		out += string(stack[i])
	}
	return out
}

// DecodeLenient unmarshals model output into v, trying progressively more invasive
// cleanups: as-is, extracted from surrounding text, then repaired.
func DecodeLenient(raw []byte, v any) error {
	if err := UnmarshalFlex(raw, v); err == nil {
		return nil
	}
	extracted := ExtractObject(string(raw))
	if err := UnmarshalFlex([]byte(extracted), v); err == nil {
		return nil
	}
	repaired := Repair(extracted)
	if !json.Valid([]byte(repaired)) {
		return fmt.Errorf("jsonutil: unrecoverable JSON (%d bytes)", len(raw))
	}
	return UnmarshalFlex([]byte(repaired), v)
}

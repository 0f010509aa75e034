package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
)

// MarshalNoEscape encodes v into JSON without escaping <, >, & into \u003c, etc.
// Generated source code is full of those characters.
func MarshalNoEscape(v any) ([]byte, error) {
	return encode(v, "", "")
}

// MarshalNoEscapeIndent is MarshalNoEscape with indentation.
func MarshalNoEscapeIndent(v any, prefix, indent string) ([]byte, error) {
	return encode(v, prefix, indent)
}

func encode(v any, prefix, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if prefix != "" || indent != "" {
		enc.SetIndent(prefix, indent)
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

var reUnicodeEscape = regexp.MustCompile(`\\u([0-9a-fA-F]{4})`)

// UnescapeUnicodeString converts leftover "\u003e" style escapes into actual characters.
// Other backslash sequences are kept as they are; they are part of the source text.
func UnescapeUnicodeString(s string) string {
	return reUnicodeEscape.ReplaceAllStringFunc(s, func(m string) string {
		n, err := strconv.ParseUint(m[2:], 16, 32)
		if err != nil {
			return m
		}
		return string(rune(n))
	})
}

// NormalizeJSONUnicode parses JSON bytes, unwrapping up to two levels of JSON-in-a-string,
// and recursively unescapes double-escaped unicode sequences inside string values.
func NormalizeJSONUnicode(raw []byte) ([]byte, error) {
	var anyVal any
	if err := json.Unmarshal(raw, &anyVal); err != nil {
		return nil, err
	}
	for i := 0; i < 2; i++ {
		s, ok := anyVal.(string)
		if !ok {
			break
		}
		var inner any
		if err := json.Unmarshal([]byte(s), &inner); err != nil {
			return nil, errors.New("jsonutil: cannot parse JSON payload")
		}
		anyVal = inner
	}
	return MarshalNoEscape(deepUnescape(anyVal))
}

// UnmarshalFlex tries a direct unmarshal, then a normalized one.
func UnmarshalFlex(raw []byte, v any) error {
	err := json.Unmarshal(raw, v)
	if err == nil {
		return nil
	}
	norm, nerr := NormalizeJSONUnicode(raw)
	if nerr != nil {
		return err
	}
	return json.Unmarshal(norm, v)
}

func deepUnescape(v any) any {
	switch x := v.(type) {
	case string:
		return UnescapeUnicodeString(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = deepUnescape(x[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[k] = deepUnescape(vv)
		}
		return out
	default:
		return v
	}
}

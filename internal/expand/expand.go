// Package expand substitutes ${key} placeholders in text.
package expand

import (
	"strings"
	"unicode"
)

// Lookup resolves a placeholder key; ok=false leaves the placeholder untouched.
type Lookup func(key string) (value string, ok bool)

// Text replaces every well-formed ${key} in value using lookup. Keys may
// contain letters, digits, '_', '.' and '-'. Malformed or unresolved
// placeholders are copied verbatim.
func Text(value string, lookup Lookup) string {
	if !strings.Contains(value, "${") {
		return value
	}
	var b strings.Builder
	b.Grow(len(value))
	for {
		start := strings.Index(value, "${")
		if start < 0 {
			b.WriteString(value)
			return b.String()
		}
		b.WriteString(value[:start])
		rest := value[start+2:]
		end := strings.IndexByte(rest, '}')
		if end < 0 {
			b.WriteString(value[start:])
			return b.String()
		}
		key := rest[:end]
		if !isKey(key) {
			// keep "${" and rescan after it so nested placeholders still expand
			b.WriteString("${")
			value = rest
			continue
		}
		if resolved, ok := lookup(key); ok {
			b.WriteString(resolved)
		} else {
			b.WriteString(value[start : start+2+end+1])
		}
		value = rest[end+1:]
	}
}

func isKey(key string) bool {
	for _, r := range key {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' || r == '-') {
			return false
		}
	}
	return true
}

package value

import (
	"fmt"
	"strings"
)

// ValidatePointer checks that p is a JSON Pointer (RFC 6901) as extended by
// JMAP result references: a "*" token maps over every element of an array.
//
// The empty pointer refers to the whole result and is valid.
func ValidatePointer(p string) error {
	if p == "" {
		return nil
	}
	if !strings.HasPrefix(p, "/") {
		return fmt.Errorf("pointer %q must start with '/'", p)
	}
	for i := 0; i < len(p); i++ {
		if p[i] != '~' {
			continue
		}
		if i+1 >= len(p) || (p[i+1] != '0' && p[i+1] != '1') {
			return fmt.Errorf("pointer %q has invalid escape at offset %d", p, i)
		}
		i++
	}
	return nil
}

// PointerTokens splits a valid pointer into unescaped reference tokens.
func PointerTokens(p string) ([]string, error) {
	if err := ValidatePointer(p); err != nil {
		return nil, err
	}
	if p == "" {
		return nil, nil
	}
	parts := strings.Split(p[1:], "/")
	for i, part := range parts {
		part = strings.ReplaceAll(part, "~1", "/")
		parts[i] = strings.ReplaceAll(part, "~0", "~")
	}
	return parts, nil
}

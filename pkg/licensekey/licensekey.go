// Package licensekey canonicalizes user-entered license keys.
package licensekey

import (
	"errors"
	"strings"
	"unicode"
)

// ErrInvalidFormat is returned when the normalized key has an unsupported length.
var ErrInvalidFormat = errors.New("invalid license key")

const (
	uuidLength  = 32
	groupLength = 40
	groupSize   = 5
)

var uuidGroups = []int{8, 4, 4, 4, 12}

// Normalize strips dashes and whitespace and lowercases the remainder.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r == '-' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Format returns the canonical dash-delimited layout for raw, which is the
// only form used for storage and lookups.
func Format(raw string) (string, error) {
	normalized := []rune(Normalize(raw))
	switch len(normalized) {
	case uuidLength:
		return split(normalized, uuidGroups), nil
	case groupLength:
		sizes := make([]int, groupLength/groupSize)
		for i := range sizes {
			sizes[i] = groupSize
		}
		return split(normalized, sizes), nil
	default:
		return "", ErrInvalidFormat
	}
}

// Valid reports whether raw can be formatted.
func Valid(raw string) bool {
	_, err := Format(raw)
	return err == nil
}

func split(value []rune, sizes []int) string {
	parts := make([]string, 0, len(sizes))
	offset := 0
	for _, size := range sizes {
		parts = append(parts, string(value[offset:offset+size]))
		offset += size
	}
	return strings.Join(parts, "-")
}

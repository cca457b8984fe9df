// Package normalize turns free-text plate numbers, tag codes and phone numbers
// into the canonical form used for storage and comparison.
//
// Every write of a plate/phone and every blacklist or lookup comparison goes
// through these functions, so "abc-123 x" and "ABC123X" always compare equal.
package normalize

import (
	"strings"
	"unicode"
)

// Plate uppercases s and strips whitespace and hyphens.  Empty input is
// returned unchanged; callers treat blank as "not provided".
func Plate(s string) string {
	if s == "" {
		return s
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' {
			return -1
		}
		return unicode.ToUpper(r)
	}, s)
}

// Code normalizes scanned vehicle tag codes and visitor verification codes.
// It is the same transform as Plate.
func Code(s string) string {
	return Plate(s)
}

// Phone strips whitespace, hyphens, dots and parentheses.  A leading '+' is
// kept so international and local forms stay distinct.
func Phone(s string) string {
	if s == "" {
		return s
	}
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r), r == '-', r == '.', r == '(', r == ')':
			return -1
		}
		return r
	}, s)
}

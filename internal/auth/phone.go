package auth

import (
	"errors"
	"strings"
)

// DefaultCountryCode is applied to national-format numbers.
const DefaultCountryCode = "+855"

var ErrInvalidPhone = errors.New("invalid phone number")

// NormalizePhone canonicalizes a phone number to E.164. Spaces, dashes
// and parentheses are stripped; numbers already carrying a + prefix are
// kept as-is; a national number with a leading zero gets the default
// country code.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+':
			if b.Len() != 0 {
				return "", ErrInvalidPhone
			}
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
			// separators
		default:
			return "", ErrInvalidPhone
		}
	}
	s := b.String()
	switch {
	case strings.HasPrefix(s, "+"):
		// already international
	case strings.HasPrefix(s, "00"):
		s = "+" + s[2:]
	case strings.HasPrefix(s, "0"):
		s = DefaultCountryCode + s[1:]
	case s != "":
		s = DefaultCountryCode + s
	}
	digits := strings.TrimPrefix(s, "+")
	if len(digits) < 9 || len(digits) > 15 {
		return "", ErrInvalidPhone
	}
	return s, nil
}

// DisplayPhone renders an E.164 number in the national format users
// type: the default country code folds back into a leading zero.
func DisplayPhone(e164 string) string {
	if rest, ok := strings.CutPrefix(e164, DefaultCountryCode); ok {
		return "0" + rest
	}
	return e164
}

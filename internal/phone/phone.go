// Package phone normalizes phone numbers into the digits-only E.164 form the
// WhatsApp Cloud API expects in the "to" field (country code, no plus sign).
package phone

import (
	"errors"
	"strings"
)

// ErrInvalid is returned when a number cannot be normalized.
var ErrInvalid = errors.New("invalid phone number")

const (
	minDigits = 8
	maxDigits = 15
)

// Normalize strips formatting from s and returns the E.164 digits.
//
// Accepted separators are spaces, dots, dashes, slashes and parentheses. A
// leading "+" or international "00" prefix is dropped. Anything else, or a
// digit count outside [8, 15], or a leading zero after prefix removal, is
// rejected with ErrInvalid.
func Normalize(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrInvalid
	}
	s = strings.TrimPrefix(s, "+")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '.' || r == '-' || r == '/' || r == '(' || r == ')':
		default:
			return "", ErrInvalid
		}
	}
	out := strings.TrimPrefix(b.String(), "00")
	if len(out) < minDigits || len(out) > maxDigits || out[0] == '0' {
		return "", ErrInvalid
	}
	return out, nil
}

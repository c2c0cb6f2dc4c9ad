// Package identity canonicalizes phone numbers and email addresses into the
// lookup keys stored on customers.
package identity

import (
	"strings"
	"unicode"
)

// NormalizePhone returns the canonical form of a phone number.
//
//	11 digits starting with 1 -> "+" + digits
//	exactly 10 digits         -> "+1" + digits
//	more than 10 digits       -> "+" + digits
//	fewer than 10 digits      -> "+" + digits (ambiguous, see ClassifyPhone)
//
// Input without any digit normalizes to "+". Callers skip blank input.
func NormalizePhone(raw string) string {
	canonical, _ := ClassifyPhone(raw)
	return canonical
}

// ClassifyPhone normalizes raw and reports whether the result is a lossy
// fallback (fewer than 10 digits, no country code can be inferred).
func ClassifyPhone(raw string) (canonical string, ambiguous bool) {
	digits := digitsOnly(raw)
	switch {
	case len(digits) == 11 && digits[0] == '1':
		return "+" + digits, false
	case len(digits) == 10:
		return "+1" + digits, false
	case len(digits) > 10:
		return "+" + digits, false
	default:
		return "+" + digits, true
	}
}

// NormalizeEmail lowercases and trims an address. No validation happens here.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// IsEmailLike reports whether token should be looked up as an email address.
func IsEmailLike(token string) bool {
	return strings.Contains(token, "@")
}

// IsPhoneLike reports whether token should be looked up as a phone number:
// it carries at least one digit and is not an email address.
func IsPhoneLike(token string) bool {
	if IsEmailLike(token) {
		return false
	}
	return strings.IndexFunc(token, unicode.IsDigit) >= 0
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

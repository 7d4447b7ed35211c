package domain

import "strings"

// PhoneLength is the digit count of a canonical phone number.
const PhoneLength = 11

// PhoneClass is the builder classification of a normalized candidate.
type PhoneClass string

const (
	PhoneEmpty   PhoneClass = "empty"
	PhoneValid   PhoneClass = "valid"
	PhoneInvalid PhoneClass = "invalid"
)

// NormalizePhone strips every non-digit character.
func NormalizePhone(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsValidPhone reports whether s is exactly 11 digits starting with 7.
func IsValidPhone(s string) bool {
	if len(s) != PhoneLength || s[0] != '7' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func ClassifyPhone(normalized string) PhoneClass {
	switch {
	case normalized == "":
		return PhoneEmpty
	case IsValidPhone(normalized):
		return PhoneValid
	default:
		return PhoneInvalid
	}
}

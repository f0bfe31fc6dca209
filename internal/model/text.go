package model

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CodeLength is the number of digits in an access code.
const CodeLength = 4

// CodeSpace is the number of distinct access codes.
const CodeSpace = 10000

// NormalizeText trims surrounding whitespace and applies NFC normalization so
// that visually identical input is stored byte-identically.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// ValidCode reports whether s is exactly CodeLength ASCII digits.
func ValidCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

package utils

import (
	"strings"
	"unicode"
)

// NormalizePlate reduces a license plate to its comparable form: upper case,
// letters and digits only. "ab-123 cd" and "AB123CD" normalize to the same value.
func NormalizePlate(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.TrimSpace(raw) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// SamePlate reports whether two plates match after normalization. Empty and
// placeholder plates never match anything.
func SamePlate(a, b string) bool {
	na, nb := NormalizePlate(a), NormalizePlate(b)
	if na == "" || nb == "" || na == "NA" || nb == "NA" {
		return false
	}
	return na == nb
}

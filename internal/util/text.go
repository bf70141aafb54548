package util

import "strings"

// SanitizePostgresText drops invalid UTF-8 and NUL bytes, which text columns reject.
func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

// CollapseSpaces trims value and folds every whitespace run into one space.
func CollapseSpaces(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

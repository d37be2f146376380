package util

import "strconv"

// ParseIntDefault returns the parsed value of s, or def when s is empty
// or not a valid integer.
func ParseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

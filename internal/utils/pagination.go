// Package utils holds tiny helpers with no knowledge of follow-up records
// or HTTP. Anything here must be safe to call from any layer.
package utils

import "strconv"

// AtoiDefault parses s as an int, falling back to def when s is empty or
// not a valid integer. Used for query parameters like page and page_size,
// where a garbage value should mean "use the default", not an error.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

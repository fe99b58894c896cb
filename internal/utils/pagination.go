// Package utils holds the query-string and pagination helpers shared by the
// list endpoints and the services behind them.
package utils

import "strconv"

// AtoiDefault parses s as a base-10 int, returning def when s is empty or
// not a number (e.g. "?page=abc").
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Page normalizes 1-based pagination input and returns the offset to use.
// A non-positive size becomes def; sizes above max are clamped.
func Page(page, size, def, max int) (p, s, offset int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = def
	}
	if max > 0 && size > max {
		size = max
	}
	return page, size, (page - 1) * size
}

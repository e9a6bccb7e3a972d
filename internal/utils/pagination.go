// Package utils holds the query-string helpers shared by the handlers.
package utils

import "strconv"

// AtoiDefault parses s as a base-10 int. Empty or malformed input yields def.
func AtoiDefault(s string, def int) int {
	return parseOr(s, def, strconv.Atoi)
}

// Atoi64Default is AtoiDefault for int64 values such as sequence numbers.
func Atoi64Default(s string, def int64) int64 {
	return parseOr(s, def, func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) })
}

// NonNegative clamps n at zero; cursors and limits never go below it.
func NonNegative[T ~int | ~int64](n T) T {
	if n < 0 {
		return 0
	}
	return n
}

func parseOr[T any](s string, def T, parse func(string) (T, error)) T {
	if s == "" {
		return def
	}
	if n, err := parse(s); err == nil {
		return n
	}
	return def
}

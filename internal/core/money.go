// Package core holds the domain model and the pure aggregation engine.
//
// This file contains amount parsing for the quick-add entry point, which
// accepts amounts as loosely formatted strings or JSON numbers.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// ParseAmount converts a string to a positive amount in minor units.
//
// Thousands separators (dots, commas, spaces) are tolerated since external
// callers tend to paste formatted numbers: "50.000" and "50,000" and "50000"
// all parse to 50000. Signs, decimals beyond separators, and zero are
// rejected.
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Money{}, ErrInvalidAmount
	}
	var digits strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits.WriteRune(r)
		case r == '.' || r == ',' || r == ' ':
			// separator, skip
		default:
			return Money{}, ErrInvalidAmount
		}
	}
	if digits.Len() == 0 {
		return Money{}, ErrInvalidAmount
	}
	units, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	if units <= 0 {
		return Money{}, ErrInvalidAmount
	}
	return Money{Units: units}, nil
}

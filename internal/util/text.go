package util

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reArrayIndex = regexp.MustCompile(`\[\d+\]`)
	reSeparators = regexp.MustCompile(`[_\-.]`)
)

// NormalizeFieldKey folds field identifier variants onto one key so that
// "Table.UnitPrice", "table_unit_price" and "Table.UnitPrice[2]" all compare
// equal. Idempotent.
func NormalizeFieldKey(field string) string {
	s := strings.ToLower(field)
	s = reSeparators.ReplaceAllString(s, "")
	s = reArrayIndex.ReplaceAllString(s, "")
	return s
}

// ParseAmount parses a decimal that may carry thousands-separator commas.
// Anything unparsable, including the empty string, yields 0.
func ParseAmount(value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	cleaned := strings.ReplaceAll(value, ",", "")
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return parsed
}

// Package index builds the dual-keyed price, balance and open-order indices
// from raw per-venue results. Builders are pure and never mutate their inputs;
// built indices are treated as immutable once returned.
package index

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var symbolPattern = regexp.MustCompile(`(?i)^([a-z0-9]+)/([a-z0-9]+)$`)

// ParseSymbol splits "BASE/QUOTE". Symbols with other characters, extra
// separators or empty parts are rejected.
func ParseSymbol(symbol string) (base, quote string, ok bool) {
	m := symbolPattern.FindStringSubmatch(symbol)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// ParseOrZero parses a venue-reported amount. Empty, malformed and non-finite
// values read as 0.
func ParseOrZero(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

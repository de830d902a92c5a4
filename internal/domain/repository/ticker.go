package repository

import "strings"

// DefaultTickers are the bank stocks analysed when nothing else is configured.
var DefaultTickers = []string{"JPM", "GS", "BAC", "C"}

// IsValidTicker returns true if s looks like an exchange symbol.
func IsValidTicker(s string) bool {
	if s == "" || len(s) > 10 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
		default:
			return false
		}
	}
	return true
}

// NormalizeTicker upper-cases and trims a raw symbol.
func NormalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeTickers normalizes, validates and de-duplicates symbols keeping their order.
// Invalid entries are dropped.
func NormalizeTickers(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		t := NormalizeTicker(raw)
		if !IsValidTicker(t) {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

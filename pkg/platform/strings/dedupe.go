// Package strings normalizes list input from request bodies.
package strings

import (
	"strings"
)

// DedupeAndTrimLower trims, lowercases and drops blank or repeated entries,
// keeping first-seen order. Transaction ids are hex and compare case-insensitively.
//
//	DedupeAndTrimLower([]string{"  AB01 ", "ab01", "", "cd"})
//	// []string{"ab01", "cd"}
func DedupeAndTrimLower(values []string) []string {
	if values == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

package models

import "strings"

// SanitizeKeySegment escapes the key delimiter so a caller-controlled segment
// cannot spill into an adjacent one. IPv6 addresses are the usual case.
func SanitizeKeySegment(s string) string {
	return strings.ReplaceAll(s, ":", "_")
}

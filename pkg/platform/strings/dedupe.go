// Package strings holds small list-cleaning helpers for user-supplied values
// such as comma-separated query parameters and tag lists.
package strings

import "strings"

// DedupeAndTrim trims whitespace from each value and drops empties and
// duplicates, keeping first-seen order. Audit query filters run through this
// so "a, b,,a" and "a,b" select the same events.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

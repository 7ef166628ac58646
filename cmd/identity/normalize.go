package identity

import "strings"

// NormalizeHandle performs case-insensitive canonicalization.
// Note: for now we only trim + lower-case. Additional rules (unicode confusables)
// can be added later behind a versioned policy.
func NormalizeHandle(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeContact performs case-insensitive canonicalization of a mail address.
func NormalizeContact(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

package util

import "strings"

// SafeTruncate returns at most the first maxLen bytes of s without
// panicking. Negative maxLen yields the empty string. Intended for logging
// prefixes of sensitive values like token handles.
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// NormalizeURL strips trailing slashes so issuer and audience URLs compare
// equal regardless of how they were written in configuration or assertions.
func NormalizeURL(url string) string {
	return strings.TrimRight(url, "/")
}

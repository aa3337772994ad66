package auth

import "crypto/subtle"

// SecureCompareTokens compares two secrets in constant time.
// Used for webhook verify tokens and anything else a client can probe byte by byte.
func SecureCompareTokens(provided, expected string) bool {
	if provided == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

package auth

import "crypto/subtle"

// APIKeyMatches compares a presented client-app API key against the
// server-held secret in constant time.
func APIKeyMatches(presented, expected string) bool {
	if presented == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}

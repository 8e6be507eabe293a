package security

import "crypto/subtle"

// SecretsEqual compares two secrets in constant time with respect to
// their contents. Length differences return early.
func SecretsEqual(stored, supplied string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}

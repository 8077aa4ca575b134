package dispatch

import "crypto/subtle"

// hmacEqual compares two signature strings in constant time, grounded on
// the teacher's gateway auth key comparison.
func hmacEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

package cryptox

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
)

// HmacSHA256 computes the HMAC-SHA256 digest of message under key and
// returns the full 32-byte digest. Deterministic for identical inputs.
func HmacSHA256(key, message []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil)
}

// ConstantTimeCompare reports whether a and b are equal without leaking
// where they differ. A length mismatch short-circuits to false; the byte
// comparison itself is data-independent. Every secret comparison in the
// engine (HMAC digest, approval code, PIN) goes through here.
func ConstantTimeCompare(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

package voicecode

import (
	"fmt"

	"github.com/famgate/famgate/internal/cryptox"
)

// GenerateVoiceCode derives the 6-digit code for a child at a given time
// bucket, keyed by the shared family secret. This is the first of the two
// voice-code systems (see the package comment).
func GenerateVoiceCode(secret []byte, childID int64, bucket int64) string {
	message := fmt.Sprintf("%d|%d", childID, bucket)
	return digitsFromDigest(cryptox.HmacSHA256(secret, []byte(message)))
}

// VerifyVoiceCode checks a spoken code for a child within tolerance
// buckets of the current one, comparing in constant time.
func VerifyVoiceCode(secret []byte, childID int64, candidate string, tolerance int64) bool {
	candidate = NormalizeDigits(candidate)
	current := cryptox.CurrentTimeBucket()

	matched := false
	for delta := -tolerance; delta <= tolerance; delta++ {
		expected := GenerateVoiceCode(secret, childID, current+delta)
		if cryptox.ConstantTimeCompare([]byte(expected), []byte(candidate)) {
			matched = true
		}
	}
	return matched
}

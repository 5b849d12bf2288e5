package voicecode

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/famgate/famgate/internal/cryptox"
)

// digitsFromDigest reduces an HMAC digest to a 6-digit numeric string:
// the first 4 bytes as a big-endian integer, mod 1,000,000.
func digitsFromDigest(digest []byte) string {
	v := binary.BigEndian.Uint32(digest[:4]) % 1000000
	return fmt.Sprintf("%06d", v)
}

// ComputeApprovalCode derives the 6-digit approval code for a set of
// outstanding request codes at the given time bucket. Whoever holds the
// shared family secret (normally the parent device) computes it; the order
// in which requests were read does not matter because the codes are sorted
// before hashing.
func ComputeApprovalCode(secret []byte, requestCodes []string, bucket int64) string {
	sorted := make([]string, len(requestCodes))
	copy(sorted, requestCodes)
	sort.Strings(sorted)

	message := strings.Join(sorted, "|") + "|" + strconv.FormatInt(bucket, 10)
	return digitsFromDigest(cryptox.HmacSHA256(secret, []byte(message)))
}

// VerifyApprovalCode checks a spoken approval code against the outstanding
// request codes, accepting the current time bucket plus or minus tolerance
// buckets. Tolerance 1 absorbs up to 15 minutes of clock skew between the
// two phones; it also means a device with a rolled-back clock can replay a
// code inside that same window, which is an accepted residual risk.
//
// Every candidate comparison is constant-time, and all buckets in the
// window are checked even after a match.
func VerifyApprovalCode(secret []byte, requestCodes []string, candidate string, tolerance int64) bool {
	candidate = NormalizeDigits(candidate)
	current := cryptox.CurrentTimeBucket()

	matched := false
	for delta := -tolerance; delta <= tolerance; delta++ {
		expected := ComputeApprovalCode(secret, requestCodes, current+delta)
		if cryptox.ConstantTimeCompare([]byte(expected), []byte(candidate)) {
			matched = true
		}
	}
	return matched
}

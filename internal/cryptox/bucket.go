package cryptox

import "time"

// BucketSeconds is the width of one time bucket: 15 minutes.
const BucketSeconds = 900

// TimeBucket maps a unix timestamp to its 15-minute bucket index,
// flooring toward negative infinity so pre-epoch timestamps still bucket
// consistently.
func TimeBucket(unixSeconds int64) int64 {
	b := unixSeconds / BucketSeconds
	if unixSeconds%BucketSeconds < 0 {
		b--
	}
	return b
}

// CurrentTimeBucket returns the bucket index for the current wall clock.
func CurrentTimeBucket() int64 {
	return TimeBucket(time.Now().Unix())
}

// IsTimeBucketValid reports whether bucket is within tolerance buckets of
// the current one. A tolerance of 1 accepts ±15 minutes of clock skew.
func IsTimeBucketValid(bucket, tolerance int64) bool {
	delta := CurrentTimeBucket() - bucket
	if delta < 0 {
		delta = -delta
	}
	return delta <= tolerance
}

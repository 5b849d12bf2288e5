package common

import "time"

// DateFormat is the calendar-date key used for cached schedule days and
// local usage records.
const DateFormat = "2006-01-02"

// TimestampFormat is the ISO-8601 UTC layout used in grant payloads and
// schedule snapshots.
const TimestampFormat = "2006-01-02T15:04:05Z"

// Default engine limits. All of them can be overridden through config.
const (
	// DefaultMaxGrantMinutes bounds how many minutes a single signed
	// grant may add.
	DefaultMaxGrantMinutes = 480

	// DefaultMaxValidityHours bounds the issued-at to expires-at window
	// of a signed grant.
	DefaultMaxValidityHours = 24

	// DefaultMaxDeficitMinutes caps the per-activity overage ledger.
	DefaultMaxDeficitMinutes = 60

	// DefaultBucketTolerance is the accepted clock skew for voice codes,
	// in 15-minute buckets.
	DefaultBucketTolerance = 1

	// DefaultMaxCacheAge is the oldest a cached schedule may be before
	// decisions fail closed, regardless of its own validUntil.
	DefaultMaxCacheAge = 24 * time.Hour
)

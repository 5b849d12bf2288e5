package decision

import "time"

// RemainingUnlimited marks a remaining-minutes figure with no ceiling:
// an excepted activity, or one with neither quota nor time blocks.
const RemainingUnlimited = -1

// Result is the outcome of one permission check. It is a fresh immutable
// value per evaluation; nothing mutates it after construction.
type Result struct {
	Allowed            bool
	Reason             Reason
	RemainingMinutes   int
	QuotaUsed          int
	QuotaTotal         int
	HasExtension       bool
	ExtensionRemaining int
}

// Event is the fan-out record published after every check, for block
// overlays, warning banners and other observers. Observers receive values
// over a channel instead of registering callbacks, so there are no
// registration lifetimes to get wrong.
type Event struct {
	ActivityID string
	Result     Result
	At         time.Time
}

// Clock supplies the wall-clock time checks evaluate against, in the
// timezone the schedule should be interpreted in. Real timezone handling
// (travel, DST edge days) is the embedder's concern; the engine only ever
// asks for "now".
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock: the Go runtime's local time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

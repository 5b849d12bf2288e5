package decision

// Reason is the closed set of outcomes a permission check can end in.
// It replaces the string tags of earlier iterations so consumers match
// exhaustively instead of comparing strings.
type Reason int

const (
	// ReasonAllowed: the activity may run.
	ReasonAllowed Reason = iota

	// ReasonNoCache: no usable schedule is cached; fail closed.
	ReasonNoCache

	// ReasonBanned: a categorical block rule applies.
	ReasonBanned

	// ReasonTimeBlocked: the current half-hour slot is not open.
	ReasonTimeBlocked

	// ReasonQuotaExhausted: the daily allotment is used up.
	ReasonQuotaExhausted
)

func (r Reason) String() string {
	switch r {
	case ReasonAllowed:
		return "allowed"
	case ReasonNoCache:
		return "no_cache"
	case ReasonBanned:
		return "banned"
	case ReasonTimeBlocked:
		return "time_blocked"
	case ReasonQuotaExhausted:
		return "quota_exhausted"
	default:
		return "unknown"
	}
}

// Package decision implements the priority-ordered local evaluator that
// answers "is this activity allowed right now, and for how long" from the
// cached schedule alone, with no network round trip.
package decision

import (
	"context"
	"time"

	"github.com/famgate/famgate/internal/common"
	"github.com/famgate/famgate/internal/deficit"
	"github.com/famgate/famgate/internal/logging"
	"github.com/famgate/famgate/internal/schedule"
)

// WarningThresholds are the remaining-minutes marks at which one-shot UI
// warnings fire, in descending order.
var WarningThresholds = []int{15, 5, 1}

const eventBuffer = 16

// Engine evaluates permission checks against a schedule cache and,
// optionally, a deficit ledger. It holds non-owning references and never
// mutates cache state except through LogUsage. Like the cache it is
// confined to one logical sequence and does no locking.
type Engine struct {
	cache       *schedule.Cache
	ledger      *deficit.Ledger
	clock       Clock
	log         logging.Logger
	maxCacheAge time.Duration
	events      chan Event
}

// NewEngine wires an evaluator. ledger may be nil when deficit accounting
// is disabled; clock and log default to the system clock and a no-op
// logger; maxCacheAge <= 0 selects the 24h default.
func NewEngine(cache *schedule.Cache, ledger *deficit.Ledger, clock Clock, log logging.Logger, maxCacheAge time.Duration) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = logging.Nop()
	}
	if maxCacheAge <= 0 {
		maxCacheAge = common.DefaultMaxCacheAge
	}
	return &Engine{
		cache:       cache,
		ledger:      ledger,
		clock:       clock,
		log:         log,
		maxCacheAge: maxCacheAge,
		events:      make(chan Event, eventBuffer),
	}
}

// Events is the observer channel. Events are dropped, not blocked on,
// when no one is draining it.
func (e *Engine) Events() <-chan Event {
	return e.events
}

func (e *Engine) publish(ev Event) {
	select {
	case e.events <- ev:
	default:
	}
}

// IsCacheValid reports whether decisions can be made at all: the cache
// must hold a schedule, the schedule's own validUntil must not have
// passed, and the snapshot must have been applied within maxCacheAge.
func (e *Engine) IsCacheValid(at time.Time) bool {
	return e.cache != nil &&
		e.cache.IsValid() &&
		!e.cache.IsExpired(at) &&
		at.Sub(e.cache.UpdatedAt()) <= e.maxCacheAge
}

// Check evaluates the activity at the current clock time and publishes the
// outcome to observers. It never fails; an absent or stale cache produces
// a fail-closed NoCache result.
func (e *Engine) Check(activityID string) Result {
	return e.CheckAt(activityID, e.clock.Now())
}

// CheckAt is Check against an explicit evaluation time.
func (e *Engine) CheckAt(activityID string, at time.Time) Result {
	res := e.evaluate(activityID, at)
	e.log.Debug(context.Background(), "permission check",
		"activity", activityID, "allowed", res.Allowed, "reason", res.Reason.String(),
		"remaining", res.RemainingMinutes)
	e.publish(Event{ActivityID: activityID, Result: res, At: at})
	return res
}

// evaluate walks the strict, non-reorderable priority ladder:
// exception, ban, extension, time block, quota.
func (e *Engine) evaluate(activityID string, at time.Time) Result {
	if !e.IsCacheValid(at) {
		return Result{Allowed: false, Reason: ReasonNoCache}
	}

	childID := e.cache.Header().ChildID

	// 1+2. Categorical rules. All matching rules are inspected before
	// deciding so that an exception beats a ban regardless of order.
	excepted, banned := false, false
	for _, r := range e.cache.Restrictions() {
		if !r.Matches(activityID) || !r.InEffect(at) {
			continue
		}
		if r.Blocked {
			banned = true
		} else {
			excepted = true
		}
	}
	if excepted {
		return Result{Allowed: true, Reason: ReasonAllowed, RemainingMinutes: RemainingUnlimited}
	}
	if banned {
		return Result{Allowed: false, Reason: ReasonBanned}
	}

	date := at.Format(common.DateFormat)
	day, ok := e.cache.Day(date)
	if !ok {
		// Cached schedule does not cover today: most restrictive result.
		return Result{Allowed: false, Reason: ReasonNoCache}
	}

	activity, configured := day.Activities[activityID]
	if !configured {
		// Nothing is scheduled for this activity: no quota, no blocks.
		return Result{Allowed: true, Reason: ReasonAllowed, RemainingMinutes: RemainingUnlimited}
	}

	quotaTotal := activity.Quota + activity.Bonus
	quotaUsed := activity.Used + e.cache.LocalUsage(date, activityID)
	quotaRemaining := quotaTotal - quotaUsed
	if quotaRemaining < 0 {
		quotaRemaining = 0
	}
	if e.ledger != nil {
		quotaRemaining = e.ledger.ApplyDeficit(childID, activityID, quotaRemaining)
	}
	hasQuota := quotaTotal > 0

	base := Result{QuotaUsed: quotaUsed, QuotaTotal: quotaTotal}

	// 3. An active extension allows outright. It can only raise the
	// ceiling, never lower it.
	if ext, ok := e.cache.ActiveExtension(activityID, at); ok {
		res := base
		res.Allowed = true
		res.Reason = ReasonAllowed
		res.HasExtension = true
		res.ExtensionRemaining = ext.RemainingMinutes(at)
		if !hasQuota {
			res.RemainingMinutes = RemainingUnlimited
		} else {
			res.RemainingMinutes = maxInt(quotaRemaining, res.ExtensionRemaining)
		}
		return res
	}

	// 4. Time blocks.
	blockRemaining := RemainingUnlimited
	if activity.HasTimeBlocks() {
		slot := schedule.SlotIndex(at)
		if !activity.IsSlotAllowed(slot) {
			res := base
			res.Reason = ReasonTimeBlocked
			return res
		}
		open := 0
		for s := slot; s < schedule.SlotsPerDay && activity.IsSlotAllowed(s); s++ {
			open++
		}
		blockRemaining = open*30 - at.Minute()%30
	}

	// 5. Quota.
	if hasQuota && quotaRemaining == 0 {
		res := base
		res.Reason = ReasonQuotaExhausted
		return res
	}

	// 6. Allowed, remaining bounded by whichever ceilings exist.
	res := base
	res.Allowed = true
	res.Reason = ReasonAllowed
	switch {
	case hasQuota && blockRemaining != RemainingUnlimited:
		res.RemainingMinutes = minInt(quotaRemaining, blockRemaining)
	case hasQuota:
		res.RemainingMinutes = quotaRemaining
	default:
		res.RemainingMinutes = blockRemaining
	}
	return res
}

// LogUsage forwards locally observed minutes into the cache's additive
// usage accumulator.
func (e *Engine) LogUsage(activityID string, minutes int) {
	e.cache.RecordUsage(activityID, minutes, e.clock.Now())
}

// GetEffectiveRemaining combines the quota ceiling, the time-block ceiling
// and the extension floor into the single number warning logic watches.
// Denied activities report 0; activities with no ceiling report
// RemainingUnlimited.
func (e *Engine) GetEffectiveRemaining(activityID string, at time.Time) int {
	res := e.evaluate(activityID, at)
	if !res.Allowed {
		return 0
	}
	return res.RemainingMinutes
}

// GetCrossedWarningThresholds returns the thresholds newly crossed moving
// from previousRemaining to the current effective remaining. Each
// threshold fires only on a strict downward crossing: never on ties,
// never when time was granted back. previousRemaining may be
// RemainingUnlimited.
func (e *Engine) GetCrossedWarningThresholds(activityID string, previousRemaining int, at time.Time) []int {
	current := e.GetEffectiveRemaining(activityID, at)
	if current == RemainingUnlimited {
		return nil
	}

	var crossed []int
	for _, threshold := range WarningThresholds {
		wasAbove := previousRemaining == RemainingUnlimited || previousRemaining > threshold
		if wasAbove && current <= threshold {
			crossed = append(crossed, threshold)
		}
	}
	return crossed
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

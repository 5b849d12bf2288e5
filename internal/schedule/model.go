// Package schedule holds the multi-day cached permission schedule a child
// device decides against while offline: per-day quotas and half-hour time
// blocks, categorical restrictions, extensions, plus the locally accrued
// usage and locally granted extensions still waiting to be synced.
package schedule

import (
	"path"
	"time"
)

// SlotsPerDay is the number of half-hour time blocks in a day.
const SlotsPerDay = 48

// SlotIndex maps a wall-clock time to its half-hour slot:
// hour*2 + (minute>=30), clamped to [0,47].
func SlotIndex(t time.Time) int {
	slot := t.Hour()*2 + t.Minute()/30
	if slot < 0 {
		return 0
	}
	if slot >= SlotsPerDay {
		return SlotsPerDay - 1
	}
	return slot
}

// Header describes one cached schedule: who it is for, when the server
// generated it and until when it may be trusted.
type Header struct {
	GeneratedAt time.Time
	ValidUntil  time.Time
	ChildID     int64
	Timezone    string
}

// DayType labels a cached day (school day, weekend, holiday, ...).
type DayType struct {
	ID   int64
	Name string
}

// CachedActivity is one activity's allotment for one day.
type CachedActivity struct {
	Name  string
	Quota int // daily quota minutes; 0 means no quota configured
	Used  int // server-logged minutes at snapshot time
	Bonus int // server-side quota bonus

	// TimeBlocks holds 48 half-hour allow flags. A nil slice means no
	// blocks are configured and the activity is allowed all day.
	TimeBlocks []bool
}

// HasTimeBlocks reports whether any block schedule is configured.
func (a CachedActivity) HasTimeBlocks() bool {
	return len(a.TimeBlocks) == SlotsPerDay
}

// IsSlotAllowed reports whether the given half-hour slot is open. Without
// configured blocks every slot is open.
func (a CachedActivity) IsSlotAllowed(slot int) bool {
	if !a.HasTimeBlocks() {
		return true
	}
	if slot < 0 || slot >= SlotsPerDay {
		return false
	}
	return a.TimeBlocks[slot]
}

// CachedDay is one child's schedule for one calendar date.
type CachedDay struct {
	Date       string // YYYY-MM-DD
	DayType    DayType
	Activities map[string]CachedActivity
}

// CachedExtension temporarily raises the effective remaining time for one
// activity.
type CachedExtension struct {
	ID         int64
	ChildID    int64
	ActivityID string
	Minutes    int
	ExpiresAt  time.Time
}

// IsActive reports whether the extension still counts at the given time.
func (e CachedExtension) IsActive(now time.Time) bool {
	return e.Minutes > 0 && now.Before(e.ExpiresAt)
}

// RemainingMinutes is how much of the extension window is left, floored
// at zero.
func (e CachedExtension) RemainingMinutes(now time.Time) int {
	if !e.IsActive(now) {
		return 0
	}
	return int(e.ExpiresAt.Sub(now) / time.Minute)
}

// CachedRestriction is a categorical allow/deny rule independent of time.
// Blocked=true is a ban; Blocked=false is an exception, an activity always
// allowed regardless of quota or blocks. Bans may carry their own expiry.
type CachedRestriction struct {
	ID        int64
	Type      string
	Pattern   string
	Blocked   bool
	ExpiresAt *time.Time
}

// Matches reports whether the rule applies to the activity. The pattern is
// an exact activity id or a glob ("*" matches everything).
func (r CachedRestriction) Matches(activityID string) bool {
	if r.Pattern == activityID {
		return true
	}
	ok, err := path.Match(r.Pattern, activityID)
	return err == nil && ok
}

// InEffect reports whether the rule applies at the given time. Rules
// without an expiry are permanent.
func (r CachedRestriction) InEffect(now time.Time) bool {
	return r.ExpiresAt == nil || now.Before(*r.ExpiresAt)
}

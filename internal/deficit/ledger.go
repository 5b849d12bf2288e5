// Package deficit tracks overage minutes per child and activity: time used
// beyond the allowance that is owed back against a future day's quota.
package deficit

import (
	"fmt"
	"time"

	"github.com/famgate/famgate/internal/common"
)

// Entry is one (child, activity) overage record.
type Entry struct {
	ChildID        int64     `json:"childId"`
	ActivityID     string    `json:"activityId"`
	DeficitMinutes int       `json:"deficitMinutes"`
	AccruedAt      time.Time `json:"accruedAt"`
}

// Ledger accumulates deficits up to a hard cap. Payback (the server's
// 50%-on-sync rule) is applied at the sync boundary, never locally; this
// ledger only accrues and reports.
type Ledger struct {
	max     int
	entries map[string]*Entry
}

// NewLedger returns a ledger capped at maxDeficitMinutes; zero or negative
// means the default cap.
func NewLedger(maxDeficitMinutes int) *Ledger {
	if maxDeficitMinutes <= 0 {
		maxDeficitMinutes = common.DefaultMaxDeficitMinutes
	}
	return &Ledger{max: maxDeficitMinutes, entries: make(map[string]*Entry)}
}

func key(childID int64, activityID string) string {
	return fmt.Sprintf("%d|%s", childID, activityID)
}

// MaxDeficitMinutes returns the cap.
func (l *Ledger) MaxDeficitMinutes() int {
	return l.max
}

// AddDeficit accrues minutes against (child, activity) and returns the new
// total. The total clamps at the cap; the clamp is the documented limit,
// not silent data loss.
func (l *Ledger) AddDeficit(childID int64, activityID string, minutes int, at time.Time) int {
	if minutes <= 0 {
		return l.Deficit(childID, activityID)
	}
	k := key(childID, activityID)
	e, ok := l.entries[k]
	if !ok {
		e = &Entry{ChildID: childID, ActivityID: activityID}
		l.entries[k] = e
	}
	e.DeficitMinutes += minutes
	if e.DeficitMinutes > l.max {
		e.DeficitMinutes = l.max
	}
	e.AccruedAt = at
	return e.DeficitMinutes
}

// Deficit returns the accrued minutes for (child, activity).
func (l *Ledger) Deficit(childID int64, activityID string) int {
	if e, ok := l.entries[key(childID, activityID)]; ok {
		return e.DeficitMinutes
	}
	return 0
}

// ApplyDeficit reduces a remaining-minutes figure by the accrued deficit,
// floored at zero.
func (l *Ledger) ApplyDeficit(childID int64, activityID string, remaining int) int {
	r := remaining - l.Deficit(childID, activityID)
	if r < 0 {
		return 0
	}
	return r
}

// IsDeficitExceeded reports whether (child, activity) has hit the cap.
func (l *Ledger) IsDeficitExceeded(childID int64, activityID string) bool {
	return l.Deficit(childID, activityID) >= l.max
}

// Entries returns a copy of all records for the sync collaborator.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, *e)
	}
	return out
}

// ReplaceAll swaps in the reconciled records the server handed back after
// a sync (payback already applied server-side).
func (l *Ledger) ReplaceAll(entries []Entry) {
	m := make(map[string]*Entry, len(entries))
	for _, e := range entries {
		e := e
		if e.DeficitMinutes > l.max {
			e.DeficitMinutes = l.max
		}
		m[key(e.ChildID, e.ActivityID)] = &e
	}
	l.entries = m
}

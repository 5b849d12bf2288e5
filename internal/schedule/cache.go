package schedule

import (
	"time"

	"github.com/famgate/famgate/internal/common"
)

// Cache is the device's working copy of one child's schedule. Snapshot
// state (header, days, restrictions, server extensions) is replaced
// atomically and only ever as a whole; local state (usage accrued offline,
// extensions granted offline) is additive, keyed independently by
// (date, activityId), and survives snapshot replacement until the sync
// collaborator acknowledges it.
//
// The cache does no locking; the embedder confines it to one logical
// sequence.
type Cache struct {
	header       *Header
	days         map[string]CachedDay
	restrictions []CachedRestriction
	extensions   []CachedExtension

	localUsage      map[string]map[string]int // date -> activityId -> minutes
	localExtensions []CachedExtension
	localExceptions []CachedRestriction

	updatedAt time.Time
}

func NewCache() *Cache {
	return &Cache{
		days:       make(map[string]CachedDay),
		localUsage: make(map[string]map[string]int),
	}
}

// IsValid reports whether the cache holds a usable schedule: a header and
// at least one day.
func (c *Cache) IsValid() bool {
	return c.header != nil && len(c.days) > 0
}

// IsExpired reports whether the schedule's own validity window has passed.
func (c *Cache) IsExpired(now time.Time) bool {
	return c.header == nil || now.After(c.header.ValidUntil)
}

// Header returns the snapshot header, or nil when nothing was ingested.
func (c *Cache) Header() *Header {
	return c.header
}

// UpdatedAt is when the current snapshot was applied on this device.
func (c *Cache) UpdatedAt() time.Time {
	return c.updatedAt
}

// UpdateFromSnapshot atomically replaces the entire snapshot-owned state.
// Partial merges are never performed, so a reader can never observe a day
// map that is half old and half new. Local usage and local extensions are
// left untouched.
func (c *Cache) UpdateFromSnapshot(snap *Snapshot, appliedAt time.Time) {
	days := make(map[string]CachedDay, len(snap.Days))
	for _, d := range snap.Days {
		days[d.Date] = d
	}

	c.header = &snap.Header
	c.days = days
	c.restrictions = append([]CachedRestriction(nil), snap.Restrictions...)
	c.extensions = append([]CachedExtension(nil), snap.Extensions...)
	c.updatedAt = appliedAt
}

// Day returns the cached day for a date key (YYYY-MM-DD).
func (c *Cache) Day(date string) (CachedDay, bool) {
	d, ok := c.days[date]
	return d, ok
}

// Activity returns one activity's allotment for a date.
func (c *Cache) Activity(date, activityID string) (CachedActivity, bool) {
	d, ok := c.days[date]
	if !ok {
		return CachedActivity{}, false
	}
	a, ok := d.Activities[activityID]
	return a, ok
}

// Restrictions returns the categorical rules in effect: the current
// snapshot's rules followed by any exceptions added locally.
func (c *Cache) Restrictions() []CachedRestriction {
	if len(c.localExceptions) == 0 {
		return c.restrictions
	}
	out := make([]CachedRestriction, 0, len(c.restrictions)+len(c.localExceptions))
	out = append(out, c.restrictions...)
	return append(out, c.localExceptions...)
}

// RecordUsage adds locally observed minutes for an activity on the date of
// at. The minutes accumulate until ClearLocalUsage.
func (c *Cache) RecordUsage(activityID string, minutes int, at time.Time) {
	if minutes <= 0 {
		return
	}
	date := at.Format(common.DateFormat)
	if c.localUsage[date] == nil {
		c.localUsage[date] = make(map[string]int)
	}
	c.localUsage[date][activityID] += minutes
}

// LocalUsage returns the locally accrued minutes for (date, activity).
func (c *Cache) LocalUsage(date, activityID string) int {
	return c.localUsage[date][activityID]
}

// GetAllLocalUsage returns a copy of the local usage map for the sync
// collaborator to submit.
func (c *Cache) GetAllLocalUsage() map[string]map[string]int {
	out := make(map[string]map[string]int, len(c.localUsage))
	for date, activities := range c.localUsage {
		m := make(map[string]int, len(activities))
		for id, minutes := range activities {
			m[id] = minutes
		}
		out[date] = m
	}
	return out
}

// ClearLocalUsage drops all locally accrued usage. Called only on explicit
// sync acknowledgement.
func (c *Cache) ClearLocalUsage() {
	c.localUsage = make(map[string]map[string]int)
}

// AddLocalExtension records an extension granted on-device (via a signed
// grant or a verified voice code) that the server does not know about yet.
func (c *Cache) AddLocalExtension(ext CachedExtension) {
	c.localExtensions = append(c.localExtensions, ext)
}

// GetLocalExtensions returns a copy of the pending local extensions.
func (c *Cache) GetLocalExtensions() []CachedExtension {
	return append([]CachedExtension(nil), c.localExtensions...)
}

// ClearLocalExtensions drops the pending local extensions. Called only on
// explicit sync acknowledgement.
func (c *Cache) ClearLocalExtensions() {
	c.localExtensions = nil
}

// AddLocalException records an exception rule granted on-device, typically
// a verified ban-lift grant. The rule is forced to Blocked=false: local
// additions can only open access, never restrict it further.
func (c *Cache) AddLocalException(r CachedRestriction) {
	r.Blocked = false
	c.localExceptions = append(c.localExceptions, r)
}

// GetLocalExceptions returns a copy of the pending local exceptions.
func (c *Cache) GetLocalExceptions() []CachedRestriction {
	return append([]CachedRestriction(nil), c.localExceptions...)
}

// ClearLocalExceptions drops the pending local exceptions. Called only on
// explicit sync acknowledgement.
func (c *Cache) ClearLocalExceptions() {
	c.localExceptions = nil
}

// ActiveExtension returns the extension, server-delivered or local, with
// the most remaining time for an activity. The second result is false when
// none is active.
func (c *Cache) ActiveExtension(activityID string, now time.Time) (CachedExtension, bool) {
	var best CachedExtension
	found := false
	for _, list := range [][]CachedExtension{c.extensions, c.localExtensions} {
		for _, e := range list {
			if e.ActivityID != activityID || !e.IsActive(now) {
				continue
			}
			if !found || e.RemainingMinutes(now) > best.RemainingMinutes(now) {
				best = e
				found = true
			}
		}
	}
	return best, found
}

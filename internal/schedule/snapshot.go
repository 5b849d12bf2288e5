package schedule

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/famgate/famgate/internal/common"
)

// Snapshot is a parsed, validated schedule document as delivered by the
// sync collaborator. It is immutable once parsed; the cache consumes it
// whole in UpdateFromSnapshot.
type Snapshot struct {
	Header       Header
	Days         []CachedDay
	Restrictions []CachedRestriction
	Extensions   []CachedExtension
}

type snapshotJSON struct {
	GeneratedAt  string                 `json:"generatedAt"`
	ValidUntil   string                 `json:"validUntil"`
	ChildID      int64                  `json:"childId"`
	Timezone     string                 `json:"timezone"`
	Days         []dayJSON              `json:"days"`
	Restrictions []restrictionJSON      `json:"restrictions"`
	Extensions   []extensionJSON        `json:"extensions"`
}

type dayJSON struct {
	Date    string `json:"date"`
	DayType struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"dayType"`
	Activities map[string]activityJSON `json:"activities"`
}

type activityJSON struct {
	Name       string `json:"name"`
	Quota      int    `json:"quota"`
	Used       int    `json:"used,omitempty"`
	Bonus      int    `json:"bonus,omitempty"`
	TimeBlocks []int  `json:"timeBlocks"`
}

type restrictionJSON struct {
	ID        int64   `json:"id"`
	Type      string  `json:"type"`
	Pattern   string  `json:"pattern"`
	Blocked   bool    `json:"blocked"`
	ExpiresAt *string `json:"expiresAt,omitempty"`
}

type extensionJSON struct {
	ID         int64  `json:"id"`
	ChildID    int64  `json:"childId"`
	ActivityID string `json:"activityId"`
	Minutes    int    `json:"minutes"`
	ExpiresAt  string `json:"expiresAt"`
}

func parseTimestamp(field, value string) (time.Time, error) {
	t, err := time.Parse(common.TimestampFormat, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad %s %q", common.ErrInvalidSnapshot, field, value)
	}
	return t, nil
}

// ParseSnapshot decodes and validates a schedule JSON document. A snapshot
// with no days, unparsable timestamps or malformed time blocks is rejected
// as a whole; there is no partial acceptance.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	var doc snapshotJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidSnapshot, err)
	}

	generatedAt, err := parseTimestamp("generatedAt", doc.GeneratedAt)
	if err != nil {
		return nil, err
	}
	validUntil, err := parseTimestamp("validUntil", doc.ValidUntil)
	if err != nil {
		return nil, err
	}
	if len(doc.Days) == 0 {
		return nil, fmt.Errorf("%w: no days", common.ErrInvalidSnapshot)
	}

	snap := &Snapshot{
		Header: Header{
			GeneratedAt: generatedAt,
			ValidUntil:  validUntil,
			ChildID:     doc.ChildID,
			Timezone:    doc.Timezone,
		},
	}

	for _, d := range doc.Days {
		if _, err := time.Parse(common.DateFormat, d.Date); err != nil {
			return nil, fmt.Errorf("%w: bad date %q", common.ErrInvalidSnapshot, d.Date)
		}
		day := CachedDay{
			Date:       d.Date,
			DayType:    DayType{ID: d.DayType.ID, Name: d.DayType.Name},
			Activities: make(map[string]CachedActivity, len(d.Activities)),
		}
		for id, a := range d.Activities {
			activity := CachedActivity{
				Name:  a.Name,
				Quota: a.Quota,
				Used:  a.Used,
				Bonus: a.Bonus,
			}
			if len(a.TimeBlocks) > 0 {
				if len(a.TimeBlocks) != SlotsPerDay {
					return nil, fmt.Errorf("%w: activity %q has %d time blocks",
						common.ErrInvalidSnapshot, id, len(a.TimeBlocks))
				}
				blocks := make([]bool, SlotsPerDay)
				for i, flag := range a.TimeBlocks {
					blocks[i] = flag != 0
				}
				activity.TimeBlocks = blocks
			}
			day.Activities[id] = activity
		}
		snap.Days = append(snap.Days, day)
	}

	for _, r := range doc.Restrictions {
		restriction := CachedRestriction{
			ID:      r.ID,
			Type:    r.Type,
			Pattern: r.Pattern,
			Blocked: r.Blocked,
		}
		if r.ExpiresAt != nil {
			expires, err := parseTimestamp("restriction expiresAt", *r.ExpiresAt)
			if err != nil {
				return nil, err
			}
			restriction.ExpiresAt = &expires
		}
		snap.Restrictions = append(snap.Restrictions, restriction)
	}

	for _, e := range doc.Extensions {
		expires, err := parseTimestamp("extension expiresAt", e.ExpiresAt)
		if err != nil {
			return nil, err
		}
		snap.Extensions = append(snap.Extensions, CachedExtension{
			ID:         e.ID,
			ChildID:    e.ChildID,
			ActivityID: e.ActivityID,
			Minutes:    e.Minutes,
			ExpiresAt:  expires,
		})
	}

	return snap, nil
}

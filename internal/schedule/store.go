package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/famgate/famgate/internal/common"
	"github.com/famgate/famgate/internal/cryptox"
	"github.com/famgate/famgate/internal/logging"
	"github.com/famgate/famgate/internal/prefs"
)

// Pref keys owned by the schedule store.
const (
	prefSnapshot        = "schedule.snapshot"
	prefLocalUsage      = "schedule.local_usage"
	prefLocalExtensions = "schedule.local_extensions"
	prefLocalExceptions = "schedule.local_exceptions"
	prefUpdatedAt       = "schedule.updated_at"
)

// Store persists the cache through the prefs contract, sealing every value
// with the device storage key so a child poking at the backing file cannot
// read or rewrite the schedule.
type Store struct {
	prefs      prefs.Store
	storageKey []byte
	log        logging.Logger
}

func NewStore(p prefs.Store, storageKey []byte, log logging.Logger) *Store {
	if log == nil {
		log = logging.Nop()
	}
	return &Store{prefs: p, storageKey: storageKey, log: log}
}

type localExtensionRecord struct {
	ID         int64  `json:"id"`
	ChildID    int64  `json:"childId"`
	ActivityID string `json:"activityId"`
	Minutes    int    `json:"minutes"`
	ExpiresAt  string `json:"expiresAt"`
}

type localExceptionRecord struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Pattern   string `json:"pattern"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

func (s *Store) setSealed(ctx context.Context, key string, plaintext []byte) error {
	sealed, err := cryptox.EncryptForStorage(plaintext, s.storageKey)
	if err != nil {
		return fmt.Errorf("failed to seal %s: %w", key, err)
	}
	return s.prefs.SetString(ctx, key, sealed)
}

// getSealed returns (nil, nil) when the key is absent and (nil, error) only
// on store failures. A value that fails authentication is treated as
// absent: corrupt state must degrade to "no cache", never to a crash.
func (s *Store) getSealed(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.prefs.GetString(ctx, key)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	plaintext, ok := cryptox.DecryptFromStorage(sealed, s.storageKey)
	if !ok {
		s.log.Warn(ctx, "discarding unreadable persisted value", "key", key)
		return nil, nil
	}
	return plaintext, nil
}

// SaveSnapshot seals and persists the raw snapshot document along with the
// time it was applied.
func (s *Store) SaveSnapshot(ctx context.Context, raw []byte, appliedAt time.Time) error {
	if err := s.setSealed(ctx, prefSnapshot, raw); err != nil {
		return err
	}
	return s.prefs.SetTime(ctx, prefUpdatedAt, appliedAt)
}

// SaveLocalState seals and persists the cache's local usage and pending
// local extensions.
func (s *Store) SaveLocalState(ctx context.Context, c *Cache) error {
	usage, err := json.Marshal(c.GetAllLocalUsage())
	if err != nil {
		return err
	}
	if err := s.setSealed(ctx, prefLocalUsage, usage); err != nil {
		return err
	}

	records := make([]localExtensionRecord, 0, len(c.localExtensions))
	for _, e := range c.localExtensions {
		records = append(records, localExtensionRecord{
			ID:         e.ID,
			ChildID:    e.ChildID,
			ActivityID: e.ActivityID,
			Minutes:    e.Minutes,
			ExpiresAt:  e.ExpiresAt.UTC().Format(common.TimestampFormat),
		})
	}
	extensions, err := json.Marshal(records)
	if err != nil {
		return err
	}
	if err := s.setSealed(ctx, prefLocalExtensions, extensions); err != nil {
		return err
	}

	exceptionRecords := make([]localExceptionRecord, 0, len(c.localExceptions))
	for _, r := range c.localExceptions {
		rec := localExceptionRecord{ID: r.ID, Type: r.Type, Pattern: r.Pattern}
		if r.ExpiresAt != nil {
			rec.ExpiresAt = r.ExpiresAt.UTC().Format(common.TimestampFormat)
		}
		exceptionRecords = append(exceptionRecords, rec)
	}
	exceptions, err := json.Marshal(exceptionRecords)
	if err != nil {
		return err
	}
	return s.setSealed(ctx, prefLocalExceptions, exceptions)
}

// Load rebuilds the cache from persisted state. Missing or unreadable
// snapshot state yields an empty (invalid) cache, which the decision
// engine treats as fail-closed NoCache; it is never an error.
func (s *Store) Load(ctx context.Context) (*Cache, error) {
	c := NewCache()

	raw, err := s.getSealed(ctx, prefSnapshot)
	if err != nil {
		return nil, err
	}
	if raw != nil {
		snap, err := ParseSnapshot(raw)
		if err != nil {
			s.log.Warn(ctx, "discarding unparsable persisted snapshot", "err", err)
		} else {
			appliedAt, err := s.prefs.GetTime(ctx, prefUpdatedAt)
			if err != nil && !errors.Is(err, common.ErrNotFound) {
				return nil, err
			}
			c.UpdateFromSnapshot(snap, appliedAt)
		}
	}

	usage, err := s.getSealed(ctx, prefLocalUsage)
	if err != nil {
		return nil, err
	}
	if usage != nil {
		var m map[string]map[string]int
		if err := json.Unmarshal(usage, &m); err != nil {
			s.log.Warn(ctx, "discarding unparsable local usage", "err", err)
		} else if m != nil {
			c.localUsage = m
		}
	}

	extensions, err := s.getSealed(ctx, prefLocalExtensions)
	if err != nil {
		return nil, err
	}
	if extensions != nil {
		var records []localExtensionRecord
		if err := json.Unmarshal(extensions, &records); err != nil {
			s.log.Warn(ctx, "discarding unparsable local extensions", "err", err)
		} else {
			for _, r := range records {
				expires, err := time.Parse(common.TimestampFormat, r.ExpiresAt)
				if err != nil {
					continue
				}
				c.localExtensions = append(c.localExtensions, CachedExtension{
					ID:         r.ID,
					ChildID:    r.ChildID,
					ActivityID: r.ActivityID,
					Minutes:    r.Minutes,
					ExpiresAt:  expires,
				})
			}
		}
	}

	exceptions, err := s.getSealed(ctx, prefLocalExceptions)
	if err != nil {
		return nil, err
	}
	if exceptions != nil {
		var records []localExceptionRecord
		if err := json.Unmarshal(exceptions, &records); err != nil {
			s.log.Warn(ctx, "discarding unparsable local exceptions", "err", err)
		} else {
			for _, r := range records {
				restriction := CachedRestriction{ID: r.ID, Type: r.Type, Pattern: r.Pattern}
				if r.ExpiresAt != "" {
					expires, err := time.Parse(common.TimestampFormat, r.ExpiresAt)
					if err != nil {
						continue
					}
					restriction.ExpiresAt = &expires
				}
				c.AddLocalException(restriction)
			}
		}
	}

	return c, nil
}

// Clear removes all persisted schedule state.
func (s *Store) Clear(ctx context.Context) error {
	for _, key := range []string{prefSnapshot, prefLocalUsage, prefLocalExtensions, prefLocalExceptions, prefUpdatedAt} {
		if err := s.prefs.ClearPref(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

package prefs

import (
	"context"
	"time"

	"github.com/famgate/famgate/internal/common"
)

// MemoryStore is an in-memory Store for tests and throwaway sessions.
type MemoryStore struct {
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) GetString(_ context.Context, key string) (string, error) {
	v, ok := s.values[key]
	if !ok {
		return "", common.ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) SetString(_ context.Context, key, value string) error {
	s.values[key] = value
	return nil
}

func (s *MemoryStore) ClearPref(_ context.Context, key string) error {
	delete(s.values, key)
	return nil
}

func (s *MemoryStore) GetTime(ctx context.Context, key string) (time.Time, error) {
	raw, err := s.GetString(ctx, key)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, raw)
}

func (s *MemoryStore) SetTime(ctx context.Context, key string, value time.Time) error {
	return s.SetString(ctx, key, value.UTC().Format(time.RFC3339Nano))
}

// Package prefs is the abstract key/value persistence contract the engine
// stores its state behind: the encrypted schedule JSON, the local usage
// map, the local extension list, the sealed device key. The engine never
// assumes more than this surface, so embedders can back it with whatever
// their platform offers.
package prefs

import (
	"context"
	"time"
)

// Store is a flat string key/value store with a typed convenience layer
// for timestamps. A missing key is reported as common.ErrNotFound.
type Store interface {
	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key, value string) error
	ClearPref(ctx context.Context, key string) error

	GetTime(ctx context.Context, key string) (time.Time, error)
	SetTime(ctx context.Context, key string, value time.Time) error
}

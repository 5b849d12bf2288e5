package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/famgate/famgate/internal/logging"
	"github.com/famgate/famgate/internal/prefs"
)

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	key := []byte("device-storage-secret")
	store := NewStore(prefs.NewMemoryStore(), key, logging.Nop())

	raw := snapshotDoc("2026-03-16T06:00:00Z")
	appliedAt := time.Date(2026, 3, 14, 7, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveSnapshot(ctx, raw, appliedAt))

	c, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, c.IsValid())
	assert.Equal(t, int64(42), c.Header().ChildID)
	assert.True(t, appliedAt.Equal(c.UpdatedAt()))

	// local state round-trips independently
	at := time.Date(2026, 3, 14, 16, 0, 0, 0, time.UTC)
	c.RecordUsage("games", 10, at)
	c.AddLocalExtension(CachedExtension{ChildID: 42, ActivityID: "games", Minutes: 15,
		ExpiresAt: time.Date(2026, 3, 14, 21, 0, 0, 0, time.UTC)})
	liftUntil := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	c.AddLocalException(CachedRestriction{Type: "activity", Pattern: "gambling.example", ExpiresAt: &liftUntil})
	require.NoError(t, store.SaveLocalState(ctx, c))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, loaded.LocalUsage("2026-03-14", "games"))
	require.Len(t, loaded.GetLocalExtensions(), 1)
	assert.Equal(t, 15, loaded.GetLocalExtensions()[0].Minutes)
	require.Len(t, loaded.GetLocalExceptions(), 1)
	ex := loaded.GetLocalExceptions()[0]
	assert.Equal(t, "gambling.example", ex.Pattern)
	require.NotNil(t, ex.ExpiresAt)
	assert.True(t, liftUntil.Equal(*ex.ExpiresAt))
}

func TestStore_MissingStateLoadsEmptyCache(t *testing.T) {
	store := NewStore(prefs.NewMemoryStore(), []byte("k"), logging.Nop())

	c, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, c.IsValid())
}

func TestStore_CorruptStateFailsClosed(t *testing.T) {
	ctx := context.Background()
	p := prefs.NewMemoryStore()
	store := NewStore(p, []byte("k"), logging.Nop())

	require.NoError(t, store.SaveSnapshot(ctx, snapshotDoc("2026-03-16T06:00:00Z"), time.Now()))

	// overwrite the sealed snapshot with garbage; the load must degrade to
	// an empty cache, never error or return partial state
	require.NoError(t, p.SetString(ctx, "schedule.snapshot", "corrupted"))

	c, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, c.IsValid())
}

func TestStore_WrongKeyFailsClosed(t *testing.T) {
	ctx := context.Background()
	p := prefs.NewMemoryStore()

	require.NoError(t, NewStore(p, []byte("key-a"), logging.Nop()).
		SaveSnapshot(ctx, snapshotDoc("2026-03-16T06:00:00Z"), time.Now()))

	c, err := NewStore(p, []byte("key-b"), logging.Nop()).Load(ctx)
	require.NoError(t, err)
	assert.False(t, c.IsValid())
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	p := prefs.NewMemoryStore()
	store := NewStore(p, []byte("k"), logging.Nop())

	require.NoError(t, store.SaveSnapshot(ctx, snapshotDoc("2026-03-16T06:00:00Z"), time.Now()))
	require.NoError(t, store.Clear(ctx))

	c, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, c.IsValid())
}

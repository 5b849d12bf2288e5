package grant

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupNonceDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE used_nonces (
  nonce TEXT PRIMARY KEY,
  used_at INTEGER NOT NULL
);
`)
	require.NoError(t, err)

	return db
}

func TestSQLiteNonceStore(t *testing.T) {
	s := NewSQLiteNonceStore(setupNonceDB(t))
	ctx := context.Background()

	nonce := NewNonce()
	used, err := s.IsNonceUsed(ctx, nonce)
	require.NoError(t, err)
	assert.False(t, used)

	require.NoError(t, s.MarkNonceUsed(ctx, nonce, time.Now()))

	used, err = s.IsNonceUsed(ctx, nonce)
	require.NoError(t, err)
	assert.True(t, used)

	// marking twice is idempotent
	require.NoError(t, s.MarkNonceUsed(ctx, nonce, time.Now()))
}

func TestMemoryNonceStore(t *testing.T) {
	s := NewMemoryNonceStore()
	ctx := context.Background()

	used, err := s.IsNonceUsed(ctx, "n1")
	require.NoError(t, err)
	assert.False(t, used)

	require.NoError(t, s.MarkNonceUsed(ctx, "n1", time.Now()))
	used, err = s.IsNonceUsed(ctx, "n1")
	require.NoError(t, err)
	assert.True(t, used)
}

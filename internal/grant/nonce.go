package grant

import (
	"context"
	"fmt"
	"time"

	"github.com/famgate/famgate/internal/dbx"
)

// NonceStore tracks which grant nonces this device has already consumed.
// Verification itself is stateless; replay prevention is the caller's duty
// and goes through here: check IsNonceUsed before applying a verified
// grant, MarkNonceUsed after.
type NonceStore interface {
	IsNonceUsed(ctx context.Context, nonce string) (bool, error)
	MarkNonceUsed(ctx context.Context, nonce string, usedAt time.Time) error
}

// SQLiteNonceStore persists consumed nonces in the engine's sqlite store.
type SQLiteNonceStore struct {
	db dbx.DBTX
}

func NewSQLiteNonceStore(db dbx.DBTX) *SQLiteNonceStore {
	return &SQLiteNonceStore{db: db}
}

func (s *SQLiteNonceStore) IsNonceUsed(ctx context.Context, nonce string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM used_nonces WHERE nonce = ?`, nonce).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to look up nonce: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteNonceStore) MarkNonceUsed(ctx context.Context, nonce string, usedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO used_nonces (nonce, used_at) VALUES (?, ?)
		ON CONFLICT(nonce) DO NOTHING
	`, nonce, usedAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("failed to mark nonce used: %w", err)
	}
	return nil
}

// MemoryNonceStore is an in-memory NonceStore for tests and embedders that
// handle persistence themselves.
type MemoryNonceStore struct {
	used map[string]time.Time
}

func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{used: make(map[string]time.Time)}
}

func (s *MemoryNonceStore) IsNonceUsed(_ context.Context, nonce string) (bool, error) {
	_, ok := s.used[nonce]
	return ok, nil
}

func (s *MemoryNonceStore) MarkNonceUsed(_ context.Context, nonce string, usedAt time.Time) error {
	s.used[nonce] = usedAt
	return nil
}

package deficit

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/famgate/famgate/internal/common"
	"github.com/famgate/famgate/internal/cryptox"
	"github.com/famgate/famgate/internal/prefs"
)

const prefLedger = "deficit.ledger"

// Store persists the ledger through the prefs contract, sealed with the
// device storage key like the schedule cache.
type Store struct {
	prefs      prefs.Store
	storageKey []byte
}

func NewStore(p prefs.Store, storageKey []byte) *Store {
	return &Store{prefs: p, storageKey: storageKey}
}

func (s *Store) Save(ctx context.Context, l *Ledger) error {
	data, err := json.Marshal(l.Entries())
	if err != nil {
		return err
	}
	sealed, err := cryptox.EncryptForStorage(data, s.storageKey)
	if err != nil {
		return err
	}
	return s.prefs.SetString(ctx, prefLedger, sealed)
}

// Load rebuilds the ledger. Missing or unreadable state yields an empty
// ledger with the given cap.
func (s *Store) Load(ctx context.Context, maxDeficitMinutes int) (*Ledger, error) {
	l := NewLedger(maxDeficitMinutes)

	sealed, err := s.prefs.GetString(ctx, prefLedger)
	if errors.Is(err, common.ErrNotFound) {
		return l, nil
	}
	if err != nil {
		return nil, err
	}

	data, ok := cryptox.DecryptFromStorage(sealed, s.storageKey)
	if !ok {
		return l, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return l, nil
	}
	l.ReplaceAll(entries)
	return l, nil
}

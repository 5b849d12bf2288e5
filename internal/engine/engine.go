// Package engine assembles the offline authorization engine: local SQLite
// persistence, the device keystore, the cached schedule, the deficit
// ledger and the decision engine, behind one facade the device app drives.
package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/famgate/famgate/internal/common"
	"github.com/famgate/famgate/internal/config"
	"github.com/famgate/famgate/internal/cryptox"
	"github.com/famgate/famgate/internal/decision"
	"github.com/famgate/famgate/internal/deficit"
	"github.com/famgate/famgate/internal/grant"
	"github.com/famgate/famgate/internal/keystore"
	"github.com/famgate/famgate/internal/logging"
	"github.com/famgate/famgate/internal/pairing"
	"github.com/famgate/famgate/internal/prefs"
	"github.com/famgate/famgate/internal/schedule"
	"github.com/famgate/famgate/internal/voicecode"
)

// Pref keys owned by the engine.
const (
	prefPairIdentity = "pairing.identity"
	prefPairSecret   = "pairing.secret"
	prefPairToken    = "pairing.token"
)

// Identity is the device's pairing identity, fixed when the device was
// paired to a child.
type Identity struct {
	ChildID  int64  `json:"childId"`
	DeviceID string `json:"deviceId"`
}

// Engine owns all local state of one paired device.
type Engine struct {
	cfg   *config.Config
	log   logging.Logger
	clock decision.Clock

	db     *sql.DB
	prefs  prefs.Store
	keys   *keystore.Keystore
	nonces grant.NonceStore

	storageKey []byte
	deviceKey  cryptox.KeyPair

	cache        *schedule.Cache
	schedStore   *schedule.Store
	ledger       *deficit.Ledger
	deficitStore *deficit.Store
	decider      *decision.Engine
}

// New opens the database, loads all persisted state and wires the
// components together. A nil clock means the system clock.
func New(ctx context.Context, cfg *config.Config, secrets keystore.SecretProvider, log logging.Logger, clock decision.Clock) (*Engine, error) {
	if log == nil {
		log = logging.Nop()
	}
	if clock == nil {
		clock = decision.SystemClock{}
	}

	db, err := InitDatabase(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}

	e := &Engine{
		cfg:    cfg,
		log:    log,
		clock:  clock,
		db:     db,
		prefs:  prefs.NewSQLiteStore(db),
		nonces: grant.NewSQLiteNonceStore(db),
	}
	e.keys = keystore.New(e.prefs, secrets, log)

	if e.storageKey, err = e.keys.StorageKey(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if e.deviceKey, err = e.keys.LoadOrCreateKeyPair(ctx); err != nil {
		db.Close()
		return nil, err
	}

	e.schedStore = schedule.NewStore(e.prefs, e.storageKey, log)
	if e.cache, err = e.schedStore.Load(ctx); err != nil {
		db.Close()
		return nil, err
	}

	e.deficitStore = deficit.NewStore(e.prefs, e.storageKey)
	if e.ledger, err = e.deficitStore.Load(ctx, cfg.MaxDeficitMinutes); err != nil {
		db.Close()
		return nil, err
	}

	e.decider = decision.NewEngine(e.cache, e.ledger, clock, log, cfg.MaxCacheAge)

	log.Info(ctx, "engine initialized",
		"cacheValid", e.cache.IsValid(), "deficitEntries", len(e.ledger.Entries()))
	return e, nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}

// Decider exposes the decision engine for warning-threshold queries and
// the decision event stream.
func (e *Engine) Decider() *decision.Engine {
	return e.decider
}

// DevicePublicKey returns the device's Ed25519 public key, which the
// parent side registers to address grants to this device.
func (e *Engine) DevicePublicKey() []byte {
	return e.deviceKey.PublicKey
}

// RegisterSigner registers a parent signer public key under its key id.
func (e *Engine) RegisterSigner(ctx context.Context, kid string, publicKey []byte) error {
	return e.keys.RegisterSigner(ctx, kid, publicKey)
}

// Check evaluates whether an activity is allowed right now.
func (e *Engine) Check(activityID string) decision.Result {
	return e.decider.Check(activityID)
}

// LogUsage records locally observed minutes and persists the local state.
func (e *Engine) LogUsage(ctx context.Context, activityID string, minutes int) error {
	e.decider.LogUsage(activityID, minutes)
	return e.schedStore.SaveLocalState(ctx, e.cache)
}

// IngestSnapshot verifies, applies and persists a schedule snapshot
// delivered by the sync collaborator. The snapshot replaces all
// server-owned state atomically; local usage and local grants survive.
func (e *Engine) IngestSnapshot(ctx context.Context, raw []byte) error {
	snap, err := schedule.ParseSnapshot(raw)
	if err != nil {
		return err
	}
	if identity, err := e.identity(ctx); err == nil && snap.Header.ChildID != identity.ChildID {
		return fmt.Errorf("%w: snapshot is for child %d, device is paired to %d",
			common.ErrInvalidSnapshot, snap.Header.ChildID, identity.ChildID)
	}

	now := e.clock.Now()
	e.cache.UpdateFromSnapshot(snap, now)
	if err := e.schedStore.SaveSnapshot(ctx, raw, now); err != nil {
		return err
	}
	e.log.Info(ctx, "schedule snapshot applied",
		"childId", snap.Header.ChildID, "days", len(snap.Days), "validUntil", snap.Header.ValidUntil)
	return nil
}

// ApplyGrantToken verifies a signed grant token against the registered
// signer keys, enforces single use of its nonce and applies its effect to
// the local cache. The applied grant is returned for display.
func (e *Engine) ApplyGrantToken(ctx context.Context, token string) (*grant.SignedGrant, error) {
	signers, err := e.keys.Signers(ctx)
	if err != nil {
		return nil, err
	}

	limits := grant.Limits{
		MaxGrantMinutes:  e.cfg.MaxGrantMinutes,
		MaxValidityHours: e.cfg.MaxValidityHours,
	}
	now := e.clock.Now()

	var g *grant.SignedGrant
	var verifyErr error = common.ErrUnknownSigner
	for kid, pub := range signers {
		parsed, err := grant.Verify(token, pub, limits, now)
		if err != nil {
			verifyErr = err
			continue
		}
		if parsed.KeyID != kid {
			continue
		}
		g = parsed
		break
	}
	if g == nil {
		return nil, verifyErr
	}

	if identity, err := e.identity(ctx); err == nil {
		if !g.IsValidForChild(identity.ChildID) || !g.IsValidForDevice(identity.DeviceID) {
			return nil, common.ErrInvalidToken
		}
	}

	used, err := e.nonces.IsNonceUsed(ctx, g.Nonce)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, common.ErrNonceAlreadyUsed
	}
	if err := e.nonces.MarkNonceUsed(ctx, g.Nonce, now); err != nil {
		return nil, err
	}

	e.applyGrant(g)
	if err := e.schedStore.SaveLocalState(ctx, e.cache); err != nil {
		return nil, err
	}
	e.log.Info(ctx, "grant applied",
		"type", g.Type, "activityId", g.ActivityID, "minutes", g.Minutes, "kid", g.KeyID)
	return g, nil
}

// applyGrant translates a verified grant into local cache state. Time
// grants become local extensions; a ban lift becomes a local exception for
// the activity until the grant expires.
func (e *Engine) applyGrant(g *grant.SignedGrant) {
	switch g.Type {
	case grant.TypeBanLift:
		expires := g.ExpiresAt
		e.cache.AddLocalException(schedule.CachedRestriction{
			Type:      "activity",
			Pattern:   g.ActivityID,
			ExpiresAt: &expires,
		})
	default:
		e.cache.AddLocalExtension(schedule.CachedExtension{
			ChildID:    g.ChildID,
			ActivityID: g.ActivityID,
			Minutes:    g.Minutes,
			ExpiresAt:  g.ExpiresAt,
		})
	}
}

// GrantLocalExtension applies an extension authorized out of band, e.g.
// by a verified voice approval, and persists it.
func (e *Engine) GrantLocalExtension(ctx context.Context, activityID string, minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("extension minutes must be positive, got %d", minutes)
	}
	identity, err := e.identity(ctx)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}
	e.cache.AddLocalExtension(schedule.CachedExtension{
		ChildID:    identity.ChildID,
		ActivityID: activityID,
		Minutes:    minutes,
		ExpiresAt:  e.clock.Now().Add(time.Duration(minutes) * time.Minute),
	})
	return e.schedStore.SaveLocalState(ctx, e.cache)
}

// VerifyApproval checks a spoken approval code against the outstanding
// request codes using the stored family secret.
func (e *Engine) VerifyApproval(ctx context.Context, requestCodes []string, candidate string) (bool, error) {
	secret, err := e.familySecret(ctx)
	if err != nil {
		return false, err
	}
	return voicecode.VerifyApprovalCode(secret, requestCodes, candidate, int64(e.cfg.BucketTolerance)), nil
}

// VerifyVoiceCode checks a spoken child-keyed code using the stored family
// secret and the paired child id.
func (e *Engine) VerifyVoiceCode(ctx context.Context, candidate string) (bool, error) {
	secret, err := e.familySecret(ctx)
	if err != nil {
		return false, err
	}
	identity, err := e.identity(ctx)
	if err != nil {
		return false, err
	}
	return voicecode.VerifyVoiceCode(secret, identity.ChildID, candidate, int64(e.cfg.BucketTolerance)), nil
}

// VerifyGrantCode checks a typed 8-character grant code against the stored
// pairing credential.
func (e *Engine) VerifyGrantCode(ctx context.Context, grantedSeconds int, candidate string) (bool, error) {
	token, err := e.sealedPref(ctx, prefPairToken)
	if err != nil {
		return false, err
	}
	identity, err := e.identity(ctx)
	if err != nil {
		return false, err
	}
	return voicecode.VerifyGrantCode(identity.ChildID, grantedSeconds, string(token), candidate), nil
}

// Pair stores the pairing credential after verifying it against the
// family secret. The identity it carries fixes which child and device
// grants must be scoped to.
func (e *Engine) Pair(ctx context.Context, pairToken string, familySecret []byte) error {
	claims, err := pairing.VerifyPairToken(pairToken, familySecret)
	if err != nil {
		return err
	}

	identity, err := json.Marshal(Identity{ChildID: claims.ChildID, DeviceID: claims.DeviceID})
	if err != nil {
		return err
	}
	if err := e.setSealedPref(ctx, prefPairIdentity, identity); err != nil {
		return err
	}
	if err := e.setSealedPref(ctx, prefPairSecret, familySecret); err != nil {
		return err
	}
	if err := e.setSealedPref(ctx, prefPairToken, []byte(pairToken)); err != nil {
		return err
	}
	e.log.Info(ctx, "device paired", "childId", claims.ChildID, "deviceId", claims.DeviceID)
	return nil
}

// PendingSync returns the local state the sync collaborator must submit:
// usage accrued offline and grants applied offline.
func (e *Engine) PendingSync() (map[string]map[string]int, []schedule.CachedExtension) {
	return e.cache.GetAllLocalUsage(), e.cache.GetLocalExtensions()
}

// AcknowledgeSync drops the local state after the server confirmed it was
// recorded, and persists the now-empty accumulators.
func (e *Engine) AcknowledgeSync(ctx context.Context) error {
	e.cache.ClearLocalUsage()
	e.cache.ClearLocalExtensions()
	e.cache.ClearLocalExceptions()
	return e.schedStore.SaveLocalState(ctx, e.cache)
}

// RecordDeficit adds overage minutes to the capped ledger and persists it.
func (e *Engine) RecordDeficit(ctx context.Context, activityID string, minutes int) error {
	identity, err := e.identity(ctx)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}
	e.ledger.AddDeficit(identity.ChildID, activityID, minutes, e.clock.Now())
	return e.deficitStore.Save(ctx, e.ledger)
}

func (e *Engine) identity(ctx context.Context) (Identity, error) {
	data, err := e.sealedPref(ctx, prefPairIdentity)
	if err != nil {
		return Identity{}, err
	}
	var identity Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		return Identity{}, common.ErrInvalidKey
	}
	return identity, nil
}

func (e *Engine) familySecret(ctx context.Context) ([]byte, error) {
	return e.sealedPref(ctx, prefPairSecret)
}

func (e *Engine) sealedPref(ctx context.Context, key string) ([]byte, error) {
	sealed, err := e.prefs.GetString(ctx, key)
	if err != nil {
		return nil, err
	}
	plaintext, ok := cryptox.DecryptFromStorage(sealed, e.storageKey)
	if !ok {
		return nil, common.ErrNotFound
	}
	return plaintext, nil
}

func (e *Engine) setSealedPref(ctx context.Context, key string, plaintext []byte) error {
	sealed, err := cryptox.EncryptForStorage(plaintext, e.storageKey)
	if err != nil {
		return err
	}
	return e.prefs.SetString(ctx, key, sealed)
}

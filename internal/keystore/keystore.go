// Package keystore manages the device's long-lived key material: the
// Ed25519 device pair, generated once and persisted sealed under the
// device-bound secret, and the registry of parent signer public keys that
// grant verification consults.
package keystore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/famgate/famgate/internal/common"
	"github.com/famgate/famgate/internal/cryptox"
	"github.com/famgate/famgate/internal/logging"
	"github.com/famgate/famgate/internal/prefs"
)

// SecretProvider supplies the device-bound secret the storage key derives
// from. On a real device this is backed by the platform keystore; the
// engine only sees the bytes.
type SecretProvider interface {
	DeviceSecret(ctx context.Context) ([]byte, error)
}

// StaticSecretProvider returns a fixed secret. For tests and tools.
type StaticSecretProvider struct {
	Secret []byte
}

func (p StaticSecretProvider) DeviceSecret(context.Context) ([]byte, error) {
	return p.Secret, nil
}

const (
	prefDeviceKey = "keystore.device_key"
	prefSigners   = "keystore.signers"
)

// Keystore persists key material through the prefs contract. Signer keys
// are public but still sealed: the seal's authentication is what stops a
// child from swapping in a signer key they control.
type Keystore struct {
	prefs    prefs.Store
	provider SecretProvider
	log      logging.Logger
}

func New(p prefs.Store, provider SecretProvider, log logging.Logger) *Keystore {
	if log == nil {
		log = logging.Nop()
	}
	return &Keystore{prefs: p, provider: provider, log: log}
}

// StorageKey returns the device-bound secret used to seal persisted state.
func (k *Keystore) StorageKey(ctx context.Context) ([]byte, error) {
	secret, err := k.provider.DeviceSecret(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain device secret: %w", err)
	}
	if len(secret) == 0 {
		return nil, common.ErrInvalidKey
	}
	return secret, nil
}

type deviceKeyRecord struct {
	PublicKey string `json:"publicKey"`
	Seed      string `json:"seed"`
}

// LoadOrCreateKeyPair returns the device signing pair, generating and
// persisting one on first use. A persisted pair that no longer decrypts
// under the current device secret is discarded and replaced; the grants
// tied to the old key die with it, which is the safe direction.
func (k *Keystore) LoadOrCreateKeyPair(ctx context.Context) (cryptox.KeyPair, error) {
	storageKey, err := k.StorageKey(ctx)
	if err != nil {
		return cryptox.KeyPair{}, err
	}

	sealed, err := k.prefs.GetString(ctx, prefDeviceKey)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return cryptox.KeyPair{}, err
	}
	if err == nil {
		if plaintext, ok := cryptox.DecryptFromStorage(sealed, storageKey); ok {
			var rec deviceKeyRecord
			if err := json.Unmarshal(plaintext, &rec); err == nil {
				kp, err := decodeKeyPair(rec)
				if err == nil && kp.IsValid() {
					return kp, nil
				}
			}
		}
		k.log.Warn(ctx, "persisted device key unreadable, generating a new one")
	}

	kp, err := cryptox.GenerateKeyPair()
	if err != nil {
		return cryptox.KeyPair{}, err
	}
	if err := k.saveKeyPair(ctx, kp, storageKey); err != nil {
		return cryptox.KeyPair{}, err
	}
	k.log.Info(ctx, "generated device key pair")
	return kp, nil
}

func decodeKeyPair(rec deviceKeyRecord) (cryptox.KeyPair, error) {
	pub, err := base64.StdEncoding.DecodeString(rec.PublicKey)
	if err != nil {
		return cryptox.KeyPair{}, err
	}
	seed, err := base64.StdEncoding.DecodeString(rec.Seed)
	if err != nil {
		return cryptox.KeyPair{}, err
	}
	return cryptox.KeyPair{PublicKey: pub, Seed: seed}, nil
}

func (k *Keystore) saveKeyPair(ctx context.Context, kp cryptox.KeyPair, storageKey []byte) error {
	data, err := json.Marshal(deviceKeyRecord{
		PublicKey: base64.StdEncoding.EncodeToString(kp.PublicKey),
		Seed:      base64.StdEncoding.EncodeToString(kp.Seed),
	})
	if err != nil {
		return err
	}
	sealed, err := cryptox.EncryptForStorage(data, storageKey)
	if err != nil {
		return err
	}
	return k.prefs.SetString(ctx, prefDeviceKey, sealed)
}

// RegisterSigner adds or replaces a parent signer public key under its key
// id. Only registered signers can authorize grants on this device.
func (k *Keystore) RegisterSigner(ctx context.Context, kid string, publicKey []byte) error {
	if kid == "" || len(publicKey) != cryptox.PublicKeySize {
		return common.ErrInvalidKey
	}
	signers, err := k.Signers(ctx)
	if err != nil {
		return err
	}
	signers[kid] = publicKey
	return k.saveSigners(ctx, signers)
}

// SignerKey looks up a registered signer's public key by key id.
func (k *Keystore) SignerKey(ctx context.Context, kid string) ([]byte, error) {
	signers, err := k.Signers(ctx)
	if err != nil {
		return nil, err
	}
	pub, ok := signers[kid]
	if !ok {
		return nil, common.ErrUnknownSigner
	}
	return pub, nil
}

// Signers returns all registered signer keys. Unreadable persisted state
// degrades to an empty registry, which rejects every grant: fail closed.
func (k *Keystore) Signers(ctx context.Context) (map[string][]byte, error) {
	storageKey, err := k.StorageKey(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]byte)
	sealed, err := k.prefs.GetString(ctx, prefSigners)
	if errors.Is(err, common.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}

	plaintext, ok := cryptox.DecryptFromStorage(sealed, storageKey)
	if !ok {
		k.log.Warn(ctx, "persisted signer registry unreadable, treating as empty")
		return out, nil
	}
	var encoded map[string]string
	if err := json.Unmarshal(plaintext, &encoded); err != nil {
		return out, nil
	}
	for kid, b64 := range encoded {
		pub, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			continue
		}
		out[kid] = pub
	}
	return out, nil
}

func (k *Keystore) saveSigners(ctx context.Context, signers map[string][]byte) error {
	storageKey, err := k.StorageKey(ctx)
	if err != nil {
		return err
	}
	encoded := make(map[string]string, len(signers))
	for kid, pub := range signers {
		encoded[kid] = base64.StdEncoding.EncodeToString(pub)
	}
	data, err := json.Marshal(encoded)
	if err != nil {
		return err
	}
	sealed, err := cryptox.EncryptForStorage(data, storageKey)
	if err != nil {
		return err
	}
	return k.prefs.SetString(ctx, prefSigners, sealed)
}

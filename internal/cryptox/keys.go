// Package cryptox implements the cryptographic primitives of the offline
// authorization engine: Ed25519 signing, HMAC-SHA256, HKDF key derivation,
// AES-256-GCM storage sealing, 15-minute time buckets and constant-time
// comparison. All functions are pure and safe to call from any goroutine.
package cryptox

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/famgate/famgate/internal/common"
)

// SeedSize is the Ed25519 private seed length in bytes.
const SeedSize = ed25519.SeedSize

// PublicKeySize is the Ed25519 public key length in bytes.
const PublicKeySize = ed25519.PublicKeySize

// SignatureSize is the Ed25519 signature length in bytes.
const SignatureSize = ed25519.SignatureSize

// KeyPair holds a device signing key: the 32-byte Ed25519 public half and
// the 32-byte private seed. It is generated once per device, persisted
// encrypted and never transmitted.
type KeyPair struct {
	PublicKey []byte
	Seed      []byte
}

// IsValid reports whether both halves are present, correctly sized and not
// all-zero.
func (kp KeyPair) IsValid() bool {
	return len(kp.PublicKey) == PublicKeySize && !allZero(kp.PublicKey) &&
		len(kp.Seed) == SeedSize && !allZero(kp.Seed)
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// GenerateKeyPair produces a fresh Ed25519 pair from the system RNG.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{PublicKey: pub, Seed: priv.Seed()}, nil
}

// Sign signs message with the given Ed25519 private seed and returns the
// 64-byte signature. It fails with common.ErrInvalidKey when the seed is
// missing, has the wrong size or is all-zero.
func Sign(seed, message []byte) ([]byte, error) {
	if len(seed) != SeedSize || allZero(seed) {
		return nil, common.ErrInvalidKey
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return ed25519.Sign(priv, message), nil
}

// Verify reports whether signature is a valid Ed25519 signature of message
// under pub. Malformed input of any kind (wrong key size, wrong signature
// size, empty slices) yields false, never a panic.
func Verify(pub, message, signature []byte) bool {
	if len(pub) != PublicKeySize || len(signature) != SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), message, signature)
}

// Package common defines shared constants and sentinel errors used across
// the engine's components. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Store-level errors.
	ErrNotFound = errors.New("not found")

	// Key material errors.
	ErrInvalidKey = errors.New("invalid key")

	// Grant token errors. A caller that sees any of these must behave as
	// if no grant was presented at all.
	ErrInvalidToken         = errors.New("invalid token")
	ErrTokenExpired         = errors.New("token expired")
	ErrUnknownSigner        = errors.New("unknown signer")
	ErrGrantTooLarge        = errors.New("grant exceeds maximum minutes")
	ErrGrantValidityTooLong = errors.New("grant validity window too long")
	ErrNonceAlreadyUsed     = errors.New("nonce already used")

	// Schedule snapshot errors.
	ErrInvalidSnapshot = errors.New("invalid schedule snapshot")
)

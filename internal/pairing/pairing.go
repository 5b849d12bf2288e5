// Package pairing binds a child device to a family. The pairing credential
// is an HS256 JWT issued under the family secret, which both sides derive
// from the family passphrase with Argon2id. The credential's compact
// serialization doubles as the per-device key for grant codes.
package pairing

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/argon2"

	"github.com/famgate/famgate/internal/common"
)

// Claims is the pairing credential payload.
type Claims struct {
	jwt.RegisteredClaims
	ChildID  int64  `json:"childId"`
	DeviceID string `json:"deviceId"`
}

// DeriveFamilySecret stretches the family passphrase into the 32-byte
// shared secret. Salt must be stable per family so parent and child
// devices derive the same bytes.
func DeriveFamilySecret(passphrase []byte, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
}

// IssuePairToken creates a signed pairing credential for one child device.
func IssuePairToken(secret []byte, childID int64, deviceID string, validity time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", common.ErrInvalidKey
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		ChildID:  childID,
		DeviceID: deviceID,
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign pair token: %w", err)
	}
	return signed, nil
}

// VerifyPairToken checks the credential's signature and expiry and returns
// its claims. Any failure maps to ErrInvalidToken so callers do not branch
// on parser internals.
func VerifyPairToken(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return secret, nil
		})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}
	if !token.Valid || claims.ChildID <= 0 || claims.DeviceID == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

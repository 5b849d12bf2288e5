package grant

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/famgate/famgate/internal/common"
	"github.com/famgate/famgate/internal/cryptox"
)

// Alg is the only signature algorithm the token format admits.
const Alg = "Ed25519"

var b64 = base64.RawURLEncoding

type header struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

// payload is the wire form of SignedGrant: JSON with ISO-8601 UTC
// timestamps.
type payload struct {
	Type       string `json:"type"`
	ChildID    int64  `json:"childId"`
	ActivityID string `json:"activityId"`
	Minutes    int    `json:"minutes"`
	IssuedAt   string `json:"issuedAt"`
	ExpiresAt  string `json:"expiresAt"`
	Nonce      string `json:"nonce"`
	DeviceID   string `json:"deviceId,omitempty"`
}

// Generate builds and signs a grant token with the given Ed25519 private
// seed. The kid names the signer key so the verifier can look it up in its
// registry.
func Generate(g *SignedGrant, signerSeed []byte, kid string) (string, error) {
	h, err := json.Marshal(header{Alg: Alg, Kid: kid})
	if err != nil {
		return "", err
	}
	p, err := json.Marshal(payload{
		Type:       g.Type,
		ChildID:    g.ChildID,
		ActivityID: g.ActivityID,
		Minutes:    g.Minutes,
		IssuedAt:   g.IssuedAt.UTC().Format(common.TimestampFormat),
		ExpiresAt:  g.ExpiresAt.UTC().Format(common.TimestampFormat),
		Nonce:      g.Nonce,
		DeviceID:   g.DeviceID,
	})
	if err != nil {
		return "", err
	}

	signingInput := b64.EncodeToString(h) + "." + b64.EncodeToString(p)
	sig, err := cryptox.Sign(signerSeed, []byte(signingInput))
	if err != nil {
		return "", err
	}

	return signingInput + "." + b64.EncodeToString(sig), nil
}

// Verify authenticates token against the signer public key and returns the
// contained grant. The signature is checked over the raw header.payload
// bytes before either segment is decoded: authentication precedes parsing.
// After that the header, the payload fields, the expiry and the size
// bounds are checked in order. Any rejection means "no grant"; the caller
// must treat it exactly like no permission at all.
func Verify(token string, signerPublicKey []byte, limits Limits, now time.Time) (*SignedGrant, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, common.ErrInvalidToken
	}

	sig, err := b64.DecodeString(parts[2])
	if err != nil {
		return nil, common.ErrInvalidToken
	}
	signingInput := parts[0] + "." + parts[1]
	if !cryptox.Verify(signerPublicKey, []byte(signingInput), sig) {
		return nil, common.ErrInvalidToken
	}

	rawHeader, err := b64.DecodeString(parts[0])
	if err != nil {
		return nil, common.ErrInvalidToken
	}
	var h header
	if err := json.Unmarshal(rawHeader, &h); err != nil {
		return nil, common.ErrInvalidToken
	}
	if h.Alg != Alg || h.Kid == "" {
		return nil, common.ErrInvalidToken
	}

	rawPayload, err := b64.DecodeString(parts[1])
	if err != nil {
		return nil, common.ErrInvalidToken
	}
	var p payload
	if err := json.Unmarshal(rawPayload, &p); err != nil {
		return nil, common.ErrInvalidToken
	}
	if p.Type == "" || p.ChildID == 0 || p.ActivityID == "" || p.Minutes <= 0 || p.Nonce == "" {
		return nil, common.ErrInvalidToken
	}

	issuedAt, err := time.Parse(common.TimestampFormat, p.IssuedAt)
	if err != nil {
		return nil, common.ErrInvalidToken
	}
	expiresAt, err := time.Parse(common.TimestampFormat, p.ExpiresAt)
	if err != nil {
		return nil, common.ErrInvalidToken
	}

	if now.After(expiresAt) {
		return nil, common.ErrTokenExpired
	}
	if p.Minutes > limits.MaxGrantMinutes {
		return nil, common.ErrGrantTooLarge
	}
	if expiresAt.Sub(issuedAt) > time.Duration(limits.MaxValidityHours)*time.Hour {
		return nil, common.ErrGrantValidityTooLong
	}

	return &SignedGrant{
		Type:       p.Type,
		ChildID:    p.ChildID,
		ActivityID: p.ActivityID,
		Minutes:    p.Minutes,
		IssuedAt:   issuedAt,
		ExpiresAt:  expiresAt,
		Nonce:      p.Nonce,
		DeviceID:   p.DeviceID,
		KeyID:      h.Kid,
	}, nil
}

// Package grant implements the compact signed grant token ("QR token")
// that lets a parent authorize extra time offline. A token is three
// base64url segments, header.payload.signature, signed with the parent's
// Ed25519 key; the child device verifies it against a registered signer key
// and only then trusts any field in it.
package grant

import (
	"time"

	"github.com/google/uuid"

	"github.com/famgate/famgate/internal/common"
)

// Grant types. A grant is a time-boxed permission increase; the type says
// what it raises.
const (
	TypeExtension        = "extension"
	TypeQuotaBonus       = "quota_bonus"
	TypeBanLift          = "ban_lift"
	TypeBedtimeExtension = "bedtime_extension"
)

// SignedGrant is the payload of a verified grant token. Instances are only
// produced by Verify, so holding one implies the signature checked out.
type SignedGrant struct {
	Type       string
	ChildID    int64
	ActivityID string
	Minutes    int
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Nonce      string
	DeviceID   string
	KeyID      string
}

// IsValidForDevice reports whether the grant is scoped to this device.
// An empty DeviceID means the grant is valid for any device.
func (g *SignedGrant) IsValidForDevice(deviceID string) bool {
	return g.DeviceID == "" || g.DeviceID == deviceID
}

// IsValidForChild reports whether the grant targets the given child.
func (g *SignedGrant) IsValidForChild(childID int64) bool {
	return g.ChildID == childID
}

// Limits bounds what a single grant may carry. Oversized grants are
// rejected at verification time even when the signature is valid.
type Limits struct {
	MaxGrantMinutes  int
	MaxValidityHours int
}

// DefaultLimits returns the engine defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxGrantMinutes:  common.DefaultMaxGrantMinutes,
		MaxValidityHours: common.DefaultMaxValidityHours,
	}
}

// NewNonce returns a fresh random nonce for an outgoing grant.
func NewNonce() string {
	return uuid.NewString()
}

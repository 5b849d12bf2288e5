package pairing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/famgate/famgate/internal/common"
)

func TestDeriveFamilySecret(t *testing.T) {
	a := DeriveFamilySecret([]byte("correct horse"), []byte("family-1"))
	b := DeriveFamilySecret([]byte("correct horse"), []byte("family-1"))
	c := DeriveFamilySecret([]byte("correct horse"), []byte("family-2"))

	assert.Len(t, a, 32)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestPairTokenRoundtrip(t *testing.T) {
	secret := DeriveFamilySecret([]byte("pass"), []byte("salt"))

	token, err := IssuePairToken(secret, 42, "tablet-1", time.Hour)
	require.NoError(t, err)

	claims, err := VerifyPairToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.ChildID)
	assert.Equal(t, "tablet-1", claims.DeviceID)
}

func TestVerifyPairToken_WrongSecret(t *testing.T) {
	token, err := IssuePairToken([]byte("secret-a"), 42, "tablet-1", time.Hour)
	require.NoError(t, err)

	_, err = VerifyPairToken(token, []byte("secret-b"))
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestVerifyPairToken_Expired(t *testing.T) {
	token, err := IssuePairToken([]byte("secret"), 42, "tablet-1", -time.Minute)
	require.NoError(t, err)

	_, err = VerifyPairToken(token, []byte("secret"))
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestVerifyPairToken_Garbage(t *testing.T) {
	_, err := VerifyPairToken("not.a.token", []byte("secret"))
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestIssuePairToken_EmptySecret(t *testing.T) {
	_, err := IssuePairToken(nil, 42, "tablet-1", time.Hour)
	assert.ErrorIs(t, err, common.ErrInvalidKey)
}

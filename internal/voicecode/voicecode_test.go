package voicecode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/famgate/famgate/internal/cryptox"
)

func TestRequest_EncodeParse(t *testing.T) {
	r, err := NewRequest(RequestExtension, 3, 30)
	require.NoError(t, err)

	code := r.Encode()
	assert.Len(t, code, 6)

	parsed, err := ParseRequest(code)
	require.NoError(t, err)
	assert.Equal(t, r.Type, parsed.Type)
	assert.Equal(t, r.Activity, parsed.Activity)
	assert.Equal(t, 30, parsed.Minutes)
	assert.Equal(t, r.Nonce, parsed.Nonce)
}

func TestRequest_MinutesRounding(t *testing.T) {
	r := Request{Type: RequestExtension, Activity: 0, Minutes: 17, Nonce: 5}
	assert.Equal(t, "100405", r.Encode()) // 17 rounds up to 4 ticks of 5

	r.Minutes = 1000
	assert.Equal(t, "109905", r.Encode()) // clamped to 99
}

func TestParseRequest_Separators(t *testing.T) {
	parsed, err := ParseRequest("1 3 06-42")
	require.NoError(t, err)
	assert.Equal(t, RequestExtension, parsed.Type)
	assert.Equal(t, 3, parsed.Activity)
	assert.Equal(t, 30, parsed.Minutes)
	assert.Equal(t, 42, parsed.Nonce)
}

func TestParseRequest_Rejects(t *testing.T) {
	for _, code := range []string{
		"",
		"12345",     // too short
		"1234567",   // too long
		"12a456",    // non-digit
		"030642",    // type digit 0
		"930642",    // unknown type
		"130042",    // zero minutes
	} {
		_, err := ParseRequest(code)
		assert.Error(t, err, "code %q", code)
	}
}

func TestApprovalCode_RoundTrip(t *testing.T) {
	secret := []byte("family-shared-secret")
	requests := []string{"130642", "220517"}
	bucket := cryptox.CurrentTimeBucket()

	code := ComputeApprovalCode(secret, requests, bucket)
	require.Len(t, code, 6)

	assert.True(t, VerifyApprovalCode(secret, requests, code, 1))
	// display form with a space still verifies
	assert.True(t, VerifyApprovalCode(secret, requests, code[:3]+" "+code[3:], 1))
}

func TestApprovalCode_OrderIndependent(t *testing.T) {
	secret := []byte("family-shared-secret")
	bucket := int64(123456)

	a := ComputeApprovalCode(secret, []string{"130642", "220517"}, bucket)
	b := ComputeApprovalCode(secret, []string{"220517", "130642"}, bucket)
	assert.Equal(t, a, b)
}

func TestApprovalCode_SkewTolerance(t *testing.T) {
	secret := []byte("family-shared-secret")
	requests := []string{"130642"}
	current := cryptox.CurrentTimeBucket()

	assert.True(t, VerifyApprovalCode(secret, requests, ComputeApprovalCode(secret, requests, current-1), 1))
	assert.True(t, VerifyApprovalCode(secret, requests, ComputeApprovalCode(secret, requests, current+1), 1))
	assert.False(t, VerifyApprovalCode(secret, requests, ComputeApprovalCode(secret, requests, current-2), 1))
	assert.False(t, VerifyApprovalCode(secret, requests, ComputeApprovalCode(secret, requests, current+2), 1))
}

func TestApprovalCode_WrongInputs(t *testing.T) {
	secret := []byte("family-shared-secret")
	requests := []string{"130642"}
	code := ComputeApprovalCode(secret, requests, cryptox.CurrentTimeBucket())

	assert.False(t, VerifyApprovalCode([]byte("other-secret"), requests, code, 1))
	assert.False(t, VerifyApprovalCode(secret, []string{"130643"}, code, 1))
	assert.False(t, VerifyApprovalCode(secret, requests, "000000", 1))
}

func TestVoiceCode_RoundTrip(t *testing.T) {
	secret := []byte("family-shared-secret")
	bucket := cryptox.CurrentTimeBucket()

	code := GenerateVoiceCode(secret, 42, bucket)
	require.Len(t, code, 6)

	assert.True(t, VerifyVoiceCode(secret, 42, code, 1))
	assert.False(t, VerifyVoiceCode(secret, 7, code, 1))

	// every single-character mutation must fail
	for i := 0; i < len(code); i++ {
		for c := byte('0'); c <= '9'; c++ {
			if c == code[i] {
				continue
			}
			mutated := code[:i] + string(c) + code[i+1:]
			assert.False(t, VerifyVoiceCode(secret, 42, mutated, 1),
				"mutation %q accepted", mutated)
		}
	}
}

func TestVoiceCode_SkewTolerance(t *testing.T) {
	secret := []byte("family-shared-secret")
	current := cryptox.CurrentTimeBucket()

	assert.True(t, VerifyVoiceCode(secret, 42, GenerateVoiceCode(secret, 42, current-1), 1))
	assert.True(t, VerifyVoiceCode(secret, 42, GenerateVoiceCode(secret, 42, current+1), 1))
	assert.False(t, VerifyVoiceCode(secret, 42, GenerateVoiceCode(secret, 42, current-2), 1))
}

func TestGrantCode_Deterministic(t *testing.T) {
	a := GenerateGrantCode(42, 1800, "pair-token")
	b := GenerateGrantCode(42, 1800, "pair-token")
	assert.Equal(t, a, b)
	assert.Len(t, a, GrantCodeLength)

	assert.NotEqual(t, a, GenerateGrantCode(7, 1800, "pair-token"))
	assert.NotEqual(t, a, GenerateGrantCode(42, 3600, "pair-token"))
	assert.NotEqual(t, a, GenerateGrantCode(42, 1800, "other-token"))

	for _, c := range a {
		assert.True(t, strings.ContainsRune(Alphabet, c), "glyph %q outside alphabet", c)
	}
}

func TestGrantCode_NormalizeFormatRoundTrip(t *testing.T) {
	code := GenerateGrantCode(42, 1800, "pair-token")

	display := FormatForDisplay(code)
	assert.Contains(t, display, "-")
	assert.Equal(t, code, Normalize(display))

	// lower case and extra separators are forgiven
	assert.Equal(t, code, Normalize(strings.ToLower(display)))
	assert.Equal(t, code, Normalize(" "+display+" "))
}

func TestGrantCode_Verify(t *testing.T) {
	code := GenerateGrantCode(42, 1800, "pair-token")

	assert.True(t, VerifyGrantCode(42, 1800, "pair-token", code))
	assert.True(t, VerifyGrantCode(42, 1800, "pair-token", FormatForDisplay(code)))
	assert.False(t, VerifyGrantCode(7, 1800, "pair-token", code))

	// flip the last glyph to a guaranteed different one
	last := "2"
	if code[7] == '2' {
		last = "3"
	}
	assert.False(t, VerifyGrantCode(42, 1800, "pair-token", code[:7]+last))
}
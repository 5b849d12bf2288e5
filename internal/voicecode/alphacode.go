package voicecode

import (
	"fmt"
	"strings"

	"github.com/famgate/famgate/internal/cryptox"
)

// Alphabet is the glyph set for single-grant codes. Visually ambiguous
// glyphs (0, 1, I, O, L) are excluded so codes survive being read from a
// screen over the phone.
const Alphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// GrantCodeLength is the length of a normalized single-grant code.
const GrantCodeLength = 8

// GenerateGrantCode deterministically derives the 8-character code for a
// single grant from the child, the granted seconds and the device's pair
// token. Both sides can compute it independently; no state is exchanged.
func GenerateGrantCode(childID int64, grantedSeconds int, pairToken string) string {
	message := fmt.Sprintf("%d|%d", childID, grantedSeconds)
	digest := cryptox.HmacSHA256([]byte(pairToken), []byte(message))

	out := make([]byte, GrantCodeLength)
	for i := range out {
		out[i] = Alphabet[int(digest[i])%len(Alphabet)]
	}
	return string(out)
}

// Normalize strips separators and uppercases a typed code. For every code
// x the generator produces, Normalize(FormatForDisplay(x)) == x.
func Normalize(code string) string {
	return strings.ToUpper(strings.NewReplacer(" ", "", "-", "").Replace(code))
}

// FormatForDisplay renders a code as two 4-character groups joined by a
// dash, which is how it appears on the parent's screen.
func FormatForDisplay(code string) string {
	if len(code) != GrantCodeLength {
		return code
	}
	return code[:4] + "-" + code[4:]
}

// VerifyGrantCode recomputes the expected code and compares it against the
// normalized candidate in constant time.
func VerifyGrantCode(childID int64, grantedSeconds int, pairToken, candidate string) bool {
	expected := GenerateGrantCode(childID, grantedSeconds, pairToken)
	return cryptox.ConstantTimeCompare([]byte(expected), []byte(Normalize(candidate)))
}

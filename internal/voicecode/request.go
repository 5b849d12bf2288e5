// Package voicecode implements the phone-relayed grant protocol: short
// numeric codes a child reads aloud and a parent answers with a code of
// their own.
//
// Two code systems live here side by side. The first is a 6-digit
// HMAC/time-bucket code keyed by child id (voice.go). The second is the
// request/approval pair (this file, approval.go) plus an 8-character
// alphanumeric single-grant code (alphacode.go). Which of the two is the
// production protocol is an open product question; both are kept until
// that is settled, and they must not be merged.
package voicecode

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/famgate/famgate/internal/common"
)

// Request types a child can ask for over the phone.
const (
	RequestExtension  = 1
	RequestQuotaBonus = 2
	RequestBanLift    = 3
	RequestBedtime    = 4
)

// Request is what the child device shows for reading aloud. It is the
// input to an approval code, not a credential: nothing about it is
// authenticated.
type Request struct {
	Type     int
	Activity int
	Minutes  int
	Nonce    int
}

// NewRequest builds a request with a random 2-digit nonce. The nonce is
// not secret; it only makes simultaneous requests distinguishable.
func NewRequest(requestType, activity, minutes int) (Request, error) {
	if requestType < RequestExtension || requestType > RequestBedtime {
		return Request{}, fmt.Errorf("invalid request type %d", requestType)
	}
	if activity < 0 || activity > 9 {
		return Request{}, fmt.Errorf("invalid activity digit %d", activity)
	}
	if minutes <= 0 {
		return Request{}, fmt.Errorf("invalid minutes %d", minutes)
	}
	n, err := rand.Int(rand.Reader, big.NewInt(100))
	if err != nil {
		return Request{}, err
	}
	return Request{Type: requestType, Activity: activity, Minutes: minutes, Nonce: int(n.Int64())}, nil
}

// Encode renders the request as its fixed 6-digit wire form "T A MM NN":
// type digit, activity digit, minutes divided by 5 rounded up (clamped to
// 99), and the 2-digit nonce.
func (r Request) Encode() string {
	mm := (r.Minutes + 4) / 5
	if mm > 99 {
		mm = 99
	}
	return fmt.Sprintf("%d%d%02d%02d", r.Type, r.Activity, mm, r.Nonce)
}

// NormalizeDigits strips the spaces and dashes people add while reading
// or typing a numeric code.
func NormalizeDigits(s string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(s)
}

// ParseRequest decodes a spoken request code. Separators are stripped
// first; non-digit input, wrong length or an out-of-range type digit is
// rejected.
func ParseRequest(code string) (Request, error) {
	code = NormalizeDigits(code)
	if len(code) != 6 {
		return Request{}, common.ErrInvalidToken
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return Request{}, common.ErrInvalidToken
		}
	}

	r := Request{
		Type:     int(code[0] - '0'),
		Activity: int(code[1] - '0'),
		Minutes:  (int(code[2]-'0')*10 + int(code[3]-'0')) * 5,
		Nonce:    int(code[4]-'0')*10 + int(code[5]-'0'),
	}
	if r.Type < RequestExtension || r.Type > RequestBedtime {
		return Request{}, common.ErrInvalidToken
	}
	if r.Minutes == 0 {
		return Request{}, common.ErrInvalidToken
	}
	return r, nil
}

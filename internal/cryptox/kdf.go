package cryptox

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey derives length bytes from secret via HKDF-SHA256. The info
// label context-separates keys: storage encryption, voice codes and any
// future purpose each use their own label so a compromise of one derived
// key says nothing about the others.
func DeriveKey(secret, salt []byte, info string, length int) ([]byte, error) {
	h := hkdf.New(sha256.New, secret, salt, []byte(info))
	out := make([]byte, length)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, err
	}
	return out, nil
}

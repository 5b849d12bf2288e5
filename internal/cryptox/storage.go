package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
)

const storageKeyInfo = "famgate-storage-encryption-v1"

func storageGCM(deviceKey []byte) (cipher.AEAD, error) {
	key, err := DeriveKey(deviceKey, nil, storageKeyInfo, 32)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptForStorage seals plaintext with AES-256-GCM under a key derived
// from deviceKey and returns base64(nonce||ciphertext||tag). A fresh random
// 96-bit nonce is generated per call, so identical plaintexts produce
// different ciphertexts.
func EncryptForStorage(plaintext, deviceKey []byte) (string, error) {
	aead, err := storageGCM(deviceKey)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptFromStorage is the exact inverse of EncryptForStorage. It returns
// (plaintext, true) only when the ciphertext authenticates under the same
// device key; any authentication failure, truncated input or wrong key
// yields (nil, false), never partial plaintext.
func DecryptFromStorage(encoded string, deviceKey []byte) ([]byte, bool) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, false
	}

	aead, err := storageGCM(deviceKey)
	if err != nil {
		return nil, false
	}

	if len(sealed) < aead.NonceSize() {
		return nil, false
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, false
	}
	if plaintext == nil {
		// aead.Open returns a nil slice for empty plaintext; keep the
		// "ok" result distinguishable from the failure case.
		plaintext = []byte{}
	}
	return plaintext, true
}

// Package cryptox contains the cryptographic building blocks of the sealed
// container: scrypt key derivation and AES-256-GCM sealing.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/dmitrijs2005/sealback/internal/common"
)

const (
	// NonceSize is the AES-GCM standard nonce length.
	NonceSize = 12

	// TagSize is the AES-GCM authentication tag length.
	TagSize = 16
)

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("AES-256 requires a %d-byte key, got %d bytes", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// GenerateNonce returns a fresh random nonce. A nonce must never be reused
// with the same key; every archive gets its own salt and therefore its own key
// as well.
func GenerateNonce() ([]byte, error) {
	return common.GenerateRandByteArray(NonceSize)
}

// Seal encrypts plaintext with AES-256-GCM, authenticating aad alongside it.
// The result is ciphertext with the tag appended.
func Seal(key, nonce, plaintext, aad []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", aead.NonceSize(), len(nonce))
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// Open verifies and decrypts ciphertext produced by Seal. Every failure after
// the key is accepted (wrong key, modified ciphertext, tag, nonce or aad)
// returns common.ErrAuthentication and nothing else.
func Open(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() || len(ciphertext) < aead.Overhead() {
		return nil, common.ErrAuthentication
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, common.ErrAuthentication
	}
	return plaintext, nil
}

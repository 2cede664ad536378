package common

import (
	"crypto/rand"
	"fmt"
)

// GenerateRandByteArray returns size bytes read from crypto/rand.
func GenerateRandByteArray(size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}
	return b, nil
}

// WipeByteArray zeroes b. Passwords and derived keys go through it once
// they are no longer needed.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

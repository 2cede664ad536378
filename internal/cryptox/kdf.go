package cryptox

import (
	"fmt"

	"github.com/dmitrijs2005/sealback/internal/common"
	"golang.org/x/crypto/scrypt"
)

const (
	// KeySize is the derived key length (AES-256).
	KeySize = 32

	// SaltSize is the salt length used for new archives.
	SaltSize = 16

	MinSaltSize = 8
	MaxSaltSize = 64

	// Upper bounds for scrypt cost parameters accepted from headers and config.
	MaxN         = 1 << 20
	MaxRP        = 1 << 10
	MaxKDFMemory = 256 << 20
)

// KDFParams are the scrypt cost factors. They travel inside every container
// header so a decoder always derives with the parameters the archive was
// created with.
type KDFParams struct {
	N int
	R int
	P int
}

// DefaultKDFParams returns the cost factors used for new archives.
func DefaultKDFParams() KDFParams {
	return KDFParams{N: 16384, R: 8, P: 1}
}

// Validate rejects cost factors that scrypt cannot use or that would make a
// single derivation consume unreasonable memory or CPU.
func (p KDFParams) Validate() error {
	if p.N < 2 || p.N&(p.N-1) != 0 {
		return fmt.Errorf("%w: scrypt N must be a power of two >= 2, got %d", common.ErrConfiguration, p.N)
	}
	if p.N > MaxN {
		return fmt.Errorf("%w: scrypt N %d exceeds maximum %d", common.ErrConfiguration, p.N, MaxN)
	}
	if p.R < 1 || p.P < 1 {
		return fmt.Errorf("%w: scrypt r and p must be positive, got r=%d p=%d", common.ErrConfiguration, p.R, p.P)
	}
	if p.R > MaxRP || p.P > MaxRP || p.R*p.P > MaxRP {
		return fmt.Errorf("%w: scrypt r*p must not exceed %d, got r=%d p=%d", common.ErrConfiguration, MaxRP, p.R, p.P)
	}
	if mem := 128 * int64(p.N) * int64(p.R); mem > MaxKDFMemory {
		return fmt.Errorf("%w: scrypt parameters need %d bytes of memory, limit is %d", common.ErrConfiguration, mem, MaxKDFMemory)
	}
	return nil
}

// DeriveKey derives a KeySize-byte key from password and salt with scrypt.
// Identical inputs always produce the same key.
func DeriveKey(password, salt []byte, params KDFParams) ([]byte, error) {
	if len(password) == 0 {
		return nil, fmt.Errorf("%w: password cannot be empty", common.ErrConfiguration)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	key, err := scrypt.Key(password, salt, params.N, params.R, params.P, KeySize)
	if err != nil {
		return nil, fmt.Errorf("%w: scrypt: %w", common.ErrConfiguration, err)
	}
	return key, nil
}

// GenerateSalt returns size fresh random bytes.
func GenerateSalt(size int) ([]byte, error) {
	if size < MinSaltSize || size > MaxSaltSize {
		return nil, fmt.Errorf("%w: salt size must be between %d and %d, got %d",
			common.ErrConfiguration, MinSaltSize, MaxSaltSize, size)
	}
	return common.GenerateRandByteArray(size)
}

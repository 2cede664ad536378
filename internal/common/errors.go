// Package common defines shared constants, sentinel errors and small helpers
// used across sealback components. Callers should use errors.Is to match
// these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Invalid KDF cost parameters, bad flag/config combinations.
	ErrConfiguration = errors.New("configuration error")

	// Container framing errors: bad magic, truncated or malformed header.
	ErrFormat = errors.New("invalid container format")

	// AEAD verification failure. Deliberately says nothing about whether the
	// password or the data was at fault.
	ErrAuthentication = errors.New("decryption failed (wrong password or corrupted file)")

	// Manifest errors (missing fields, unsupported archive format or compression).
	ErrManifest = errors.New("invalid backup manifest")

	// The manifest was written by a newer tool. Kept apart from ErrManifest so
	// the user can be told to upgrade rather than that the file is broken.
	ErrUnsupportedVersion = errors.New("unsupported manifest version")

	// An archive member would be written outside the destination, or has a
	// kind that is never extracted.
	ErrUnsafePath = errors.New("unsafe archive entry")

	// Filesystem and network failures reported by collaborators.
	ErrIO = errors.New("i/o error")
)

// IOError tags err as ErrIO while keeping it reachable through errors.Is/As.
// A nil err yields nil.
func IOError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrIO) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}

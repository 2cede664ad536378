package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/sealback/internal/common"
)

// Process exit codes.
const (
	ExitOK                 = 0
	ExitIO                 = 1
	ExitConfiguration      = 2
	ExitFormat             = 3
	ExitAuthentication     = 4
	ExitManifest           = 5
	ExitUnsupportedVersion = 6
	ExitUnsafePath         = 7
)

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, common.ErrUnsafePath):
		return ExitUnsafePath
	case errors.Is(err, common.ErrUnsupportedVersion):
		return ExitUnsupportedVersion
	case errors.Is(err, common.ErrManifest):
		return ExitManifest
	case errors.Is(err, common.ErrAuthentication):
		return ExitAuthentication
	case errors.Is(err, common.ErrFormat):
		return ExitFormat
	case errors.Is(err, common.ErrConfiguration):
		return ExitConfiguration
	default:
		return ExitIO
	}
}

// Message renders err for the user. Authentication failures never say
// whether the password or the data was wrong.
func Message(err error) string {
	switch ExitCode(err) {
	case ExitAuthentication:
		return "Error: authentication failed: wrong password or corrupted archive"
	case ExitUnsafePath:
		return fmt.Sprintf("Error: unsafe archive member, nothing was extracted: %v", err)
	case ExitUnsupportedVersion:
		return fmt.Sprintf("Error: archive written by an unsupported version: %v", err)
	case ExitManifest:
		return fmt.Sprintf("Error: invalid backup manifest: %v", err)
	case ExitFormat:
		return fmt.Sprintf("Error: not a valid archive: %v", err)
	case ExitConfiguration:
		return fmt.Sprintf("Error: %v", err)
	}
	if errors.Is(err, context.Canceled) {
		return "Error: interrupted"
	}
	return fmt.Sprintf("Error: %v", err)
}

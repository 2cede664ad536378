package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/sealback/internal/common"
	"github.com/dmitrijs2005/sealback/internal/config"
	"golang.org/x/term"
)

// Test seams for the terminal.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// GetPassword prints prompt to w and reads a password from the terminal
// without echo.
//
// The returned byte slice should be wiped by the caller when no longer needed.
func GetPassword(w io.Writer, prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		return nil, fmt.Errorf("%w: no password given and stdin is not a terminal (use --password or %s)", common.ErrConfiguration, common.PasswordEnvVar)
	}
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return nil, err
	}
	pw, err := readPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return nil, common.IOError("read password", err)
	}
	return pw, nil
}

// password resolves the password for cfg. With confirm set, a prompted
// password must be entered twice.
func (a *App) password(cfg *config.Config, confirm bool) ([]byte, error) {
	var pw []byte
	switch {
	case cfg.PasswordSet:
		pw = []byte(cfg.Password)
	default:
		if v, ok := a.lookupEnv(common.PasswordEnvVar); ok {
			pw = []byte(v)
			break
		}
		var err error
		if pw, err = a.promptPassword(confirm); err != nil {
			return nil, err
		}
	}

	if len(pw) == 0 {
		return nil, fmt.Errorf("%w: password must not be empty", common.ErrConfiguration)
	}
	return pw, nil
}

func (a *App) promptPassword(confirm bool) ([]byte, error) {
	pw, err := GetPassword(a.stderr, "Password: ")
	if err != nil {
		return nil, err
	}
	if !confirm {
		return pw, nil
	}

	again, err := GetPassword(a.stderr, "Repeat password: ")
	if err != nil {
		common.WipeByteArray(pw)
		return nil, err
	}
	defer common.WipeByteArray(again)

	if !bytes.Equal(pw, again) {
		common.WipeByteArray(pw)
		return nil, fmt.Errorf("%w: passwords do not match", common.ErrConfiguration)
	}
	return pw, nil
}

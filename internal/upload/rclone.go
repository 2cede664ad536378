package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/sealback/internal/common"
	"github.com/sethvargo/go-retry"
)

var execCommand = exec.CommandContext

type rcloneUploader struct {
	binary string
}

func (u *rcloneUploader) name() string { return "rclone" }

// RcloneTarget returns the rclone path the file called base is copied to.
func RcloneTarget(dest, base string) string {
	if strings.HasSuffix(dest, ":") || strings.HasSuffix(dest, "/") {
		return dest + base
	}
	return dest + "/" + base
}

func (u *rcloneUploader) put(ctx context.Context, localPath, dest string) error {
	target := RcloneTarget(dest, filepath.Base(localPath))

	var out bytes.Buffer
	cmd := execCommand(ctx, u.binary, "copyto", localPath, target)
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%w: %s not found in PATH", common.ErrConfiguration, u.binary)
		}
		return retry.RetryableError(fmt.Errorf("rclone copyto %s: %w: %s", target, err, strings.TrimSpace(out.String())))
	}
	return nil
}

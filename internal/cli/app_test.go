package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dmitrijs2005/sealback/internal/common"
	"github.com/dmitrijs2005/sealback/internal/config"
	"github.com/dmitrijs2005/sealback/internal/logging"
	"github.com/dmitrijs2005/sealback/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	dests []string
}

func (f *fakeUploader) Upload(_ context.Context, _ string, dest string) error {
	f.dests = append(f.dests, dest)
	return nil
}

func newTestApp() (*App, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	app := NewApp(&stdout, &stderr)
	app.lookupEnv = func(string) (string, bool) { return "", false }
	return app, &stdout, &stderr
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// sourceDir creates a.txt and b/c.txt and makes it the working directory.
func sourceDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "abc")
	writeFile(t, filepath.Join(dir, "b", "c.txt"), strings.Repeat("x", 50))
	t.Chdir(dir)
	return dir
}

func TestRun_NoArgs(t *testing.T) {
	app, _, stderr := newTestApp()
	assert.Equal(t, ExitConfiguration, app.Run(context.Background(), nil))
	assert.Contains(t, stderr.String(), "Usage: sealback")
}

func TestRun_Help(t *testing.T) {
	app, stdout, _ := newTestApp()
	assert.Equal(t, ExitOK, app.Run(context.Background(), []string{"--help"}))
	assert.Contains(t, stdout.String(), "restore [archive]")
}

func TestRun_CommandHelp(t *testing.T) {
	app, stdout, _ := newTestApp()
	assert.Equal(t, ExitOK, app.Run(context.Background(), []string{"create", "--help"}))
	assert.Contains(t, stdout.String(), "--rclone-dest")
	assert.Contains(t, stdout.String(), "--level")
}

func TestRun_Version(t *testing.T) {
	app, stdout, _ := newTestApp()
	assert.Equal(t, ExitOK, app.Run(context.Background(), []string{"version"}))
	assert.Contains(t, stdout.String(), "Build version:")
}

func TestRun_UnknownCommand(t *testing.T) {
	app, _, stderr := newTestApp()
	assert.Equal(t, ExitConfiguration, app.Run(context.Background(), []string{"frobnicate"}))
	assert.Contains(t, stderr.String(), "unknown command")
}

func TestRun_CreateInspectRestoreHistory(t *testing.T) {
	sourceDir(t)
	work := t.TempDir()
	archive := filepath.Join(work, "nightly.seal")
	dest := filepath.Join(work, "restored")
	db := filepath.Join(work, "history.db")
	ctx := context.Background()

	app, stdout, stderr := newTestApp()
	code := app.Run(ctx, []string{"create", "a.txt", "b", "-o", archive, "--password", "correct-horse", "--history-db", db})
	require.Equal(t, ExitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "Backup created: "+archive)

	stdout.Reset()
	code = app.Run(ctx, []string{"inspect", archive})
	require.Equal(t, ExitOK, code, stderr.String())
	out := stdout.String()
	assert.Contains(t, out, "AES-256-GCM")
	assert.Contains(t, out, "scrypt (N=16384, r=8, p=1, salt 16 bytes)")
	assert.Contains(t, out, "zstd")

	stdout.Reset()
	code = app.Run(ctx, []string{"restore", archive, "-o", dest, "--password", "correct-horse", "--history-db", db})
	require.Equal(t, ExitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "Restored 2 files, 1 directories")
	assert.Contains(t, stdout.String(), "a.txt")

	got, err := os.ReadFile(filepath.Join(dest, "b", "c.txt"))
	require.NoError(t, err)
	assert.Len(t, got, 50)

	stdout.Reset()
	code = app.Run(ctx, []string{"history", "--history-db", db})
	require.Equal(t, ExitOK, code, stderr.String())
	out = stdout.String()
	assert.Contains(t, out, "create")
	assert.Contains(t, out, "restore")
	assert.Contains(t, out, archive)
}

func TestRun_RestoreWrongPassword(t *testing.T) {
	sourceDir(t)
	archive := filepath.Join(t.TempDir(), "x.seal")
	ctx := context.Background()

	app, _, stderr := newTestApp()
	require.Equal(t, ExitOK, app.Run(ctx, []string{"create", "a.txt", "-o", archive, "--password", "correct-horse"}))

	dest := t.TempDir()
	code := app.Run(ctx, []string{"restore", archive, "-o", dest, "--password", "wrong"})
	assert.Equal(t, ExitAuthentication, code)
	assert.Contains(t, stderr.String(), "wrong password or corrupted archive")

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_CreateUpload(t *testing.T) {
	sourceDir(t)
	out := t.TempDir()

	app, stdout, stderr := newTestApp()
	up := &fakeUploader{}
	app.newUploader = func(*config.Config, logging.Logger) upload.Uploader { return up }
	app.lookupEnv = func(k string) (string, bool) {
		if k == common.PasswordEnvVar {
			return "correct-horse", true
		}
		return "", false
	}

	code := app.Run(context.Background(), []string{"create", "a.txt", "-o", out, "--rclone-dest", "remote:backups"})
	require.Equal(t, ExitOK, code, stderr.String())
	assert.Equal(t, []string{"remote:backups"}, up.dests)
	assert.Contains(t, stdout.String(), "Uploaded to remote:backups")
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()
	junk := filepath.Join(dir, "junk.seal")
	writeFile(t, junk, "not an archive at all")

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"create without sources", []string{"create", "--password", "pw"}, ExitConfiguration},
		{"create empty password", []string{"create", dir, "--password", ""}, ExitConfiguration},
		{"create bad level", []string{"create", dir, "-l", "30", "--password", "pw", "-o", dir}, ExitConfiguration},
		{"create unknown flag", []string{"create", "--bogus"}, ExitConfiguration},
		{"create missing source", []string{"create", filepath.Join(dir, "missing"), "--password", "pw", "-o", dir}, ExitIO},
		{"restore without archive", []string{"restore", "--password", "pw"}, ExitConfiguration},
		{"restore wrong suffix", []string{"restore", filepath.Join(dir, "x.tar"), "--password", "pw"}, ExitConfiguration},
		{"restore not an archive", []string{"restore", junk, "-o", filepath.Join(dir, "out"), "--password", "pw"}, ExitFormat},
		{"inspect without archive", []string{"inspect"}, ExitConfiguration},
		{"inspect not an archive", []string{"inspect", junk}, ExitFormat},
		{"inspect missing", []string{"inspect", filepath.Join(dir, "missing.seal")}, ExitIO},
		{"history without database", []string{"history"}, ExitConfiguration},
		{"history bad limit", []string{"history", "--limit", "0"}, ExitConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _, stderr := newTestApp()
			isTerminal = func(int) bool { return false }
			t.Cleanup(func() { isTerminal = termIsTerminal })

			assert.Equal(t, tt.want, app.Run(context.Background(), tt.args), stderr.String())
			assert.True(t, strings.HasPrefix(stderr.String(), "Error: "), stderr.String())
		})
	}
}

func TestRun_HistoryEmpty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "history.db")
	app, stdout, stderr := newTestApp()

	code := app.Run(context.Background(), []string{"history", "--history-db", db})
	require.Equal(t, ExitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "No backups recorded.")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{errors.New("disk on fire"), ExitIO},
		{common.IOError("write", errors.New("no space")), ExitIO},
		{context.Canceled, ExitIO},
		{common.ErrConfiguration, ExitConfiguration},
		{common.ErrFormat, ExitFormat},
		{common.ErrAuthentication, ExitAuthentication},
		{common.ErrManifest, ExitManifest},
		{common.ErrUnsupportedVersion, ExitUnsupportedVersion},
		{common.ErrUnsafePath, ExitUnsafePath},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExitCode(tt.err), "%v", tt.err)
	}
}

func TestMessage_DistinctPerCategory(t *testing.T) {
	errs := []error{
		common.ErrFormat,
		common.ErrAuthentication,
		common.ErrManifest,
		common.ErrUnsupportedVersion,
		common.ErrUnsafePath,
	}
	seen := map[string]bool{}
	for _, err := range errs {
		msg := Message(err)
		prefix := strings.SplitN(msg, ":", 3)[1]
		assert.False(t, seen[prefix], "duplicate message %q", msg)
		seen[prefix] = true
	}
	assert.Equal(t, "Error: interrupted", Message(context.Canceled))
}

// Package filex holds the filesystem helpers the pipeline relies on: a
// per-run scratch workspace, atomic file replacement and directory checks.
package filex

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Workspace is a private scratch directory owned by one pipeline run.
// Everything staged inside it goes away with Cleanup.
type Workspace struct {
	dir string
}

// NewWorkspace creates a fresh directory under the system temp dir.
// Callers should defer Cleanup immediately.
func NewWorkspace(pattern string) (*Workspace, error) {
	dir, err := os.MkdirTemp("", pattern)
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace root.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path returns name joined to the workspace root.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// Create opens a new file inside the workspace for writing.
func (w *Workspace) Create(name string) (*os.File, error) {
	f, err := os.OpenFile(w.Path(name), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	return f, nil
}

// Cleanup removes the workspace and all staged files. Safe to call more than once.
func (w *Workspace) Cleanup() error {
	if w == nil || w.dir == "" {
		return nil
	}
	err := os.RemoveAll(w.dir)
	w.dir = ""
	return err
}

// WriteFileAtomic writes the contents of r to path so that readers only ever
// observe the old file or the complete new one. Data goes to a temporary file
// in the same directory, is synced, and is renamed over path. On failure the
// temporary file is removed and path is left untouched.
func WriteFileAtomic(path string, r io.Reader, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = io.Copy(tmp, r); err != nil {
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err = tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	syncDir(dir)
	return nil
}

// syncDir flushes the directory entry after a rename. Not every platform
// supports fsync on directories, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// IsDirEmpty reports whether dir contains no entries. A missing directory
// counts as empty.
func IsDirEmpty(dir string) (bool, error) {
	f, err := os.Open(dir)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}

// EnsureDir creates dir (and parents) if needed and verifies it is a directory.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

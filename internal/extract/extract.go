package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dmitrijs2005/sealback/internal/common"
	"github.com/dmitrijs2005/sealback/internal/logging"
)

// Options tunes Extract. The zero value refuses to replace anything and
// logs nowhere.
type Options struct {
	// Overwrite allows replacing files and symlinks that already exist
	// under the destination.
	Overwrite bool

	Logger logging.Logger
}

// Report summarizes a completed extraction.
type Report struct {
	Files       int
	Directories int
	Symlinks    int
	Bytes       int64
}

type dirAttrs struct {
	path    string
	mode    fs.FileMode
	modTime time.Time
}

// replaced is a pre-existing path moved aside so it can be put back.
type replaced struct {
	original string
	saved    string
}

type extractor struct {
	root    string
	opts    Options
	log     logging.Logger
	created []string
	mine    map[string]struct{}
	dirs    []dirAttrs
	report  Report

	// backupDir holds paths replaced under Overwrite until the run
	// succeeds. Created on first use.
	backupDir string
	moved     []replaced
}

// Extract validates every member of a against root and then writes them in
// archive order. Nothing is written if validation fails. If writing fails
// part way, everything this call created is removed again and any file it
// replaced under Overwrite is put back.
func Extract(ctx context.Context, a Archive, root string, opts Options) (*Report, error) {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	members, err := a.Members(ctx)
	if err != nil {
		return nil, err
	}
	if err := Validate(members, root); err != nil {
		return nil, err
	}
	log.Debug(ctx, "archive members validated", "count", len(members))

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, common.IOError("resolve destination", err)
	}

	x := &extractor{
		root: rootAbs,
		opts: opts,
		log:  log,
		mine: make(map[string]struct{}),
	}

	if err := x.mkdirAll(rootAbs); err != nil {
		return nil, err
	}

	i := 0
	err = a.Walk(ctx, func(m Member, r io.Reader) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i >= len(members) || members[i].Name != m.Name || members[i].Kind != m.Kind ||
			members[i].LinkTarget != m.LinkTarget {
			return unsafe(m.Name, "member changed after validation")
		}
		i++
		return x.write(m, r)
	})
	if err == nil && i != len(members) {
		err = fmt.Errorf("%w: archive ended after %d of %d members", common.ErrIO, i, len(members))
	}
	if err == nil {
		err = x.finishDirs()
	}
	if err != nil {
		x.rollback(ctx)
		return nil, err
	}
	x.dropBackups(ctx)

	log.Debug(ctx, "archive extracted",
		"files", x.report.Files, "directories", x.report.Directories,
		"symlinks", x.report.Symlinks, "bytes", x.report.Bytes)
	return &x.report, nil
}

func (x *extractor) write(m Member, r io.Reader) error {
	clean := path.Clean(m.Name)
	target := filepath.Join(x.root, filepath.FromSlash(clean))

	if err := x.mkdirAll(filepath.Dir(target)); err != nil {
		return err
	}

	switch m.Kind {
	case KindDirectory:
		return x.writeDir(m, target)
	case KindFile:
		return x.writeFile(m, target, r)
	case KindSymlink:
		return x.writeSymlink(m, target)
	default:
		return unsafe(m.Name, "unsupported member type")
	}
}

func (x *extractor) writeDir(m Member, target string) error {
	fi, err := os.Lstat(target)
	switch {
	case err == nil && fi.IsDir():
	case err == nil:
		if err := x.clear(target); err != nil {
			return err
		}
		fallthrough
	case errors.Is(err, fs.ErrNotExist):
		if err := os.Mkdir(target, 0o700); err != nil {
			return common.IOError("create directory", err)
		}
		x.track(target)
	default:
		return common.IOError("inspect "+m.Name, err)
	}

	x.dirs = append(x.dirs, dirAttrs{path: target, mode: m.Mode.Perm(), modTime: m.ModTime})
	x.report.Directories++
	return nil
}

func (x *extractor) writeFile(m Member, target string, r io.Reader) error {
	if err := x.clear(target); err != nil {
		return err
	}

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return common.IOError("create file", err)
	}
	x.track(target)

	n, err := io.Copy(f, r)
	if err != nil {
		_ = f.Close()
		return common.IOError("write "+m.Name, err)
	}
	if err := f.Close(); err != nil {
		return common.IOError("close "+m.Name, err)
	}
	if err := os.Chmod(target, m.Mode.Perm()); err != nil {
		return common.IOError("chmod "+m.Name, err)
	}
	if !m.ModTime.IsZero() {
		if err := os.Chtimes(target, m.ModTime, m.ModTime); err != nil {
			return common.IOError("chtimes "+m.Name, err)
		}
	}

	x.report.Files++
	x.report.Bytes += n
	return nil
}

func (x *extractor) writeSymlink(m Member, target string) error {
	if err := x.clear(target); err != nil {
		return err
	}
	if err := os.Symlink(m.LinkTarget, target); err != nil {
		return common.IOError("create symlink", err)
	}
	x.track(target)
	x.report.Symlinks++
	return nil
}

// clear frees target if a non-directory is there. Paths written earlier in
// this run are removed; pre-existing ones are moved aside, and only with
// Overwrite.
func (x *extractor) clear(target string) error {
	fi, err := os.Lstat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return common.IOError("inspect destination", err)
	}
	if fi.IsDir() {
		return fmt.Errorf("%w: %s is an existing directory", common.ErrIO, target)
	}
	if _, ok := x.mine[target]; ok {
		if err := os.Remove(target); err != nil {
			return common.IOError("replace extracted file", err)
		}
		return nil
	}
	if !x.opts.Overwrite {
		return fmt.Errorf("%w: %s: %w", common.ErrIO, target, fs.ErrExist)
	}
	return x.moveAside(target)
}

func (x *extractor) moveAside(target string) error {
	if x.backupDir == "" {
		dir, err := os.MkdirTemp(x.root, ".sealback-replaced-*")
		if err != nil {
			return common.IOError("create backup directory", err)
		}
		x.backupDir = dir
	}

	saved := filepath.Join(x.backupDir, strconv.Itoa(len(x.moved)))
	if err := os.Rename(target, saved); err != nil {
		return common.IOError("move existing file aside", err)
	}
	x.moved = append(x.moved, replaced{original: target, saved: saved})
	return nil
}

func (x *extractor) dropBackups(ctx context.Context) {
	if x.backupDir == "" {
		return
	}
	if err := os.RemoveAll(x.backupDir); err != nil {
		x.log.Warn(ctx, "failed to remove replaced files", "dir", x.backupDir, "error", err)
	}
}

// mkdirAll creates dir and any missing parents, remembering each one.
func (x *extractor) mkdirAll(dir string) error {
	fi, err := os.Stat(dir)
	if err == nil {
		if !fi.IsDir() {
			return fmt.Errorf("%w: %s is not a directory", common.ErrIO, dir)
		}
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return common.IOError("inspect destination", err)
	}

	if parent := filepath.Dir(dir); parent != dir {
		if err := x.mkdirAll(parent); err != nil {
			return err
		}
	}
	if err := os.Mkdir(dir, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return common.IOError("create directory", err)
	}
	x.track(dir)
	return nil
}

func (x *extractor) track(p string) {
	if _, ok := x.mine[p]; ok {
		return
	}
	x.mine[p] = struct{}{}
	x.created = append(x.created, p)
}

// finishDirs applies directory modes and times once their contents are in
// place, deepest first, so read-only directories do not block writes.
func (x *extractor) finishDirs() error {
	for i := len(x.dirs) - 1; i >= 0; i-- {
		d := x.dirs[i]
		if err := os.Chmod(d.path, d.mode); err != nil {
			return common.IOError("chmod directory", err)
		}
		if !d.modTime.IsZero() {
			if err := os.Chtimes(d.path, d.modTime, d.modTime); err != nil {
				return common.IOError("chtimes directory", err)
			}
		}
	}
	return nil
}

func (x *extractor) rollback(ctx context.Context) {
	for i := len(x.created) - 1; i >= 0; i-- {
		p := x.created[i]
		if fi, err := os.Lstat(p); err == nil && fi.IsDir() {
			_ = os.Chmod(p, 0o700)
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			x.log.Warn(ctx, "failed to remove partially extracted path", "path", p, "error", err)
		}
	}

	for i := len(x.moved) - 1; i >= 0; i-- {
		mv := x.moved[i]
		if err := os.Rename(mv.saved, mv.original); err != nil {
			x.log.Error(ctx, "failed to restore replaced file", "path", mv.original, "saved", mv.saved, "error", err)
			return
		}
	}
	if x.backupDir != "" {
		if err := os.Remove(x.backupDir); err != nil {
			x.log.Warn(ctx, "failed to remove backup directory", "dir", x.backupDir, "error", err)
		}
	}
}

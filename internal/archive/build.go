// Package archive writes and reads the uncompressed tar stream that carries
// the manifest and the backed up sources.
package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/sealback/internal/common"
)

// Extra is a file stored under an explicit name ahead of the sources.
type Extra struct {
	Path string
	Name string
}

// Build writes a tar stream to w. Extras come first, then every source in
// order; directories are walked recursively and symlinks below a source are
// stored as links. A source that is itself a symlink is followed, so it is
// stored as whatever it points to. Each source is named relative to baseDir when it lies inside it,
// otherwise by its absolute path without the leading slash.
func Build(ctx context.Context, w io.Writer, baseDir string, sources []string, extras ...Extra) error {
	base, err := filepath.Abs(baseDir)
	if err != nil {
		return common.IOError("resolve base directory", err)
	}

	reserved := make(map[string]struct{}, len(extras))
	tw := tar.NewWriter(w)

	for _, e := range extras {
		fi, err := os.Stat(e.Path)
		if err != nil {
			return common.IOError("stat "+e.Name, err)
		}
		if err := writeEntry(tw, e.Path, e.Name, fi); err != nil {
			return err
		}
		reserved[e.Name] = struct{}{}
	}

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		name, err := EntryName(base, src)
		if err != nil {
			return err
		}
		if err := addSource(ctx, tw, src, name, reserved); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return common.IOError("finish tar", err)
	}
	return nil
}

// EntryName returns the archive name for src.
func EntryName(base, src string) (string, error) {
	abs, err := filepath.Abs(src)
	if err != nil {
		return "", common.IOError("resolve source", err)
	}
	name := strings.TrimPrefix(filepath.ToSlash(abs), "/")
	if rel, err := filepath.Rel(base, abs); err == nil && rel != ".." &&
		!strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		name = filepath.ToSlash(rel)
	}
	if name == "" {
		name = "."
	}
	return name, nil
}

func addSource(ctx context.Context, tw *tar.Writer, src, name string, reserved map[string]struct{}) error {
	root, err := filepath.EvalSymlinks(src)
	if err != nil {
		return common.IOError("resolve source "+src, err)
	}

	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return common.IOError("walk "+p, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return common.IOError("walk "+p, err)
		}
		entry := path.Join(name, filepath.ToSlash(rel))
		if entry == "." {
			return nil
		}
		if _, ok := reserved[entry]; ok {
			return fmt.Errorf("%w: source %s would be stored as reserved entry %q", common.ErrConfiguration, p, entry)
		}

		fi, err := d.Info()
		if err != nil {
			return common.IOError("stat "+p, err)
		}
		return writeEntry(tw, p, entry, fi)
	})
}

func writeEntry(tw *tar.Writer, p, name string, fi fs.FileInfo) error {
	mode := fi.Mode()
	if !mode.IsRegular() && !mode.IsDir() && mode&fs.ModeSymlink == 0 {
		// devices, fifos and sockets are not backed up
		return nil
	}

	var link string
	if mode&fs.ModeSymlink != 0 {
		var err error
		if link, err = os.Readlink(p); err != nil {
			return common.IOError("readlink "+p, err)
		}
	}

	hdr, err := tar.FileInfoHeader(fi, link)
	if err != nil {
		return fmt.Errorf("%w: tar header for %s: %w", common.ErrIO, p, err)
	}
	hdr.Name = name
	if fi.IsDir() {
		hdr.Name += "/"
	}
	hdr.Format = tar.FormatPAX

	if err := tw.WriteHeader(hdr); err != nil {
		return common.IOError("write tar header", err)
	}
	if !mode.IsRegular() {
		return nil
	}

	f, err := os.Open(p)
	if err != nil {
		return common.IOError("open "+p, err)
	}
	defer f.Close()

	if _, err := io.CopyN(tw, f, hdr.Size); err != nil {
		return common.IOError("copy "+p, err)
	}
	return nil
}

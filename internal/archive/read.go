package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/sealback/internal/common"
	"github.com/dmitrijs2005/sealback/internal/extract"
)

// ErrEntryNotFound is returned by ReadEntry when the stream has no entry
// with the requested name.
var ErrEntryNotFound = errors.New("tar entry not found")

// MaxEntrySize caps what ReadEntry will copy out of a single entry.
const MaxEntrySize = 1 << 20

// ReadEntry copies the content of the named entry to w, stopping at the first
// match so the rest of the stream is never read.
func ReadEntry(r io.Reader, name string, w io.Writer) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return ErrEntryNotFound
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}
		if hdr.Name != name {
			continue
		}
		if !isRegular(hdr) {
			return fmt.Errorf("tar entry %s is not a regular file", name)
		}
		if hdr.Size > MaxEntrySize {
			return fmt.Errorf("tar entry %s is %d bytes, limit is %d", name, hdr.Size, MaxEntrySize)
		}
		if _, err := io.Copy(w, tr); err != nil {
			return fmt.Errorf("read tar entry %s: %w", name, err)
		}
		return nil
	}
}

// File is a tar file on disk that can be read any number of times. It
// implements extract.Archive.
type File struct {
	path    string
	exclude map[string]struct{}
}

var _ extract.Archive = (*File)(nil)

// Open returns a reader for the tar file at path. Entries whose names are
// listed in exclude are skipped.
func Open(path string, exclude ...string) (*File, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, common.IOError("open tar", err)
	}
	f := &File{path: path, exclude: make(map[string]struct{}, len(exclude))}
	for _, name := range exclude {
		f.exclude[name] = struct{}{}
	}
	return f, nil
}

func (f *File) Members(ctx context.Context) ([]extract.Member, error) {
	var members []extract.Member
	err := f.each(ctx, func(m extract.Member, _ io.Reader) error {
		members = append(members, m)
		return nil
	})
	return members, err
}

func (f *File) Walk(ctx context.Context, fn func(m extract.Member, r io.Reader) error) error {
	return f.each(ctx, fn)
}

func (f *File) each(ctx context.Context, fn func(m extract.Member, r io.Reader) error) error {
	file, err := os.Open(f.path)
	if err != nil {
		return common.IOError("open tar", err)
	}
	defer file.Close()

	tr := tar.NewReader(file)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: read tar: %w", common.ErrFormat, err)
		}
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}
		if _, ok := f.exclude[hdr.Name]; ok {
			continue
		}
		if err := fn(toMember(hdr), tr); err != nil {
			return err
		}
	}
}

func toMember(hdr *tar.Header) extract.Member {
	m := extract.Member{
		Name:       hdr.Name,
		Mode:       hdr.FileInfo().Mode().Perm(),
		Size:       hdr.Size,
		LinkTarget: hdr.Linkname,
		ModTime:    hdr.ModTime,
	}
	switch {
	case isRegular(hdr):
		m.Kind = extract.KindFile
	case hdr.Typeflag == tar.TypeDir:
		m.Kind = extract.KindDirectory
	case hdr.Typeflag == tar.TypeSymlink:
		m.Kind = extract.KindSymlink
	default:
		m.Kind = extract.KindOther
	}
	return m
}

func isRegular(hdr *tar.Header) bool {
	return hdr.Typeflag == tar.TypeReg
}

// Package extract restores archive members onto a destination directory
// without letting any member land outside it.
//
// Extraction runs in two passes. The first pass reads member headers only and
// validates every one of them; the second pass writes. A single unsafe member
// aborts the run before anything is written.
package extract

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/dmitrijs2005/sealback/internal/common"
)

// Kind classifies an archive member.
type Kind int

const (
	KindOther Kind = iota
	KindFile
	KindDirectory
	KindSymlink
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	default:
		return "other"
	}
}

// Member is the header of one archive entry.
type Member struct {
	Name       string
	Kind       Kind
	Mode       fs.FileMode
	Size       int64
	LinkTarget string
	ModTime    time.Time
}

// Archive is a source of members that can be read more than once.
type Archive interface {
	// Members returns every member header in archive order without
	// reading content.
	Members(ctx context.Context) ([]Member, error)

	// Walk calls fn for every member in archive order. For files, r yields
	// the member content; for other kinds it is empty.
	Walk(ctx context.Context, fn func(m Member, r io.Reader) error) error
}

// UnsafePathError reports the member that made an extraction unsafe.
type UnsafePathError struct {
	Name   string
	Reason string
}

func (e *UnsafePathError) Error() string {
	return fmt.Sprintf("%s %q: %s", common.ErrUnsafePath, e.Name, e.Reason)
}

func (e *UnsafePathError) Unwrap() error {
	return common.ErrUnsafePath
}

func unsafe(name, reason string) error {
	return &UnsafePathError{Name: name, Reason: reason}
}

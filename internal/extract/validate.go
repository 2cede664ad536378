package extract

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/sealback/internal/common"
)

// Validate checks every member against root and returns the first unsafe
// one as an *UnsafePathError. It never writes to the filesystem.
//
// Symlink targets are resolved the way the filesystem will see them once
// the archive is written: through symlinks declared earlier in the archive
// and through symlinks already present under root.
func Validate(members []Member, root string) error {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return common.IOError("resolve destination", err)
	}
	rootReal := rootAbs
	if resolved, err := filepath.EvalSymlinks(rootAbs); err == nil {
		rootReal = resolved
	}

	r := &resolver{
		rootAbs:  rootAbs,
		rootReal: rootReal,
		seen:     make(map[string]Member),
	}
	for _, m := range members {
		clean, err := cleanName(m.Name)
		if err != nil {
			return err
		}

		if m.Kind == KindOther {
			return unsafe(m.Name, "unsupported member type")
		}

		for dir := path.Dir(clean); dir != "."; dir = path.Dir(dir) {
			if prev, ok := r.seen[dir]; ok && prev.Kind == KindSymlink {
				return unsafe(m.Name, "parent "+dir+" is a symlink in the archive")
			}
		}

		if err := checkExisting(m, clean, rootAbs, rootReal); err != nil {
			return err
		}

		if m.Kind == KindSymlink {
			if err := r.checkLinkTarget(m, clean); err != nil {
				return err
			}
		}

		r.seen[clean] = m
	}
	return nil
}

// cleanName returns the lexically cleaned, slash separated member path.
func cleanName(name string) (string, error) {
	if name == "" {
		return "", unsafe(name, "empty name")
	}
	if strings.HasPrefix(name, "/") || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", unsafe(name, "absolute path")
	}
	if strings.Contains(name, "\\") {
		return "", unsafe(name, "backslash in name")
	}

	clean := path.Clean(name)
	switch {
	case clean == ".":
		return "", unsafe(name, "empty path")
	case clean == ".." || strings.HasPrefix(clean, "../"):
		return "", unsafe(name, "path escapes destination")
	}
	return clean, nil
}

// maxLinkHops bounds symlink chains, matching the usual kernel limit.
const maxLinkHops = 40

// resolver follows paths below root as they will exist after extraction.
// Paths are slices of root-relative components; an empty slice is root.
type resolver struct {
	rootAbs  string
	rootReal string
	// seen holds the members validated so far, by cleaned name. A later
	// member with the same name replaces the earlier one on disk.
	seen map[string]Member
}

func (r *resolver) checkLinkTarget(m Member, clean string) error {
	target := m.LinkTarget
	if target == "" {
		return unsafe(m.Name, "symlink without target")
	}

	start, ok := r.walk(nil, strings.Split(path.Dir(clean), "/"), 0)
	if !ok {
		return unsafe(m.Name, "symlink parent leaves destination")
	}

	if path.IsAbs(target) || filepath.IsAbs(target) {
		rel, ok := r.relToRoot(target)
		if !ok {
			return unsafe(m.Name, "symlink target "+target+" is outside destination")
		}
		if _, ok := r.walk(nil, rel, 0); !ok {
			return unsafe(m.Name, "symlink target "+target+" resolves outside destination")
		}
		return nil
	}

	if _, ok := r.walk(start, strings.Split(target, "/"), 0); !ok {
		return unsafe(m.Name, "symlink target "+target+" resolves outside destination")
	}
	return nil
}

// walk applies segs to cur, following symlinks as it goes. It reports
// false as soon as the path would leave root or the chain is too long.
func (r *resolver) walk(cur, segs []string, hops int) ([]string, bool) {
	if hops > maxLinkHops {
		return nil, false
	}
	for _, seg := range segs {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(cur) == 0 {
				return nil, false
			}
			cur = cur[:len(cur)-1]
			continue
		}

		next := append(cur[:len(cur):len(cur)], seg)
		target, isLink, ok := r.link(path.Join(next...))
		if !ok {
			return nil, false
		}
		if !isLink {
			cur = next
			continue
		}

		if path.IsAbs(target) || filepath.IsAbs(target) {
			rel, ok := r.relToRoot(target)
			if !ok {
				return nil, false
			}
			if cur, ok = r.walk(nil, rel, hops+1); !ok {
				return nil, false
			}
			continue
		}
		if cur, ok = r.walk(cur, strings.Split(target, "/"), hops+1); !ok {
			return nil, false
		}
	}
	return cur, true
}

// link reports whether name is a symlink after the members seen so far are
// written, and its target. Members seen earlier shadow what is on disk.
// ok is false when the destination cannot be inspected.
func (r *resolver) link(name string) (target string, isLink, ok bool) {
	if m, found := r.seen[name]; found {
		return m.LinkTarget, m.Kind == KindSymlink, true
	}

	p := filepath.Join(r.rootAbs, filepath.FromSlash(name))
	fi, err := os.Lstat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, true
	}
	if err != nil {
		return "", false, false
	}
	if fi.Mode()&fs.ModeSymlink == 0 {
		return "", false, true
	}
	t, err := os.Readlink(p)
	if err != nil {
		return "", false, false
	}
	return filepath.ToSlash(t), true, true
}

// relToRoot converts an absolute target into root-relative components.
func (r *resolver) relToRoot(target string) ([]string, bool) {
	clean := filepath.Clean(filepath.FromSlash(target))
	for _, base := range []string{r.rootAbs, r.rootReal} {
		if !within(base, clean) {
			continue
		}
		rel, err := filepath.Rel(base, clean)
		if err != nil {
			return nil, false
		}
		if rel == "." {
			return nil, true
		}
		return strings.Split(filepath.ToSlash(rel), "/"), true
	}
	return nil, false
}

// checkExisting rejects members whose on-disk parents (or, for directories,
// the path itself) are symlinks that already lead outside the destination.
func checkExisting(m Member, clean, rootAbs, rootReal string) error {
	parts := strings.Split(clean, "/")
	n := len(parts) - 1
	if m.Kind == KindDirectory {
		n = len(parts)
	}

	cur := rootAbs
	for i := 0; i < n; i++ {
		cur = filepath.Join(cur, parts[i])
		fi, err := os.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return common.IOError("inspect destination", err)
		}
		if fi.Mode()&fs.ModeSymlink == 0 {
			continue
		}
		resolved, err := filepath.EvalSymlinks(cur)
		if err != nil || !within(rootReal, resolved) {
			return unsafe(m.Name, "existing symlink "+cur+" leads outside destination")
		}
	}
	return nil
}

// within reports whether p is base or below it. Both must be absolute and clean.
func within(base, p string) bool {
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

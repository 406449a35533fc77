// Package vfs is the host file system seen by the project service: an
// afero.Fs plus the host's case-sensitivity policy. On case-insensitive
// hosts lookups fall back to a per-component case-folded search so that
// "/A/B/tsconfig.json" finds "/a/b/tsconfig.json".
package vfs

import (
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"projd/internal/paths"
)

// FS is a case-policy aware view over an afero file system.
type FS struct {
	fs            afero.Fs
	caseSensitive bool
}

// New wraps an afero file system.
func New(fsys afero.Fs, caseSensitive bool) *FS {
	return &FS{fs: fsys, caseSensitive: caseSensitive}
}

// NewOS returns the real operating-system file system.
func NewOS(caseSensitive bool) *FS {
	return New(afero.NewOsFs(), caseSensitive)
}

// NewMem returns an empty in-memory file system.
func NewMem(caseSensitive bool) *FS {
	return New(afero.NewMemMapFs(), caseSensitive)
}

// Afero exposes the underlying file system.
func (f *FS) Afero() afero.Fs { return f.fs }

// CaseSensitive reports the host case policy.
func (f *FS) CaseSensitive() bool { return f.caseSensitive }

// Canonical returns the comparison key for p under the host case policy.
func (f *FS) Canonical(p string) string {
	return paths.Canonical(p, f.caseSensitive)
}

// RealPath returns the on-disk spelling of p. When p does not exist the
// normalized input is returned unchanged.
func (f *FS) RealPath(p string) string {
	if real, ok := f.resolve(p); ok {
		return real
	}
	return paths.Normalize(p)
}

func (f *FS) resolve(p string) (string, bool) {
	p = paths.Normalize(p)
	if _, err := f.fs.Stat(p); err == nil {
		return p, true
	}
	if f.caseSensitive {
		return "", false
	}

	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	cur := "/"
	for _, part := range parts {
		if part == "" {
			continue
		}
		infos, err := afero.ReadDir(f.fs, cur)
		if err != nil {
			return "", false
		}
		found := ""
		for _, info := range infos {
			if info.Name() == part {
				found = part
				break
			}
			if found == "" && strings.EqualFold(info.Name(), part) {
				found = info.Name()
			}
		}
		if found == "" {
			return "", false
		}
		cur = path.Join(cur, found)
	}
	return cur, true
}

func (f *FS) stat(p string) (os.FileInfo, bool) {
	real, ok := f.resolve(p)
	if !ok {
		return nil, false
	}
	info, err := f.fs.Stat(real)
	if err != nil {
		return nil, false
	}
	return info, true
}

// FileExists reports whether p names a regular file.
func (f *FS) FileExists(p string) bool {
	info, ok := f.stat(p)
	return ok && !info.IsDir()
}

// DirExists reports whether p names a directory.
func (f *FS) DirExists(p string) bool {
	info, ok := f.stat(p)
	return ok && info.IsDir()
}

// ModTime returns the modification time of p.
func (f *FS) ModTime(p string) (time.Time, bool) {
	info, ok := f.stat(p)
	if !ok {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// ReadFile reads the file at p.
func (f *FS) ReadFile(p string) ([]byte, error) {
	real, ok := f.resolve(p)
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: p, Err: fs.ErrNotExist}
	}
	return afero.ReadFile(f.fs, real)
}

// WriteFile writes data to p, creating parent directories as needed. An
// existing file keeps its on-disk spelling.
func (f *FS) WriteFile(p string, data []byte) error {
	target := paths.Normalize(p)
	if real, ok := f.resolve(p); ok {
		target = real
	}
	if err := f.fs.MkdirAll(paths.Dir(target), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(f.fs, target, data, 0o644)
}

// MkdirAll creates p and any missing parents.
func (f *FS) MkdirAll(p string) error {
	return f.fs.MkdirAll(paths.Normalize(p), 0o755)
}

// Remove deletes the file or empty directory at p.
func (f *FS) Remove(p string) error {
	real, ok := f.resolve(p)
	if !ok {
		return &fs.PathError{Op: "remove", Path: p, Err: fs.ErrNotExist}
	}
	return f.fs.Remove(real)
}

// Chtimes sets the modification time of p.
func (f *FS) Chtimes(p string, t time.Time) error {
	real, ok := f.resolve(p)
	if !ok {
		return &fs.PathError{Op: "chtimes", Path: p, Err: fs.ErrNotExist}
	}
	return f.fs.Chtimes(real, t, t)
}

// Entry is one directory listing element.
type Entry struct {
	Name  string
	IsDir bool
}

// ReadDir lists the directory at p sorted by name.
func (f *FS) ReadDir(p string) ([]Entry, error) {
	real, ok := f.resolve(p)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: p, Err: fs.ErrNotExist}
	}
	infos, err := afero.ReadDir(f.fs, real)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(infos))
	for _, info := range infos {
		out = append(out, Entry{Name: info.Name(), IsDir: info.IsDir()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// WalkFunc is called for every regular file below a walked root. Returning
// SkipDir from a directory visit prunes it.
type WalkFunc func(p string, isDir bool) error

// SkipDir prunes a directory during Walk.
var SkipDir = fs.SkipDir

// Walk visits root and everything below it depth first in name order.
// Unreadable directories are skipped.
func (f *FS) Walk(root string, fn WalkFunc) error {
	real, ok := f.resolve(root)
	if !ok {
		return nil
	}
	return f.walk(real, fn)
}

func (f *FS) walk(dir string, fn WalkFunc) error {
	entries, err := f.ReadDir(dir)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		p := path.Join(dir, e.Name)
		if err := fn(p, e.IsDir); err != nil {
			if err == SkipDir && e.IsDir {
				continue
			}
			return err
		}
		if e.IsDir {
			if err := f.walk(p, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

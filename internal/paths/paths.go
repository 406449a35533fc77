// Package paths holds the slash-path helpers shared by the config loader,
// the watch registry and the project service. Every path handled by the
// service is absolute and slash separated; comparisons go through Canonical.
package paths

import (
	"path"
	"path/filepath"
	"strings"
)

// Normalize converts backslashes to forward slashes and cleans the result.
func Normalize(p string) string {
	if p == "" {
		return ""
	}
	return path.Clean(toSlash(p))
}

// toSlash replaces backslashes whatever the host separator is; client
// paths may come from another platform.
func toSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// Canonical returns the key used for map lookups and comparisons.
// On case-insensitive hosts the key is lower-cased; the caller keeps the
// original spelling for display.
func Canonical(p string, caseSensitive bool) string {
	n := Normalize(p)
	if caseSensitive {
		return n
	}
	return strings.ToLower(n)
}

// Equal compares two paths under the given case policy.
func Equal(a, b string, caseSensitive bool) bool {
	return Canonical(a, caseSensitive) == Canonical(b, caseSensitive)
}

// Dir returns the parent directory of p.
func Dir(p string) string {
	return path.Dir(Normalize(p))
}

// Base returns the last element of p.
func Base(p string) string {
	return path.Base(Normalize(p))
}

// Join joins path elements and normalizes the result.
func Join(elem ...string) string {
	return Normalize(path.Join(elem...))
}

// Resolve returns p unchanged when absolute, otherwise joined onto base.
func Resolve(base, p string) string {
	p = toSlash(p)
	if path.IsAbs(p) {
		return Normalize(p)
	}
	return Join(base, p)
}

// Ancestors lists dir and each of its parents up to the root, nearest first.
func Ancestors(dir string) []string {
	dir = Normalize(dir)
	var out []string
	for {
		out = append(out, dir)
		parent := path.Dir(dir)
		if parent == dir {
			return out
		}
		dir = parent
	}
}

// Contains reports whether p equals dir or lies beneath it.
func Contains(dir, p string, caseSensitive bool) bool {
	d := Canonical(dir, caseSensitive)
	c := Canonical(p, caseSensitive)
	if d == c {
		return true
	}
	if d == "/" {
		return strings.HasPrefix(c, "/")
	}
	return strings.HasPrefix(c, d+"/")
}

// Rel returns target relative to base using forward slashes.
func Rel(base, target string) string {
	r, err := filepath.Rel(filepath.FromSlash(Normalize(base)), filepath.FromSlash(Normalize(target)))
	if err != nil {
		return Normalize(target)
	}
	return filepath.ToSlash(r)
}

// Source and output extensions understood by the service.
const (
	ExtTS     = ".ts"
	ExtTSX    = ".tsx"
	ExtDTS    = ".d.ts"
	ExtJS     = ".js"
	ExtJSX    = ".jsx"
	ExtDTSMap = ".d.ts.map"
	ExtJSON   = ".json"
)

// IsDeclaration reports whether p names a declaration file.
func IsDeclaration(p string) bool {
	return strings.HasSuffix(strings.ToLower(p), ExtDTS)
}

// Ext returns the extension of p, treating ".d.ts" as a single extension.
func Ext(p string) string {
	if IsDeclaration(p) {
		return p[len(p)-len(ExtDTS):]
	}
	return path.Ext(p)
}

// TrimExt removes the extension returned by Ext.
func TrimExt(p string) string {
	return p[:len(p)-len(Ext(p))]
}

// ChangeExt replaces the extension of p with ext.
func ChangeExt(p, ext string) string {
	return TrimExt(p) + ext
}

// HasExt reports whether p ends with one of exts, ignoring case.
func HasExt(p string, exts ...string) bool {
	lower := strings.ToLower(p)
	for _, e := range exts {
		if strings.HasSuffix(lower, e) {
			return true
		}
	}
	return false
}

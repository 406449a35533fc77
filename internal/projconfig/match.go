package projconfig

import (
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"projd/internal/errors"
	"projd/internal/paths"
)

func hasWildcard(segment string) bool {
	return strings.ContainsAny(segment, "*?[{")
}

// packageDirs are skipped by wildcard includes unless a pattern names them.
var packageDirs = []string{"node_modules", "bower_components", "jspm_packages"}

// glob is an include or exclude entry: a literal directory and a doublestar
// pattern relative to it. An empty rest names base itself.
type glob struct {
	base string
	rest string
}

// newGlob resolves pattern against dir. Segments up to the first wildcard
// form the literal base.
func newGlob(dir, pattern string) glob {
	pattern = paths.Normalize(pattern)
	segs := strings.Split(pattern, "/")
	i := 0
	for i < len(segs) && !hasWildcard(segs[i]) {
		i++
	}
	literal := strings.Join(segs[:i], "/")
	if literal == "" && path.IsAbs(pattern) {
		literal = "/"
	}
	return glob{base: paths.Resolve(dir, literal), rest: strings.Join(segs[i:], "/")}
}

// pattern returns the absolute doublestar pattern with base escaped.
func (g glob) pattern() string {
	base := escapeMeta(g.base)
	switch {
	case g.rest == "":
		return base
	case base == "/":
		return "/" + g.rest
	default:
		return base + "/" + g.rest
	}
}

func escapeMeta(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`*?[]{}\`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// expandInclude turns a literal directory entry into dir/**/* and reports
// patterns that cannot match anything.
func (g glob) expandInclude() (glob, bool) {
	if strings.HasSuffix(g.rest, "**") {
		return glob{}, false
	}
	last := paths.Base(g.base)
	if g.rest != "" {
		last = paths.Base(g.rest)
	}
	if !hasWildcard(last) && paths.Ext(last) == "" {
		if g.rest == "" {
			g.rest = "**/*"
		} else {
			g.rest += "/**/*"
		}
	}
	return g, true
}

// names reports whether the wildcard part spells out a package directory.
func (g glob) names(dir string) bool {
	return strings.Contains(g.rest, dir)
}

func (p *Parsed) isPackageDir(g glob, name string) bool {
	name = p.fold(name)
	for _, d := range packageDirs {
		if name == d && !g.names(d) {
			return true
		}
	}
	return false
}

// throughPackageDir reports whether file is reached from g.base only
// through a package directory the pattern does not name.
func (p *Parsed) throughPackageDir(g glob, file string) bool {
	if g.rest == "" {
		return false
	}
	segs := strings.Split(paths.Rel(g.base, file), "/")
	for _, s := range segs[:len(segs)-1] {
		if p.isPackageDir(g, s) {
			return true
		}
	}
	return false
}

func (p *Parsed) supportedExt(file string) bool {
	if paths.HasExt(file, paths.ExtTS, paths.ExtTSX) {
		return true
	}
	return p.Options.AllowJs && paths.HasExt(file, paths.ExtJS, paths.ExtJSX)
}

func (p *Parsed) fold(s string) string {
	if p.caseSensitive {
		return s
	}
	return strings.ToLower(s)
}

func (p *Parsed) excluded(file string) bool {
	f := p.fold(file)
	for _, g := range p.spec.exclude {
		ex := p.fold(g.pattern())
		if ok, _ := doublestar.Match(ex, f); ok {
			return true
		}
		if ok, _ := doublestar.Match(strings.TrimSuffix(ex, "/")+"/**", f); ok {
			return true
		}
	}
	return false
}

func (p *Parsed) included(file string) bool {
	f := p.fold(file)
	for _, pat := range p.spec.include {
		g, ok := pat.expandInclude()
		if !ok {
			continue
		}
		if m, _ := doublestar.Match(p.fold(g.pattern()), f); m && !p.throughPackageDir(g, file) {
			return true
		}
	}
	return false
}

// MatchesSpec reports whether file would be selected by the config's
// files, include and exclude settings.
func (p *Parsed) MatchesSpec(file string) bool {
	file = paths.Normalize(file)
	for _, f := range p.spec.files {
		if paths.Equal(f, file, p.caseSensitive) {
			return true
		}
	}
	if !p.supportedExt(file) {
		return false
	}
	return p.included(file) && !p.excluded(file)
}

// HasExplicitFiles reports whether the config lists files.
func (p *Parsed) HasExplicitFiles() bool { return p.spec.hasFiles }

func (l *Loader) matchFiles(p *Parsed) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(f string) {
		c := l.fs.Canonical(f)
		if !seen[c] {
			seen[c] = true
			out = append(out, f)
		}
	}

	for _, f := range p.spec.files {
		if !l.fs.FileExists(f) {
			p.Errors = append(p.Errors, fileNotFound(p, f))
			continue
		}
		add(f)
	}

	var matched []string
	for _, pat := range p.spec.include {
		g, ok := pat.expandInclude()
		if !ok {
			l.logger.Warn("Skipping include pattern",
				"config", p.ConfigPath,
				"pattern", pat.pattern(),
				"code", string(errors.ConfigResolution),
				"reason", "pattern ends in **",
			)
			continue
		}
		if g.rest == "" {
			if l.fs.FileExists(g.base) && !p.excluded(g.base) {
				matched = append(matched, g.base)
			}
			continue
		}
		if !l.fs.DirExists(g.base) {
			l.logger.Debug("Include base directory does not exist",
				"config", p.ConfigPath,
				"pattern", g.pattern(),
				"code", string(errors.ConfigResolution),
			)
			continue
		}
		foldedPattern := p.fold(g.pattern())
		l.visit(p, g, g.base, func(file string) {
			if !p.supportedExt(file) {
				return
			}
			if ok, _ := doublestar.Match(foldedPattern, p.fold(file)); ok {
				matched = append(matched, file)
			}
		})
	}

	for _, f := range preferSources(matched, l.fs.Canonical) {
		add(f)
	}
	return out
}

// visit walks dir, files before subdirectories, pruning excluded
// directories and package directories g does not name.
func (l *Loader) visit(p *Parsed, g glob, dir string, fn func(string)) {
	entries, err := l.fs.ReadDir(dir)
	if err != nil {
		return
	}
	var dirs []string
	for _, e := range entries {
		child := paths.Join(dir, e.Name)
		if p.excluded(child) {
			continue
		}
		if e.IsDir {
			if p.isPackageDir(g, e.Name) {
				continue
			}
			dirs = append(dirs, child)
			continue
		}
		fn(child)
	}
	for _, d := range dirs {
		l.visit(p, g, d, fn)
	}
}

func extRank(file string) int {
	switch {
	case paths.IsDeclaration(file):
		return 1
	case paths.HasExt(file, paths.ExtTS, paths.ExtTSX):
		return 0
	default:
		return 2
	}
}

// preferSources drops a wildcard match when a higher priority extension
// with the same base name was also matched: .ts/.tsx over .d.ts over .js.
func preferSources(files []string, canon func(string) string) []string {
	best := make(map[string]int)
	for _, f := range files {
		key := canon(paths.TrimExt(f))
		if r, ok := best[key]; !ok || extRank(f) < r {
			best[key] = extRank(f)
		}
	}
	var out []string
	for _, f := range files {
		if extRank(f) == best[canon(paths.TrimExt(f))] {
			out = append(out, f)
		}
	}
	return out
}

func wildcardDirectories(include []glob, caseSensitive bool) []WildcardDirectory {
	byPath := make(map[string]*WildcardDirectory)
	var order []string
	for _, pat := range include {
		g, ok := pat.expandInclude()
		if !ok || g.rest == "" {
			continue
		}
		base, rest := g.base, g.rest
		recursive := strings.Contains(rest, "**") || strings.Contains(rest, "/")
		key := paths.Canonical(base, caseSensitive)
		if w, ok := byPath[key]; ok {
			w.Recursive = w.Recursive || recursive
			continue
		}
		byPath[key] = &WildcardDirectory{Path: base, Recursive: recursive}
		order = append(order, key)
	}

	sort.Strings(order)
	var out []WildcardDirectory
	for _, key := range order {
		w := byPath[key]
		covered := false
		for _, other := range out {
			if other.Recursive && paths.Contains(other.Path, w.Path, caseSensitive) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, *w)
		}
	}
	return out
}

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"projd/internal/paths"
	"projd/internal/slogutil"
	"projd/internal/vfs"
)

// Lite is the bundled analysis engine. It understands enough TypeScript
// to resolve modules, bind identifiers and emit declarations; it does not
// type check.
type Lite struct {
	fs     *vfs.FS
	logger *slog.Logger
}

// NewLite creates an engine reading from fs.
func NewLite(fs *vfs.FS, logger *slog.Logger) *Lite {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Lite{fs: fs, logger: logger}
}

type moduleTarget struct {
	file  *sourceFile
	scope *scope
}

type program struct {
	fs      *vfs.FS
	logger  *slog.Logger
	opts    ProgramOptions
	roots   []string
	files   []*sourceFile
	byCanon map[string]*sourceFile
	libFile string

	// modules maps file canon + "\x00" + specifier to the resolved target.
	modules     map[string]moduleTarget
	unbuilt     map[string]Diagnostic
	optionDiags []Diagnostic

	globals    map[string][]*decl
	namespaces map[string][]*scope
	ambientMod map[string][]*scope
}

// LoadProgram reads the root files and everything they reach.
func (l *Lite) LoadProgram(ctx context.Context, opts ProgramOptions) (Program, error) {
	p := &program{
		fs:         l.fs,
		logger:     l.logger,
		opts:       opts,
		byCanon:    make(map[string]*sourceFile),
		modules:    make(map[string]moduleTarget),
		unbuilt:    make(map[string]Diagnostic),
		globals:    make(map[string][]*decl),
		namespaces: make(map[string][]*scope),
		ambientMod: make(map[string][]*scope),
	}

	for _, root := range opts.RootFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !l.fs.FileExists(root) {
			p.optionDiags = append(p.optionDiags, NewDiagnostic(CodeFileNotFound, "File '%s' not found.", root))
			continue
		}
		if f := p.addFile(root); f != nil {
			p.roots = append(p.roots, f.path)
		}
	}
	p.optionDiags = append(p.optionDiags, p.referenceDiagnostics()...)

	if len(p.roots) > 0 {
		p.addReferenceBundles()
		p.addAutomaticTypes()
		if !opts.Options.NoLib && opts.LibFile != "" && l.fs.FileExists(opts.LibFile) {
			if f := p.addFile(opts.LibFile); f != nil {
				p.libFile = f.path
			}
		}
	}
	p.bind()

	l.logger.Debug("Program loaded",
		"roots", len(p.roots),
		"files", len(p.files),
	)
	return p, nil
}

func (p *program) canon(path string) string { return p.fs.Canonical(path) }

// addFile parses path and, transitively, everything it references.
func (p *program) addFile(path string) *sourceFile {
	path = paths.Normalize(path)
	if f, ok := p.byCanon[p.canon(path)]; ok {
		return f
	}
	data, err := p.fs.ReadFile(path)
	if err != nil {
		p.logger.Debug("Skipping unreadable file", "file", path, "error", err)
		return nil
	}
	f := parseFile(path, string(data))
	p.byCanon[p.canon(path)] = f
	p.files = append(p.files, f)

	for _, d := range f.directives {
		switch d.attr {
		case "path":
			target := paths.Resolve(paths.Dir(path), d.value)
			if p.fs.FileExists(target) {
				p.addFile(target)
			}
		case "types":
			if target, ok := p.resolveTypes(paths.Dir(path), d.value); ok {
				p.addFile(target)
			}
		}
	}
	for _, spec := range f.specs {
		key := p.canon(path) + "\x00" + spec.spec
		if _, done := p.modules[key]; done {
			continue
		}
		target, ok := p.resolveModule(f, spec)
		if !ok {
			continue
		}
		if dep := p.addFile(target); dep != nil {
			p.modules[key] = moduleTarget{file: dep, scope: dep.root}
		}
	}
	return f
}

var sourceExtensions = []string{paths.ExtTS, paths.ExtTSX, paths.ExtDTS}

// resolveModule maps an import specifier to a file on disk. A source file
// owned by a referenced project is replaced by its declaration output.
func (p *program) resolveModule(from *sourceFile, spec moduleSpec) (string, bool) {
	dir := paths.Dir(from.path)
	if strings.HasPrefix(spec.spec, "./") || strings.HasPrefix(spec.spec, "../") || strings.HasPrefix(spec.spec, "/") || spec.spec == "." || spec.spec == ".." {
		base := paths.Resolve(dir, spec.spec)
		candidate, ok := p.tryFile(base)
		if !ok {
			return "", false
		}
		return p.redirect(from, spec, candidate)
	}
	for _, d := range paths.Ancestors(dir) {
		if paths.Base(d) == "node_modules" {
			continue
		}
		nm := paths.Join(d, "node_modules")
		if !p.fs.DirExists(nm) {
			continue
		}
		if target, ok := p.tryPackage(paths.Join(nm, spec.spec)); ok {
			return target, true
		}
		if target, ok := p.tryPackage(paths.Join(nm, "@types", typesName(spec.spec))); ok {
			return target, true
		}
	}
	return "", false
}

// typesName maps a scoped package to its @types name: @a/b becomes a__b.
func typesName(pkg string) string {
	if strings.HasPrefix(pkg, "@") {
		return strings.Replace(strings.TrimPrefix(pkg, "@"), "/", "__", 1)
	}
	return pkg
}

// tryFile probes base with each source extension, a .js specifier mapped
// back to its source, and the directory index files.
func (p *program) tryFile(base string) (string, bool) {
	if paths.HasExt(base, paths.ExtJS, paths.ExtJSX) {
		trimmed := paths.TrimExt(base)
		for _, ext := range []string{paths.ExtTS, paths.ExtTSX, paths.ExtDTS} {
			if p.fs.FileExists(trimmed + ext) {
				return trimmed + ext, true
			}
		}
	}
	if paths.HasExt(base, sourceExtensions...) && p.fs.FileExists(base) {
		return base, true
	}
	for _, ext := range sourceExtensions {
		if p.fs.FileExists(base + ext) {
			return base + ext, true
		}
	}
	if p.opts.Options.AllowJs {
		for _, ext := range []string{paths.ExtJS, paths.ExtJSX} {
			if p.fs.FileExists(base + ext) {
				return base + ext, true
			}
		}
	}
	for _, ext := range sourceExtensions {
		index := paths.Join(base, "index"+ext)
		if p.fs.FileExists(index) {
			return index, true
		}
	}
	return "", false
}

// tryPackage resolves a node_modules package directory or file.
func (p *program) tryPackage(base string) (string, bool) {
	if p.fs.DirExists(base) {
		if data, err := p.fs.ReadFile(paths.Join(base, "package.json")); err == nil {
			for _, field := range []string{"types", "typings"} {
				if v := gjson.GetBytes(data, field); v.Type == gjson.String && v.Str != "" {
					if target, ok := p.tryFile(paths.Resolve(base, v.Str)); ok {
						return target, true
					}
				}
			}
		}
	}
	for _, ext := range []string{paths.ExtTS, paths.ExtTSX, paths.ExtDTS} {
		if p.fs.FileExists(base + ext) {
			return base + ext, true
		}
	}
	index := paths.Join(base, "index.d.ts")
	if p.fs.FileExists(index) {
		return index, true
	}
	return "", false
}

// redirect swaps a source file that belongs to a referenced project for
// that project's declaration output. The output path keeps the spelling
// the importer used.
func (p *program) redirect(from *sourceFile, spec moduleSpec, candidate string) (string, bool) {
	real := p.fs.RealPath(candidate)
	for _, ref := range p.opts.References {
		if ref.Missing || ref.Options.OutFile != "" || !p.ownsFile(ref, real) {
			continue
		}
		out := OutputPaths(candidate, ref.Options, ref.ConfigDir).Declaration
		if out == "" {
			return candidate, true
		}
		if !p.fs.FileExists(out) {
			p.unbuilt[p.canon(from.path)+"\x00"+spec.spec] = NewFileDiagnostic(from.path, from.span(spec.start, spec.end),
				CodeOutputNotBuilt, "Output file '%s' has not been built from source file '%s'.", out, real)
			return "", false
		}
		return out, true
	}
	return candidate, true
}

func (p *program) ownsFile(ref Reference, file string) bool {
	c := p.canon(file)
	for _, r := range ref.RootFiles {
		if p.canon(r) == c {
			return true
		}
	}
	return false
}

// addReferenceBundles adds the declaration bundle of every outFile
// reference.
func (p *program) addReferenceBundles() {
	for _, ref := range p.opts.References {
		if ref.Missing || ref.Options.OutFile == "" {
			continue
		}
		out := BundleOutputs(ref.Options).Declaration
		if out == "" {
			continue
		}
		if !p.fs.FileExists(out) {
			p.optionDiags = append(p.optionDiags, NewDiagnostic(CodeOutputNotBuilt,
				"Output file '%s' from project '%s' has not been built from source file '%s'.", out, ref.ConfigPath, firstOr(ref.RootFiles, ref.ConfigPath)))
			continue
		}
		p.addFile(out)
	}
}

func firstOr(list []string, fallback string) string {
	if len(list) > 0 {
		return list[0]
	}
	return fallback
}

// typeRoots returns the directories searched for automatic type packages.
func (p *program) typeRoots() []string {
	if len(p.opts.Options.TypeRoots) > 0 {
		return p.opts.Options.TypeRoots
	}
	if p.opts.ConfigDir == "" {
		return nil
	}
	return []string{paths.Join(p.opts.ConfigDir, "node_modules", "@types")}
}

// addAutomaticTypes includes every package under the type roots, or only
// the ones named by the types option.
func (p *program) addAutomaticTypes() {
	if p.opts.Options.HasTypes {
		for _, name := range p.opts.Options.Types {
			for _, root := range p.typeRoots() {
				if target, ok := p.tryPackage(paths.Join(root, name)); ok {
					p.addFile(target)
					break
				}
			}
		}
		return
	}
	for _, root := range p.typeRoots() {
		entries, err := p.fs.ReadDir(root)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir {
				continue
			}
			if target, ok := p.tryPackage(paths.Join(root, e.Name)); ok {
				p.addFile(target)
			}
		}
	}
}

func (p *program) resolveTypes(dir, name string) (string, bool) {
	for _, root := range p.typeRoots() {
		if target, ok := p.tryPackage(paths.Join(root, name)); ok {
			return target, true
		}
	}
	for _, d := range paths.Ancestors(dir) {
		if target, ok := p.tryPackage(paths.Join(d, "node_modules", "@types", name)); ok {
			return target, true
		}
	}
	return "", false
}

// referenceDiagnostics reports missing and non-composite references.
// Projects without root files are containers and only aggregate their
// references.
func (p *program) referenceDiagnostics() []Diagnostic {
	var out []Diagnostic
	for _, ref := range p.opts.References {
		if ref.Missing {
			out = append(out, NewDiagnostic(CodeFileNotFound, "File '%s' not found.", ref.ConfigPath))
			continue
		}
		if len(p.opts.RootFiles) > 0 && !ref.Options.Composite {
			out = append(out, NewDiagnostic(CodeReferenceNotComposite,
				"Referenced project '%s' must have setting \"composite\": true.", ref.ConfigPath))
		}
	}
	return out
}

func (p *program) Files() []string {
	out := make([]string, 0, len(p.files))
	for _, f := range p.files {
		out = append(out, f.path)
	}
	return out
}

func (p *program) RootFiles() []string { return append([]string(nil), p.roots...) }

func (p *program) ContainsFile(path string) bool {
	_, ok := p.byCanon[p.canon(path)]
	return ok
}

func (p *program) file(path string) (*sourceFile, error) {
	f, ok := p.byCanon[p.canon(path)]
	if !ok {
		return nil, fmt.Errorf("engine: file %s is not part of the program", path)
	}
	return f, nil
}

func (p *program) SyntacticDiagnostics(file string) []Diagnostic {
	f, err := p.file(file)
	if err != nil {
		return nil
	}
	out := append([]Diagnostic(nil), f.syntax...)
	if len(out) == 0 {
		out = append(out, treeSitterDiagnostics(f)...)
	}
	return out
}

func (p *program) OptionsDiagnostics() []Diagnostic {
	return append([]Diagnostic(nil), p.optionDiags...)
}

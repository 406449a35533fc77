// Package projconfig loads project configuration files (tsconfig.json and
// jsconfig.json) and resolves their effective root file lists.
package projconfig

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/jsonc"

	"projd/internal/engine"
	"projd/internal/paths"
	"projd/internal/slogutil"
	"projd/internal/vfs"
)

// Config file names, in search order.
const (
	TSConfigName = "tsconfig.json"
	JSConfigName = "jsconfig.json"
)

// ConfigNames lists the recognised config file names in search order.
var ConfigNames = []string{TSConfigName, JSConfigName}

// IsConfigFile reports whether p names a config file.
func IsConfigFile(p string) bool {
	base := strings.ToLower(paths.Base(p))
	for _, n := range ConfigNames {
		if base == n {
			return true
		}
	}
	return false
}

// Reference is a project reference declared by a config.
type Reference struct {
	Path     string `json:"path"`
	Prepend  bool   `json:"prepend,omitempty"`
	Circular bool   `json:"circular,omitempty"`
}

// WildcardDirectory is a directory whose contents can change the root file
// list.
type WildcardDirectory struct {
	Path      string
	Recursive bool
}

// Parsed is the result of loading one config file.
type Parsed struct {
	ConfigPath string
	ConfigDir  string
	Exists     bool

	RootFiles           []string
	Options             engine.CompilerOptions
	References          []Reference
	Extends             []string
	WildcardDirectories []WildcardDirectory

	// Errors are non-fatal: the config is still usable.
	Errors []engine.Diagnostic

	spec          fileSpec
	caseSensitive bool
}

type fileSpec struct {
	files    []string
	include  []glob
	exclude  []glob
	hasFiles bool
}

// Loader reads configs from a host file system.
type Loader struct {
	fs     *vfs.FS
	logger *slog.Logger
}

// NewLoader creates a loader over fs.
func NewLoader(fs *vfs.FS, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Loader{fs: fs, logger: logger}
}

// FS returns the host file system.
func (l *Loader) FS() *vfs.FS { return l.fs }

// Load reads and resolves configPath. It never fails: problems are
// reported in Parsed.Errors.
func (l *Loader) Load(configPath string) *Parsed {
	configPath = paths.Normalize(configPath)
	p := &Parsed{
		ConfigPath:    configPath,
		ConfigDir:     paths.Dir(configPath),
		caseSensitive: l.fs.CaseSensitive(),
	}
	if strings.EqualFold(paths.Base(configPath), JSConfigName) {
		p.Options.AllowJs = true
	}

	raw, err := l.fs.ReadFile(configPath)
	if err != nil {
		p.Errors = append(p.Errors, engine.NewDiagnostic(engine.CodeFileNotFound, "File '%s' not found.", configPath))
		return p
	}
	p.Exists = true

	var layer layerSpec
	l.readLayer(p, configPath, raw, &layer, map[string]bool{l.fs.Canonical(configPath): true})
	p.spec = layer.resolve(p)
	p.RootFiles = l.matchFiles(p)
	p.WildcardDirectories = wildcardDirectories(p.spec.include, p.caseSensitive)

	l.logger.Debug("Loaded config",
		"config", configPath,
		"rootFiles", len(p.RootFiles),
		"references", len(p.References),
		"errors", len(p.Errors),
	)
	return p
}

// layerSpec accumulates files/include/exclude across an extends chain.
// Each field keeps the directory its relative entries resolve against.
type layerSpec struct {
	files, include, exclude          []string
	filesDir, includeDir, excludeDir string
	hasFiles, hasInclude, hasExclude bool
}

func (s *layerSpec) resolve(p *Parsed) fileSpec {
	var fs fileSpec
	fs.hasFiles = s.hasFiles
	for _, f := range s.files {
		fs.files = append(fs.files, paths.Resolve(s.filesDir, f))
	}

	include := s.include
	includeDir := s.includeDir
	if !s.hasFiles && !s.hasInclude {
		include = []string{"**/*"}
		includeDir = p.ConfigDir
	}
	for _, pat := range include {
		fs.include = append(fs.include, newGlob(includeDir, pat))
	}

	if s.hasExclude {
		for _, pat := range s.exclude {
			fs.exclude = append(fs.exclude, newGlob(s.excludeDir, pat))
		}
	} else {
		for _, d := range packageDirs {
			fs.exclude = append(fs.exclude, glob{base: paths.Join(p.ConfigDir, d)})
		}
		if p.Options.OutDir != "" {
			fs.exclude = append(fs.exclude, glob{base: paths.Normalize(p.Options.OutDir)})
		}
		if p.Options.DeclarationDir != "" {
			fs.exclude = append(fs.exclude, glob{base: paths.Normalize(p.Options.DeclarationDir)})
		}
	}
	return fs
}

func (l *Loader) readLayer(p *Parsed, file string, raw []byte, spec *layerSpec, visited map[string]bool) {
	text := string(raw)
	lines := engine.NewLineMap(text)
	stripped := jsonc.ToJSON(raw)

	var probe any
	if err := json.Unmarshal(stripped, &probe); err != nil {
		offset := 0
		var syn *json.SyntaxError
		if stderrors.As(err, &syn) {
			offset = int(syn.Offset)
		}
		p.Errors = append(p.Errors, engine.NewFileDiagnostic(file, lines.Span(offset, offset), engine.CodeJSONParse, "Unexpected token."))
		return
	}

	root := gjson.ParseBytes(stripped)
	// Parse drops leading whitespace from Raw without recording where the
	// value starts.
	root.Index = bytes.IndexAny(stripped, "{[")
	if !root.IsObject() {
		p.Errors = append(p.Errors, engine.NewFileDiagnostic(file, lines.Span(0, 0), engine.CodeJSONParse, "Unexpected token."))
		return
	}
	dir := paths.Dir(file)

	if ext := root.Get("extends"); ext.Exists() {
		l.readExtends(p, file, lines, ext, spec, visited)
	}

	if opts := root.Get("compilerOptions"); opts.Exists() {
		parseOptions(p, file, lines, dir, opts)
	}

	if files := root.Get("files"); files.Exists() {
		spec.files, spec.filesDir, spec.hasFiles = stringArray(files), dir, true
	}
	if include := root.Get("include"); include.Exists() {
		spec.include, spec.includeDir, spec.hasInclude = stringArray(include), dir, true
	}
	if exclude := root.Get("exclude"); exclude.Exists() {
		spec.exclude, spec.excludeDir, spec.hasExclude = stringArray(exclude), dir, true
	}

	// References belong to the config that declares them and are not
	// inherited through extends.
	if file == p.ConfigPath {
		p.References = nil
		root.Get("references").ForEach(func(_, ref gjson.Result) bool {
			path := ref.Get("path").String()
			if path == "" {
				return true
			}
			resolved := paths.Resolve(dir, path)
			if !paths.HasExt(resolved, paths.ExtJSON) {
				resolved = paths.Join(resolved, TSConfigName)
			}
			p.References = append(p.References, Reference{
				Path:     resolved,
				Prepend:  ref.Get("prepend").Bool(),
				Circular: ref.Get("circular").Bool(),
			})
			return true
		})
	}
}

func (l *Loader) readExtends(p *Parsed, file string, lines *engine.LineMap, ext gjson.Result, spec *layerSpec, visited map[string]bool) {
	span := lines.Span(ext.Index, ext.Index+len(ext.Raw))
	if ext.Type != gjson.String {
		p.Errors = append(p.Errors, engine.NewFileDiagnostic(file, span, engine.CodeOptionType, "Compiler option 'extends' requires a value of type string."))
		return
	}
	base := paths.Resolve(paths.Dir(file), ext.String())
	if !paths.HasExt(base, paths.ExtJSON) {
		base += paths.ExtJSON
	}
	canon := l.fs.Canonical(base)
	if visited[canon] {
		p.Errors = append(p.Errors, engine.NewFileDiagnostic(file, span, engine.CodeReferenceCycle, "Circularity detected while resolving configuration: %s", base))
		return
	}
	raw, err := l.fs.ReadFile(base)
	if err != nil {
		p.Errors = append(p.Errors, engine.NewFileDiagnostic(file, span, engine.CodeCannotReadExtended, "Cannot read file '%s'.", base))
		return
	}
	visited[canon] = true
	p.Extends = append(p.Extends, base)
	l.readLayer(p, base, raw, spec, visited)
}

func stringArray(r gjson.Result) []string {
	out := []string{}
	r.ForEach(func(_, v gjson.Result) bool {
		if v.Type == gjson.String {
			out = append(out, v.String())
		}
		return true
	})
	return out
}

// ignoredOptions are accepted without effect.
var ignoredOptions = map[string]bool{
	"target": true, "module": true, "moduleResolution": true, "strict": true,
	"sourceMap": true, "lib": true, "jsx": true, "esModuleInterop": true,
	"skipLibCheck": true, "noImplicitAny": true, "baseUrl": true, "paths": true,
	"incremental": true, "tsBuildInfoFile": true, "forceConsistentCasingInFileNames": true,
	"resolveJsonModule": true, "isolatedModules": true, "noUnusedLocals": true,
	"noUnusedParameters": true, "experimentalDecorators": true, "removeComments": true,
	"inlineSourceMap": true, "checkJs": true, "allowSyntheticDefaultImports": true,
}

func parseOptions(p *Parsed, file string, lines *engine.LineMap, dir string, opts gjson.Result) {
	o := &p.Options
	opts.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		span := lines.Span(key.Index, key.Index+len(key.Raw))
		typeErr := func(want string) {
			p.Errors = append(p.Errors, engine.NewFileDiagnostic(file, span, engine.CodeOptionType,
				"Compiler option '%s' requires a value of type %s.", name, want))
		}
		str := func(dst *string, isPath bool) {
			if value.Type != gjson.String {
				typeErr("string")
				return
			}
			if isPath {
				*dst = paths.Resolve(dir, value.String())
			} else {
				*dst = value.String()
			}
		}
		boolean := func(dst *bool) {
			if !value.IsBool() {
				typeErr("boolean")
				return
			}
			*dst = value.Bool()
		}
		list := func(dst *[]string, isPath bool) bool {
			if !value.IsArray() {
				typeErr("Array")
				return false
			}
			*dst = nil
			for _, s := range stringArray(value) {
				if isPath {
					s = paths.Resolve(dir, s)
				}
				*dst = append(*dst, s)
			}
			return true
		}

		switch name {
		case "outDir":
			str(&o.OutDir, true)
		case "outFile", "out":
			str(&o.OutFile, true)
		case "rootDir":
			str(&o.RootDir, true)
		case "declarationDir":
			str(&o.DeclarationDir, true)
		case "composite":
			boolean(&o.Composite)
		case "declaration":
			boolean(&o.Declaration)
		case "declarationMap":
			boolean(&o.DeclarationMap)
		case "noLib":
			boolean(&o.NoLib)
		case "allowJs":
			boolean(&o.AllowJs)
		case "noEmit":
			boolean(&o.NoEmit)
		case "types":
			if list(&o.Types, false) {
				o.HasTypes = true
			}
		case "typeRoots":
			list(&o.TypeRoots, true)
		default:
			if !ignoredOptions[name] {
				p.Errors = append(p.Errors, engine.NewFileDiagnostic(file, span, engine.CodeUnknownOption,
					"Unknown compiler option '%s'.", name))
			}
		}
		return true
	})
}

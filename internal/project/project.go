// Package project models the projects kept by the project service:
// configured projects backed by a config file, inferred projects holding
// loose open files, and external projects declared by a host tool.
package project

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"projd/internal/engine"
	"projd/internal/paths"
	"projd/internal/projconfig"
)

// Kind discriminates the project variants.
type Kind int

const (
	KindConfigured Kind = iota
	KindInferred
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindConfigured:
		return "configured"
	case KindInferred:
		return "inferred"
	case KindExternal:
		return "external"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ReloadLevel is how much of a configured project must be recomputed
// before its program is used again.
type ReloadLevel int

const (
	// ReloadNone means the program is current.
	ReloadNone ReloadLevel = iota
	// ReloadPartial keeps the root file list and reloads file contents.
	ReloadPartial
	// ReloadFull re-reads the config and recomputes membership.
	ReloadFull
)

func (l ReloadLevel) String() string {
	switch l {
	case ReloadNone:
		return "none"
	case ReloadPartial:
		return "partial"
	case ReloadFull:
		return "full"
	default:
		return fmt.Sprintf("reload(%d)", int(l))
	}
}

// Configured is the payload of a configured project.
type Configured struct {
	// ConfigPath keeps the spelling the project was first registered with.
	ConfigPath    string
	Parsed        *projconfig.Parsed
	PendingReload ReloadLevel
	// Deferred marks a project registered lazily by an external project.
	// Its membership is resolved on the next open of a file under it.
	Deferred bool

	References        []engine.Reference
	ReferencedConfigs []string

	holders map[string]bool
}

// Hold records that the named external project keeps this project alive.
func (c *Configured) Hold(external string) {
	if c.holders == nil {
		c.holders = make(map[string]bool)
	}
	c.holders[external] = true
}

// Release drops the hold of the named external project.
func (c *Configured) Release(external string) {
	delete(c.holders, external)
}

// HeldExternally reports whether any external project holds this project.
func (c *Configured) HeldExternally() bool { return len(c.holders) > 0 }

// Holders lists the external projects holding this project, sorted.
func (c *Configured) Holders() []string {
	out := make([]string, 0, len(c.holders))
	for h := range c.holders {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// External is the payload of an external project.
type External struct {
	// ConfigRoots are the config files named among the declared roots.
	ConfigRoots []string
}

// Project is one analysed set of files. Exactly one of the variant
// payloads is set, matching Kind.
type Project struct {
	ID   uuid.UUID
	Name string

	kind       Kind
	configured *Configured
	external   *External

	key           string
	caseSensitive bool
	configDir     string
	libFile       string
	rootFiles     []string
	options       engine.CompilerOptions

	program engine.Program
	dirty   bool
}

// Settings are the host values every project shares.
type Settings struct {
	CaseSensitive bool
	LibFile       string
}

func newProject(kind Kind, name string, s Settings) *Project {
	name = paths.Normalize(name)
	return &Project{
		ID:            uuid.New(),
		Name:          name,
		kind:          kind,
		key:           paths.Canonical(name, s.CaseSensitive),
		caseSensitive: s.CaseSensitive,
		libFile:       s.LibFile,
		dirty:         true,
	}
}

// NewConfigured creates a configured project for configPath. It starts
// with a full reload pending.
func NewConfigured(configPath string, s Settings) *Project {
	p := newProject(KindConfigured, configPath, s)
	p.configDir = paths.Dir(p.Name)
	p.configured = &Configured{ConfigPath: p.Name, PendingReload: ReloadFull}
	return p
}

// NewInferred creates an inferred project named name holding root.
func NewInferred(name, root string, s Settings) *Project {
	p := newProject(KindInferred, name, s)
	p.AddRoot(root)
	return p
}

// NewExternal creates a host-declared project.
func NewExternal(name string, roots []string, opts engine.CompilerOptions, s Settings) *Project {
	p := newProject(KindExternal, name, s)
	p.configDir = paths.Dir(p.Name)
	p.external = &External{}
	p.SetRootFiles(roots)
	p.options = opts
	return p
}

// Kind returns the project variant.
func (p *Project) Kind() Kind { return p.kind }

// Key is the canonical form of Name used for lookups.
func (p *Project) Key() string { return p.key }

// Configured returns the configured payload, or nil for other kinds.
func (p *Project) Configured() *Configured { return p.configured }

// External returns the external payload, or nil for other kinds.
func (p *Project) External() *External { return p.external }

// ConfigDir is the directory relative options and automatic types
// resolve against. Inferred projects use the directory of their first
// root.
func (p *Project) ConfigDir() string {
	if p.kind == KindInferred && len(p.rootFiles) > 0 {
		return paths.Dir(p.rootFiles[0])
	}
	return p.configDir
}

// IsOrphan reports whether an inferred project has lost all of its roots.
func (p *Project) IsOrphan() bool {
	return p.kind == KindInferred && len(p.rootFiles) == 0
}

// RootFiles returns a copy of the root file list.
func (p *Project) RootFiles() []string {
	return append([]string(nil), p.rootFiles...)
}

// SetRootFiles replaces the root file list and marks the program dirty.
func (p *Project) SetRootFiles(files []string) {
	p.rootFiles = p.rootFiles[:0]
	for _, f := range files {
		p.rootFiles = append(p.rootFiles, paths.Normalize(f))
	}
	p.dirty = true
}

// AddRoot appends file to the root list unless it is already a root.
func (p *Project) AddRoot(file string) {
	if p.IsRoot(file) {
		return
	}
	p.rootFiles = append(p.rootFiles, paths.Normalize(file))
	p.dirty = true
}

// RemoveRoot drops file from the root list. It reports whether file was a
// root.
func (p *Project) RemoveRoot(file string) bool {
	for i, r := range p.rootFiles {
		if paths.Equal(r, file, p.caseSensitive) {
			p.rootFiles = append(p.rootFiles[:i], p.rootFiles[i+1:]...)
			p.dirty = true
			return true
		}
	}
	return false
}

// IsRoot reports whether file is a root of the project.
func (p *Project) IsRoot(file string) bool {
	for _, r := range p.rootFiles {
		if paths.Equal(r, file, p.caseSensitive) {
			return true
		}
	}
	return false
}

// Options returns the compiler options.
func (p *Project) Options() engine.CompilerOptions { return p.options }

// SetOptions replaces the compiler options and marks the program dirty.
func (p *Project) SetOptions(opts engine.CompilerOptions) {
	p.options = opts
	p.dirty = true
}

// ApplyConfig installs a freshly loaded config: root files, options and
// references. The pending reload is cleared.
func (p *Project) ApplyConfig(parsed *projconfig.Parsed, refs []engine.Reference, referenced []string) {
	c := p.configured
	c.Parsed = parsed
	c.References = refs
	c.ReferencedConfigs = referenced
	c.PendingReload = ReloadNone
	c.Deferred = false
	p.configDir = parsed.ConfigDir
	p.SetRootFiles(parsed.RootFiles)
	p.options = parsed.Options
}

// MarkReload raises the pending reload level of a configured project.
// Lowering it is a no-op, so repeated marks are idempotent. Other kinds
// only mark their program dirty.
func (p *Project) MarkReload(level ReloadLevel) {
	if level == ReloadNone {
		return
	}
	p.dirty = true
	if p.configured != nil && level > p.configured.PendingReload {
		p.configured.PendingReload = level
	}
}

// PendingReload returns the pending reload level; only configured
// projects can have one.
func (p *Project) PendingReload() ReloadLevel {
	if p.configured == nil {
		return ReloadNone
	}
	return p.configured.PendingReload
}

// MarkDirty forces the program to be reloaded on the next update.
func (p *Project) MarkDirty() { p.dirty = true }

// Dirty reports whether the program must be reloaded.
func (p *Project) Dirty() bool { return p.dirty || p.program == nil }

// Loaded reports whether the project has a program.
func (p *Project) Loaded() bool { return p.program != nil }

// Program returns the last loaded program, or nil.
func (p *Project) Program() engine.Program { return p.program }

// ProgramOptions describes the program this project loads.
func (p *Project) ProgramOptions() engine.ProgramOptions {
	opts := engine.ProgramOptions{
		RootFiles: p.RootFiles(),
		Options:   p.options,
		ConfigDir: p.ConfigDir(),
		LibFile:   p.libFile,
	}
	if p.configured != nil {
		opts.References = p.configured.References
	}
	return opts
}

// UpdateGraph reloads the program when it is dirty. A configured project
// with a full reload pending must have its config applied first.
func (p *Project) UpdateGraph(ctx context.Context, eng engine.Engine) (bool, error) {
	if !p.Dirty() {
		return false, nil
	}
	if p.configured != nil && p.configured.PendingReload == ReloadFull {
		return false, fmt.Errorf("project %s: config not loaded", p.Name)
	}
	prog, err := eng.LoadProgram(ctx, p.ProgramOptions())
	if err != nil {
		return false, fmt.Errorf("project %s: %w", p.Name, err)
	}
	p.program = prog
	p.dirty = false
	if p.configured != nil {
		p.configured.PendingReload = ReloadNone
	}
	return true, nil
}

// Unload drops the program, as for a lazily registered configured
// project.
func (p *Project) Unload() {
	p.program = nil
	p.dirty = true
}

// ContainsFile reports whether file is a root or part of the program. A
// deferred configured project contains nothing until it is resolved again.
func (p *Project) ContainsFile(file string) bool {
	if p.configured != nil && p.configured.Deferred {
		return false
	}
	if p.IsRoot(file) {
		return true
	}
	return p.program != nil && p.program.ContainsFile(file)
}

// ActualFiles lists every file of the program, followed by the config
// file of a configured project. A project without a program has none.
func (p *Project) ActualFiles() []string {
	if p.program == nil {
		return nil
	}
	files := p.program.Files()
	if p.configured != nil {
		files = append(files, p.configured.ConfigPath)
	}
	return files
}

// Ref is the short form of a project returned to callers.
type Ref struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// Ref returns the short form of p.
func (p *Project) Ref() Ref { return Ref{Name: p.Name, Kind: p.kind.String()} }

package service

import (
	"context"
	"sort"

	"projd/internal/declmap"
	"projd/internal/engine"
	"projd/internal/errors"
	"projd/internal/paths"
	"projd/internal/project"
)

// GetProjectsForFile lists every project containing path: configured
// projects in registration order, then external, then inferred.
func (s *Service) GetProjectsForFile(path string) []project.Ref {
	out := []project.Ref{}
	for _, p := range s.owners(paths.Normalize(path)) {
		out = append(out, p.Ref())
	}
	return out
}

// DefaultProject returns the project that answers queries for path: the
// first registered configured project containing it, else an external,
// else an inferred one.
func (s *Service) DefaultProject(path string) (*project.Project, error) {
	owners := s.owners(paths.Normalize(path))
	if len(owners) == 0 {
		if !s.IsOpen(path) {
			return nil, errors.NewFileNotOpen(path)
		}
		return nil, errors.Newf(errors.ProjectNotFound, "no project contains %q", path)
	}
	return owners[0], nil
}

// ProjectByName finds a project by its name: a config path, an external
// project file name or an inferred project name.
func (s *Service) ProjectByName(name string) (*project.Project, error) {
	if p, ok := s.ConfiguredProject(name); ok {
		return p, nil
	}
	key := s.fs.Canonical(paths.Normalize(name))
	if ep, ok := s.external[key]; ok && ep.project != nil {
		return ep.project, nil
	}
	for _, p := range s.inferred {
		if p.Key() == key {
			return p, nil
		}
	}
	return nil, errors.NewProjectNotFound(name)
}

func (s *Service) projectFor(ctx context.Context, file, projectName string) (*project.Project, error) {
	var (
		p   *project.Project
		err error
	)
	if projectName != "" {
		p, err = s.ProjectByName(projectName)
	} else {
		p, err = s.DefaultProject(file)
	}
	if err != nil {
		return nil, err
	}
	s.ensureLoaded(ctx, p)
	return p, nil
}

func isConfigOf(p *project.Project, file string, caseSensitive bool) bool {
	c := p.Configured()
	return c != nil && paths.Equal(c.ConfigPath, file, caseSensitive)
}

// SyntacticDiagnostics returns the syntax errors of file. For a config
// file they are its parse errors.
func (s *Service) SyntacticDiagnostics(ctx context.Context, file, projectName string) ([]engine.Diagnostic, error) {
	file = paths.Normalize(file)
	p, err := s.projectFor(ctx, file, projectName)
	if err != nil {
		return nil, err
	}
	out := []engine.Diagnostic{}
	if isConfigOf(p, file, s.settings.CaseSensitive) {
		for _, d := range p.Configured().Parsed.Errors {
			if d.Code == engine.CodeJSONParse && paths.Equal(d.File, file, s.settings.CaseSensitive) {
				out = append(out, d)
			}
		}
		return out, nil
	}
	prog, err := s.programWith(p, file)
	if err != nil {
		return nil, err
	}
	return append(out, prog.SyntacticDiagnostics(file)...), nil
}

// SemanticDiagnostics returns the semantic errors of file.
func (s *Service) SemanticDiagnostics(ctx context.Context, file, projectName string) ([]engine.Diagnostic, error) {
	file = paths.Normalize(file)
	p, err := s.projectFor(ctx, file, projectName)
	if err != nil {
		return nil, err
	}
	out := []engine.Diagnostic{}
	if isConfigOf(p, file, s.settings.CaseSensitive) {
		return out, nil
	}
	prog, err := s.programWith(p, file)
	if err != nil {
		return nil, err
	}
	return append(out, prog.SemanticDiagnostics(file)...), nil
}

// CompilerOptionsDiagnostics returns the config and option errors of a
// project.
func (s *Service) CompilerOptionsDiagnostics(ctx context.Context, projectName string) ([]engine.Diagnostic, error) {
	p, err := s.ProjectByName(projectName)
	if err != nil {
		return nil, err
	}
	s.ensureLoaded(ctx, p)
	out := []engine.Diagnostic{}
	if c := p.Configured(); c != nil && c.Parsed != nil {
		for _, d := range c.Parsed.Errors {
			if d.Code != engine.CodeJSONParse {
				out = append(out, d)
			}
		}
	}
	if prog := p.Program(); prog != nil {
		out = append(out, prog.OptionsDiagnostics()...)
	}
	return out, nil
}

func (s *Service) programWith(p *project.Project, file string) (engine.Program, error) {
	prog := p.Program()
	if prog == nil || !prog.ContainsFile(file) {
		return nil, errors.Newf(errors.ProjectNotFound, "project %s does not contain %q", p.Name, file)
	}
	return prog, nil
}

// ProjectInfo describes the default project of a file.
type ProjectInfo struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	RootFiles   []string `json:"rootFiles"`
	ActualFiles []string `json:"actualFiles"`
	Pending     string   `json:"pendingReload,omitempty"`
}

// ProjectInfo returns the default project of file.
func (s *Service) ProjectInfo(ctx context.Context, file string) (*ProjectInfo, error) {
	p, err := s.projectFor(ctx, paths.Normalize(file), "")
	if err != nil {
		return nil, err
	}
	info := Describe(p)
	return &info, nil
}

// Describe summarizes p.
func Describe(p *project.Project) ProjectInfo {
	info := ProjectInfo{
		Name:        p.Name,
		Kind:        p.Kind().String(),
		RootFiles:   p.RootFiles(),
		ActualFiles: p.ActualFiles(),
	}
	if info.ActualFiles == nil {
		info.ActualFiles = []string{}
	}
	if p.Kind() == project.KindConfigured {
		info.Pending = p.PendingReload().String()
	}
	return info
}

// FindDefinitions resolves the definitions of the symbol at pos. A
// definition inside a declaration output with a declaration map is
// reported at its original source position.
func (s *Service) FindDefinitions(ctx context.Context, file string, pos engine.Position) (*engine.DefinitionInfo, error) {
	file = paths.Normalize(file)
	p, err := s.projectFor(ctx, file, "")
	if err != nil {
		return nil, err
	}
	prog, err := s.programWith(p, file)
	if err != nil {
		return nil, err
	}
	info, err := prog.Definition(file, pos)
	if err != nil {
		return nil, errors.New(errors.InternalError, "definition lookup failed", err)
	}
	out := &engine.DefinitionInfo{Definitions: []engine.Location{}, TextSpan: info.TextSpan}
	for _, d := range info.Definitions {
		if mapped, ok := s.mapDeclaration(d); ok {
			d = mapped
		}
		out.Definitions = append(out.Definitions, d)
	}
	return out, nil
}

// FileLocations groups rename locations by file.
type FileLocations struct {
	File string            `json:"file"`
	Locs []engine.TextSpan `json:"locs"`
}

// RenameResult answers Rename.
type RenameResult struct {
	Locs []FileLocations `json:"locs"`
}

// Rename collects every occurrence of the symbol at pos in the requesting
// project. Occurrences inside declaration outputs are replaced by the
// occurrences of the original source symbol, gathered from a program of
// that source file alone. The requesting file comes first.
func (s *Service) Rename(ctx context.Context, file string, pos engine.Position) (*RenameResult, error) {
	file = paths.Normalize(file)
	p, err := s.projectFor(ctx, file, "")
	if err != nil {
		return nil, err
	}
	prog, err := s.programWith(p, file)
	if err != nil {
		return nil, err
	}
	refs, err := prog.References(file, pos)
	if err != nil {
		return nil, errors.New(errors.InternalError, "reference lookup failed", err)
	}

	var locs []engine.Location
	translated := make(map[string]bool)
	for _, loc := range refs {
		mapped, ok := s.mapDeclaration(loc)
		if !ok {
			locs = append(locs, loc)
			continue
		}
		key := s.fs.Canonical(mapped.File) + "@" + mapped.Start.String()
		if translated[key] {
			continue
		}
		translated[key] = true
		locs = append(locs, s.sourceOccurrences(ctx, mapped)...)
	}
	return s.groupLocations(file, locs), nil
}

// sourceOccurrences finds the occurrences of the symbol at loc within its
// own file. It falls back to loc itself.
func (s *Service) sourceOccurrences(ctx context.Context, loc engine.Location) []engine.Location {
	prog, err := s.eng.LoadProgram(ctx, engine.ProgramOptions{
		RootFiles: []string{loc.File},
		ConfigDir: paths.Dir(loc.File),
		Options:   engine.CompilerOptions{NoLib: true},
	})
	if err != nil {
		return []engine.Location{loc}
	}
	refs, err := prog.References(loc.File, loc.Start)
	if err != nil || len(refs) == 0 {
		return []engine.Location{loc}
	}
	var out []engine.Location
	for _, r := range refs {
		if paths.Equal(r.File, loc.File, s.settings.CaseSensitive) {
			out = append(out, r)
		}
	}
	return out
}

func (s *Service) groupLocations(first string, locs []engine.Location) *RenameResult {
	res := &RenameResult{Locs: []FileLocations{}}
	index := make(map[string]int)
	seen := make(map[string]bool)
	add := func(loc engine.Location) {
		key := s.fs.Canonical(loc.File)
		span := engine.TextSpan{Start: loc.Start, End: loc.End}
		if seen[key+"@"+span.Start.String()] {
			return
		}
		seen[key+"@"+span.Start.String()] = true
		i, ok := index[key]
		if !ok {
			i = len(res.Locs)
			index[key] = i
			res.Locs = append(res.Locs, FileLocations{File: loc.File})
		}
		res.Locs[i].Locs = append(res.Locs[i].Locs, span)
	}
	for _, loc := range locs {
		if paths.Equal(loc.File, first, s.settings.CaseSensitive) {
			add(loc)
		}
	}
	for _, loc := range locs {
		add(loc)
	}
	for i := range res.Locs {
		spans := res.Locs[i].Locs
		sort.SliceStable(spans, func(a, b int) bool { return spans[a].Start.Before(spans[b].Start) })
	}
	return res
}

// mapDeclaration translates a location inside a declaration output to the
// source position recorded in its declaration map.
func (s *Service) mapDeclaration(loc engine.Location) (engine.Location, bool) {
	if !paths.IsDeclaration(loc.File) {
		return loc, false
	}
	text, err := s.fs.ReadFile(loc.File)
	if err != nil {
		return loc, false
	}
	mapPath, ok := declmap.FindURL(loc.File, string(text))
	if !ok {
		return loc, false
	}
	raw, err := s.fs.ReadFile(mapPath)
	if err != nil {
		return loc, false
	}
	m, err := declmap.Parse(raw)
	if err != nil {
		s.logger.Debug("Declaration map unreadable", "map", mapPath, "error", err.Error())
		return loc, false
	}
	start, ok := m.Lookup(loc.Start.Line-1, loc.Start.Offset-1)
	if !ok {
		return loc, false
	}
	end, ok := m.Lookup(loc.End.Line-1, loc.End.Offset-1)
	if !ok || end.Source != start.Source {
		end = start
	}
	src := s.fs.RealPath(m.SourcePath(mapPath, start.Source))
	if !s.fs.FileExists(src) {
		return loc, false
	}
	return engine.Location{
		File:  src,
		Start: engine.Position{Line: start.Line + 1, Offset: start.Column + 1},
		End:   engine.Position{Line: end.Line + 1, Offset: end.Column + 1},
	}, true
}

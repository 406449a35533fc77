package service

import (
	"strings"

	"github.com/google/uuid"

	"projd/internal/paths"
	"projd/internal/projconfig"
	"projd/internal/project"
	"projd/internal/watcher"
)

// watchRole is why a project watches a path.
type watchRole int

const (
	roleConfig watchRole = iota
	roleMember
	roleWildcard
	roleTypes
	roleCandidate
)

var roleNames = [...]string{"config", "member", "wildcard", "types", "candidate"}

type watchSpec struct {
	path      string
	dir       bool
	recursive bool
	role      watchRole
}

func (s *Service) watchKey(w watchSpec) string {
	var b strings.Builder
	b.WriteString(roleNames[w.role])
	switch {
	case !w.dir:
		b.WriteString("|f|")
	case w.recursive:
		b.WriteString("|r|")
	default:
		b.WriteString("|d|")
	}
	b.WriteString(s.fs.Canonical(w.path))
	return b.String()
}

// desiredWatches computes the watch set of one project:
//   - configured: the config, extended and referenced configs, wildcard
//     directories, the @types directory and member files
//   - inferred: member files plus every config path that could claim a
//     root
//   - external: member files
//
// Open files are never watched; their edits arrive through the client.
func (s *Service) desiredWatches(p *project.Project) []watchSpec {
	var out []watchSpec
	file := func(path string, role watchRole) {
		out = append(out, watchSpec{path: path, role: role})
	}

	if c := p.Configured(); c != nil {
		file(c.ConfigPath, roleConfig)
		if c.Parsed != nil {
			for _, ext := range c.Parsed.Extends {
				file(ext, roleConfig)
			}
			for _, ref := range c.ReferencedConfigs {
				file(ref, roleConfig)
			}
			for _, wd := range c.Parsed.WildcardDirectories {
				out = append(out, watchSpec{path: wd.Path, dir: true, recursive: wd.Recursive, role: roleWildcard})
			}
			out = append(out, watchSpec{
				path:      projconfig.TypesDirectory(c.Parsed.ConfigDir),
				dir:       true,
				recursive: true,
				role:      roleTypes,
			})
		}
	}

	if prog := p.Program(); prog != nil {
		for _, f := range prog.Files() {
			if !s.IsOpen(f) {
				file(f, roleMember)
			}
		}
	}

	if p.Kind() == project.KindInferred {
		for _, root := range p.RootFiles() {
			for _, cand := range projconfig.CandidatePaths(paths.Dir(root)) {
				file(cand, roleCandidate)
			}
		}
	}
	return out
}

// refreshWatches reconciles every project's subscriptions with its
// desired watch set. Unchanged watches are kept.
func (s *Service) refreshWatches() {
	for _, p := range s.allProjects() {
		current := s.subs[p.ID]
		next := make(map[string]*watcher.Subscription)
		for _, w := range s.desiredWatches(p) {
			key := s.watchKey(w)
			if _, dup := next[key]; dup {
				continue
			}
			if sub, ok := current[key]; ok {
				next[key] = sub
				delete(current, key)
				continue
			}
			next[key] = s.subscribe(p.ID, w)
		}
		for _, sub := range current {
			sub.Close()
		}
		s.subs[p.ID] = next
	}
}

func (s *Service) subscribe(id uuid.UUID, w watchSpec) *watcher.Subscription {
	cb := func(ev watcher.Event) { s.onWatchEvent(id, w, ev) }
	if w.dir {
		return s.watches.WatchDirectory(w.path, w.recursive, id.String(), cb)
	}
	return s.watches.WatchFile(w.path, id.String(), cb)
}

// onWatchEvent resolves the owning project through the registry; events
// for removed projects are dropped.
func (s *Service) onWatchEvent(id uuid.UUID, w watchSpec, ev watcher.Event) {
	p, ok := s.byID[id]
	if !ok {
		return
	}
	s.logger.Debug("Project watch fired",
		"project", p.Name,
		"role", roleNames[w.role],
		"path", ev.Path,
		"op", ev.Op.String(),
	)

	switch w.role {
	case roleConfig:
		s.onConfigChange(p, w.path)
	case roleMember:
		s.onMemberChange(p, ev.Path)
	case roleWildcard:
		s.onWildcardChange(p, ev.Path)
	case roleTypes:
		s.requestReload(p, project.ReloadFull)
	case roleCandidate:
		s.onCandidateChange(p, ev.Path)
	}
}

// onConfigChange reloads a project whose config, extended config or
// referenced config changed. A deleted project config removes the project
// at once and sends its open files back through config search.
func (s *Service) onConfigChange(p *project.Project, path string) {
	c := p.Configured()
	if c == nil {
		return
	}
	if paths.Equal(path, c.ConfigPath, s.settings.CaseSensitive) && !s.fs.FileExists(c.ConfigPath) {
		for _, f := range s.openFilesOf(p) {
			s.needsSearch[s.fs.Canonical(f)] = true
		}
		s.removeProject(p)
		s.refreshWatches()
		s.updateMetrics()
		s.scheduleEnsure()
		return
	}
	s.requestReload(p, project.ReloadFull)
}

// onMemberChange refreshes contents, or recomputes membership when a root
// file disappeared or stopped matching the config.
func (s *Service) onMemberChange(p *project.Project, path string) {
	level := project.ReloadPartial
	if c := p.Configured(); c != nil && p.IsRoot(path) {
		if !s.fs.FileExists(path) || (c.Parsed != nil && !c.Parsed.MatchesSpec(path)) {
			level = project.ReloadFull
		}
	}
	s.requestReload(p, level)
}

// onWildcardChange recomputes membership when a file matching the config
// appeared or a root vanished.
func (s *Service) onWildcardChange(p *project.Project, path string) {
	c := p.Configured()
	if c == nil || c.Parsed == nil || paths.Equal(path, c.ConfigPath, s.settings.CaseSensitive) {
		return
	}
	if !c.Parsed.MatchesSpec(path) {
		return
	}
	if s.fs.FileExists(path) != p.IsRoot(path) {
		s.requestReload(p, project.ReloadFull)
	}
}

// onCandidateChange sends the roots under a config that appeared or
// vanished back through config search.
func (s *Service) onCandidateChange(p *project.Project, path string) {
	dir := paths.Dir(path)
	for _, root := range p.RootFiles() {
		if paths.Contains(dir, root, s.settings.CaseSensitive) {
			s.needsSearch[s.fs.Canonical(root)] = true
		}
	}
	s.scheduleEnsure()
}

func (s *Service) requestReload(p *project.Project, level project.ReloadLevel) {
	p.MarkReload(level)
	s.logger.Debug("Reload requested", "project", p.Name, "level", level.String())
	s.scheduleEnsure()
}

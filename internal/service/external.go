package service

import (
	"context"

	"projd/internal/engine"
	"projd/internal/errors"
	"projd/internal/paths"
	"projd/internal/projconfig"
	"projd/internal/project"
)

// ExternalDescriptor declares a project wholesale on behalf of a host
// build system.
type ExternalDescriptor struct {
	ProjectFileName string
	RootFiles       []string
	Options         engine.CompilerOptions
}

// OpenExternalProject registers or replaces one external project. Roots
// that are config files register configured projects, which stay
// unresolved under the lazy policy; the other roots are then ignored.
// Without config roots the descriptor becomes an external project of its
// own.
func (s *Service) OpenExternalProject(ctx context.Context, desc ExternalDescriptor) error {
	if desc.ProjectFileName == "" {
		return errors.NewInvalidRequest("projectFileName", "name is empty")
	}
	name := paths.Normalize(desc.ProjectFileName)
	key := s.fs.Canonical(name)
	if _, ok := s.external[key]; ok {
		s.dropExternal(key)
	}

	ep := &externalProject{name: name}
	var roots []string
	for _, r := range desc.RootFiles {
		r = paths.Normalize(r)
		if projconfig.IsConfigFile(r) {
			ep.configs = append(ep.configs, r)
		} else {
			roots = append(roots, r)
		}
	}

	if len(ep.configs) > 0 {
		for _, cfg := range ep.configs {
			p := s.configuredFor(cfg)
			c := p.Configured()
			c.Hold(key)
			switch {
			case s.lazy && !p.Loaded():
				c.Deferred = true
			case !p.Loaded() || p.PendingReload() != project.ReloadNone:
				c.Deferred = false
				s.updateProject(ctx, p)
			}
		}
	} else {
		p := project.NewExternal(name, roots, desc.Options, s.settings)
		ep.project = p
		s.byID[p.ID] = p
		s.logger.Info("Project created", "project", p.Name, "kind", p.Kind().String())
		s.updateProject(ctx, p)
	}

	s.external[key] = ep
	s.externalOrder = append(s.externalOrder, key)

	s.scheduleEnsure()
	s.refreshWatches()
	s.updateMetrics()
	return nil
}

// OpenExternalProjects replaces the whole set of external projects.
// Projects missing from list are closed.
func (s *Service) OpenExternalProjects(ctx context.Context, list []ExternalDescriptor) error {
	keep := make(map[string]bool, len(list))
	for _, d := range list {
		keep[s.fs.Canonical(paths.Normalize(d.ProjectFileName))] = true
	}
	for _, key := range append([]string(nil), s.externalOrder...) {
		if !keep[key] {
			s.dropExternal(key)
		}
	}
	for _, d := range list {
		if err := s.OpenExternalProject(ctx, d); err != nil {
			return err
		}
	}
	s.removeUnheldConfigured()
	s.refreshWatches()
	s.updateMetrics()
	return nil
}

// CloseExternalProject removes one external project. Configured projects
// it held are removed unless a file under them is open or another
// external project holds them.
func (s *Service) CloseExternalProject(ctx context.Context, name string) error {
	key := s.fs.Canonical(paths.Normalize(name))
	if _, ok := s.external[key]; !ok {
		return errors.NewProjectNotFound(name)
	}
	s.dropExternal(key)
	s.removeUnheldConfigured()
	s.scheduleEnsure()
	s.refreshWatches()
	s.updateMetrics()
	return nil
}

func (s *Service) dropExternal(key string) {
	ep, ok := s.external[key]
	if !ok {
		return
	}
	delete(s.external, key)
	for i, k := range s.externalOrder {
		if k == key {
			s.externalOrder = append(s.externalOrder[:i], s.externalOrder[i+1:]...)
			break
		}
	}
	for _, cfg := range ep.configs {
		if p, ok := s.ConfiguredProject(cfg); ok {
			p.Configured().Release(key)
		}
	}
	if ep.project != nil {
		s.removeProject(ep.project)
	}
}

func (s *Service) removeUnheldConfigured() {
	for _, p := range s.ConfiguredProjects() {
		if !p.Configured().HeldExternally() && len(s.openFilesOf(p)) == 0 {
			s.removeProject(p)
		}
	}
}

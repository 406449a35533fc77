package service

import (
	"context"

	"projd/internal/engine"
	"projd/internal/errors"
	"projd/internal/paths"
	"projd/internal/project"
)

// OpenResult answers OpenClientFile.
type OpenResult struct {
	// ConfigFileName is the config of the configured project that owns
	// the file, empty when an inferred project services it.
	ConfigFileName   string              `json:"configFileName,omitempty"`
	ConfigFileErrors []engine.Diagnostic `json:"configFileErrors"`
}

// OpenClientFile opens path and attaches it to the project that should
// service it. Config problems are returned, never raised: the file is
// serviced by an inferred project when its config is unusable.
func (s *Service) OpenClientFile(ctx context.Context, path string) (*OpenResult, error) {
	if path == "" {
		return nil, errors.NewInvalidRequest("file", "path is empty")
	}
	path = paths.Normalize(path)
	key := s.fs.Canonical(path)
	if _, ok := s.open[key]; !ok {
		s.open[key] = path
		s.openOrder = append(s.openOrder, key)
	}
	delete(s.needsSearch, key)

	res := &OpenResult{ConfigFileErrors: []engine.Diagnostic{}}
	owner := s.assignConfigured(ctx, path, res)
	if owner == nil {
		s.assignInferred(ctx, path)
	} else {
		s.detachFromInferred(path)
	}
	s.detachClaimedInferredRoots()

	s.cleanupAfterOpen()
	s.refreshWatches()
	s.updateMetrics()
	s.logger.Debug("File opened", "file", path, "config", res.ConfigFileName)
	return res, nil
}

// assignConfigured finds the configured project owning path. An up to date
// project that already contains path wins, first registered first.
// Otherwise the nearest config above path is loaded. It returns nil when
// no configured project claims path.
func (s *Service) assignConfigured(ctx context.Context, path string, res *OpenResult) *project.Project {
	for _, p := range s.configuredOrder {
		if p.PendingReload() == project.ReloadNone && p.Loaded() && p.ContainsFile(path) {
			if res != nil {
				res.ConfigFileName = p.Configured().ConfigPath
			}
			return p
		}
	}

	configPath, ok := s.loader.FindConfig(paths.Dir(path))
	if !ok {
		return nil
	}
	p := s.configuredFor(configPath)
	c := p.Configured()
	if c.Deferred {
		c.Deferred = false
	}
	if !p.Loaded() || p.PendingReload() != project.ReloadNone {
		s.updateProject(ctx, p)
	}
	if res != nil && c.Parsed != nil {
		res.ConfigFileErrors = append(res.ConfigFileErrors, c.Parsed.Errors...)
	}
	if !p.ContainsFile(path) {
		return nil
	}
	if res != nil {
		res.ConfigFileName = c.ConfigPath
	}
	return p
}

// assignInferred makes sure path is serviced by an inferred or external
// project.
func (s *Service) assignInferred(ctx context.Context, path string) {
	for _, p := range s.allProjects() {
		if p.Kind() != project.KindConfigured && p.ContainsFile(path) {
			return
		}
	}
	p := s.newInferred(path)
	s.updateProject(ctx, p)
}

// detachFromInferred removes path from the roots of every inferred
// project. A project left without roots becomes an orphan.
func (s *Service) detachFromInferred(path string) {
	for _, p := range s.inferred {
		if p.RemoveRoot(path) {
			s.logger.Debug("Inferred root claimed", "file", path, "project", p.Name, "orphan", p.IsOrphan())
		}
	}
}

// detachClaimedInferredRoots drops every inferred root that an up to date
// configured or external project now contains, such as an open file that
// became a dependency of the project just loaded.
func (s *Service) detachClaimedInferredRoots() {
	for _, p := range s.inferred {
		for _, root := range p.RootFiles() {
			if s.claimedOutsideInferred(root) && p.RemoveRoot(root) {
				s.logger.Debug("Inferred root claimed", "file", root, "project", p.Name, "orphan", p.IsOrphan())
			}
		}
	}
}

// cleanupAfterOpen removes orphan inferred projects and configured
// projects that have no open files and no external holder.
func (s *Service) cleanupAfterOpen() {
	for _, p := range s.InferredProjects() {
		if p.IsOrphan() {
			s.removeProject(p)
		}
	}
	s.removeUnheldConfigured()
}

// CloseClientFile detaches path from the open set. Inferred roots are
// dropped and reconciliation is scheduled. With the lazy policy, a
// configured project held only by an external project unloads once its
// last open file closes.
func (s *Service) CloseClientFile(ctx context.Context, path string) error {
	path = paths.Normalize(path)
	key := s.fs.Canonical(path)
	if _, ok := s.open[key]; !ok {
		return errors.NewFileNotOpen(path)
	}

	var holding []*project.Project
	for _, p := range s.configuredOrder {
		if p.ContainsFile(path) {
			holding = append(holding, p)
		}
	}

	delete(s.open, key)
	delete(s.needsSearch, key)
	for i, c := range s.openOrder {
		if c == key {
			s.openOrder = append(s.openOrder[:i], s.openOrder[i+1:]...)
			break
		}
	}

	for _, p := range s.inferred {
		p.RemoveRoot(path)
	}
	if s.lazy {
		for _, p := range holding {
			c := p.Configured()
			if c.HeldExternally() && len(s.openFilesOf(p)) == 0 {
				p.Unload()
				p.MarkReload(project.ReloadFull)
				c.Deferred = true
				s.logger.Debug("Configured project deferred", "project", p.Name)
			}
		}
	}

	s.scheduleEnsure()
	s.refreshWatches()
	s.updateMetrics()
	s.logger.Debug("File closed", "file", path)
	return nil
}

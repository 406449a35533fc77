package service

import (
	"context"

	"projd/internal/build"
	"projd/internal/errors"
	"projd/internal/project"
)

// BuildSummary answers BuildProjectReferences.
type BuildSummary struct {
	BuiltCount   int                   `json:"builtCount"`
	SkippedCount int                   `json:"skippedCount"`
	BlockedCount int                   `json:"blockedCount"`
	Errors       []build.ProjectErrors `json:"errors"`
}

// BuildProjectReferences builds roots and their references. Open projects
// whose programs include a rewritten output are refreshed on the next
// reconciliation pass.
func (s *Service) BuildProjectReferences(ctx context.Context, roots []string, opts build.Options) (*BuildSummary, error) {
	b, err := s.ensureBuilder()
	if err != nil {
		return nil, err
	}
	res, err := b.Build(ctx, roots, opts)
	if err != nil {
		return nil, err
	}
	s.invalidateOutputs(res)
	errs := res.Errors
	if errs == nil {
		errs = []build.ProjectErrors{}
	}
	return &BuildSummary{
		BuiltCount:   len(res.Built),
		SkippedCount: len(res.Skipped),
		BlockedCount: len(res.Blocked),
		Errors:       errs,
	}, nil
}

func (s *Service) ensureBuilder() (*build.Builder, error) {
	if s.builder != nil {
		return s.builder, nil
	}
	b, err := build.New(build.Config{
		FS:      s.fs,
		Engine:  s.eng,
		Loader:  s.loader,
		LibFile: s.settings.LibFile,
		Logger:  s.logger,
		Metrics: s.metrics,
	})
	if err != nil {
		return nil, errors.New(errors.BuildFailed, "cannot create builder", err)
	}
	s.builder = b
	s.ownsBuilder = true
	return b, nil
}

// invalidateOutputs marks projects with open files for a partial reload
// when their program contains a rewritten output or they reference a
// rebuilt project whose outputs they could not see before.
func (s *Service) invalidateOutputs(res *build.Result) {
	if len(res.Written) == 0 {
		return
	}
	rebuilt := make(map[string]bool, len(res.Built))
	for _, cfg := range res.Built {
		rebuilt[s.fs.Canonical(cfg)] = true
	}
	marked := 0
	for _, p := range s.allProjects() {
		if len(s.openFilesOf(p)) == 0 {
			continue
		}
		if s.usesOutputs(p, res.Written, rebuilt) {
			p.MarkReload(project.ReloadPartial)
			marked++
		}
	}
	if marked > 0 {
		s.logger.Debug("Projects invalidated by build", "projects", marked, "outputs", len(res.Written))
		s.scheduleEnsure()
	}
}

func (s *Service) usesOutputs(p *project.Project, written []string, rebuilt map[string]bool) bool {
	if c := p.Configured(); c != nil {
		for _, ref := range c.References {
			if rebuilt[s.fs.Canonical(ref.ConfigPath)] {
				return true
			}
		}
	}
	prog := p.Program()
	if prog == nil {
		return false
	}
	for _, w := range written {
		if prog.ContainsFile(w) {
			return true
		}
	}
	return false
}

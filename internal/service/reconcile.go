package service

import (
	"context"

	"projd/internal/project"
)

// ensureProjectsForOpenFiles reconciles the open files with the projects
// after a batch of changes. Inferred projects orphaned during this pass
// survive until the next one, so a config that gains and loses a file
// within one batch does not churn projects.
func (s *Service) ensureProjectsForOpenFiles(ctx context.Context) {
	var orphans []*project.Project
	for _, p := range s.inferred {
		if p.IsOrphan() {
			orphans = append(orphans, p)
		}
	}

	for _, p := range s.ConfiguredProjects() {
		if p.PendingReload() != project.ReloadNone && !p.Configured().Deferred {
			s.updateProject(ctx, p)
		}
	}

	for _, key := range s.openOrder {
		file := s.open[key]
		claimed := s.claimedOutsideInferred(file)
		if s.needsSearch[key] || len(s.owners(file)) == 0 {
			if s.assignConfigured(ctx, file, nil) != nil {
				claimed = true
			}
		}
		if claimed {
			s.detachFromInferred(file)
		}
	}
	clear(s.needsSearch)

	for _, key := range s.openOrder {
		file := s.open[key]
		if len(s.owners(file)) == 0 {
			s.assignInferred(ctx, file)
		}
	}

	for _, p := range s.allProjects() {
		if p.Dirty() || p.PendingReload() != project.ReloadNone {
			s.updateProject(ctx, p)
		}
	}

	for _, p := range orphans {
		if p.IsOrphan() {
			s.removeProject(p)
		}
	}
	s.removeUnheldConfigured()

	s.refreshWatches()
	s.updateMetrics()
	s.metrics.Reconciled()
	s.logger.Debug("Open files reconciled",
		"open", len(s.openOrder),
		"configured", len(s.configuredOrder),
		"inferred", len(s.inferred),
	)
}

// claimedOutsideInferred reports whether an up to date configured or an
// external project contains file.
func (s *Service) claimedOutsideInferred(file string) bool {
	for _, p := range s.configuredOrder {
		if p.PendingReload() == project.ReloadNone && p.Loaded() && p.ContainsFile(file) {
			return true
		}
	}
	for _, p := range s.ExternalProjects() {
		if p.ContainsFile(file) {
			return true
		}
	}
	return false
}

// EnsureProjects runs a reconciliation pass now instead of on the next
// tick.
func (s *Service) EnsureProjects(ctx context.Context) {
	s.queue.Cancel(TaskEnsureProjects)
	s.ensureProjectsForOpenFiles(ctx)
}

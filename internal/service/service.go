// Package service is the project service: the single owner of the project
// graph. It decides which projects service each open file, creates and
// removes projects as files are opened, closed and changed on disk, keeps
// the watch set minimal, and answers queries across project boundaries.
//
// A Service is not safe for concurrent use. Requests and queue drains must
// happen on one goroutine; watch backends only reach it through the run
// loop.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"projd/internal/build"
	"projd/internal/engine"
	"projd/internal/metrics"
	"projd/internal/projconfig"
	"projd/internal/project"
	"projd/internal/runloop"
	"projd/internal/slogutil"
	"projd/internal/vfs"
	"projd/internal/watcher"
)

// TaskEnsureProjects is the run-loop task that reconciles open files with
// projects.
const TaskEnsureProjects = "ensureProjectsForOpenFiles"

// Options configures a Service. Only FS is required.
type Options struct {
	FS      *vfs.FS
	Engine  engine.Engine
	Queue   *runloop.Queue
	Watches *watcher.Registry
	Builder *build.Builder
	Metrics *metrics.Collector
	Logger  *slog.Logger

	// LibFile is added to every program with at least one root file.
	LibFile string
	// LazyConfiguredProjectsFromExternalProject defers membership
	// resolution of configured projects registered by external projects.
	LazyConfiguredProjectsFromExternalProject bool
}

// Service tracks every project and the open file set.
type Service struct {
	fs      *vfs.FS
	eng     engine.Engine
	queue   *runloop.Queue
	watches *watcher.Registry
	loader  *projconfig.Loader
	builder *build.Builder
	metrics *metrics.Collector
	logger  *slog.Logger

	settings project.Settings
	lazy     bool

	configured      map[string]*project.Project
	configuredOrder []*project.Project
	inferred        []*project.Project
	external        map[string]*externalProject
	externalOrder   []string
	byID            map[uuid.UUID]*project.Project

	open        map[string]string
	openOrder   []string
	needsSearch map[string]bool

	subs        map[uuid.UUID]map[string]*watcher.Subscription
	inferredSeq int

	ownsBuilder bool
}

// externalProject is a host-declared project. It either holds configured
// projects named among its roots or owns a project of its own.
type externalProject struct {
	name    string
	configs []string
	project *project.Project
}

// New creates a service.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	queue := opts.Queue
	if queue == nil {
		queue = runloop.New(logger)
	}
	watches := opts.Watches
	if watches == nil {
		watches = watcher.NewRegistry(queue, opts.FS.CaseSensitive(), logger)
	}
	eng := opts.Engine
	if eng == nil {
		eng = engine.NewLite(opts.FS, logger)
	}

	s := &Service{
		fs:      opts.FS,
		eng:     eng,
		queue:   queue,
		watches: watches,
		loader:  projconfig.NewLoader(opts.FS, logger),
		builder: opts.Builder,
		metrics: opts.Metrics,
		logger:  logger,
		settings: project.Settings{
			CaseSensitive: opts.FS.CaseSensitive(),
			LibFile:       opts.LibFile,
		},
		lazy:        opts.LazyConfiguredProjectsFromExternalProject,
		configured:  make(map[string]*project.Project),
		external:    make(map[string]*externalProject),
		byID:        make(map[uuid.UUID]*project.Project),
		open:        make(map[string]string),
		needsSearch: make(map[string]bool),
		subs:        make(map[uuid.UUID]map[string]*watcher.Subscription),
	}
	if s.metrics != nil {
		s.watches.OnCountsChanged(s.metrics.SetWatches)
	}
	return s
}

// Queue returns the run loop the service schedules deferred work on.
func (s *Service) Queue() *runloop.Queue { return s.queue }

// Watches returns the watch registry.
func (s *Service) Watches() *watcher.Registry { return s.watches }

// SetLazyConfiguredProjects changes the lazy policy for external projects
// opened from now on.
func (s *Service) SetLazyConfiguredProjects(lazy bool) { s.lazy = lazy }

// ConfiguredProjects returns the configured projects in registration order.
func (s *Service) ConfiguredProjects() []*project.Project {
	return append([]*project.Project(nil), s.configuredOrder...)
}

// InferredProjects returns the inferred projects in creation order.
func (s *Service) InferredProjects() []*project.Project {
	return append([]*project.Project(nil), s.inferred...)
}

// ExternalProjects returns the projects owned by external projects, in
// declaration order. External projects that only hold configured projects
// own none.
func (s *Service) ExternalProjects() []*project.Project {
	var out []*project.Project
	for _, key := range s.externalOrder {
		if ep := s.external[key]; ep.project != nil {
			out = append(out, ep.project)
		}
	}
	return out
}

// ConfiguredProject returns the configured project for configPath,
// matched with the host's case policy.
func (s *Service) ConfiguredProject(configPath string) (*project.Project, bool) {
	p, ok := s.configured[s.fs.Canonical(configPath)]
	return p, ok
}

// OpenFiles returns the open files in open order.
func (s *Service) OpenFiles() []string {
	out := make([]string, 0, len(s.openOrder))
	for _, c := range s.openOrder {
		out = append(out, s.open[c])
	}
	return out
}

// IsOpen reports whether path is open.
func (s *Service) IsOpen(path string) bool {
	_, ok := s.open[s.fs.Canonical(path)]
	return ok
}

// Drain runs deferred tasks until the queue is empty.
func (s *Service) Drain() int { return s.queue.Drain(0) }

// Close releases every watch and the build state the service created.
func (s *Service) Close() error {
	for _, p := range s.allProjects() {
		s.watches.CloseOwner(p.ID.String())
	}
	if s.ownsBuilder {
		_ = s.builder.State().Close()
	}
	return s.watches.Close()
}

func (s *Service) allProjects() []*project.Project {
	out := append([]*project.Project(nil), s.configuredOrder...)
	out = append(out, s.ExternalProjects()...)
	return append(out, s.inferred...)
}

func (s *Service) register(p *project.Project) {
	s.byID[p.ID] = p
	switch p.Kind() {
	case project.KindConfigured:
		s.configured[p.Key()] = p
		s.configuredOrder = append(s.configuredOrder, p)
	case project.KindInferred:
		s.inferred = append(s.inferred, p)
	}
	s.logger.Info("Project created", "project", p.Name, "kind", p.Kind().String())
}

func (s *Service) removeProject(p *project.Project) {
	if _, ok := s.byID[p.ID]; !ok {
		return
	}
	delete(s.byID, p.ID)
	switch p.Kind() {
	case project.KindConfigured:
		delete(s.configured, p.Key())
		s.configuredOrder = without(s.configuredOrder, p)
	case project.KindInferred:
		s.inferred = without(s.inferred, p)
	}
	s.watches.CloseOwner(p.ID.String())
	delete(s.subs, p.ID)
	s.logger.Info("Project removed", "project", p.Name, "kind", p.Kind().String())
}

func without(list []*project.Project, p *project.Project) []*project.Project {
	for i, q := range list {
		if q == p {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

// configuredFor returns the configured project for configPath, creating
// it with a full reload pending when it does not exist.
func (s *Service) configuredFor(configPath string) *project.Project {
	if p, ok := s.configured[s.fs.Canonical(configPath)]; ok {
		return p
	}
	p := project.NewConfigured(configPath, s.settings)
	s.register(p)
	return p
}

// newInferred takes an orphan inferred project for root when one exists
// and creates a new one otherwise.
func (s *Service) newInferred(root string) *project.Project {
	for _, p := range s.inferred {
		if p.IsOrphan() {
			p.AddRoot(root)
			return p
		}
	}
	s.inferredSeq++
	p := project.NewInferred(fmt.Sprintf("/dev/null/inferredProject%d*", s.inferredSeq), root, s.settings)
	s.register(p)
	return p
}

// loadConfigured re-reads a configured project's config and reloads its
// program.
func (s *Service) loadConfigured(ctx context.Context, p *project.Project) {
	c := p.Configured()
	level := c.PendingReload
	parsed := s.loader.Load(c.ConfigPath)
	refs, loaded := s.loader.ProgramReferences(parsed)
	referenced := make([]string, 0, len(loaded))
	for _, rp := range loaded {
		referenced = append(referenced, rp.ConfigPath)
	}
	p.ApplyConfig(parsed, refs, referenced)
	if _, err := p.UpdateGraph(ctx, s.eng); err != nil {
		s.logger.Warn("Program load failed", "project", p.Name, "error", err.Error())
	}
	s.metrics.Reload(level.String())
	s.logger.Debug("Configured project loaded",
		"project", p.Name,
		"level", level.String(),
		"rootFiles", len(parsed.RootFiles),
		"errors", len(parsed.Errors),
	)
}

// updateProject brings p's program up to date. Deferred configured
// projects are left alone.
func (s *Service) updateProject(ctx context.Context, p *project.Project) {
	if c := p.Configured(); c != nil {
		if c.Deferred {
			return
		}
		if c.PendingReload == project.ReloadFull || c.Parsed == nil {
			s.loadConfigured(ctx, p)
			return
		}
		if c.PendingReload == project.ReloadPartial {
			s.metrics.Reload(project.ReloadPartial.String())
		}
	}
	if _, err := p.UpdateGraph(ctx, s.eng); err != nil {
		s.logger.Warn("Program load failed", "project", p.Name, "error", err.Error())
	}
}

// ensureLoaded loads a project for a query, including a deferred one.
func (s *Service) ensureLoaded(ctx context.Context, p *project.Project) {
	if c := p.Configured(); c != nil && c.Deferred {
		c.Deferred = false
	}
	if p.Dirty() || p.PendingReload() != project.ReloadNone {
		s.updateProject(ctx, p)
	}
}

// openFilesOf lists the open files p contains.
func (s *Service) openFilesOf(p *project.Project) []string {
	var out []string
	for _, c := range s.openOrder {
		if p.ContainsFile(s.open[c]) {
			out = append(out, s.open[c])
		}
	}
	return out
}

// owners lists every project containing file: configured projects in
// registration order, then external, then inferred.
func (s *Service) owners(file string) []*project.Project {
	var out []*project.Project
	for _, p := range s.allProjects() {
		if p.ContainsFile(file) {
			out = append(out, p)
		}
	}
	return out
}

func (s *Service) updateMetrics() {
	if s.metrics == nil {
		return
	}
	s.metrics.SetProjects(project.KindConfigured.String(), len(s.configuredOrder))
	s.metrics.SetProjects(project.KindInferred.String(), len(s.inferred))
	s.metrics.SetProjects(project.KindExternal.String(), len(s.ExternalProjects()))
	s.metrics.SetOpenFiles(len(s.openOrder))
}

func (s *Service) scheduleEnsure() {
	s.queue.Schedule(TaskEnsureProjects, func() {
		s.ensureProjectsForOpenFiles(context.Background())
	})
}

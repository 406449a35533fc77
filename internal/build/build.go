// Package build builds configured projects connected by project
// references in dependency order, skipping the ones that are up to date.
package build

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"projd/internal/buildstate"
	"projd/internal/dag"
	"projd/internal/engine"
	"projd/internal/errors"
	"projd/internal/metrics"
	"projd/internal/paths"
	"projd/internal/projconfig"
	"projd/internal/slogutil"
	"projd/internal/vfs"
)

// Options tune one Build call.
type Options struct {
	// Force rebuilds every node regardless of its state.
	Force bool
	// Verbose reports the status of every node, not only errors.
	Verbose bool
	// DryRun decides what would be built without invoking the engine.
	DryRun bool
}

// ProjectErrors are the diagnostics that failed one node.
type ProjectErrors struct {
	Project     string              `json:"project"`
	Diagnostics []engine.Diagnostic `json:"diagnostics"`
}

// Result summarises a build. Under DryRun, Built lists the nodes that
// would be built.
type Result struct {
	Built   []string        `json:"built"`
	Skipped []string        `json:"skipped"`
	Blocked []string        `json:"blocked"`
	Errors  []ProjectErrors `json:"errors"`
	// Written lists every output file written.
	Written []string `json:"written"`
}

// Failed reports whether any node errored.
func (r *Result) Failed() bool { return len(r.Errors) > 0 }

// Config wires a Builder.
type Config struct {
	FS     *vfs.FS
	Engine engine.Engine
	// Loader defaults to a loader over FS.
	Loader *projconfig.Loader
	// State defaults to a private in-memory store.
	State   *buildstate.Store
	LibFile string
	// Reporter receives human-readable build output. Nil discards it.
	Reporter io.Writer
	Logger   *slog.Logger
	Metrics  *metrics.Collector
	// Now stamps build records; defaults to time.Now.
	Now func() time.Time
}

// Builder runs reference builds. It is not safe for concurrent use.
type Builder struct {
	fs      *vfs.FS
	eng     engine.Engine
	loader  *projconfig.Loader
	state   *buildstate.Store
	libFile string
	report  *reporter
	logger  *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

// New creates a Builder.
func New(cfg Config) (*Builder, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	loader := cfg.Loader
	if loader == nil {
		loader = projconfig.NewLoader(cfg.FS, logger)
	}
	state := cfg.State
	if state == nil {
		var err error
		state, err = buildstate.OpenMemory(cfg.FS, logger)
		if err != nil {
			return nil, errors.New(errors.InternalError, "cannot open build state", err)
		}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Builder{
		fs:      cfg.FS,
		eng:     cfg.Engine,
		loader:  loader,
		state:   state,
		libFile: cfg.LibFile,
		report:  newReporter(cfg.Reporter),
		logger:  logger,
		metrics: cfg.Metrics,
		now:     now,
	}, nil
}

// State returns the build state store.
func (b *Builder) State() *buildstate.Store { return b.state }

type nodeResult int

const (
	nodeUpToDate nodeResult = iota
	nodeBuilt
	nodeErrored
	nodeBlocked
)

// Build builds roots and everything they reference. Per-node failures are
// reported in the Result; the error is reserved for invalid requests and
// cancellation.
func (b *Builder) Build(ctx context.Context, roots []string, opts Options) (*Result, error) {
	if len(roots) == 0 {
		return nil, errors.NewInvalidRequest("rootConfigPaths", "no projects to build")
	}
	start := time.Now()
	res := &Result{
		Built:   []string{},
		Skipped: []string{},
		Blocked: []string{},
		Errors:  []ProjectErrors{},
		Written: []string{},
	}

	g := b.collect(roots)
	for _, m := range g.missing {
		res.Errors = append(res.Errors, ProjectErrors{
			Project:     m,
			Diagnostics: []engine.Diagnostic{engine.NewDiagnostic(engine.CodeFileNotFound, "File '%s' not found.", m)},
		})
		b.report.diagnostics(res.Errors[len(res.Errors)-1].Diagnostics)
	}

	order, err := g.dag.TopologicalSort()
	var cycle *dag.CycleError
	if err != nil && !stderrors.As(err, &cycle) {
		return nil, errors.New(errors.InternalError, "cannot order reference graph", err)
	}
	if opts.Verbose {
		list := make([]string, 0, len(g.dag.Nodes()))
		for _, key := range g.dag.Nodes() {
			list = append(list, g.displayPath(key))
		}
		b.report.projects(list)
	}
	if cycle != nil {
		b.reportCycles(g, cycle, res)
	}

	results := make(map[string]nodeResult, len(order))
	for _, key := range order {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		n := g.nodes[key]
		r := b.buildNode(ctx, n, results, opts, res)
		results[key] = r
		switch r {
		case nodeUpToDate:
			res.Skipped = append(res.Skipped, n.path())
			b.metrics.BuildNode(metrics.ResultSkipped)
		case nodeBuilt:
			res.Built = append(res.Built, n.path())
			b.metrics.BuildNode(metrics.ResultBuilt)
		case nodeErrored:
			b.metrics.BuildNode(metrics.ResultErrored)
		case nodeBlocked:
			res.Blocked = append(res.Blocked, n.path())
			b.metrics.BuildNode(metrics.ResultBlocked)
		}
	}

	b.metrics.ObserveBuild(time.Since(start))
	b.logger.Info("Build finished",
		"roots", strings.Join(roots, ","),
		"built", len(res.Built),
		"skipped", len(res.Skipped),
		"blocked", len(res.Blocked),
		"errors", len(res.Errors),
		"duration", time.Since(start).String(),
	)
	return res, nil
}

// reportCycles records a 6202 diagnostic for every cycle member and
// blocks the nodes behind the cycle.
func (b *Builder) reportCycles(g *graph, cycle *dag.CycleError, res *Result) {
	for _, members := range cycle.Cycles {
		loop := make([]string, 0, len(members)+1)
		for _, key := range members {
			loop = append(loop, g.displayPath(key))
		}
		loop = append(loop, loop[0])
		text := strings.Join(loop, " -> ")
		for _, key := range members {
			d := engine.NewDiagnostic(engine.CodeReferenceCycle,
				"Project references may not form a circular graph. Cycle detected: %s", text)
			d.File = g.displayPath(key)
			res.Errors = append(res.Errors, ProjectErrors{Project: d.File, Diagnostics: []engine.Diagnostic{d}})
			b.report.diagnostics([]engine.Diagnostic{d})
			b.metrics.BuildNode(metrics.ResultErrored)
		}
	}
	for _, key := range cycle.Blocked {
		res.Blocked = append(res.Blocked, g.displayPath(key))
		b.metrics.BuildNode(metrics.ResultBlocked)
	}
	b.logger.Warn("Reference cycle", "error", cycle.Error())
}

func (b *Builder) buildNode(ctx context.Context, n *node, results map[string]nodeResult, opts Options, res *Result) nodeResult {
	for _, up := range n.upstream {
		if r := results[up.key]; r == nodeErrored || r == nodeBlocked {
			if opts.Verbose {
				b.report.line("Skipping build of project '%s' because its dependency '%s' has errors", n.path(), up.path())
			}
			return nodeBlocked
		}
	}

	if len(n.parsed.RootFiles) == 0 && len(n.parsed.Errors) == 0 {
		if opts.Verbose {
			b.report.line("Project '%s' is up to date because it has no input files", n.path())
		}
		return nodeUpToDate
	}

	ok, reason := b.upToDate(n, opts)
	if opts.DryRun {
		for _, up := range n.upstream {
			if results[up.key] == nodeBuilt {
				ok, reason = false, fmt.Sprintf("its dependency '%s' is out of date", up.path())
				break
			}
		}
	}
	if ok {
		if opts.Verbose {
			b.report.line("Project '%s' is up to date", n.path())
		}
		return nodeUpToDate
	}
	if opts.Verbose {
		b.report.line("Project '%s' is out of date because %s", n.path(), reason)
	}
	if opts.DryRun {
		b.report.line("A non-dry build would build project '%s'", n.path())
		return nodeBuilt
	}
	if opts.Verbose {
		b.report.line("Building project '%s'...", n.path())
	}
	return b.compile(ctx, n, res)
}

// compile loads, checks and emits one node, then records its fingerprint.
func (b *Builder) compile(ctx context.Context, n *node, res *Result) nodeResult {
	p := n.parsed
	refs, _ := b.loader.ProgramReferences(p)
	prog, err := b.eng.LoadProgram(ctx, engine.ProgramOptions{
		RootFiles:  p.RootFiles,
		Options:    p.Options,
		ConfigDir:  p.ConfigDir,
		References: refs,
		LibFile:    b.libFile,
	})
	if err != nil {
		return b.fail(n, res, []engine.Diagnostic{engine.NewDiagnostic(0, "%s", err.Error())})
	}

	diags := append([]engine.Diagnostic(nil), p.Errors...)
	diags = append(diags, prog.OptionsDiagnostics()...)
	for _, f := range p.RootFiles {
		diags = append(diags, prog.SyntacticDiagnostics(f)...)
		diags = append(diags, prog.SemanticDiagnostics(f)...)
	}
	if errs := errorsOnly(diags); len(errs) > 0 {
		return b.fail(n, res, errs)
	}

	emitted, err := prog.Emit()
	if err != nil {
		return b.fail(n, res, []engine.Diagnostic{engine.NewDiagnostic(0, "%s", err.Error())})
	}
	if errs := errorsOnly(emitted.Diagnostics); len(errs) > 0 {
		return b.fail(n, res, errs)
	}
	var written []string
	for _, out := range emitted.Outputs {
		if err := b.fs.WriteFile(out.Path, []byte(out.Text)); err != nil {
			return b.fail(n, res, []engine.Diagnostic{engine.NewDiagnostic(engine.CodeCannotWriteFile, "Could not write file '%s': %s", out.Path, err.Error())})
		}
		written = append(written, out.Path)
	}
	res.Written = append(res.Written, written...)

	rec := buildstate.Record{
		ConfigPath: p.ConfigPath,
		BuiltAt:    b.now(),
		Inputs:     b.state.Snapshot(b.inputs(n)),
		Outputs:    written,
	}
	if err := b.state.Put(rec); err != nil {
		b.logger.Warn("Build state not recorded", "project", p.ConfigPath, "error", err.Error())
	}
	b.logger.Debug("Project built", "project", p.ConfigPath, "outputs", len(written))
	return nodeBuilt
}

func (b *Builder) fail(n *node, res *Result, diags []engine.Diagnostic) nodeResult {
	res.Errors = append(res.Errors, ProjectErrors{Project: n.path(), Diagnostics: diags})
	b.report.diagnostics(diags)
	if err := b.state.Delete(n.path()); err != nil {
		b.logger.Warn("Build state not cleared", "project", n.path(), "error", err.Error())
	}
	b.logger.Info("Project failed to build", "project", n.path(), "errors", len(diags))
	return nodeErrored
}

func errorsOnly(diags []engine.Diagnostic) []engine.Diagnostic {
	var out []engine.Diagnostic
	for _, d := range diags {
		if d.Category == engine.CategoryError || d.Category == "" {
			out = append(out, d)
		}
	}
	return out
}

// OutputsOf lists the outputs a config produces, for callers that map
// rebuilt nodes back to open programs.
func (b *Builder) OutputsOf(configPath string) []string {
	parsed := b.loader.Load(paths.Normalize(configPath))
	if !parsed.Exists {
		return nil
	}
	return outputs(&node{parsed: parsed})
}

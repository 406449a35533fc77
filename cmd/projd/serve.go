package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"projd/internal/config"
	"projd/internal/manifest"
	"projd/internal/metrics"
	"projd/internal/protocol"
	"projd/internal/runloop"
	"projd/internal/service"
	"projd/internal/version"
	"projd/internal/watcher"
)

var (
	serveWatchBackend string
	serveMetricsAddr  string
	serveLogFile      string
	serveManifest     string
	serveLazy         bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the project service over stdio",
	Long: `Run the project service, reading one JSON-RPC request per line on stdin
and writing one response per line on stdout. Logs go to stderr.

File changes are picked up through the configured watch backend
(fsnotify, poll or none).

Examples:
  projd serve
  projd serve --watch-backend poll --metrics-addr :9464
  projd serve --manifest projects.toml --log-file /tmp/projd.log`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveWatchBackend, "watch-backend", "", "Watch backend: fsnotify, poll or none")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	serveCmd.Flags().StringVar(&serveLogFile, "log-file", "", "Also write logs to this file")
	serveCmd.Flags().StringVar(&serveManifest, "manifest", "", "Open the external projects listed in this manifest")
	serveCmd.Flags().BoolVar(&serveLazy, "lazy-external", false, "Defer loading configured projects of external projects")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadSettings(cmd, map[string]string{
		"watch.backend": "watch-backend",
		"metrics.addr":  "metrics-addr",
		"lazyConfiguredProjectsFromExternalProject": "lazy-external",
	})
	if err != nil {
		return err
	}
	logger, closeLog, err := newLogger(cfg, cmd.ErrOrStderr(), serveLogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	fs := hostFS(cfg)
	queue := runloop.New(logger)
	watches := watcher.NewRegistry(queue, fs.CaseSensitive(), logger)
	backend, err := watcher.NewBackend(watches, watcher.BackendOptions{
		Name:         cfg.Watch.Backend,
		PollInterval: cfg.Watch.PollIntervalMs,
	}, fs)
	if err != nil {
		logger.Warn("Watch backend unavailable, continuing without file events",
			"backend", cfg.Watch.Backend,
			"error", err.Error(),
		)
		backend = watcher.NopBackend{}
	}
	watches.UseBackend(backend)

	collector := metrics.New()
	svc := service.New(service.Options{
		FS:      fs,
		Queue:   queue,
		Watches: watches,
		Metrics: collector,
		Logger:  logger,
		LibFile: cfg.LibFile,
		LazyConfiguredProjectsFromExternalProject: cfg.LazyConfiguredProjectsFromExternalProject,
	})
	defer svc.Close()

	ctx := cmd.Context()
	if serveManifest != "" {
		m, err := manifest.Load(fs, absPath(serveManifest))
		if err != nil {
			return err
		}
		if err := svc.OpenExternalProjects(ctx, m.Descriptors()); err != nil {
			return err
		}
		logger.Info("Manifest loaded", "manifest", serveManifest, "projects", len(m.Projects))
	}

	if cfg.Metrics.Addr != "" {
		stop := serveMetrics(cfg, collector, logger.Error)
		defer stop()
	}

	server := protocol.NewServer(svc, protocol.Options{
		In:       cmd.InOrStdin(),
		Out:      cmd.OutOrStdout(),
		Logger:   logger,
		Debounce: time.Duration(cfg.Watch.DebounceMs) * time.Millisecond,
		Version:  version.Version,
	})
	return server.Serve(ctx)
}

// serveMetrics exposes /metrics until the returned func is called.
func serveMetrics(cfg *config.Config, collector *metrics.Collector, logError func(string, ...any)) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logError("Metrics listener failed", "addr", cfg.Metrics.Addr, "error", err.Error())
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

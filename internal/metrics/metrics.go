// Package metrics exposes Prometheus collectors for the project service
// and the reference builder.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Build node results.
const (
	ResultBuilt   = "built"
	ResultSkipped = "skipped"
	ResultErrored = "errored"
	ResultBlocked = "blocked"
)

// Collector holds every projd metric on its own registry. A nil
// *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	projects      *prometheus.GaugeVec
	openFiles     prometheus.Gauge
	reloads       *prometheus.CounterVec
	reconciles    prometheus.Counter
	watches       *prometheus.GaugeVec
	buildNodes    *prometheus.CounterVec
	buildDuration prometheus.Histogram
}

// New creates a collector with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		projects: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "projd_projects",
			Help: "Live projects by kind",
		}, []string{"kind"}),
		openFiles: factory.NewGauge(prometheus.GaugeOpts{
			Name: "projd_open_files",
			Help: "Files currently open in the service",
		}),
		reloads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "projd_reloads_total",
			Help: "Configured project reloads by level",
		}, []string{"level"}),
		reconciles: factory.NewCounter(prometheus.CounterOpts{
			Name: "projd_reconcile_total",
			Help: "Open file reconciliation passes",
		}),
		watches: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "projd_watches",
			Help: "Distinct watches by kind",
		}, []string{"kind"}),
		buildNodes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "projd_build_nodes_total",
			Help: "Reference build nodes by result",
		}, []string{"result"}),
		buildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "projd_build_duration_seconds",
			Help:    "Duration of reference builds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// SetProjects records the number of live projects of one kind.
func (c *Collector) SetProjects(kind string, n int) {
	if c == nil {
		return
	}
	c.projects.WithLabelValues(kind).Set(float64(n))
}

// SetOpenFiles records the size of the open file set.
func (c *Collector) SetOpenFiles(n int) {
	if c == nil {
		return
	}
	c.openFiles.Set(float64(n))
}

// Reload counts one configured project reload.
func (c *Collector) Reload(level string) {
	if c == nil {
		return
	}
	c.reloads.WithLabelValues(level).Inc()
}

// Reconciled counts one reconciliation pass.
func (c *Collector) Reconciled() {
	if c == nil {
		return
	}
	c.reconciles.Inc()
}

// SetWatches records the number of distinct file and directory watches.
func (c *Collector) SetWatches(files, dirs int) {
	if c == nil {
		return
	}
	c.watches.WithLabelValues("file").Set(float64(files))
	c.watches.WithLabelValues("directory").Set(float64(dirs))
}

// BuildNode counts one build node outcome.
func (c *Collector) BuildNode(result string) {
	if c == nil {
		return
	}
	c.buildNodes.WithLabelValues(result).Inc()
}

// ObserveBuild records the duration of one builder invocation.
func (c *Collector) ObserveBuild(d time.Duration) {
	if c == nil {
		return
	}
	c.buildDuration.Observe(d.Seconds())
}

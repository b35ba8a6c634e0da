// Package metric wraps a dedicated prometheus registry with the core
// pipeline metrics: batches moving through sources, rules and sinks,
// per-subscriber drops, window closes and resource health.
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the core pipeline metrics, shared by every resource.
type Metrics struct {
	ResourceStatus   *prometheus.GaugeVec
	BatchesIngested  *prometheus.CounterVec
	BatchesProcessed *prometheus.CounterVec
	BatchesPublished *prometheus.CounterVec
	BatchesDropped   *prometheus.CounterVec
	WindowCloses     *prometheus.CounterVec
	ResourceErrors   *prometheus.CounterVec
}

func newMetrics() *Metrics {
	return &Metrics{
		ResourceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "datagate",
				Subsystem: "resource",
				Name:      "status",
				Help:      "Resource status (0=stopped, 1=running healthy, 2=running in error)",
			},
			[]string{"kind", "id"},
		),
		BatchesIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "datagate",
				Subsystem: "batches",
				Name:      "ingested_total",
				Help:      "Batches produced by sources",
			},
			[]string{"source"},
		),
		BatchesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "datagate",
				Subsystem: "batches",
				Name:      "processed_total",
				Help:      "Batches run through rule chains, by outcome",
			},
			[]string{"rule", "outcome"},
		),
		BatchesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "datagate",
				Subsystem: "batches",
				Name:      "published_total",
				Help:      "Batches delivered to sink adapters",
			},
			[]string{"sink"},
		),
		BatchesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "datagate",
				Subsystem: "batches",
				Name:      "dropped_total",
				Help:      "Batches dropped for lagging subscribers",
			},
			[]string{"subscriber"},
		),
		WindowCloses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "datagate",
				Subsystem: "windows",
				Name:      "closed_total",
				Help:      "Windows closed and aggregated",
			},
			[]string{"rule"},
		),
		ResourceErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "datagate",
				Subsystem: "resource",
				Name:      "errors_total",
				Help:      "Error transitions reported by resources",
			},
			[]string{"kind", "id"},
		),
	}
}

// Registry owns a dedicated prometheus registry populated with the
// core metrics and the Go runtime collectors.
type Registry struct {
	reg     *prometheus.Registry
	metrics *Metrics
}

// NewRegistry builds a registry with the core metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	m := newMetrics()
	reg.MustRegister(
		m.ResourceStatus,
		m.BatchesIngested,
		m.BatchesProcessed,
		m.BatchesPublished,
		m.BatchesDropped,
		m.WindowCloses,
		m.ResourceErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{reg: reg, metrics: m}
}

// Core returns the shared pipeline metrics.
func (r *Registry) Core() *Metrics { return r.metrics }

// Prometheus returns the underlying registry for custom collectors.
func (r *Registry) Prometheus() *prometheus.Registry { return r.reg }

// Handler returns the scrape endpoint handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Status values recorded in the ResourceStatus gauge.
const (
	StatusStopped = 0
	StatusRunning = 1
	StatusError   = 2
)

// SetStatus records a resource's lifecycle state.
func (m *Metrics) SetStatus(kind, id string, status float64) {
	m.ResourceStatus.WithLabelValues(kind, id).Set(status)
}

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the composer.
type Metrics struct {
	// Draft store
	DraftLoadsTotal     *prometheus.CounterVec
	DraftLoadSeconds    prometheus.Histogram
	StaleLoadsDiscarded prometheus.Counter
	AutosaveWritesTotal *prometheus.CounterVec

	// Orchestrator
	SendSubmissionsTotal *prometheus.CounterVec
	PreviewsOpenedTotal  *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a Metrics instance with all metrics registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		DraftLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "composer_draft_loads_total",
				Help: "Total number of campaign draft loads",
			},
			[]string{"outcome"},
		),
		DraftLoadSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "composer_draft_load_seconds",
				Help:    "Time to load all four facets of a draft",
				Buckets: prometheus.DefBuckets,
			},
		),
		StaleLoadsDiscarded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "composer_stale_loads_discarded_total",
				Help: "Facet loads discarded because a newer campaign was selected",
			},
		),
		AutosaveWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "composer_autosave_writes_total",
				Help: "Debounced autosave writes by facet and outcome",
			},
			[]string{"facet", "outcome"},
		),
		SendSubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "composer_send_submissions_total",
				Help: "Dispatch requests by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		PreviewsOpenedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "composer_previews_opened_total",
				Help: "Preview steps opened by entry action",
			},
			[]string{"type"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.DraftLoadsTotal,
		m.DraftLoadSeconds,
		m.StaleLoadsDiscarded,
		m.AutosaveWritesTotal,
		m.SendSubmissionsTotal,
		m.PreviewsOpenedTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

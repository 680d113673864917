// Package metrics exposes sync counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"defaulter/internal/update"
)

// Collector owns a private registry. It implements update.AuditSink so every
// outcome is counted exactly once.
type Collector struct {
	registry      *prometheus.Registry
	outcomes      *prometheus.CounterVec
	applyDuration prometheus.Histogram
	runs          *prometheus.CounterVec
	lastRun       prometheus.Gauge
}

// New registers the defaulter metrics plus Go and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Collector{
		registry: reg,
		outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "defaulter_outcomes_total",
				Help: "Viewer update outcomes by status",
			},
			[]string{"status"},
		),
		applyDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "defaulter_apply_duration_seconds",
				Help:    "Time spent applying one plan for one viewer, retries included",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "defaulter_runs_total",
				Help: "Completed sync runs by mode and result",
			},
			[]string{"mode", "result"},
		),
		lastRun: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "defaulter_last_run_timestamp_seconds",
				Help: "Unix time the last sync run finished",
			},
		),
	}
}

// Append implements update.AuditSink.
func (c *Collector) Append(rec update.Record) error {
	c.outcomes.WithLabelValues(string(rec.Status)).Inc()
	if rec.Status != update.StatusDryRun && rec.Reason != update.ReasonNoToken {
		c.applyDuration.Observe(float64(rec.DurationMs) / 1000)
	}
	return nil
}

// ObserveRun counts a finished run.
func (c *Collector) ObserveRun(mode, result string, finishedAt time.Time) {
	c.runs.WithLabelValues(mode, result).Inc()
	c.lastRun.Set(float64(finishedAt.Unix()))
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Package metrics exposes Prometheus collectors for reconciliation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rookgm/paywatch/internal/models"
)

// skip reasons
const (
	ReasonUnconfirmed = "unconfirmed"
	ReasonSeen        = "seen"
	ReasonUnmatched   = "unmatched"
)

// Reconciler holds reconciliation collectors
type Reconciler struct {
	Cycles        *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	Fetches       *prometheus.CounterVec
	Skipped       *prometheus.CounterVec
	Settlements   *prometheus.CounterVec
}

// NewReconciler creates collectors and registers them, if registry is not nil
func NewReconciler(registry *prometheus.Registry) *Reconciler {
	m := &Reconciler{
		Cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paywatch_cycles_total",
				Help: "Reconciliation cycles by result.",
			},
			[]string{"result"},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "paywatch_cycle_duration_seconds",
				Help:    "Reconciliation cycle duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
		Fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paywatch_adapter_fetch_total",
				Help: "Chain adapter fetches by asset and result.",
			},
			[]string{"asset", "result"},
		),
		Skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paywatch_transfers_skipped_total",
				Help: "Transfers not settling an order, by reason.",
			},
			[]string{"asset", "reason"},
		),
		Settlements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paywatch_settlements_total",
				Help: "Orders settled by asset.",
			},
			[]string{"asset"},
		),
	}

	if registry != nil {
		registry.MustRegister(m.Cycles, m.CycleDuration, m.Fetches, m.Skipped, m.Settlements)
	}
	return m
}

func (m *Reconciler) ObserveCycle(err error, d time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Cycles.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(d.Seconds())
}

func (m *Reconciler) ObserveFetch(asset models.Asset, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Fetches.WithLabelValues(asset.String(), result).Inc()
}

func (m *Reconciler) IncSkipped(asset models.Asset, reason string) {
	m.Skipped.WithLabelValues(asset.String(), reason).Inc()
}

func (m *Reconciler) IncSettled(asset models.Asset) {
	m.Settlements.WithLabelValues(asset.String()).Inc()
}

// NewRegistry returns registry with Go runtime and process collectors
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// Handler serves registry in Prometheus exposition format
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

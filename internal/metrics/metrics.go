// Package metrics exposes Prometheus counters for the monitor loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bot's Prometheus instruments.
type Metrics struct {
	SignalsTotal         *prometheus.CounterVec
	RecommendationsTotal *prometheus.CounterVec
	FetchErrorsTotal     *prometheus.CounterVec
	CycleDuration        prometheus.Histogram
	SymbolsProcessed     prometheus.Counter
}

// New registers the instruments on the given registerer (nil means the
// default registry).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SignalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fsb_signals_total",
			Help: "Signals emitted, by type and grade.",
		}, []string{"type", "grade"}),
		RecommendationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fsb_recommendations_total",
			Help: "Strategy recommendations emitted, by action and side.",
		}, []string{"action", "side"}),
		FetchErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fsb_fetch_errors_total",
			Help: "Data fetches that failed after retries, by platform.",
		}, []string{"platform"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fsb_cycle_duration_seconds",
			Help:    "Monitor cycle wall time.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		SymbolsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "fsb_symbols_processed_total",
			Help: "Symbols processed across all cycles.",
		}),
	}
}

// ObserveCycle records one completed cycle.
func (m *Metrics) ObserveCycle(d time.Duration) {
	m.CycleDuration.Observe(d.Seconds())
}

// Serve exposes /metrics on addr. The caller owns the returned server's
// lifecycle.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}

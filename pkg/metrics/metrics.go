// pkg/metrics/metrics.go - Prometheus counters for catalog sync and installs.

package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// Result label values.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultFresh   = "fresh"
	ResultStale   = "stale"
	ResultMiss    = "miss"
	ResultWrite   = "write"
	ResultSkipped = "skipped"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	Registry *prometheus.Registry

	FetchTotal    *prometheus.CounterVec
	FetchDuration prometheus.Histogram
	CacheTotal    *prometheus.CounterVec
	InstallTotal  *prometheus.CounterVec
}

// NewMetrics creates a collector set on its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		FetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shop_fetch_total",
				Help: "Catalog HTTP fetches by validation result",
			},
			[]string{"result"},
		),
		FetchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shop_fetch_duration_seconds",
				Help:    "Catalog HTTP fetch latency",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
			},
		),
		CacheTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shop_cache_total",
				Help: "Catalog cache lookups and writes",
			},
			[]string{"result"},
		),
		InstallTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shop_install_items_total",
				Help: "Items handed to the install engine by outcome",
			},
			[]string{"result"},
		),
	}
}

var defaultMetrics = NewMetrics()

// Default returns the process-wide collector set.
func Default() *Metrics {
	return defaultMetrics
}

// ObserveFetch records one catalog fetch.
func (m *Metrics) ObserveFetch(result string, d time.Duration) {
	m.FetchTotal.WithLabelValues(result).Inc()
	m.FetchDuration.Observe(d.Seconds())
}

// ObserveCache records a cache hit, miss or write.
func (m *Metrics) ObserveCache(result string) {
	m.CacheTotal.WithLabelValues(result).Inc()
}

// ObserveInstall records one install attempt.
func (m *Metrics) ObserveInstall(result string) {
	m.InstallTotal.WithLabelValues(result).Inc()
}

// WriteText dumps every metric in the Prometheus text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.Registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("encoding metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

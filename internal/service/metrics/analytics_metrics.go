package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	AnalyticsLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bankstats",
			Subsystem: "analytics",
			Name:      "latency_seconds",
			Help:      "Time spent computing analytics per endpoint",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	AnalyticsErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bankstats",
			Subsystem: "analytics",
			Name:      "errors_total",
			Help:      "Errors by analytics endpoint and kind",
		},
		[]string{"endpoint", "kind"},
	)

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bankstats",
			Subsystem: "analytics",
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)
)

// Register adds the analytics collectors to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(AnalyticsLatency, AnalyticsErrors, CacheLookups)
	})
}

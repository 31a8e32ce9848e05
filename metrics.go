package systems

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the collectors of one scheduler. They are registered on the
// registerer given to the builder, or on a private registry.
type metrics struct {
	// ticks counts completed ticks
	ticks prometheus.Counter

	// tickDuration tracks tick latency
	tickDuration prometheus.Histogram

	// failures counts reported system failures by phase
	failures *prometheus.CounterVec

	// nodes tracks the number of nodes in the graph
	nodes prometheus.Gauge

	// cycles counts detected group and system cycles
	cycles prometheus.Counter
}

func newMetrics(reg prometheus.Registerer, namespace, schedulerID string) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	labels := prometheus.Labels{"scheduler": schedulerID}
	f := promauto.With(reg)
	return &metrics{
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "ticks_total",
			Help:        "Total completed scheduler ticks",
			ConstLabels: labels,
		}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "tick_duration_seconds",
			Help:        "Scheduler tick duration in seconds",
			Buckets:     prometheus.ExponentialBuckets(0.00001, 4, 10), // 10us to ~2.6s
			ConstLabels: labels,
		}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "system_failures_total",
			Help:        "Total system failures by lifecycle phase",
			ConstLabels: labels,
		}, []string{"phase"}),
		nodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "nodes",
			Help:        "Number of systems and groups in the graph",
			ConstLabels: labels,
		}),
		cycles: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "cycles_total",
			Help:        "Total circular dependencies detected while sorting",
			ConstLabels: labels,
		}),
	}
}

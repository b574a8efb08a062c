package fetcher

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Operations, used as metric labels
const (
	OpDownloadData       = "download_data"
	OpDownloadGeometries = "download_geometries"
)

// Metrics of the fetcher. A nil *Metrics records nothing.
type Metrics struct {
	reg               *prometheus.Registry
	requests          *prometheus.CounterVec
	duration          *prometheus.HistogramVec
	partitionFailures *prometheus.CounterVec
}

// NewMetrics registers the collectors of the fetcher in a new registry, with the go and process collectors
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := &Metrics{
		reg: reg,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fetcher_requests_total",
				Help: "Requests by operation and outcome kind.",
			},
			[]string{"operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fetcher_request_duration_seconds",
				Help:    "Duration of the requests in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			},
			[]string{"operation", "shape"},
		),
		partitionFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fetcher_partition_failures_total",
				Help: "Partitions of vector collections that could not be read.",
			},
			[]string{"collection"},
		),
	}
	reg.MustRegister(m.requests, m.duration, m.partitionFailures)
	return m
}

// Handler exposes the metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registerer returns the registry of the metrics
func (m *Metrics) Registerer() prometheus.Registerer { return m.reg }

func (m *Metrics) observe(operation, shape, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(operation, outcome).Inc()
	if shape != "" {
		m.duration.WithLabelValues(operation, shape).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) partitionsFailed(collection string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.partitionFailures.WithLabelValues(collection).Add(float64(n))
}

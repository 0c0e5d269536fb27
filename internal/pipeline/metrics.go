// ABOUTME: Prometheus collectors for pipeline throughput and rejections
// ABOUTME: Optional; attached with WithMetrics when the metrics endpoint is enabled

package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline's prometheus collectors.
type Metrics struct {
	requests     prometheus.Counter
	rejections   *prometheus.CounterVec
	stageLatency *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "pipeline",
			Name:      "requests_total",
			Help:      "Requests entering the admission pipeline.",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Subsystem: "pipeline",
			Name:      "rejections_total",
			Help:      "Requests rejected, by stage and code.",
		}, []string{"stage", "code"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gateway",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Per-stage processing latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}
	reg.MustRegister(m.requests, m.rejections, m.stageLatency)
	return m
}

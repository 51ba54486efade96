// Package observability provides Prometheus, OpenTelemetry and slog
// implementations of the service observability interfaces.
package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rollcall"

// PrometheusRecorder records service operations and persistence mirror writes.
// It satisfies core.MetricsRecorder and persist.MirrorMetrics.
type PrometheusRecorder struct {
	registry       *prometheus.Registry
	opDuration     *prometheus.HistogramVec
	opResults      *prometheus.CounterVec
	mirrorWrites   *prometheus.CounterVec
	mirrorDuration prometheus.Histogram
}

// NewPrometheusRecorder registers the rollcall collectors on a fresh registry,
// together with the Go runtime and process collectors.
func NewPrometheusRecorder() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		registry: reg,
		opDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Latency of service operations",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
			[]string{"operation"},
		),
		opResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Service operations by outcome",
			},
			[]string{"operation", "status"},
		),
		mirrorWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mirror_writes_total",
				Help:      "Persistence mirror writes by outcome",
			},
			[]string{"status"},
		),
		mirrorDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "mirror_write_duration_seconds",
				Help:      "Latency of persistence mirror writes",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
			},
		),
	}
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// Observe implements core.MetricsRecorder.
func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.opDuration.WithLabelValues(operation).Observe(duration.Seconds())
	r.opResults.WithLabelValues(operation, status(success)).Inc()
}

// ObserveMirrorWrite implements persist.MirrorMetrics.
func (r *PrometheusRecorder) ObserveMirrorWrite(_ context.Context, success bool, duration time.Duration) {
	r.mirrorWrites.WithLabelValues(status(success)).Inc()
	r.mirrorDuration.Observe(duration.Seconds())
}

// BadgeSource exposes the badge counters published as gauges.
type BadgeSource interface {
	TotalEventsCount() int
	UnpaidEventsCount() int
}

// RegisterBadges publishes the event badge counters, read at scrape time.
func (r *PrometheusRecorder) RegisterBadges(src BadgeSource) {
	factory := promauto.With(r.registry)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "events",
		Help:      "Number of events",
	}, func() float64 { return float64(src.TotalEventsCount()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "events_unpaid",
		Help:      "Number of events with at least one unpaid attendee",
	}, func() float64 { return float64(src.UnpaidEventsCount()) })
}

// Registry returns the registry holding every collector.
func (r *PrometheusRecorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

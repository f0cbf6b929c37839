package utils

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tracks performance metrics across the system. A nil collector is valid
// and records nothing.
type MetricsCollector struct {
	registry *prometheus.Registry

	connections     *prometheus.GaugeVec
	framesReceived  *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
	errorCount      *prometheus.CounterVec

	// Operation name -> latency histogram
	operationTimes *prometheus.HistogramVec

	systemStartTime time.Time
}

func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "messaging",
			Name:      "active_connections",
			Help:      "Live WebSocket connections by session kind.",
		}, []string{"kind"}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "messaging",
			Name:      "frames_received_total",
			Help:      "Inbound frames by type.",
		}, []string{"type"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "messaging",
			Name:      "events_published_total",
			Help:      "Events published to rooms by type.",
		}, []string{"type"}),
		errorCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "messaging",
			Name:      "errors_total",
			Help:      "Errors by application error code.",
		}, []string{"code"}),
		operationTimes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "messaging",
			Name:      "operation_duration_seconds",
			Help:      "Latency of store operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		systemStartTime: time.Now(),
	}
	mc.registry.MustRegister(
		mc.connections,
		mc.framesReceived,
		mc.eventsPublished,
		mc.errorCount,
		mc.operationTimes,
		collectors.NewGoCollector(),
	)
	return mc
}

func (mc *MetricsCollector) ConnectionOpened(kind string) {
	if mc == nil {
		return
	}
	mc.connections.WithLabelValues(kind).Inc()
}

func (mc *MetricsCollector) ConnectionClosed(kind string) {
	if mc == nil {
		return
	}
	mc.connections.WithLabelValues(kind).Dec()
}

func (mc *MetricsCollector) FrameReceived(frameType string) {
	if mc == nil {
		return
	}
	mc.framesReceived.WithLabelValues(frameType).Inc()
}

func (mc *MetricsCollector) EventPublished(eventType string) {
	if mc == nil {
		return
	}
	mc.eventsPublished.WithLabelValues(eventType).Inc()
}

// IncrementErrors counts err under its AppError code ("unknown" otherwise).
func (mc *MetricsCollector) IncrementErrors(err error) {
	if mc == nil || err == nil {
		return
	}
	code := ErrorCode(err)
	if code == "" {
		code = "unknown"
	}
	mc.errorCount.WithLabelValues(code).Inc()
}

func (mc *MetricsCollector) AddOperationLatency(operationName string, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.operationTimes.WithLabelValues(operationName).Observe(duration.Seconds())
}

func (mc *MetricsCollector) Uptime() time.Duration {
	if mc == nil {
		return 0
	}
	return time.Since(mc.systemStartTime)
}

// Handler serves the collector's registry in the Prometheus text format.
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}

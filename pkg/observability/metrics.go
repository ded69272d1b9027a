// Package observability supplies a Prometheus-backed storm.Metrics
// implementation and an OpenTelemetry tracer for the connection lifecycle.
// Adapted from the teacher's pkg/observability/prometheus package, narrowed
// from its generic HTTP/EventBus/database metric set down to the counters
// and gauges a connection backend actually produces.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics implements storm.Metrics with a registered counter/gauge
// set namespaced under namespace (default "stormsocket" if empty).
type PrometheusMetrics struct {
	connectionsOpened prometheus.Counter
	connectionsClosed prometheus.Counter
	connectionsActive prometheus.Gauge
	bytesSentTotal    prometheus.Counter
	bytesRecvTotal    prometheus.Counter
}

// NewPrometheusMetrics registers a fresh metric set against registerer (or
// prometheus.DefaultRegisterer if nil) under namespace.
func NewPrometheusMetrics(registerer prometheus.Registerer, namespace string) *PrometheusMetrics {
	if namespace == "" {
		namespace = "stormsocket"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	m := &PrometheusMetrics{
		connectionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_opened_total",
			Help:      "Total connections accepted or successfully dialed.",
		}),
		connectionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_closed_total",
			Help:      "Total connections that completed cleanup.",
		}),
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Connections currently open (opened minus closed).",
		}),
		bytesSentTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total bytes written to connections by the send workers.",
		}),
		bytesRecvTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Total bytes read from connections by the recv loops.",
		}),
	}
	return m
}

// ConnectionOpened implements storm.Metrics.
func (m *PrometheusMetrics) ConnectionOpened() {
	m.connectionsOpened.Inc()
	m.connectionsActive.Inc()
}

// ConnectionClosed implements storm.Metrics.
func (m *PrometheusMetrics) ConnectionClosed() {
	m.connectionsClosed.Inc()
	m.connectionsActive.Dec()
}

// BytesSent implements storm.Metrics.
func (m *PrometheusMetrics) BytesSent(n int) {
	m.bytesSentTotal.Add(float64(n))
}

// BytesReceived implements storm.Metrics.
func (m *PrometheusMetrics) BytesReceived(n int) {
	m.bytesRecvTotal.Add(float64(n))
}

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestPrometheusMetrics_ConnectionLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMetrics(reg, "test")

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.BytesSent(128)
	m.BytesReceived(64)

	gauge := readGauge(t, reg, "test_connections_active")
	if gauge != 1 {
		t.Fatalf("connections_active = %v, want 1", gauge)
	}

	sent := readCounter(t, reg, "test_bytes_sent_total")
	if sent != 128 {
		t.Fatalf("bytes_sent_total = %v, want 128", sent)
	}
	recv := readCounter(t, reg, "test_bytes_received_total")
	if recv != 64 {
		t.Fatalf("bytes_received_total = %v, want 64", recv)
	}
}

func readGauge(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	return readMetric(t, reg, name).GetGauge().GetValue()
}

func readCounter(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	return readMetric(t, reg, name).GetCounter().GetValue()
}

func readMetric(t *testing.T, reg *prometheus.Registry, name string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f.GetMetric()[0]
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveOperation("create", "ok", 0.01)
	m.ObserveOperation("create", "ConflictError", 0.02)
	m.ObserveOperation("create", "ok", 0.01)
	m.ObserveSlots(4)
	m.ObservePublished(3)
	m.ObservePublishFailure()

	if got := testutil.ToFloat64(m.operationsTotal.WithLabelValues("create", "ok")); got != 2 {
		t.Fatalf("expected 2 successful creates, got %v", got)
	}
	if got := testutil.ToFloat64(m.outboxPublished); got != 3 {
		t.Fatalf("expected 3 published events, got %v", got)
	}
	if got := testutil.ToFloat64(m.outboxPublishFail); got != 1 {
		t.Fatalf("expected 1 publish failure, got %v", got)
	}
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveOperation("create", "ok", 0.1)
	m.ObserveSlots(1)
	m.ObservePublished(1)
	m.ObservePublishFailure()
}

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordStoreOperation(t *testing.T) {
	m := New()

	m.RecordStoreOperation("add_message", nil, 5*time.Millisecond)
	m.RecordStoreOperation("add_message", errors.New("boom"), time.Millisecond)
	m.RecordStoreOperation("add_message", nil, time.Millisecond)

	if got := testutil.ToFloat64(m.StoreOperationsTotal.WithLabelValues("add_message", "success")); got != 2 {
		t.Errorf("expected 2 successful operations, got %v", got)
	}
	if got := testutil.ToFloat64(m.StoreOperationsTotal.WithLabelValues("add_message", "error")); got != 1 {
		t.Errorf("expected 1 failed operation, got %v", got)
	}
}

func TestConnectionGauge(t *testing.T) {
	m := New()

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()

	if got := testutil.ToFloat64(m.WSConnections); got != 1 {
		t.Errorf("expected 1 live connection, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordBroadcast("message")
	m.RecordFrame("typing", "ok")
	m.ConnectionOpened()
	m.RecordStoreOperation("get_messages", nil, time.Millisecond)
}

func TestSeparateInstancesDoNotCollide(t *testing.T) {
	a := New()
	b := New()
	a.RecordBroadcast("message")
	if got := testutil.ToFloat64(b.WSBroadcastsTotal.WithLabelValues("message")); got != 0 {
		t.Errorf("expected independent registries, got %v", got)
	}
}

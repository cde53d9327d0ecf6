// Package metrics provides Prometheus metrics for the chat service
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	// HTTP request metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Store metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec

	// Realtime metrics
	WSConnections     prometheus.Gauge
	WSFramesTotal     *prometheus.CounterVec
	WSBroadcastsTotal *prometheus.CounterVec
	WSDroppedClients  prometheus.Counter
	RelayEventsTotal  *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portalchat_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portalchat_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		StoreOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portalchat_store_operations_total",
				Help: "Total number of conversation store operations",
			},
			[]string{"operation", "status"},
		),
		StoreOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portalchat_store_operation_duration_seconds",
				Help:    "Duration of conversation store operations in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "portalchat_ws_connections",
				Help: "Number of live WebSocket connections",
			},
		),
		WSFramesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portalchat_ws_frames_total",
				Help: "Inbound WebSocket frames by envelope type and outcome",
			},
			[]string{"type", "outcome"},
		),
		WSBroadcastsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portalchat_ws_broadcasts_total",
				Help: "Broadcast events fanned out by type",
			},
			[]string{"type"},
		),
		WSDroppedClients: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "portalchat_ws_dropped_clients_total",
				Help: "Clients disconnected because their send buffer was full",
			},
		),
		RelayEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portalchat_relay_events_total",
				Help: "Cross-instance relay events by direction and status",
			},
			[]string{"direction", "status"},
		),
	}
}

func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *Metrics) RecordStoreOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.StoreOperationsTotal.WithLabelValues(operation, statusLabel(err)).Inc()
	m.StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

func (m *Metrics) RecordFrame(frameType, outcome string) {
	if m == nil {
		return
	}
	m.WSFramesTotal.WithLabelValues(frameType, outcome).Inc()
}

func (m *Metrics) RecordBroadcast(eventType string) {
	if m == nil {
		return
	}
	m.WSBroadcastsTotal.WithLabelValues(eventType).Inc()
}

func (m *Metrics) RecordDroppedClient() {
	if m == nil {
		return
	}
	m.WSDroppedClients.Inc()
}

func (m *Metrics) RecordRelayEvent(direction string, err error) {
	if m == nil {
		return
	}
	m.RelayEventsTotal.WithLabelValues(direction, statusLabel(err)).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

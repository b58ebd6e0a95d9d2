// Package monitoring exposes Prometheus metrics for the transport.
package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. Each Metrics instance carries its
// own registry so tests can build routers independently without duplicate
// registration panics.
type Metrics struct {
	registry *prometheus.Registry

	// Transaction metrics
	TransactionsTotal *prometheus.CounterVec
	TransactionBytes  prometheus.Histogram
	OnewayDropped     prometheus.Counter
	PendingCalls      prometheus.Gauge

	// Table metrics
	NodesActive     prometheus.Gauge
	ProcessesActive prometheus.Gauge

	// Lifecycle metrics
	DeathNotifications prometheus.Counter

	// Pool metrics
	PoolWorkers prometheus.Gauge

	// Bridge metrics
	BridgeSessions prometheus.Gauge

	// Uptime
	startTime time.Time

	mu       sync.RWMutex
	snapshot Snapshot
}

// Snapshot holds current values for the JSON debug API.
type Snapshot struct {
	TotalTransactions int64 `json:"total_transactions"`
	TotalFailures     int64 `json:"total_failures"`
	OnewayDropped     int64 `json:"oneway_dropped"`
	DeathsDelivered   int64 `json:"deaths_delivered"`
	UptimeSeconds     int64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector with its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry:  reg,
		startTime: time.Now(),

		TransactionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transit_transactions_total",
				Help: "Total transactions routed, by reply status",
			},
			[]string{"status"},
		),
		TransactionBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "transit_transaction_payload_bytes",
				Help:    "Transaction payload size in bytes",
				Buckets: []float64{64, 256, 1024, 4096, 16384, 65536, 262144, 1048576},
			},
		),
		OnewayDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "transit_oneway_dropped_total",
				Help: "One-way transactions dropped because the target was dead",
			},
		),
		PendingCalls: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "transit_pending_calls",
				Help: "Synchronous calls parked waiting for a reply",
			},
		),
		NodesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "transit_nodes_active",
				Help: "Live nodes in the arena",
			},
		),
		ProcessesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "transit_processes_active",
				Help: "Open process channels",
			},
		),
		DeathNotifications: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "transit_death_notifications_total",
				Help: "Death notifications delivered to watchers",
			},
		),
		PoolWorkers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "transit_pool_workers",
				Help: "Dispatch workers currently alive across all pools",
			},
		),
		BridgeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "transit_bridge_sessions",
				Help: "Attached websocket bridge sessions",
			},
		),
	}
}

// Registry returns the registry backing this collector, for promhttp.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordTransaction records one routed transaction and its outcome.
func (m *Metrics) RecordTransaction(status string, payloadBytes int, failed bool) {
	m.TransactionsTotal.WithLabelValues(status).Inc()
	m.TransactionBytes.Observe(float64(payloadBytes))

	m.mu.Lock()
	m.snapshot.TotalTransactions++
	if failed {
		m.snapshot.TotalFailures++
	}
	m.mu.Unlock()
}

// RecordOnewayDropped records a one-way transaction dropped on a dead peer.
func (m *Metrics) RecordOnewayDropped() {
	m.OnewayDropped.Inc()
	m.mu.Lock()
	m.snapshot.OnewayDropped++
	m.mu.Unlock()
}

// RecordDeathNotification records one delivered watcher callback.
func (m *Metrics) RecordDeathNotification() {
	m.DeathNotifications.Inc()
	m.mu.Lock()
	m.snapshot.DeathsDelivered++
	m.mu.Unlock()
}

// GetSnapshot returns current values for the JSON debug API.
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	snap := m.snapshot
	m.mu.RUnlock()
	snap.UptimeSeconds = int64(time.Since(m.startTime).Seconds())
	return snap
}

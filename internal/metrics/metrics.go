// Package metrics wraps the Prometheus collectors exported by a gridlab
// server: connection/room counts, batch throughput, and the error
// counters the protocol's error-handling design treats as routine
// (divergence, malformed frames, slow-client drops).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry groups the collectors a gridlab server registers.
type Registry struct {
	Connections gaugeVec
	Messages    counterVec
	System      systemGaugeVec
}

type gaugeVec struct {
	ActiveConnections prometheus.Gauge
	ActiveRooms       prometheus.Gauge
}

type counterVec struct {
	BatchesApplied     prometheus.Counter
	BatchesBroadcast   prometheus.Counter
	DecodeErrors       prometheus.Counter
	DivergenceDropped  prometheus.Counter
	SlowClientsDropped prometheus.Counter
}

type systemGaugeVec struct {
	CPUPercent     prometheus.Gauge
	HeapAllocBytes prometheus.Gauge
	Goroutines     prometheus.Gauge
}

// NewRegistry creates and registers every gridlab collector against the
// default Prometheus registry.
func NewRegistry() *Registry {
	return &Registry{
		Connections: gaugeVec{
			ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "gridlab_connections_active",
				Help: "Number of WebSocket connections currently joined to a room",
			}),
			ActiveRooms: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "gridlab_rooms_active",
				Help: "Number of rooms currently held in the server's room map",
			}),
		},
		Messages: counterVec{
			BatchesApplied: promauto.NewCounter(prometheus.CounterOpts{
				Name: "gridlab_batches_applied_total",
				Help: "Total number of change batches accepted and applied to a room's engine",
			}),
			BatchesBroadcast: promauto.NewCounter(prometheus.CounterOpts{
				Name: "gridlab_batches_broadcast_total",
				Help: "Total number of change-batch frames written to peers, counted once per receiving peer",
			}),
			DecodeErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "gridlab_decode_errors_total",
				Help: "Total number of inbound frames dropped for failing to decode, plus failed WebSocket handshakes",
			}),
			DivergenceDropped: promauto.NewCounter(prometheus.CounterOpts{
				Name: "gridlab_divergence_dropped_total",
				Help: "Total number of inbound batches dropped for a stale hash_before",
			}),
			SlowClientsDropped: promauto.NewCounter(prometheus.CounterOpts{
				Name: "gridlab_slow_clients_dropped_total",
				Help: "Total number of clients disconnected for a full outbound queue",
			}),
		},
		System: systemGaugeVec{
			CPUPercent: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "gridlab_process_cpu_percent",
				Help: "Smoothed host-wide CPU usage percentage, sampled via gopsutil",
			}),
			HeapAllocBytes: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "gridlab_process_heap_alloc_bytes",
				Help: "Go runtime heap allocation in bytes",
			}),
			Goroutines: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "gridlab_process_goroutines",
				Help: "Number of goroutines reported by the Go runtime",
			}),
		},
	}
}

// Handler returns an HTTP handler exposing the Prometheus registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.Handler()
}

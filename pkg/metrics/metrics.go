// Package metrics wires Prometheus instrumentation for the transport
// and controller layers: packets sent per delivery mode, snapshot vs.
// delta frame counts, connected-client and jitter-buffer-depth gauges.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every counter/gauge the reference binaries report.
// Registered once against the default registry via New.
type Metrics struct {
	PacketsSent       *prometheus.CounterVec
	SnapshotFrames    prometheus.Counter
	DeltaFrames       prometheus.Counter
	ConnectedClients  prometheus.Gauge
	JitterBufferDepth prometheus.Gauge
}

// New registers and returns the metric set. Call once per process;
// registering twice against the same registry panics, matching
// promauto's own behavior.
func New() *Metrics {
	return &Metrics{
		PacketsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replicate",
			Name:      "packets_sent_total",
			Help:      "Datagrams sent, labeled by delivery mode.",
		}, []string{"delivery_mode"}),
		SnapshotFrames: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "replicate",
			Name:      "snapshot_frames_total",
			Help:      "Ticks on which a full snapshot was broadcast.",
		}),
		DeltaFrames: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "replicate",
			Name:      "delta_frames_total",
			Help:      "Ticks on which a delta was broadcast.",
		}),
		ConnectedClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "replicate",
			Name:      "connected_clients",
			Help:      "Clients currently tracked as connected.",
		}),
		JitterBufferDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "replicate",
			Name:      "jitter_buffer_depth",
			Help:      "Entries currently held in the client jitter buffer.",
		}),
	}
}

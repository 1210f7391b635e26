// Package metrics exposes optional Prometheus counters/gauges for broker
// operators. Nothing in the broker's protocol logic branches on metrics
// state; this is purely an observability surface.
//
// Grounded on _examples/golang-io-mqtt/stat.go's Stat struct — the teacher
// repo itself does not import prometheus, so this is an enrichment pulled
// from the rest of the retrieval pack rather than the chosen teacher.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every counter/gauge the broker updates.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	PacketsReceived   prometheus.Counter
	BytesReceived     prometheus.Counter
	PacketsSent       prometheus.Counter
	BytesSent         prometheus.Counter
	GCSweeps          prometheus.Counter
}

// New builds a Metrics bundle and registers it against registry. Pass
// prometheus.NewRegistry() for an isolated registry in tests, or
// prometheus.DefaultRegisterer for a process-wide one.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vigil_active_connections",
			Help: "Number of currently active broker connections.",
		}),
		PacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vigil_packets_received_total",
			Help: "Total control packets received by the broker.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vigil_bytes_received_total",
			Help: "Total bytes received by the broker.",
		}),
		PacketsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vigil_packets_sent_total",
			Help: "Total control packets sent by the broker.",
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vigil_bytes_sent_total",
			Help: "Total bytes sent by the broker.",
		}),
		GCSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vigil_retained_gc_sweeps_total",
			Help: "Total retained-log GC sweeps performed.",
		}),
	}

	registerer.MustRegister(
		m.ActiveConnections,
		m.PacketsReceived,
		m.BytesReceived,
		m.PacketsSent,
		m.BytesSent,
		m.GCSweeps,
	)
	return m
}

// Handler returns the HTTP handler serving the /metrics scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

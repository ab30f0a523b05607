// Package metrics is a Prometheus-backed implementation of the connection
// measurement hooks
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stats counts connection activity in Prometheus metrics. Safe for
// concurrent use; one instance may serve several connections.
type Stats struct {
	framesSent     prometheus.Counter
	framesReceived prometheus.Counter
	bytesSent      prometheus.Counter
	bytesReceived  prometheus.Counter
	connects       prometheus.Counter
	errors         prometheus.Counter
}

// New creates a Stats registering its metrics with the given registerer
// (pass prometheus.DefaultRegisterer for the usual global registry)
func New(reg prometheus.Registerer) *Stats {
	factory := promauto.With(reg)
	return &Stats{
		framesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "livequery_frames_sent_total",
			Help: "Frames sent to the live query server",
		}),
		framesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "livequery_frames_received_total",
			Help: "Frames received from the live query server",
		}),
		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "livequery_sent_bytes_total",
			Help: "Payload bytes sent to the live query server",
		}),
		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "livequery_received_bytes_total",
			Help: "Payload bytes received from the live query server",
		}),
		connects: factory.NewCounter(prometheus.CounterOpts{
			Name: "livequery_connects_total",
			Help: "Completed live query handshakes",
		}),
		errors: factory.NewCounter(prometheus.CounterOpts{
			Name: "livequery_errors_total",
			Help: "Live query connection errors",
		}),
	}
}

// FrameSent implements client.Stats
func (s *Stats) FrameSent(bytes int) {
	s.framesSent.Inc()
	s.bytesSent.Add(float64(bytes))
}

// FrameReceived implements client.Stats
func (s *Stats) FrameReceived(bytes int) {
	s.framesReceived.Inc()
	s.bytesReceived.Add(float64(bytes))
}

// Connected implements client.Stats
func (s *Stats) Connected() {
	s.connects.Inc()
}

// Error implements client.Stats
func (s *Stats) Error() {
	s.errors.Inc()
}

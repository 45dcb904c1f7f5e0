// Package metrics exposes Prometheus counters for relay activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds relay collectors on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	activeSessions    prometheus.Gauge
	sessionsTotal     prometheus.Counter
	chunksForwarded   *prometheus.CounterVec
	chunksDropped     *prometheus.CounterVec
	interruptions     prometheus.Counter
	policyDisconnects *prometheus.CounterVec
	malformedMessages *prometheus.CounterVec
	callsPlaced       *prometheus.CounterVec
}

// New creates collectors under namespace.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		activeSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Calls currently bridged.",
		}),
		sessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Calls bridged since start.",
		}),
		chunksForwarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_forwarded_total",
			Help:      "Audio chunks relayed, by direction.",
		}, []string{"direction"}),
		chunksDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_dropped_total",
			Help:      "Audio chunks dropped because the destination was unavailable.",
		}, []string{"direction"}),
		interruptions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interruptions_total",
			Help:      "Caller barge-ins that truncated AI playback.",
		}),
		policyDisconnects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_disconnects_total",
			Help:      "Calls ended by a disconnect phrase.",
		}, []string{"phrase"}),
		malformedMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_messages_total",
			Help:      "Peer messages that failed to decode.",
		}, []string{"peer"}),
		callsPlaced: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_calls_total",
			Help:      "Outbound call attempts, by result.",
		}, []string{"result"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
	m.sessionsTotal.Inc()
}

func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *Metrics) ChunkForwarded(direction string) {
	if m == nil {
		return
	}
	m.chunksForwarded.WithLabelValues(direction).Inc()
}

func (m *Metrics) ChunkDropped(direction string) {
	if m == nil {
		return
	}
	m.chunksDropped.WithLabelValues(direction).Inc()
}

func (m *Metrics) Interrupted() {
	if m == nil {
		return
	}
	m.interruptions.Inc()
}

func (m *Metrics) PolicyDisconnect(phrase string) {
	if m == nil {
		return
	}
	m.policyDisconnects.WithLabelValues(phrase).Inc()
}

func (m *Metrics) Malformed(peer string) {
	if m == nil {
		return
	}
	m.malformedMessages.WithLabelValues(peer).Inc()
}

func (m *Metrics) CallPlaced(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.callsPlaced.WithLabelValues(result).Inc()
}

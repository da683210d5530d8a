// Package metrics exposes Prometheus collectors for the chat server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roomchat"

// Metrics holds the server collectors on a private registry. It implements
// chat.Observer.
type Metrics struct {
	registry *prometheus.Registry

	users       prometheus.Gauge
	connections prometheus.Gauge
	messages    *prometheus.CounterVec
	reactions   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	rateLimited prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		users: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "users_connected",
			Help:      "Users that completed join-chat and are still connected.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Open WebSocket connections.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_stored_total",
			Help:      "Messages accepted and stored, by room and type.",
		}, []string{"room", "type"}),
		reactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reactions_toggled_total",
			Help:      "Reaction toggles applied, by room.",
		}, []string{"room"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Outbound events dropped because a client queue was full or closed.",
		}, []string{"event"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_rate_limited_total",
			Help:      "Inbound frames discarded by the per-connection rate limiter.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.users, m.connections, m.messages, m.reactions, m.dropped, m.rateLimited,
	)
	return m
}

// Handler exposes the registry at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// UserConnected counts a user that completed join-chat.
func (m *Metrics) UserConnected() { m.users.Inc() }

// UserDisconnected releases a user counted by UserConnected.
func (m *Metrics) UserDisconnected() { m.users.Dec() }

// MessageStored counts a message accepted into a room's history.
func (m *Metrics) MessageStored(roomID, msgType string) {
	m.messages.WithLabelValues(roomID, msgType).Inc()
}

// ReactionToggled counts one reaction add or removal.
func (m *Metrics) ReactionToggled(roomID string) { m.reactions.WithLabelValues(roomID).Inc() }

// DeliveryDropped counts an outbound event that could not be queued.
func (m *Metrics) DeliveryDropped(eventType string) { m.dropped.WithLabelValues(eventType).Inc() }

// ConnectionOpened and ConnectionClosed track raw WebSocket connections,
// including ones that never announce a user.
func (m *Metrics) ConnectionOpened() { m.connections.Inc() }
func (m *Metrics) ConnectionClosed() { m.connections.Dec() }

// RateLimited counts a discarded inbound frame.
func (m *Metrics) RateLimited() { m.rateLimited.Inc() }

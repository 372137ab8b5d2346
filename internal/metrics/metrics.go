// Package metrics provides Prometheus instrumentation for the chat server:
// gauges for live connections and online users, counters for persisted
// messages and fanned-out realtime events.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of live WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "webchat_connections_total",
		Help: "Current number of live WebSocket connections",
	})

	// OnlineUsers tracks the number of distinct users with at least one
	// live connection.
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "webchat_online_users",
		Help: "Distinct users with at least one live connection",
	})

	// MessagesTotal counts persisted messages, labeled by kind.
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webchat_messages_total",
		Help: "Total number of messages persisted",
	}, []string{"kind"}) // kind = text, image, voice, file

	// EventsTotal counts realtime events pushed to connections, labeled by
	// event name.
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webchat_events_total",
		Help: "Total number of realtime events delivered to connections",
	}, []string{"event"})

	// PresenceMisses counts events dropped because the target user had no
	// live connections. Diagnostics only; never an error.
	PresenceMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "webchat_presence_misses_total",
		Help: "Events dropped because the target user had no live connections",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		OnlineUsers,
		MessagesTotal,
		EventsTotal,
		PresenceMisses,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

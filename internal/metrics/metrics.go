// Package metrics provides Prometheus instrumentation for the collaboration
// server. It exposes gauges for connection and presence counts, counters for
// event throughput, and a histogram for broadcast fan-out latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "collab_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// OnlineUsers tracks the number of distinct users with at least one
	// live connection.
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "collab_online_users",
		Help: "Current number of distinct online users",
	})

	// EventsTotal counts processed room events labeled by wire event type
	// (chat:message, topic:post, ...).
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_events_total",
		Help: "Total number of room events processed",
	}, []string{"event"})

	// ErrorsTotal counts error events delivered back to callers, labeled by
	// the wire event type that failed.
	ErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "collab_errors_total",
		Help: "Total number of error events sent to callers",
	}, []string{"event"})

	// BroadcastLatency records the time from event receipt to the completion
	// of the room fan-out, including the persistence write.
	BroadcastLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "collab_broadcast_latency_seconds",
		Help:    "Persist-then-broadcast latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// RoomFanout records how many connections each room broadcast reached.
	RoomFanout = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "collab_room_fanout_connections",
		Help:    "Connections reached per room broadcast",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		OnlineUsers,
		EventsTotal,
		ErrorsTotal,
		BroadcastLatency,
		RoomFanout,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RoomMetrics covers the live-room engine: room and member population,
// shell sessions, event traffic, watcher activity, and sync suppressions.
type RoomMetrics struct {
	roomsActive    prometheus.Gauge
	roomMembers    *prometheus.GaugeVec
	ptySessions    prometheus.Gauge
	eventsReceived *prometheus.CounterVec
	eventsSent     *prometheus.CounterVec
	watcherEvents  *prometheus.CounterVec
	syncSuppressed *prometheus.CounterVec
	treeErrors     *prometheus.CounterVec
}

// NewRoomMetrics creates a Prometheus-backed RoomMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called); all
// methods are safe to call on the nil receiver.
func NewRoomMetrics() *RoomMetrics {
	if !IsEnabled() {
		return nil
	}
	return newRoomMetrics(GetRegistry())
}

// newRoomMetrics registers the collectors on a specific registry. Tests
// use it directly with a fresh registry to avoid duplicate registration.
func newRoomMetrics(reg *prometheus.Registry) *RoomMetrics {
	return &RoomMetrics{
		roomsActive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "codehive_rooms_active",
			Help: "Number of rooms currently materialized in memory",
		}),
		roomMembers: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "codehive_room_members",
				Help: "Number of connected users per room",
			},
			[]string{"room"},
		),
		ptySessions: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "codehive_pty_sessions_active",
			Help: "Number of live shell sessions",
		}),
		eventsReceived: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "codehive_events_received_total",
				Help: "Total inbound websocket events by event name",
			},
			[]string{"event"},
		),
		eventsSent: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "codehive_events_sent_total",
				Help: "Total outbound websocket events by event name",
			},
			[]string{"event"},
		),
		watcherEvents: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "codehive_watcher_events_total",
				Help: "Total filesystem watcher events by operation",
			},
			[]string{"op"},
		),
		syncSuppressed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "codehive_sync_suppressed_total",
				Help: "Total mirror writes suppressed by the sync arbiter, by origin",
			},
			[]string{"origin"},
		),
		treeErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "codehive_tree_errors_total",
				Help: "Total failed tree operations by error code",
			},
			[]string{"code"},
		),
	}
}

// RoomOpened records a room being materialized.
func (m *RoomMetrics) RoomOpened() {
	if m == nil {
		return
	}
	m.roomsActive.Inc()
}

// RoomClosed records a room being torn down.
func (m *RoomMetrics) RoomClosed(room string) {
	if m == nil {
		return
	}
	m.roomsActive.Dec()
	m.roomMembers.DeleteLabelValues(room)
}

// SetMembers records the current member count of a room.
func (m *RoomMetrics) SetMembers(room string, count int) {
	if m == nil {
		return
	}
	m.roomMembers.WithLabelValues(room).Set(float64(count))
}

// PTYSpawned records a new shell session.
func (m *RoomMetrics) PTYSpawned() {
	if m == nil {
		return
	}
	m.ptySessions.Inc()
}

// PTYClosed records a shell session ending.
func (m *RoomMetrics) PTYClosed() {
	if m == nil {
		return
	}
	m.ptySessions.Dec()
}

// EventReceived counts one inbound event.
func (m *RoomMetrics) EventReceived(event string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(event).Inc()
}

// EventSent counts one outbound event.
func (m *RoomMetrics) EventSent(event string) {
	if m == nil {
		return
	}
	m.eventsSent.WithLabelValues(event).Inc()
}

// WatcherEvent counts one filesystem watcher event.
func (m *RoomMetrics) WatcherEvent(op string) {
	if m == nil {
		return
	}
	m.watcherEvents.WithLabelValues(op).Inc()
}

// SyncSuppressed counts one write dropped by the arbiter.
func (m *RoomMetrics) SyncSuppressed(origin string) {
	if m == nil {
		return
	}
	m.syncSuppressed.WithLabelValues(origin).Inc()
}

// TreeError counts one failed tree operation.
func (m *RoomMetrics) TreeError(code string) {
	if m == nil {
		return
	}
	m.treeErrors.WithLabelValues(code).Inc()
}

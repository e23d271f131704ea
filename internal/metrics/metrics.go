package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry *prometheus.Registry

	roomsCreatedTotal     prometheus.Counter
	participantsConnected prometheus.Gauge
	videoCommandsTotal    *prometheus.CounterVec
	messagesDelivered     *prometheus.CounterVec
	messagesDropped       *prometheus.CounterVec
	clockSyncTotal        prometheus.Counter
	chatPersistFailures   prometheus.Counter
	wsRateLimited         prometheus.Counter
	handleDuration        *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry so several instances can live in one process.
func New() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,

		roomsCreatedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "watchsync_rooms_created_total",
			Help: "Total number of rooms created",
		}),

		participantsConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "watchsync_participants_connected",
			Help: "Number of participants currently joined to a room on this instance",
		}),

		videoCommandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "watchsync_video_commands_total",
			Help: "Video commands processed by kind and outcome",
		}, []string{"kind", "applied"}),

		messagesDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "watchsync_messages_delivered_total",
			Help: "Outbound messages written to a connection",
		}, []string{"type"}),

		messagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "watchsync_messages_dropped_total",
			Help: "Outbound messages that could not be written",
		}, []string{"type"}),

		clockSyncTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "watchsync_clock_sync_requests_total",
			Help: "Clock sync requests answered",
		}),

		chatPersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "watchsync_chat_persist_failures_total",
			Help: "Chat messages that failed to persist",
		}),

		wsRateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "watchsync_ws_rate_limited_total",
			Help: "Inbound websocket messages rejected by the rate limiter",
		}),

		handleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "watchsync_ws_handle_duration_seconds",
			Help:    "Time spent handling an inbound websocket message",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"type"}),
	}
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) RecordRoomCreated() {
	c.roomsCreatedTotal.Inc()
}

func (c *Collector) RecordParticipantJoined() {
	c.participantsConnected.Inc()
}

func (c *Collector) RecordParticipantLeft() {
	c.participantsConnected.Dec()
}

func (c *Collector) RecordVideoCommand(kind string, applied bool) {
	outcome := "false"
	if applied {
		outcome = "true"
	}

	c.videoCommandsTotal.WithLabelValues(kind, outcome).Inc()
}

func (c *Collector) RecordDelivered(msgType string) {
	c.messagesDelivered.WithLabelValues(msgType).Inc()
}

func (c *Collector) RecordDropped(msgType string) {
	c.messagesDropped.WithLabelValues(msgType).Inc()
}

func (c *Collector) RecordClockSync() {
	c.clockSyncTotal.Inc()
}

func (c *Collector) RecordChatPersistFailure() {
	c.chatPersistFailures.Inc()
}

func (c *Collector) RecordRateLimited() {
	c.wsRateLimited.Inc()
}

func (c *Collector) ObserveHandleDuration(msgType string, seconds float64) {
	c.handleDuration.WithLabelValues(msgType).Observe(seconds)
}

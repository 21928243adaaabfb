package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Gateway metrics
	ConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatline_ws_connections_active",
			Help: "Number of authenticated WebSocket connections",
		},
	)

	RoomsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatline_registry_rooms",
			Help: "Number of rooms with at least one live connection",
		},
	)

	HandshakesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatline_handshakes_total",
			Help: "Total number of socket handshakes by result",
		},
		[]string{"result"},
	)

	// Fan-out metrics
	EventsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatline_events_delivered_total",
			Help: "Total number of events pushed to a connection by event kind",
		},
		[]string{"event"},
	)

	DeliveryFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatline_delivery_failures_total",
			Help: "Total number of failed pushes by event kind",
		},
		[]string{"event"},
	)

	InboundDiscarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatline_inbound_discarded_total",
			Help: "Total number of discarded inbound socket events by reason",
		},
		[]string{"reason"},
	)

	FanoutDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatline_fanout_duration_seconds",
			Help:    "Time taken to deliver one event to every connection of a room",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatline_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatline_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(ConnectionsActive)
	prometheus.MustRegister(RoomsActive)
	prometheus.MustRegister(HandshakesTotal)
	prometheus.MustRegister(EventsDelivered)
	prometheus.MustRegister(DeliveryFailures)
	prometheus.MustRegister(InboundDiscarded)
	prometheus.MustRegister(FanoutDuration)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an operation and reports it to a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed seconds on h.
func (t *Timer) ObserveDuration(h prometheus.Observer) {
	h.Observe(t.Duration().Seconds())
}

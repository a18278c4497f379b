package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_http_requests_total",
			Help: "Total number of HTTP requests processed by the local bridge.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatsync_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	transportConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_transport_connected",
			Help: "1 while the broker connection is established.",
		},
	)
	transportEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_transport_events_total",
			Help: "Total number of transport lifecycle events.",
		},
		[]string{"event"},
	)
	activeSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_active_subscriptions",
			Help: "Number of groups with at least one listener.",
		},
	)
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_inbound_frames_total",
			Help: "Total number of inbound frames applied, by kind.",
		},
		[]string{"kind"},
	)
	framesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_inbound_frames_dropped_total",
			Help: "Total number of inbound frames dropped, by reason.",
		},
		[]string{"reason"},
	)
	outboxDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_outbox_depth",
			Help: "Number of outbound envelopes waiting for a connection.",
		},
	)
	outboxEvictedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_outbox_evicted_total",
			Help: "Total number of queued envelopes dropped because the outbox was full.",
		},
	)
	publishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_published_total",
			Help: "Total number of outbound publishes, by outcome.",
		},
		[]string{"outcome"},
	)
	storeAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_store_applied_total",
			Help: "Total number of events applied to the message store, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	reconciledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_optimistic_reconciled_total",
			Help: "Total number of optimistic entries replaced by their server copy.",
		},
	)
	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_streams_active",
			Help: "Number of open local websocket streams.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		transportConnected,
		transportEventsTotal,
		activeSubscriptions,
		framesTotal,
		framesDroppedTotal,
		outboxDepth,
		outboxEvictedTotal,
		publishedTotal,
		storeAppliedTotal,
		reconciledTotal,
		streamsActive,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func SetTransportConnected(connected bool) {
	if connected {
		transportConnected.Set(1)
		return
	}
	transportConnected.Set(0)
}

func IncTransportEvent(event string) {
	transportEventsTotal.WithLabelValues(event).Inc()
}

func SetActiveSubscriptions(n int) {
	activeSubscriptions.Set(float64(n))
}

func IncFrame(kind string) {
	framesTotal.WithLabelValues(kind).Inc()
}

func IncFrameDropped(reason string) {
	framesDroppedTotal.WithLabelValues(reason).Inc()
}

func SetOutboxDepth(n int) {
	outboxDepth.Set(float64(n))
}

func IncOutboxEvicted() {
	outboxEvictedTotal.Inc()
}

func IncPublished(outcome string) {
	publishedTotal.WithLabelValues(outcome).Inc()
}

func IncStoreApplied(kind string, changed bool) {
	outcome := "ignored"
	if changed {
		outcome = "applied"
	}
	storeAppliedTotal.WithLabelValues(kind, outcome).Inc()
}

func IncReconciled() {
	reconciledTotal.Inc()
}

func IncStreams() {
	streamsActive.Inc()
}

func DecStreams() {
	streamsActive.Dec()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

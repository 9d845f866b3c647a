// Package metrics holds the server's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bnb"

var (
	// Registry holds the application collectors plus process and Go runtime stats.
	Registry = prometheus.NewRegistry()

	factory = promauto.With(Registry)

	httpDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route", "status"},
	)

	bookings = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bookings",
			Name:      "events_total",
			Help:      "Booking lifecycle events by channel.",
		},
		[]string{"event", "channel"},
	)

	emails = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "email",
			Name:      "sent_total",
			Help:      "Transactional emails by template and result.",
		},
		[]string{"template", "result"},
	)

	syncRuns = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel_sync",
			Name:      "runs_total",
			Help:      "Channel manager synchronizations by result.",
		},
		[]string{"result"},
	)

	syncDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "channel_sync",
			Name:      "run_duration_seconds",
			Help:      "Duration of channel manager synchronizations.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	conflicts = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "conflicts",
			Help:      "Overlapping blocking bookings found by the last check.",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Booking lifecycle events.
const (
	EventCreated   = "created"
	EventConfirmed = "confirmed"
	EventCancelled = "cancelled"
	EventExpired   = "expired"
	EventConflict  = "payment_conflict"
	EventImported  = "imported"
)

// Handler exposes the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request durations keyed by the matched gin route, so
// path parameters do not explode the label set.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

func RecordBooking(event, channel string) {
	if channel == "" {
		channel = "unknown"
	}
	bookings.WithLabelValues(event, channel).Inc()
}

func RecordEmail(template string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	emails.WithLabelValues(template, result).Inc()
}

func RecordSyncRun(duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	syncRuns.WithLabelValues(result).Inc()
	syncDuration.Observe(duration.Seconds())
}

func SetConflicts(n int) {
	conflicts.Set(float64(n))
}

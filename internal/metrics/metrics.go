package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ClockEvents counts appended ledger records by type.
	ClockEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeclock_clock_events_total",
		Help: "Time records appended to the ledger, by event type.",
	}, []string{"type"})

	// StoreWriteFailures counts persistence writes that were dropped.
	StoreWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timeclock_store_write_failures_total",
		Help: "Ledger writes that failed and were dropped.",
	})

	// Notifications counts delivered and failed notifications.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeclock_notifications_total",
		Help: "Clock notifications handled by the notifier, by result.",
	}, []string{"result"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "timeclock_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// GinMiddleware records request latency per matched route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Package metrics exposes Prometheus instrumentation for the HTTP surface,
// the websocket hub, and the archive worker pool.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts requests by method, route and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leaderboard_http_requests_total",
		Help: "Total HTTP requests processed.",
	}, []string{"method", "route", "status"})

	// HTTPDuration observes request latency by route.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "leaderboard_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// WebsocketClients tracks currently connected websocket clients.
	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "leaderboard_websocket_clients",
		Help: "Connected websocket clients.",
	})

	// ArchiveTasks counts write-behind archive tasks by outcome
	// (processed, failed, dropped).
	ArchiveTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leaderboard_archive_tasks_total",
		Help: "Archive worker pool tasks by outcome.",
	}, []string{"outcome"})

	// ArchiveQueueDepth tracks the archive pool's pending queue length.
	ArchiveQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "leaderboard_archive_queue_depth",
		Help: "Pending tasks in the archive worker pool queue.",
	})
)

// Middleware records request counts and latencies per route.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		method := c.Method()
		status := c.Response().StatusCode()
		if err != nil {
			if e, ok := err.(*fiber.Error); ok {
				status = e.Code
			}
		}

		HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		HTTPDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		return err
	}
}

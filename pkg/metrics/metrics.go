// Package metrics holds the prometheus collectors of the API process.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
	BoardMutations      *prometheus.CounterVec
	RealtimePublished   *prometheus.CounterVec
	RealtimeDropped     prometheus.Counter
	RealtimeSubscribers prometheus.Gauge
	SnapshotsPurged     prometheus.Counter
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crmboard",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crmboard",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		BoardMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crmboard",
			Name:      "board_mutations_total",
			Help:      "Successful board writes by table and change type.",
		}, []string{"table", "type"}),
		RealtimePublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crmboard",
			Name:      "realtime_events_published_total",
			Help:      "Change events published to the realtime hub by table.",
		}, []string{"table"}),
		RealtimeDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crmboard",
			Name:      "realtime_subscribers_dropped_total",
			Help:      "Realtime subscribers disconnected for falling behind.",
		}),
		RealtimeSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "crmboard",
			Name:      "realtime_subscribers",
			Help:      "Open realtime subscriptions.",
		}),
		SnapshotsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crmboard",
			Name:      "snapshots_purged_total",
			Help:      "Board snapshots removed by the janitor.",
		}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.BoardMutations,
		m.RealtimePublished,
		m.RealtimeDropped,
		m.RealtimeSubscribers,
		m.SnapshotsPurged,
	)
	return m
}

// GinMiddleware records request counts and latency per route template
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

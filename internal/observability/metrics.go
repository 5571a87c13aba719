package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by API and dispatcher flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal        *prometheus.CounterVec
	httpRequestDuration      *prometheus.HistogramVec
	campaignsDispatchedTotal *prometheus.CounterVec
	deliveriesTotal          *prometheus.CounterVec
	mailSendDuration         prometheus.Histogram
	dispatchInflight         prometheus.Gauge
	stalePendingTotal        prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mailing_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mailing_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		campaignsDispatchedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mailing_engine",
				Name:      "campaigns_dispatched_total",
				Help:      "Total number of campaign dispatch runs grouped by trigger.",
			},
			[]string{"trigger"},
		),
		deliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mailing_engine",
				Name:      "deliveries_total",
				Help:      "Total number of per-recipient delivery outcomes by final status.",
			},
			[]string{"status"},
		),
		mailSendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "mailing_engine",
				Name:      "mail_send_duration_seconds",
				Help:      "Mail relay send duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		dispatchInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mailing_engine",
				Name:      "dispatch_inflight",
				Help:      "Current number of campaigns being dispatched.",
			},
		),
		stalePendingTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "mailing_engine",
				Name:      "stale_pending_reconciled_total",
				Help:      "Total number of stale pending delivery entries marked failed by the reconciler.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.campaignsDispatchedTotal,
		m.deliveriesTotal,
		m.mailSendDuration,
		m.dispatchInflight,
		m.stalePendingTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncCampaignDispatched(trigger string) {
	if m == nil {
		return
	}
	triggerLabel := strings.TrimSpace(strings.ToLower(trigger))
	if triggerLabel == "" {
		triggerLabel = "unknown"
	}
	m.campaignsDispatchedTotal.WithLabelValues(triggerLabel).Inc()
}

func (m *Metrics) IncDelivery(status string) {
	if m == nil {
		return
	}
	statusLabel := strings.TrimSpace(strings.ToLower(status))
	if statusLabel == "" {
		statusLabel = "unknown"
	}
	m.deliveriesTotal.WithLabelValues(statusLabel).Inc()
}

func (m *Metrics) ObserveMailSendDuration(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.mailSendDuration.Observe(seconds)
}

func (m *Metrics) IncDispatchInFlight() {
	if m == nil {
		return
	}
	m.dispatchInflight.Inc()
}

func (m *Metrics) DecDispatchInFlight() {
	if m == nil {
		return
	}
	m.dispatchInflight.Dec()
}

func (m *Metrics) AddStalePendingReconciled(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.stalePendingTotal.Add(float64(count))
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

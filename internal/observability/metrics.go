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

// Metrics stores Prometheus collectors used by the API and dispatcher flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	deliveriesTotal         *prometheus.CounterVec
	deliveriesFailedTotal   *prometheus.CounterVec
	deliveryAttemptDuration *prometheus.HistogramVec
	dispatcherInflight      prometheus.Gauge
	retryScheduledTotal     *prometheus.CounterVec
	breakerTrippedTotal     prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webhook_service",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "webhook_service",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		deliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webhook_service",
				Name:      "deliveries_delivered_total",
				Help:      "Total number of webhook deliveries acknowledged by subscribers.",
			},
			[]string{"event_type"},
		),
		deliveriesFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webhook_service",
				Name:      "deliveries_failed_total",
				Help:      "Total number of webhook deliveries that reached the failed state.",
			},
			[]string{"event_type", "reason"},
		),
		deliveryAttemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "webhook_service",
				Name:      "delivery_attempt_duration_seconds",
				Help:      "Outbound webhook attempt duration in seconds by event type.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"event_type"},
		),
		dispatcherInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "webhook_service",
				Name:      "dispatcher_inflight",
				Help:      "Current number of in-flight delivery attempts.",
			},
		),
		retryScheduledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "webhook_service",
				Name:      "retry_scheduled_total",
				Help:      "Total number of deliveries scheduled for a later retry.",
			},
			[]string{"event_type"},
		),
		breakerTrippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "webhook_service",
				Name:      "circuit_breaker_tripped_total",
				Help:      "Total number of subscriptions deactivated after repeated failures.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.deliveriesTotal,
		m.deliveriesFailedTotal,
		m.deliveryAttemptDuration,
		m.dispatcherInflight,
		m.retryScheduledTotal,
		m.breakerTrippedTotal,
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

func (m *Metrics) IncDelivered(eventType string) {
	if m == nil {
		return
	}
	m.deliveriesTotal.WithLabelValues(normalizeEventType(eventType)).Inc()
}

func (m *Metrics) IncDeliveryFailed(eventType string, reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.deliveriesFailedTotal.WithLabelValues(normalizeEventType(eventType), reasonLabel).Inc()
}

func (m *Metrics) ObserveDeliveryAttemptDuration(eventType string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.deliveryAttemptDuration.WithLabelValues(normalizeEventType(eventType)).Observe(seconds)
}

func (m *Metrics) IncDispatcherInFlight() {
	if m == nil {
		return
	}
	m.dispatcherInflight.Inc()
}

func (m *Metrics) DecDispatcherInFlight() {
	if m == nil {
		return
	}
	m.dispatcherInflight.Dec()
}

func (m *Metrics) IncRetryScheduled(eventType string) {
	if m == nil {
		return
	}
	m.retryScheduledTotal.WithLabelValues(normalizeEventType(eventType)).Inc()
}

func (m *Metrics) IncBreakerTripped() {
	if m == nil {
		return
	}
	m.breakerTrippedTotal.Inc()
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

func normalizeEventType(eventType string) string {
	normalized := strings.ToLower(strings.TrimSpace(eventType))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// Package telemetry exposes Prometheus metrics for the advocacy server: HTTP
// traffic, intake submissions and their stages, document uploads and the
// database pool.
package telemetry

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TelemetryConfig holds the constant labels attached to every metric.
type TelemetryConfig struct {
	Namespace   string
	ServiceName string
	Environment string
}

func (c *TelemetryConfig) applyDefaults() {
	if c.Namespace == "" {
		c.Namespace = "advocate"
	}
	if c.ServiceName == "" {
		c.ServiceName = "advocate-server"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

// TelemetryProvider owns a private registry so tests and multiple servers in
// one process do not collide on the default registerer.
type TelemetryProvider struct {
	cfg      TelemetryConfig
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	httpInFlight   prometheus.Gauge
	submissions    *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	uploads        *prometheus.CounterVec
	documentWrites *prometheus.CounterVec
	dbConns        *prometheus.GaugeVec
}

func NewTelemetryProvider(cfg TelemetryConfig) *TelemetryProvider {
	cfg.applyDefaults()
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": cfg.ServiceName, "env": cfg.Environment}

	tp := &TelemetryProvider{
		cfg:      cfg,
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: labels,
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Name:        "http_request_duration_seconds",
			Help:        "Duration of HTTP requests in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"method", "route", "status"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Name:        "http_requests_in_flight",
			Help:        "Number of HTTP requests being served",
			ConstLabels: labels,
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "intake_submissions_total",
			Help:        "Claim submissions by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Name:        "intake_stage_duration_seconds",
			Help:        "Duration of each submission stage",
			Buckets:     []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
			ConstLabels: labels,
		}, []string{"stage", "status"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "intake_uploads_total",
			Help:        "Document uploads by result",
			ConstLabels: labels,
		}, []string{"result"}),
		documentWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Name:        "intake_document_records_total",
			Help:        "Claim document record inserts by result",
			ConstLabels: labels,
		}, []string{"result"}),
		dbConns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Name:        "db_pool_connections",
			Help:        "Database pool connections by state",
			ConstLabels: labels,
		}, []string{"state"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		tp.httpRequests, tp.httpDuration, tp.httpInFlight,
		tp.submissions, tp.stageDuration, tp.uploads, tp.documentWrites,
		tp.dbConns,
	)
	return tp
}

// Registry exposes the provider's registry for tests and extra collectors.
func (tp *TelemetryProvider) Registry() *prometheus.Registry {
	return tp.registry
}

// ObserveSubmission counts a finished submission. Outcome is "success" or the
// failing stage's error kind.
func (tp *TelemetryProvider) ObserveSubmission(outcome string) {
	tp.submissions.WithLabelValues(outcome).Inc()
}

// ObserveStage records the duration of one submission stage.
func (tp *TelemetryProvider) ObserveStage(stage, status string, elapsed time.Duration) {
	tp.stageDuration.WithLabelValues(stage, status).Observe(elapsed.Seconds())
}

// ObserveUpload counts one file of an upload batch. Result is "uploaded",
// "too_large", "failed" or "rejected".
func (tp *TelemetryProvider) ObserveUpload(result string) {
	tp.uploads.WithLabelValues(result).Inc()
}

// ObserveDocumentWrite counts one claim document record insert.
func (tp *TelemetryProvider) ObserveDocumentWrite(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	tp.documentWrites.WithLabelValues(result).Inc()
}

// HealthMetricsRecorder updates database pool gauges.
type HealthMetricsRecorder struct {
	tp *TelemetryProvider
}

func (tp *TelemetryProvider) HealthMetrics() *HealthMetricsRecorder {
	return &HealthMetricsRecorder{tp: tp}
}

func (h *HealthMetricsRecorder) SetDBPool(total, idle, acquired int32) {
	h.tp.dbConns.WithLabelValues("total").Set(float64(total))
	h.tp.dbConns.WithLabelValues("idle").Set(float64(idle))
	h.tp.dbConns.WithLabelValues("acquired").Set(float64(acquired))
}

// MetricsMiddleware records count and latency for every request, labelled
// by the route pattern rather than the raw path. Paths with a prefix in skip
// are not recorded.
func (tp *TelemetryProvider) MetricsMiddleware(skip ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			for _, p := range skip {
				if strings.HasPrefix(req.URL.Path, p) {
					return next(c)
				}
			}

			tp.httpInFlight.Inc()
			defer tp.httpInFlight.Dec()

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				status = http.StatusInternalServerError
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			code := strconv.Itoa(status)
			tp.httpRequests.WithLabelValues(req.Method, route, code).Inc()
			tp.httpDuration.WithLabelValues(req.Method, route, code).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// PrometheusHandler serves the registry in the Prometheus exposition format.
func (tp *TelemetryProvider) PrometheusHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(tp.registry, promhttp.HandlerOpts{}))
}

package handler

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Metrics holds all Prometheus collectors for the moderation queue backend.
var Metrics = struct {
	FlagsTotal           *prometheus.CounterVec
	ActionsTotal         *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	ReportDuration       prometheus.Histogram
	DBPoolActive         prometheus.GaugeFunc
	DBPoolIdle           prometheus.GaugeFunc
	RequestsInFlight     prometheus.Gauge
	CacheHits            prometheus.Counter
	CacheMisses          prometheus.Counter
	StatTruncationsTotal prometheus.Counter
}{}

// InitMetrics registers all Prometheus metrics. Call once at startup.
func InitMetrics(pool *pgxpool.Pool) {
	Metrics.FlagsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modqueue_flags_total",
			Help: "Total flags submitted, by type.",
		},
		[]string{"type"},
	)

	Metrics.ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modqueue_review_actions_total",
			Help: "Total review actions performed, by action.",
		},
		[]string{"action"},
	)

	Metrics.RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modqueue_api_request_duration_seconds",
			Help:    "HTTP request duration in seconds, by endpoint and method.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	Metrics.ReportDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "modqueue_report_build_duration_seconds",
			Help:    "Duration of flagged-posts report assemblies.",
			Buckets: prometheus.DefBuckets,
		},
	)

	Metrics.RequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "modqueue_requests_in_flight",
			Help: "Number of HTTP requests currently being served.",
		},
	)

	Metrics.CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "modqueue_cache_hits_total",
			Help: "Total Redis report cache hits.",
		},
	)

	Metrics.CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "modqueue_cache_misses_total",
			Help: "Total Redis report cache misses.",
		},
	)

	Metrics.StatTruncationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "modqueue_flag_stat_truncations_total",
			Help: "Total flag stat counter truncations executed.",
		},
	)

	// DB pool gauges — read live stats from pgxpool
	if pool != nil {
		Metrics.DBPoolActive = prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "modqueue_db_connection_pool_active",
				Help: "Number of active database connections.",
			},
			func() float64 {
				return float64(pool.Stat().AcquiredConns())
			},
		)

		Metrics.DBPoolIdle = prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "modqueue_db_connection_pool_idle",
				Help: "Number of idle database connections.",
			},
			func() float64 {
				return float64(pool.Stat().IdleConns())
			},
		)

		prometheus.MustRegister(Metrics.DBPoolActive)
		prometheus.MustRegister(Metrics.DBPoolIdle)
	}

	prometheus.MustRegister(
		Metrics.FlagsTotal,
		Metrics.ActionsTotal,
		Metrics.RequestDuration,
		Metrics.ReportDuration,
		Metrics.RequestsInFlight,
		Metrics.CacheHits,
		Metrics.CacheMisses,
		Metrics.StatTruncationsTotal,
	)
}

// MetricsMiddleware records request duration and in-flight count for Prometheus.
func MetricsMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		// Don't instrument the /metrics endpoint itself
		if c.Path() == "/metrics" {
			return c.Next()
		}

		// Copy path and method into owned strings BEFORE c.Next() — Fiber
		// returns slices backed by the fasthttp buffer which can be reused
		// or overwritten by handlers (especially fasthttpadaptor).
		path := string([]byte(c.Path()))
		method := string([]byte(c.Method()))
		endpoint := sanitizeEndpoint(path)

		Metrics.RequestsInFlight.Inc()
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())

		Metrics.RequestDuration.WithLabelValues(endpoint, method, status).Observe(duration)
		Metrics.RequestsInFlight.Dec()

		return err
	}
}

// sanitizeEndpoint normalizes paths to avoid cardinality explosion.
func sanitizeEndpoint(path string) string {
	const prefix = "/api/flagged/"
	if len(path) > len(prefix) && path[:len(prefix)] == prefix {
		rest := path[len(prefix):]
		switch rest {
		case "topics":
			return path
		}
		for i := 0; i < len(rest); i++ {
			if rest[i] == '/' {
				return prefix + ":id" + rest[i:]
			}
		}
		return prefix + ":id"
	}
	return path
}

// MetricsHandler serves the Prometheus /metrics endpoint via Fiber.
func MetricsHandler() fiber.Handler {
	httpHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c fiber.Ctx) error {
		httpHandler(c.Context())
		return nil
	}
}

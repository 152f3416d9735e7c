package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hydrantmap",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hydrantmap",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hydrantmap",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Range planner and reconciliation
	RangeQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hydrantmap",
		Subsystem: "ranges",
		Name:      "queries_total",
		Help:      "Total geohash range scans issued",
	}, []string{"collection"})

	RangeQueryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hydrantmap",
		Subsystem: "ranges",
		Name:      "query_failures_total",
		Help:      "Range scans that failed and contributed no clusters",
	}, []string{"collection"})

	RangeQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hydrantmap",
		Subsystem: "ranges",
		Name:      "query_duration_seconds",
		Help:      "Duration of a single geohash range scan",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"collection"})

	RecordsReconciled = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hydrantmap",
		Subsystem: "ranges",
		Name:      "records_reconciled",
		Help:      "Records left after distance filter and dedupe per query",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 7),
	})

	// Import pipeline
	ImportRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hydrantmap",
		Subsystem: "import",
		Name:      "records_total",
		Help:      "Records converted by the import pipeline",
	}, []string{"collection"})

	ImportRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hydrantmap",
		Subsystem: "import",
		Name:      "rejects_total",
		Help:      "Records rejected during conversion",
	}, []string{"collection", "reason"})

	ImportBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hydrantmap",
		Subsystem: "import",
		Name:      "batches_total",
		Help:      "Cluster batches committed to the store",
	}, []string{"collection"})

	ImportDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hydrantmap",
		Subsystem: "import",
		Name:      "duration_seconds",
		Help:      "Duration of a full import run",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"collection"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hydrantmap",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	StaleResultsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hydrantmap",
		Subsystem: "ws",
		Name:      "stale_results_dropped_total",
		Help:      "Viewport query results discarded because a newer query was already applied",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hydrantmap",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hydrantmap",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hydrantmap",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hydrantmap",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hydrantmap",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// PoolStat is the subset of pgxpool.Stat the pool gauges read.
type PoolStat interface {
	AcquiredConns() int32
	IdleConns() int32
	TotalConns() int32
}

// UpdateDBPoolMetrics copies pool stats into the db gauges.
func UpdateDBPoolMetrics(s PoolStat) {
	DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
	DBPoolConnsIdle.Set(float64(s.IdleConns()))
	DBPoolConnsOpen.Set(float64(s.TotalConns()))
}

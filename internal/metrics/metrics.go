// Package metrics exposes Prometheus instruments for layer builds, the task
// queue and the HTTP API.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/arrowline/internal/arrowline"
	"github.com/sells-group/arrowline/internal/comparison"
)

const namespace = "arrowline"

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	// Layer metrics
	LayersBuilt = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "layer",
		Name:      "built_total",
		Help:      "Total arrow-line layers built",
	}, []string{"origin"})

	ArrowHeadsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "layer",
		Name:      "arrow_heads_total",
		Help:      "Total arrow heads generated across all layers",
	})

	LayerFeatures = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "layer",
		Name:      "features",
		Help:      "Features per built layer after filtering",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})

	BuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "layer",
		Name:      "build_duration_seconds",
		Help:      "Duration of layer builds",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"origin"})

	BuildErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "layer",
		Name:      "build_errors_total",
		Help:      "Total failed layer builds by error kind",
	}, []string{"origin", "kind"})

	// Queue metrics
	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "tasks_processed_total",
		Help:      "Total queued tasks processed by outcome",
	}, []string{"outcome"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// ErrorKind maps a build error to a low-cardinality label value.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, arrowline.ErrUnsupportedGeometryKind):
		return "unsupported_geometry"
	case errors.Is(err, arrowline.ErrEmptyGeometry):
		return "empty_geometry"
	case errors.Is(err, arrowline.ErrMissingDateTimeFormat),
		errors.Is(err, arrowline.ErrInvalidDateTimePattern),
		errors.Is(err, arrowline.ErrInvalidSortConfig),
		errors.Is(err, arrowline.ErrInvalidConfig),
		errors.Is(err, comparison.ErrUnknownFunction),
		errors.Is(err, comparison.ErrInvalidRule):
		return "invalid_config"
	case errors.Is(err, arrowline.ErrInvalidDateTimeFormat):
		return "invalid_date_time"
	default:
		return "other"
	}
}

// ObserveBuild records the outcome of one arrowline.Build call. origin
// names the caller ("cli", "http", "queue").
func ObserveBuild(origin string, layer *arrowline.Layer, elapsed time.Duration, err error) {
	BuildDuration.WithLabelValues(origin).Observe(elapsed.Seconds())
	if err != nil {
		BuildErrors.WithLabelValues(origin, ErrorKind(err)).Inc()
		return
	}
	LayersBuilt.WithLabelValues(origin).Inc()
	if layer == nil {
		return
	}
	if layer.Features != nil {
		LayerFeatures.Observe(float64(len(layer.Features.Features)))
	}
	if layer.ArrowHeads != nil {
		ArrowHeadsGenerated.Add(float64(len(layer.ArrowHeads.Features)))
	}
}

// Middleware records request metrics using the matched chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// Handler returns the Prometheus /metrics handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// poolStat is the subset of pgxpool.Stat read by UpdateDBPoolMetrics.
type poolStat interface {
	AcquiredConns() int32
	IdleConns() int32
	TotalConns() int32
}

// UpdateDBPoolMetrics updates database pool gauges from pgx pool stats.
func UpdateDBPoolMetrics(stat any) {
	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
	}
}

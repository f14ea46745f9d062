// Package metrics provides Prometheus instrumentation for the exchange.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OpsTotal counts committed engine operations by op.
	OpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clamm_ops_total",
		Help: "Committed engine operations",
	}, []string{"op"})

	// OpRejections counts failed engine calls by op and error class.
	OpRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clamm_op_rejections_total",
		Help: "Engine calls rejected with an error",
	}, []string{"op", "reason"})

	// OpLatency tracks engine call latency, persistence included.
	OpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clamm_op_latency_seconds",
		Help:    "Engine call latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// SwapsTotal counts executed single-pool swaps by direction.
	SwapsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clamm_swaps_total",
		Help: "Executed swaps",
	}, []string{"direction"})

	TicksCrossed = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clamm_ticks_crossed",
		Help:    "Initialized ticks crossed per swap",
		Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64, 128, 173},
	})

	// Pools tracks the number of pools.
	Pools = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clamm_pools",
		Help: "Number of pools",
	})

	// PoolLiquidity is the active liquidity of each pool, in whole units.
	PoolLiquidity = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clamm_pool_liquidity",
		Help: "Active liquidity per pool",
	}, []string{"pool"})

	// PoolTick is the current tick index of each pool.
	PoolTick = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "clamm_pool_current_tick",
		Help: "Current tick index per pool",
	}, []string{"pool"})

	// PersistFailures counts change sets or receipts that failed to persist.
	PersistFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clamm_persist_failures_total",
		Help: "Writes to the store that failed",
	}, []string{"kind"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clamm_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clamm_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clamm_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// The route pattern keeps pool keys and addresses out of the labels.
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if pattern := rc.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade reach the underlying connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer cannot be hijacked")
	}
	return h.Hijack()
}

// Package metrics provides Prometheus instrumentation for the bank engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TransfersTotal counts completed ledger movements by kind
	// (transfer, exchange, deposit, mint, burn).
	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arca_transfers_total",
		Help: "Total number of completed ledger operations",
	}, []string{"kind"})

	// FeesCollected accumulates treasury fee revenue in carat-equivalent.
	FeesCollected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arca_fees_collected_carats_total",
		Help: "Cumulative fee revenue in carat-equivalent",
	})

	// BookValue tracks the current diamonds-per-carat backing ratio.
	BookValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arca_book_value",
		Help: "Current reserve diamonds per circulating carat",
	})

	// MarketIndex tracks the latest raw market index sample.
	MarketIndex = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arca_market_index",
		Help: "Latest market price index",
	})

	// PriceFrozen is 1 while the market price is frozen.
	PriceFrozen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arca_price_frozen",
		Help: "Whether the market price is currently frozen",
	})

	// TradesReported counts peer-reported trades by type.
	TradesReported = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arca_trades_reported_total",
		Help: "Total peer-reported trades",
	}, []string{"type"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arca_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arca_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arca_http_request_duration_seconds",
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
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
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

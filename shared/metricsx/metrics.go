package metricsx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	rpcRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpc_requests_total",
			Help: "Total RPC requests sent, by destination service and pattern.",
		},
		[]string{"service", "pattern", "outcome"},
	)
	rpcLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpc_request_duration_seconds",
			Help:    "RPC round-trip latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "pattern"},
	)
	rpcServerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpc_server_errors_total",
			Help: "Errors returned across the RPC boundary, by pattern and status code.",
		},
		[]string{"pattern", "status_code"},
	)
	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Domain events published to the bus, by event type.",
		},
		[]string{"event_type"},
	)
	eventHandlerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_handler_failures_total",
			Help: "Contained event handler failures, by event type.",
		},
		[]string{"event_type"},
	)
	eventStoreAppendFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "event_store_append_failures_total",
			Help: "Best-effort event store appends that failed.",
		},
	)
)

func Register() {
	prometheus.MustRegister(
		httpRequests,
		httpLatency,
		rpcRequests,
		rpcLatency,
		rpcServerErrors,
		eventsPublished,
		eventHandlerFailures,
		eventStoreAppendFailures,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		status := strconv.Itoa(lrw.statusCode)
		httpRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpLatency.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
	})
}

func ObserveRPCRequest(service string, pattern string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	rpcRequests.WithLabelValues(service, pattern, outcome).Inc()
	rpcLatency.WithLabelValues(service, pattern).Observe(d.Seconds())
}

func IncRPCServerError(pattern string, statusCode int) {
	rpcServerErrors.WithLabelValues(pattern, strconv.Itoa(statusCode)).Inc()
}

func IncEventPublished(eventType string) {
	eventsPublished.WithLabelValues(eventType).Inc()
}

func IncEventHandlerFailure(eventType string) {
	eventHandlerFailures.WithLabelValues(eventType).Inc()
}

func IncEventStoreAppendFailure() {
	eventStoreAppendFailures.Inc()
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

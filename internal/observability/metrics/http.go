package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	submissionsCreated  *prometheus.CounterVec
	submissionsResolved *prometheus.CounterVec
	submissionSettle    *prometheus.HistogramVec
	forwardTotal        *prometheus.CounterVec
	forwardDuration     *prometheus.HistogramVec
	circuitOpen         *prometheus.GaugeVec
	executions          *prometheus.CounterVec
	executionAttempts   *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "praxis",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "praxis",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "praxis",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	submissionsCreated := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "praxis",
			Subsystem: "submissions",
			Name:      "created_total",
			Help:      "Total submissions registered in processing state.",
		},
		[]string{"service"},
	)
	submissionsResolved := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "praxis",
			Subsystem: "submissions",
			Name:      "resolved_total",
			Help:      "Total settled submissions by terminal status and score availability.",
		},
		[]string{"service", "status", "score"},
	)
	submissionSettle := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "praxis",
			Subsystem: "submissions",
			Name:      "settle_duration_seconds",
			Help:      "Time from registration to settlement.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "status"},
	)
	forwardTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "praxis",
			Subsystem: "classifier",
			Name:      "calls_total",
			Help:      "Total classifier calls by call shape and outcome.",
		},
		[]string{"service", "call", "outcome"},
	)
	forwardDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "praxis",
			Subsystem: "classifier",
			Name:      "call_duration_seconds",
			Help:      "Classifier call duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"service", "call"},
	)
	circuitOpen := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "praxis",
			Subsystem: "resilience",
			Name:      "circuit_open",
			Help:      "1 while the named circuit breaker is open.",
		},
		[]string{"service", "operation"},
	)
	executions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "praxis",
			Subsystem: "resilience",
			Name:      "executions_total",
			Help:      "Guarded outbound operations by operation and outcome.",
		},
		[]string{"service", "operation", "outcome"},
	)
	executionAttempts := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "praxis",
			Subsystem: "resilience",
			Name:      "attempts",
			Help:      "Attempts made per guarded operation.",
			Buckets:   []float64{0, 1, 2, 3, 5},
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		submissionsCreated,
		submissionsResolved,
		submissionSettle,
		forwardTotal,
		forwardDuration,
		circuitOpen,
		executions,
		executionAttempts,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		service:             service,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		submissionsCreated:  submissionsCreated,
		submissionsResolved: submissionsResolved,
		submissionSettle:    submissionSettle,
		forwardTotal:        forwardTotal,
		forwardDuration:     forwardDuration,
		circuitOpen:         circuitOpen,
		executions:          executions,
		executionAttempts:   executionAttempts,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/submissions/"):
		return "/v1/submissions/{id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) SubmissionCreated(count int) {
	if count <= 0 {
		return
	}
	m.submissionsCreated.WithLabelValues(m.service).Add(float64(count))
}

func (m *HTTPServerMetrics) SubmissionResolved(status domain.SubmissionStatus, scoreAvailable bool, elapsed time.Duration) {
	score := "unavailable"
	if scoreAvailable {
		score = "available"
	}
	m.submissionsResolved.WithLabelValues(m.service, string(status), score).Inc()
	if elapsed >= 0 {
		m.submissionSettle.WithLabelValues(m.service, string(status)).Observe(elapsed.Seconds())
	}
}

func (m *HTTPServerMetrics) ObserveForward(call, outcome string, elapsed time.Duration) {
	m.forwardTotal.WithLabelValues(m.service, call, outcome).Inc()
	m.forwardDuration.WithLabelValues(m.service, call).Observe(elapsed.Seconds())
}

func (m *HTTPServerMetrics) ObserveBreakerState(operation string, open bool) {
	value := 0.0
	if open {
		value = 1
	}
	m.circuitOpen.WithLabelValues(m.service, operation).Set(value)
}

// ObserveExecution records one guarded call; attempts is zero when a breaker
// or a cancelled context refused it.
func (m *HTTPServerMetrics) ObserveExecution(operation, outcome string, attempts int) {
	m.executions.WithLabelValues(m.service, operation, outcome).Inc()
	m.executionAttempts.WithLabelValues(m.service, operation).Observe(float64(attempts))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
)

// WorkerMetrics instruments the worker that mirrors submission lifecycle
// events into the result log.
type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	events      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inFlight    prometheus.Gauge
	lag         *prometheus.HistogramVec
	resolutions *prometheus.CounterVec
	scores      prometheus.Histogram
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	m := &WorkerMetrics{
		registry: registry,
		service:  service,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "praxis",
			Subsystem: "worker",
			Name:      "events_total",
			Help:      "Lifecycle events handled, by event type and result (recorded, rejected, error).",
		}, []string{"service", "event", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "praxis",
			Subsystem: "worker",
			Name:      "event_duration_seconds",
			Help:      "Time spent writing one lifecycle event to the result log.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "event"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "praxis",
			Subsystem:   "worker",
			Name:        "events_in_flight",
			Help:        "Lifecycle events currently being written.",
			ConstLabels: constLabels,
		}),
		lag: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "praxis",
			Subsystem: "worker",
			Name:      "event_lag_seconds",
			Help:      "Delay between a lifecycle transition and the worker receiving it.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"service", "event"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "praxis",
			Subsystem: "result_log",
			Name:      "resolutions_total",
			Help:      "Settled submissions written to the result log by status and score availability.",
		}, []string{"service", "status", "score"}),
		scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "praxis",
			Subsystem:   "result_log",
			Name:        "dataset_score",
			Help:        "Declared classifier scores of completed submissions.",
			Buckets:     prometheus.LinearBuckets(0, 10, 11),
			ConstLabels: constLabels,
		}),
	}

	registry.MustRegister(m.events, m.duration, m.inFlight, m.lag, m.resolutions, m.scores)
	return m
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Begin marks event as in flight and records its delivery lag. The returned
// func must be called once with the result of writing it.
func (m *WorkerMetrics) Begin(event domain.SubmissionEvent) func(error) {
	kind := string(event.Type)
	if !event.OccurredAt.IsZero() {
		if lag := time.Since(event.OccurredAt); lag >= 0 {
			m.lag.WithLabelValues(m.service, kind).Observe(lag.Seconds())
		}
	}

	m.inFlight.Inc()
	started := time.Now()
	return func(err error) {
		m.inFlight.Dec()
		m.duration.WithLabelValues(m.service, kind).Observe(time.Since(started).Seconds())

		switch {
		case err == nil:
			m.events.WithLabelValues(m.service, kind, "recorded").Inc()
			if event.Type == domain.EventSubmissionResolved {
				m.observeResolution(event.Submission)
			}
		case domain.IsKind(err, domain.ErrInvalidInput):
			m.events.WithLabelValues(m.service, kind, "rejected").Inc()
		default:
			m.events.WithLabelValues(m.service, kind, "error").Inc()
		}
	}
}

func (m *WorkerMetrics) observeResolution(sub domain.Submission) {
	score := "unavailable"
	if sub.ScoreAvailable() {
		score = "available"
		m.scores.Observe(*sub.Score)
	}
	m.resolutions.WithLabelValues(m.service, string(sub.Status), score).Inc()
}

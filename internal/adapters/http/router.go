package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kirillkom/praxis-intake/internal/config"
	"github.com/kirillkom/praxis-intake/internal/core/domain"
	"github.com/kirillkom/praxis-intake/internal/core/ports"
	"github.com/kirillkom/praxis-intake/internal/observability/metrics"
)

const serviceName = "praxis-api"

type Router struct {
	cfg         config.Config
	limits      domain.BatchLimits
	forwarder   ports.Forwarder
	batches     ports.BatchSubmitter
	submissions ports.SubmissionReader
	history     ports.HistoryReader
	metrics     *metrics.HTTPServerMetrics
	logger      *slog.Logger
}

type Option func(*Router)

func WithMetrics(m *metrics.HTTPServerMetrics) Option {
	return func(rt *Router) { rt.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(rt *Router) { rt.logger = logger }
}

// WithHistory exposes the durable result log under /v1/history.
func WithHistory(history ports.HistoryReader) Option {
	return func(rt *Router) { rt.history = history }
}

func NewRouter(
	cfg config.Config,
	forwarder ports.Forwarder,
	batches ports.BatchSubmitter,
	submissions ports.SubmissionReader,
	opts ...Option,
) *Router {
	rt := &Router{
		cfg:         cfg,
		limits:      cfg.BatchLimits(),
		forwarder:   forwarder,
		batches:     batches,
		submissions: submissions,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(rt.accessLogMiddleware)
	r.Use(chimiddleware.Recoverer)
	if rt.metrics != nil {
		r.Use(func(next http.Handler) http.Handler {
			return rt.metrics.Middleware(serviceName, next)
		})
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	r.Get("/healthz", rt.healthz)

	r.Group(func(r chi.Router) {
		r.Use(rateLimiter(rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst))
		r.Use(backpressure(rt.cfg.APIMaxInFlight, time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond))

		r.Post("/upload", rt.uploadClassify)
		r.Post("/upload/description", rt.uploadDescription)
		r.Post("/upload/evaluate", rt.uploadEvaluate)

		r.Post("/v1/batches", rt.submitBatch)
		r.Get("/v1/submissions", rt.listSubmissions)
		r.Get("/v1/submissions/{id}", rt.getSubmission)
		r.Get("/v1/history", rt.listHistory)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	})
	return r
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

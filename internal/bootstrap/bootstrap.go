package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/praxis-intake/internal/config"
	"github.com/kirillkom/praxis-intake/internal/core/domain"
	"github.com/kirillkom/praxis-intake/internal/core/ports"
	"github.com/kirillkom/praxis-intake/internal/core/usecase"
	"github.com/kirillkom/praxis-intake/internal/infrastructure/classifier"
	"github.com/kirillkom/praxis-intake/internal/infrastructure/queue/logqueue"
	"github.com/kirillkom/praxis-intake/internal/infrastructure/queue/nats"
	"github.com/kirillkom/praxis-intake/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/praxis-intake/internal/infrastructure/resilience"
	"github.com/kirillkom/praxis-intake/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/praxis-intake/internal/infrastructure/store/memory"
	"github.com/kirillkom/praxis-intake/internal/infrastructure/store/redisstore"
	"github.com/kirillkom/praxis-intake/internal/observability/metrics"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Metrics     *metrics.HTTPServerMetrics
	Forwarder   ports.Forwarder
	Coordinator *usecase.Coordinator
	// History is nil when no result log database is configured.
	History ports.HistoryReader

	closers []func()
}

// New wires the API process: classifier client, spool, submission store,
// event publisher and the coordinator on top of them.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewHTTPServerMetrics("praxis-api"),
	}

	forwarder := classifier.New(cfg.ClassifierURL, classifier.Options{
		Timeout:  time.Duration(cfg.ClassifierTimeoutSeconds) * time.Second,
		Executor: app.classifierExecutor(),
		Observer: app.Metrics,
	})
	app.Forwarder = forwarder

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init spool storage: %w", err)
	}

	store, err := app.submissionStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	events, err := app.eventPublisher()
	if err != nil {
		app.Close()
		return nil, err
	}

	if strings.TrimSpace(cfg.PostgresDSN) != "" {
		repo, db, err := openResultLog(ctx, cfg.PostgresDSN)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.History = repo
		app.closers = append(app.closers, func() { _ = db.Close() })
	}

	app.Coordinator = usecase.NewCoordinator(store, storage, forwarder, usecase.CoordinatorOptions{
		Limits:   cfg.BatchLimits(),
		Mode:     usecase.ParseDispatchMode(cfg.DispatchMode),
		Events:   events,
		Observer: app.Metrics,
		Logger:   logger,
	})

	logger.Info("api_bootstrapped",
		"classifier_url", cfg.ClassifierURL,
		"dispatch_mode", string(usecase.ParseDispatchMode(cfg.DispatchMode)),
		"submission_store", storeKind(cfg),
		"result_log", app.History != nil,
	)
	return app, nil
}

// Close waits for in-flight dispatches before releasing connections.
func (a *App) Close() {
	if a.Coordinator != nil {
		a.Coordinator.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) classifierExecutor() *resilience.Executor {
	if !a.Config.ClassifierBreakerEnabled {
		return nil
	}
	return resilience.NewExecutor(resilience.ForwardPolicy(resilience.Config{
		Logger:   a.Logger,
		Observer: a.Metrics,
	}))
}

func (a *App) submissionStore(ctx context.Context) (ports.SubmissionStore, error) {
	switch storeKind(a.Config) {
	case StoreMemory:
		return memory.New(), nil
	case StoreRedis:
		client, err := redisstore.Connect(ctx, a.Config.RedisAddr, a.Config.RedisPassword, a.Config.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("init redis submission store: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		return redisstore.New(client, redisstore.Options{}), nil
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "select submission store", fmt.Errorf("unknown store %q", a.Config.SubmissionStore))
	}
}

func (a *App) eventPublisher() (ports.SubmissionEventPublisher, error) {
	if strings.TrimSpace(a.Config.NATSURL) == "" {
		return logqueue.New(a.Logger), nil
	}
	queue, err := nats.NewWithOptions(a.Config.NATSURL, a.Config.NATSSubject, nats.Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.PublishPolicy(resilience.Config{
			Logger:   a.Logger,
			Observer: a.Metrics,
		})),
		Logger: a.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init event stream: %w", err)
	}
	a.closers = append(a.closers, queue.Close)
	return queue, nil
}

// Worker consumes lifecycle events and mirrors them into the result log.
type Worker struct {
	Config   config.Config
	Logger   *slog.Logger
	Metrics  *metrics.WorkerMetrics
	Events   ports.SubmissionEventSubscriber
	Recorder ports.EventRecorder

	closers []func()
}

func NewWorker(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Worker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.NATSURL) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "init worker", errors.New("NATS_URL is required"))
	}
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "init worker", errors.New("POSTGRES_DSN is required"))
	}

	w := &Worker{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewWorkerMetrics("praxis-worker"),
	}

	repo, db, err := openResultLog(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	w.closers = append(w.closers, func() { _ = db.Close() })
	w.Recorder = usecase.NewResultLogRecorder(repo)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{Logger: logger})
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("init event stream: %w", err)
	}
	w.closers = append(w.closers, queue.Close)
	w.Events = queue

	return w, nil
}

// Run blocks until ctx is cancelled, recording every received event.
func (w *Worker) Run(ctx context.Context) error {
	w.Logger.Info("worker_subscribed", "subject", w.Config.NATSSubject)
	return w.Events.SubscribeSubmissionEvents(ctx, func(handlerCtx context.Context, event domain.SubmissionEvent) error {
		done := w.Metrics.Begin(event)

		recordCtx, cancel := context.WithTimeout(handlerCtx, 30*time.Second)
		defer cancel()
		err := w.Recorder.Record(recordCtx, event)
		done(err)
		if err == nil {
			w.Logger.Debug("submission_event_recorded",
				"submission_id", event.Submission.ID,
				"event", string(event.Type),
				"status", string(event.Submission.Status),
			)
		}
		return err
	})
}

func (w *Worker) Close() {
	for i := len(w.closers) - 1; i >= 0; i-- {
		w.closers[i]()
	}
	w.closers = nil
}

func storeKind(cfg config.Config) string {
	kind := strings.ToLower(strings.TrimSpace(cfg.SubmissionStore))
	if kind == "" {
		return StoreMemory
	}
	return kind
}

func openResultLog(ctx context.Context, dsn string) (*postgres.SubmissionRepository, *sql.DB, error) {
	db, err := postgres.OpenDB(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewSubmissionRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure result log schema: %w", err)
	}
	return repo, db, nil
}

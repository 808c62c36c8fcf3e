package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Execution outcomes reported to an Observer.
const (
	OutcomeSuccess     = "success"
	OutcomeRecovered   = "recovered"
	OutcomeFailed      = "failed"
	OutcomeExhausted   = "exhausted"
	OutcomeCircuitOpen = "circuit_open"
	OutcomeCancelled   = "cancelled"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// Observer receives breaker transitions and the outcome of every Execute
// call, keyed by operation name (for example "classifier.evaluate").
type Observer interface {
	ObserveBreakerState(operation string, open bool)
	ObserveExecution(operation, outcome string, attempts int)
}

type nopObserver struct{}

func (nopObserver) ObserveBreakerState(string, bool) {}
func (nopObserver) ObserveExecution(string, string, int) {}

// Executor runs an operation under a Config: bounded retries for errors the
// classifier marks retryable and, when enabled, one breaker per operation.
type Executor struct {
	cfg      Config
	logger   *slog.Logger
	observer Observer

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

func NewExecutor(cfg Config) *Executor {
	norm := cfg.normalize()
	return &Executor{
		cfg:      norm,
		logger:   norm.Logger,
		observer: norm.Observer,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

type run struct {
	attempts int
	outcome  string
	err      error
}

func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = defaultClassifier
	}

	var result run
	if e.cfg.BreakerEnabled {
		breaker := e.circuitBreaker(op, classifier)
		_, err := breaker.Execute(func() (any, error) {
			result = e.attempt(ctx, op, fn, classifier)
			return nil, result.err
		})
		if IsCircuitOpen(err) {
			result = run{outcome: OutcomeCircuitOpen, err: err}
		}
	} else {
		result = e.attempt(ctx, op, fn, classifier)
	}

	e.observer.ObserveExecution(op, result.outcome, result.attempts)
	return result.err
}

func (e *Executor) attempt(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) run {
	backoff := e.cfg.RetryInitialBackoff

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return run{attempts: attempt - 1, outcome: OutcomeCancelled, err: err}
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				return run{attempts: attempt, outcome: OutcomeRecovered}
			}
			return run{attempts: attempt, outcome: OutcomeSuccess}
		}

		if !classifier(err).Retryable {
			return run{attempts: attempt, outcome: OutcomeFailed, err: err}
		}
		if attempt >= e.cfg.RetryMaxAttempts {
			return run{attempts: attempt, outcome: OutcomeExhausted, err: err}
		}

		wait := min(backoff, e.cfg.RetryMaxBackoff)
		e.logger.Warn("retry_attempt",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", e.cfg.RetryMaxAttempts,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", err,
		)
		if !sleep(ctx, wait) {
			return run{attempts: attempt, outcome: OutcomeCancelled, err: err}
		}
		backoff = min(time.Duration(float64(backoff)*e.cfg.RetryMultiplier), e.cfg.RetryMaxBackoff)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (e *Executor) circuitBreaker(operation string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[any] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if breaker, ok := e.breakers[operation]; ok {
		return breaker
	}

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        operation,
		MaxRequests: e.cfg.BreakerHalfOpenMaxCalls,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= e.cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			e.logger.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
			e.observer.ObserveBreakerState(name, to == gobreaker.StateOpen)
		},
	})
	e.breakers[operation] = breaker
	return breaker
}

// IsCircuitOpen reports whether err was returned by a breaker refusing the call.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func defaultClassifier(error) ErrorClassification {
	return ErrorClassification{RecordFailure: true}
}

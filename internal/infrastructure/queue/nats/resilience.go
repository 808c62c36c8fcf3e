package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
	"github.com/kirillkom/praxis-intake/internal/infrastructure/resilience"
)

// publishOperation names the executor operation per event type, so created
// and resolved events get separate breakers and outcome series.
func publishOperation(eventType domain.SubmissionEventType) string {
	kind := strings.TrimPrefix(string(eventType), "submission.")
	if kind == "" {
		kind = "unknown"
	}
	return "nats.publish." + kind
}

func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case domain.IsKind(err, domain.ErrInvalidInput), errors.Is(err, nats.ErrMaxPayload):
		// A malformed or oversized event fails the same way on every broker.
		return resilience.ErrorClassification{}
	case brokerUnavailable(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

func brokerUnavailable(err error) bool {
	return errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrReconnectBufExceeded)
}

// publishError tags a failed publish with the submission it was about.
// Broker outages and open breakers become ErrTemporary; everything else keeps
// its kind.
func publishError(event domain.SubmissionEvent, err error) error {
	if err == nil {
		return nil
	}
	op := fmt.Sprintf("publish %s for submission %s", event.Type, event.Submission.ID)
	if domain.IsKind(err, domain.ErrTemporary) || domain.IsKind(err, domain.ErrInvalidInput) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if brokerUnavailable(err) || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

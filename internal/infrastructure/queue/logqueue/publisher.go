package logqueue

import (
	"context"
	"log/slog"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
)

// Publisher writes lifecycle events to the structured log. It stands in for
// NATS when no broker is configured.
type Publisher struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{logger: logger}
}

func (p *Publisher) PublishSubmissionEvent(ctx context.Context, event domain.SubmissionEvent) error {
	attrs := []any{
		"event", string(event.Type),
		"submission_id", event.Submission.ID,
		"batch_id", event.Submission.BatchID,
		"status", string(event.Submission.Status),
	}
	if event.Submission.Score != nil {
		attrs = append(attrs, "score", *event.Submission.Score)
	}
	p.logger.InfoContext(ctx, "submission_event", attrs...)
	return nil
}

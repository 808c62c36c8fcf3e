package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
	"github.com/kirillkom/praxis-intake/internal/core/ports"
)

// ResultLogRecorder applies lifecycle events to the durable result log.
type ResultLogRecorder struct {
	repo ports.ResultLogRepository
}

func NewResultLogRecorder(repo ports.ResultLogRepository) *ResultLogRecorder {
	return &ResultLogRecorder{repo: repo}
}

func (r *ResultLogRecorder) Record(ctx context.Context, event domain.SubmissionEvent) error {
	sub := event.Submission
	if sub.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record event", errors.New("submission id is empty"))
	}
	if !sub.Status.Valid() {
		return domain.WrapError(domain.ErrInvalidInput, "record event", fmt.Errorf("unknown status %q", sub.Status))
	}

	switch event.Type {
	case domain.EventSubmissionCreated:
		if sub.Status != domain.StatusProcessing {
			return domain.WrapError(domain.ErrInvalidInput, "record event", fmt.Errorf("created event with status %s", sub.Status))
		}
	case domain.EventSubmissionResolved:
		if !sub.Status.Terminal() {
			return domain.WrapError(domain.ErrInvalidInput, "record event", fmt.Errorf("resolved event with status %s", sub.Status))
		}
		if sub.Status == domain.StatusFailed {
			sub.Score = nil
		}
	default:
		return domain.WrapError(domain.ErrInvalidInput, "record event", fmt.Errorf("unknown event type %q", event.Type))
	}

	if err := r.repo.Record(ctx, sub); err != nil {
		return fmt.Errorf("record submission %s: %w", sub.ID, err)
	}
	return nil
}

package ports

import (
	"context"
	"io"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
)

// SubmissionStore holds the tracked submission collection.
// Resolve must be an atomic compare-and-set from processing to a terminal state.
type SubmissionStore interface {
	Create(ctx context.Context, sub domain.Submission) error
	Resolve(ctx context.Context, id string, outcome domain.Outcome) (domain.Submission, error)
	GetByID(ctx context.Context, id string) (domain.Submission, error)
	List(ctx context.Context) ([]domain.Submission, error)
}

// ObjectStorage spools uploaded archives until their forwarding call settles.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// SubmissionEventPublisher appends lifecycle events to the result log stream.
type SubmissionEventPublisher interface {
	PublishSubmissionEvent(ctx context.Context, event domain.SubmissionEvent) error
}

// SubmissionEventSubscriber consumes lifecycle events.
type SubmissionEventSubscriber interface {
	SubscribeSubmissionEvents(ctx context.Context, handler func(context.Context, domain.SubmissionEvent) error) error
}

// ResultLogRepository persists submission state durably.
type ResultLogRepository interface {
	Record(ctx context.Context, sub domain.Submission) error
	GetByID(ctx context.Context, id string) (*domain.Submission, error)
	List(ctx context.Context, limit int) ([]domain.Submission, error)
}

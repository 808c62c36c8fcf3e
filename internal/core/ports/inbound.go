package ports

import (
	"context"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
)

// BatchSubmitter is the inbound contract for batch upload orchestration.
type BatchSubmitter interface {
	SubmitBatch(ctx context.Context, files []domain.BatchFile, description string) (*domain.BatchReceipt, error)
}

// SubmissionReader is the inbound read model for tracked submissions.
type SubmissionReader interface {
	Get(ctx context.Context, id string) (*domain.Submission, error)
	List(ctx context.Context) ([]domain.Submission, error)
}

// Forwarder relays one logical request to the classifier service.
type Forwarder interface {
	Classify(ctx context.Context, upload domain.Upload) (*domain.ForwardResult, error)
	AnalyzeDescription(ctx context.Context, description string) (*domain.ForwardResult, error)
	Evaluate(ctx context.Context, upload domain.Upload, description string) (*domain.ForwardResult, error)
}

// HistoryReader exposes the durable result log.
type HistoryReader interface {
	List(ctx context.Context, limit int) ([]domain.Submission, error)
}

// EventRecorder applies result log events.
type EventRecorder interface {
	Record(ctx context.Context, event domain.SubmissionEvent) error
}

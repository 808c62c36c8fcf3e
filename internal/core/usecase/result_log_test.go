package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
)

type resultLogRepoFake struct {
	recorded []domain.Submission
	err      error
}

func (f *resultLogRepoFake) Record(_ context.Context, sub domain.Submission) error {
	if f.err != nil {
		return f.err
	}
	f.recorded = append(f.recorded, sub)
	return nil
}

func (f *resultLogRepoFake) GetByID(context.Context, string) (*domain.Submission, error) {
	return nil, domain.ErrSubmissionNotFound
}

func (f *resultLogRepoFake) List(context.Context, int) ([]domain.Submission, error) {
	return f.recorded, nil
}

func TestResultLogRecorderRecordsLifecycle(t *testing.T) {
	repo := &resultLogRepoFake{}
	rec := NewResultLogRecorder(repo)

	sub := domain.Submission{ID: "s-1", Filename: "a.zip", Status: domain.StatusProcessing}
	if err := rec.Record(context.Background(), domain.SubmissionEvent{Type: domain.EventSubmissionCreated, Submission: sub}); err != nil {
		t.Fatalf("Record(created) error = %v", err)
	}

	sub.Status = domain.StatusCompleted
	sub.Score = ptr(91)
	if err := rec.Record(context.Background(), domain.SubmissionEvent{Type: domain.EventSubmissionResolved, Submission: sub}); err != nil {
		t.Fatalf("Record(resolved) error = %v", err)
	}

	if len(repo.recorded) != 2 {
		t.Fatalf("expected 2 recorded rows, got %d", len(repo.recorded))
	}
	if got := repo.recorded[1]; got.Score == nil || *got.Score != 91 {
		t.Fatalf("expected score 91 to be recorded, got %v", got.Score)
	}
}

func TestResultLogRecorderDropsScoreOnFailure(t *testing.T) {
	repo := &resultLogRepoFake{}
	rec := NewResultLogRecorder(repo)

	sub := domain.Submission{ID: "s-1", Status: domain.StatusFailed, Score: ptr(4), Error: "timeout"}
	if err := rec.Record(context.Background(), domain.SubmissionEvent{Type: domain.EventSubmissionResolved, Submission: sub}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if repo.recorded[0].Score != nil {
		t.Fatalf("failed submission must be recorded without score")
	}
}

func TestResultLogRecorderRejectsInconsistentEvents(t *testing.T) {
	cases := []struct {
		name  string
		event domain.SubmissionEvent
	}{
		{name: "missing id", event: domain.SubmissionEvent{Type: domain.EventSubmissionCreated, Submission: domain.Submission{Status: domain.StatusProcessing}}},
		{name: "unknown status", event: domain.SubmissionEvent{Type: domain.EventSubmissionCreated, Submission: domain.Submission{ID: "x", Status: "queued"}}},
		{name: "created but terminal", event: domain.SubmissionEvent{Type: domain.EventSubmissionCreated, Submission: domain.Submission{ID: "x", Status: domain.StatusCompleted}}},
		{name: "resolved but processing", event: domain.SubmissionEvent{Type: domain.EventSubmissionResolved, Submission: domain.Submission{ID: "x", Status: domain.StatusProcessing}}},
		{name: "unknown type", event: domain.SubmissionEvent{Type: "submission.deleted", Submission: domain.Submission{ID: "x", Status: domain.StatusProcessing}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &resultLogRepoFake{}
			err := NewResultLogRecorder(repo).Record(context.Background(), tc.event)
			if !domain.IsKind(err, domain.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if len(repo.recorded) != 0 {
				t.Fatalf("expected nothing recorded")
			}
		})
	}
}

func TestResultLogRecorderPropagatesRepositoryError(t *testing.T) {
	repoErr := domain.WrapError(domain.ErrTemporary, "record submission", errors.New("connection reset"))
	rec := NewResultLogRecorder(&resultLogRepoFake{err: repoErr})

	err := rec.Record(context.Background(), domain.SubmissionEvent{
		Type:       domain.EventSubmissionCreated,
		Submission: domain.Submission{ID: "s-1", Status: domain.StatusProcessing},
	})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error to propagate, got %v", err)
	}
}

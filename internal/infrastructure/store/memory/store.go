package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
)

// Store is the process-local submission collection. The mutex makes every
// Resolve an atomic compare-and-set on the submission's status.
type Store struct {
	mu    sync.RWMutex
	subs  map[string]domain.Submission
	order []string
	now   func() time.Time
}

func New() *Store {
	return &Store{
		subs: make(map[string]domain.Submission),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Create(_ context.Context, sub domain.Submission) error {
	if sub.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "create submission", fmt.Errorf("id is empty"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.subs[sub.ID]; exists {
		return domain.WrapError(domain.ErrInvalidInput, "create submission", fmt.Errorf("id %s already exists", sub.ID))
	}
	s.subs[sub.ID] = cloneSubmission(sub)
	s.order = append(s.order, sub.ID)
	return nil
}

func (s *Store) Resolve(_ context.Context, id string, outcome domain.Outcome) (domain.Submission, error) {
	if !outcome.Status.Terminal() {
		return domain.Submission{}, domain.WrapError(domain.ErrInvalidInput, "resolve submission", fmt.Errorf("status %q is not terminal", outcome.Status))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	if sub.Status.Terminal() {
		return domain.Submission{}, domain.ErrAlreadyResolved
	}
	resolved := outcome.Apply(sub, s.now())
	s.subs[id] = resolved
	return cloneSubmission(resolved), nil
}

func (s *Store) GetByID(_ context.Context, id string) (domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	if !ok {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	return cloneSubmission(sub), nil
}

// List returns submissions newest first.
func (s *Store) List(_ context.Context) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Submission, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, cloneSubmission(s.subs[s.order[i]]))
	}
	return out, nil
}

func cloneSubmission(sub domain.Submission) domain.Submission {
	out := sub
	if sub.Score != nil {
		score := *sub.Score
		out.Score = &score
	}
	if sub.ResolvedAt != nil {
		at := *sub.ResolvedAt
		out.ResolvedAt = &at
	}
	return out
}

package ports

import (
	"time"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
)

// SubmissionObserver receives lifecycle observations for metrics.
type SubmissionObserver interface {
	SubmissionCreated(count int)
	SubmissionResolved(status domain.SubmissionStatus, scoreAvailable bool, elapsed time.Duration)
}

// ForwardObserver receives one observation per downstream call.
type ForwardObserver interface {
	ObserveForward(call, outcome string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) SubmissionCreated(int) {}
func (nopObserver) SubmissionResolved(domain.SubmissionStatus, bool, time.Duration) {}
func (nopObserver) ObserveForward(string, string, time.Duration) {}

// NopObserver discards all observations.
func NopObserver() interface {
	SubmissionObserver
	ForwardObserver
} {
	return nopObserver{}
}

package classifier

import (
	"context"
	"errors"
	"net/http"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
	"github.com/kirillkom/praxis-intake/internal/infrastructure/resilience"
)

// classifyForwardingError never asks for a retry: each invocation is one
// outbound call. It only tells the breaker which failures count.
func classifyForwardingError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{}
	}
	if _, ok := domain.AsValidationError(err); ok {
		return resilience.ErrorClassification{}
	}

	var fwdErr *domain.ForwardingError
	if errors.As(err, &fwdErr) && fwdErr.StatusCode > 0 {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: countsAgainstBreaker(fwdErr.StatusCode),
		}
	}

	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}

func countsAgainstBreaker(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	default:
		return statusCode >= http.StatusInternalServerError
	}
}

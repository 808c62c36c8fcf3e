package httpadapter

import (
	"errors"
	"net/http"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
	"github.com/kirillkom/praxis-intake/internal/observability/logging"
)

func mapErrorToHTTPStatus(err error) int {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return http.StatusRequestEntityTooLarge
	}
	if fwdErr, ok := domain.AsForwardingError(err); ok {
		switch {
		case fwdErr.Timeout:
			return http.StatusGatewayTimeout
		case fwdErr.StatusCode >= 400 && fwdErr.StatusCode < 500:
			return fwdErr.StatusCode
		default:
			return http.StatusBadGateway
		}
	}

	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrSubmissionNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrAlreadyResolved):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error    string `json:"error"`
	Reason   string `json:"reason,omitempty"`
	Filename string `json:"filename,omitempty"`
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	resp := errorResponse{Error: err.Error()}
	if valErr, ok := domain.AsValidationError(err); ok {
		resp.Reason = string(valErr.Reason)
		resp.Filename = valErr.Filename
	}
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context(), rt.logger).Error("request_failed",
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeJSON(w, status, resp)
}

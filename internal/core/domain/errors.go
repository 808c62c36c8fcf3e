package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrAlreadyResolved    = errors.New("submission already resolved")
	ErrInvalidInput       = errors.New("invalid input")
	ErrForwarding         = errors.New("forwarding failed")
	ErrTemporary          = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

type ValidationReason string

const (
	ReasonEmptyBatch       ValidationReason = "empty_batch"
	ReasonDisallowedType   ValidationReason = "disallowed_type"
	ReasonFileTooLarge     ValidationReason = "file_too_large"
	ReasonEmptyDescription ValidationReason = "empty_description"
	ReasonMissingFile      ValidationReason = "missing_file"
	ReasonIndexOutOfRange  ValidationReason = "index_out_of_range"
)

// ValidationError reports the first precondition a request violated.
// It is always raised before any network activity.
type ValidationError struct {
	Reason   ValidationReason
	Filename string
	Message  string
}

func NewValidationError(reason ValidationReason, filename, message string) *ValidationError {
	return &ValidationError{Reason: reason, Filename: filename, Message: message}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "validation error"
	}
	if e.Filename == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, e.Filename)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// ForwardingError is the single failure shape of a downstream call.
// StatusCode is zero when no HTTP response was received.
type ForwardingError struct {
	Operation  string
	StatusCode int
	Message    string
	Timeout    bool
	Err        error
}

func (e *ForwardingError) Error() string {
	if e == nil {
		return "forwarding error"
	}
	msg := strings.TrimSpace(e.Message)
	if e.StatusCode > 0 {
		return fmt.Sprintf("classifier %s status %d: %s", e.Operation, e.StatusCode, msg)
	}
	return fmt.Sprintf("classifier %s: %s", e.Operation, msg)
}

func (e *ForwardingError) Unwrap() []error {
	errs := []error{ErrForwarding}
	if e.Timeout {
		errs = append(errs, ErrTemporary)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// AsForwardingError extracts a ForwardingError from an error chain.
func AsForwardingError(err error) (*ForwardingError, bool) {
	var fwdErr *ForwardingError
	if errors.As(err, &fwdErr) {
		return fwdErr, true
	}
	return nil, false
}

func AsValidationError(err error) (*ValidationError, bool) {
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return valErr, true
	}
	return nil, false
}

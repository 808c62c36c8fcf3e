package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
)

func TestEventCodecRoundTripKeepsScore(t *testing.T) {
	score := 91.0
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	event := domain.SubmissionEvent{
		Type: domain.EventSubmissionResolved,
		Submission: domain.Submission{
			ID:       "sub-1",
			BatchID:  "batch-1",
			Filename: "a.zip",
			Status:   domain.StatusCompleted,
			Score:    &score,
		},
		OccurredAt: now,
	}

	payload, err := encodeEvent(event)
	if err != nil {
		t.Fatalf("encodeEvent() error = %v", err)
	}
	decoded, err := decodeEvent(payload)
	if err != nil {
		t.Fatalf("decodeEvent() error = %v", err)
	}
	if decoded.Submission.Score == nil || *decoded.Submission.Score != 91 {
		t.Fatalf("expected score 91, got %v", decoded.Submission.Score)
	}
	if !decoded.OccurredAt.Equal(now) || decoded.Type != domain.EventSubmissionResolved {
		t.Fatalf("unexpected decoded event %+v", decoded)
	}
}

func TestDecodeEventRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"doc-123", `{"type":"submission.created"}`, `{"submission":{"id":"x"}}`} {
		_, err := decodeEvent([]byte(raw))
		if !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("decodeEvent(%q): expected ErrInvalidInput, got %v", raw, err)
		}
	}
}

func TestClassifyNATSError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		record    bool
	}{
		{name: "no servers", err: fmt.Errorf("publish: %w", nats.ErrNoServers), retryable: true, record: true},
		{name: "connection closed", err: nats.ErrConnectionClosed, retryable: true, record: true},
		{name: "cancelled", err: context.Canceled, retryable: false, record: false},
		{name: "oversized event", err: nats.ErrMaxPayload, retryable: false, record: false},
		{name: "bad event", err: domain.WrapError(domain.ErrInvalidInput, "marshal submission event", errors.New("nan")), retryable: false, record: false},
		{name: "bad subject", err: nats.ErrBadSubject, retryable: false, record: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			class := classifyNATSError(tc.err)
			if class.Retryable != tc.retryable || class.RecordFailure != tc.record {
				t.Fatalf("unexpected classification %+v", class)
			}
		})
	}
}

func TestPublishOperationPerEventType(t *testing.T) {
	if got := publishOperation(domain.EventSubmissionCreated); got != "nats.publish.created" {
		t.Fatalf("unexpected operation %q", got)
	}
	if got := publishOperation(domain.EventSubmissionResolved); got != "nats.publish.resolved" {
		t.Fatalf("unexpected operation %q", got)
	}
	if got := publishOperation(""); got != "nats.publish.unknown" {
		t.Fatalf("unexpected operation %q", got)
	}
}

func TestPublishErrorKeepsSubmissionAndKind(t *testing.T) {
	event := domain.SubmissionEvent{Type: domain.EventSubmissionResolved, Submission: domain.Submission{ID: "sub-7"}}

	err := publishError(event, nats.ErrTimeout)
	if !domain.IsKind(err, domain.ErrTemporary) || !strings.Contains(err.Error(), "sub-7") {
		t.Fatalf("expected temporary error naming the submission, got %v", err)
	}

	invalid := domain.WrapError(domain.ErrInvalidInput, "marshal submission event", errors.New("nan"))
	err = publishError(event, invalid)
	if domain.IsKind(err, domain.ErrTemporary) || !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("invalid events must not look temporary, got %v", err)
	}

	err = publishError(event, nats.ErrBadSubject)
	if domain.IsKind(err, domain.ErrTemporary) || !errors.Is(err, nats.ErrBadSubject) {
		t.Fatalf("permanent errors must keep their cause, got %v", err)
	}
	if publishError(event, nil) != nil {
		t.Fatalf("nil error must stay nil")
	}
}

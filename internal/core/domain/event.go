package domain

import "time"

type SubmissionEventType string

const (
	EventSubmissionCreated  SubmissionEventType = "submission.created"
	EventSubmissionResolved SubmissionEventType = "submission.resolved"
)

// SubmissionEvent is appended to the result log for every lifecycle transition.
type SubmissionEvent struct {
	Type       SubmissionEventType `json:"type"`
	Submission Submission          `json:"submission"`
	OccurredAt time.Time           `json:"occurred_at"`
}

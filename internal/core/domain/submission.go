package domain

import (
	"encoding/json"
	"io"
	"time"
)

type SubmissionStatus string

const (
	StatusProcessing SubmissionStatus = "processing"
	StatusCompleted  SubmissionStatus = "completed"
	StatusFailed     SubmissionStatus = "failed"
)

func (s SubmissionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s SubmissionStatus) Valid() bool {
	return s == StatusProcessing || s.Terminal()
}

// Submission is one tracked file+description pair.
// Score is nil unless the downstream classifier declared one on success.
type Submission struct {
	ID          string           `json:"id"`
	BatchID     string           `json:"batch_id"`
	Filename    string           `json:"filename"`
	Size        int64            `json:"size"`
	Description string           `json:"description"`
	Status      SubmissionStatus `json:"status"`
	Score       *float64         `json:"score,omitempty"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	ResolvedAt  *time.Time       `json:"resolved_at,omitempty"`
}

func (s Submission) ScoreAvailable() bool {
	return s.Status == StatusCompleted && s.Score != nil
}

// Outcome is the single settlement applied to a processing submission.
type Outcome struct {
	Status SubmissionStatus
	Score  *float64
	Error  string
}

func Completed(score *float64) Outcome {
	return Outcome{Status: StatusCompleted, Score: score}
}

func Failed(message string) Outcome {
	return Outcome{Status: StatusFailed, Error: message}
}

// Apply returns a copy of sub settled with the outcome. Failed outcomes never carry a score.
func (o Outcome) Apply(sub Submission, now time.Time) Submission {
	out := sub
	out.Status = o.Status
	out.UpdatedAt = now
	resolvedAt := now
	out.ResolvedAt = &resolvedAt
	switch o.Status {
	case StatusCompleted:
		if o.Score != nil {
			score := *o.Score
			out.Score = &score
		} else {
			out.Score = nil
		}
		out.Error = ""
	default:
		out.Score = nil
		out.Error = o.Error
	}
	return out
}

// BatchFile is one member of a user-selected batch.
type BatchFile struct {
	Filename string
	MimeType string
	Size     int64
	Body     io.Reader
}

// Upload is a file handed to the classifier.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// ForwardResult carries the downstream JSON body verbatim.
type ForwardResult struct {
	StatusCode  int             `json:"-"`
	ContentType string          `json:"-"`
	Body        json.RawMessage `json:"-"`
}

type BatchLimits struct {
	MaxFileBytes      int64
	AcceptedMimeTypes []string
	ArchiveExtension  string
}

const DefaultMaxFileBytes int64 = 100 * 1024 * 1024

func DefaultBatchLimits() BatchLimits {
	return BatchLimits{
		MaxFileBytes:      DefaultMaxFileBytes,
		AcceptedMimeTypes: []string{"application/zip", "application/x-zip-compressed"},
		ArchiveExtension:  ".zip",
	}
}

type BatchReceipt struct {
	BatchID     string       `json:"batch_id"`
	Submissions []Submission `json:"submissions"`
}

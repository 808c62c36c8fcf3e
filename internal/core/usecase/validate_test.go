package usecase

import (
	"testing"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
)

const mib = 1024 * 1024

func TestValidateBatch(t *testing.T) {
	limits := domain.DefaultBatchLimits()

	cases := []struct {
		name        string
		files       []domain.BatchFile
		description string
		reason      domain.ValidationReason
		filename    string
	}{
		{
			name:        "empty batch",
			description: "sample",
			reason:      domain.ReasonEmptyBatch,
		},
		{
			name: "executable rejects whole batch",
			files: []domain.BatchFile{
				{Filename: "a.zip", MimeType: "application/zip", Size: 10 * mib},
				{Filename: "b.exe", MimeType: "application/x-msdownload", Size: 1 * mib},
			},
			description: "sample",
			reason:      domain.ReasonDisallowedType,
			filename:    "b.exe",
		},
		{
			name: "oversized archive",
			files: []domain.BatchFile{
				{Filename: "big.zip", MimeType: "application/zip", Size: 100*mib + 1},
			},
			description: "sample",
			reason:      domain.ReasonFileTooLarge,
			filename:    "big.zip",
		},
		{
			name: "type checked before size",
			files: []domain.BatchFile{
				{Filename: "big.zip", MimeType: "application/zip", Size: 200 * mib},
				{Filename: "notes.txt", MimeType: "text/plain", Size: 10},
			},
			description: "sample",
			reason:      domain.ReasonDisallowedType,
			filename:    "notes.txt",
		},
		{
			name: "whitespace description",
			files: []domain.BatchFile{
				{Filename: "a.zip", MimeType: "application/zip", Size: 10 * mib},
			},
			description: " \n\t ",
			reason:      domain.ReasonEmptyDescription,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateBatch(tc.files, tc.description, limits)
			valErr, ok := domain.AsValidationError(err)
			if !ok {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if valErr.Reason != tc.reason {
				t.Fatalf("expected reason %s, got %s", tc.reason, valErr.Reason)
			}
			if valErr.Filename != tc.filename {
				t.Fatalf("expected filename %q, got %q", tc.filename, valErr.Filename)
			}
			if !domain.IsKind(err, domain.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput kind, got %v", err)
			}
		})
	}
}

func TestValidateBatchAcceptsArchiveVariants(t *testing.T) {
	files := []domain.BatchFile{
		{Filename: "a.zip", MimeType: "application/zip", Size: 10 * mib},
		{Filename: "UPPER.ZIP", MimeType: "application/octet-stream", Size: 1},
		{Filename: "folder", MimeType: "", Size: 0},
		{Filename: "renamed", MimeType: "application/x-zip-compressed", Size: 5},
		{Filename: "edge.zip", MimeType: "application/zip", Size: 100 * mib},
	}
	if err := ValidateBatch(files, "sample", domain.DefaultBatchLimits()); err != nil {
		t.Fatalf("ValidateBatch() error = %v", err)
	}
}

func TestValidateBatchUsesDefaultsForZeroLimits(t *testing.T) {
	files := []domain.BatchFile{{Filename: "a.zip", Size: 100*mib + 1}}
	err := ValidateBatch(files, "sample", domain.BatchLimits{})
	valErr, ok := domain.AsValidationError(err)
	if !ok || valErr.Reason != domain.ReasonFileTooLarge {
		t.Fatalf("expected file_too_large with default ceiling, got %v", err)
	}
}

package usecase

import (
	"strings"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
)

// ValidateBatch checks a batch before anything is created. It returns the first
// violated constraint: empty batch, then type, then size, then description.
func ValidateBatch(files []domain.BatchFile, description string, limits domain.BatchLimits) error {
	limits = normalizeLimits(limits)

	if len(files) == 0 {
		return domain.NewValidationError(domain.ReasonEmptyBatch, "", "please select at least one dataset file")
	}
	for _, f := range files {
		if !AcceptedType(f, limits) {
			return domain.NewValidationError(domain.ReasonDisallowedType, f.Filename, "file type is not allowed, expected a .zip archive or folder")
		}
	}
	for _, f := range files {
		if f.Size > limits.MaxFileBytes {
			return domain.NewValidationError(domain.ReasonFileTooLarge, f.Filename, "file exceeds the upload size limit")
		}
	}
	if strings.TrimSpace(description) == "" {
		return domain.NewValidationError(domain.ReasonEmptyDescription, "", "please add a dataset description")
	}
	return nil
}

// AcceptedType reports whether f looks like an archive. An empty MIME type
// stands in for a directory-like selection and is accepted.
func AcceptedType(f domain.BatchFile, limits domain.BatchLimits) bool {
	limits = normalizeLimits(limits)

	mimeType := strings.ToLower(strings.TrimSpace(f.MimeType))
	if mimeType == "" {
		return true
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	for _, accepted := range limits.AcceptedMimeTypes {
		if mimeType == strings.ToLower(strings.TrimSpace(accepted)) {
			return true
		}
	}
	return strings.HasSuffix(strings.ToLower(f.Filename), strings.ToLower(limits.ArchiveExtension))
}

func normalizeLimits(limits domain.BatchLimits) domain.BatchLimits {
	def := domain.DefaultBatchLimits()
	if limits.MaxFileBytes <= 0 {
		limits.MaxFileBytes = def.MaxFileBytes
	}
	if len(limits.AcceptedMimeTypes) == 0 {
		limits.AcceptedMimeTypes = def.AcceptedMimeTypes
	}
	if limits.ArchiveExtension == "" {
		limits.ArchiveExtension = def.ArchiveExtension
	}
	return limits
}

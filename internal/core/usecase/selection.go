package usecase

import (
	"fmt"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
)

// Selection is the pre-submit staging area. Nothing staged here is tracked or
// sent anywhere until the caller submits Files() as a batch.
type Selection struct {
	limits domain.BatchLimits
	files  []domain.BatchFile
}

func NewSelection(limits domain.BatchLimits) *Selection {
	return &Selection{limits: normalizeLimits(limits)}
}

// Add replaces the staged set with the archive-like members of files.
// Non-archives are dropped silently; the whole addition is rejected when
// nothing remains or when any remaining member is oversized.
func (s *Selection) Add(files ...domain.BatchFile) error {
	valid := make([]domain.BatchFile, 0, len(files))
	for _, f := range files {
		if AcceptedType(f, s.limits) {
			valid = append(valid, f)
		}
	}
	if len(valid) == 0 {
		return domain.NewValidationError(domain.ReasonDisallowedType, "", "please select .zip files or folders")
	}
	for _, f := range valid {
		if f.Size > s.limits.MaxFileBytes {
			return domain.NewValidationError(domain.ReasonFileTooLarge, f.Filename, "some files exceed the upload size limit")
		}
	}
	s.files = valid
	return nil
}

// Remove drops the staged file at index.
func (s *Selection) Remove(index int) error {
	if index < 0 || index >= len(s.files) {
		return domain.NewValidationError(
			domain.ReasonIndexOutOfRange,
			"",
			fmt.Sprintf("selection index %d out of range [0,%d)", index, len(s.files)),
		)
	}
	s.files = append(s.files[:index:index], s.files[index+1:]...)
	return nil
}

func (s *Selection) Files() []domain.BatchFile {
	out := make([]domain.BatchFile, len(s.files))
	copy(out, s.files)
	return out
}

func (s *Selection) Len() int { return len(s.files) }

func (s *Selection) Clear() { s.files = nil }

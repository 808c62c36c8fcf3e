package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"

	"github.com/kirillkom/praxis-intake/internal/adapters/apiclient"
	"github.com/kirillkom/praxis-intake/internal/core/domain"
)

var (
	processingColor = color.New(color.FgYellow)
	successColor    = color.New(color.FgGreen, color.Bold)
	failureColor    = color.New(color.FgRed, color.Bold)
	dimColor        = color.New(color.Faint)
)

func formatSubmission(sub domain.Submission) string {
	line := fmt.Sprintf("%s  %-28s  %s", dimColor.Sprint(sub.ID), sub.Filename, statusLabel(sub.Status))
	switch sub.Status {
	case domain.StatusCompleted:
		line += "  score " + formatScore(sub)
	case domain.StatusFailed:
		line += "  " + sub.Error
	}
	return line
}

func statusLabel(status domain.SubmissionStatus) string {
	label := fmt.Sprintf("%-10s", status)
	switch status {
	case domain.StatusCompleted:
		return successColor.Sprint(label)
	case domain.StatusFailed:
		return failureColor.Sprint(label)
	default:
		return processingColor.Sprint(label)
	}
}

// formatScore never invents a value: a completed submission without a
// declared score prints as unavailable.
func formatScore(sub domain.Submission) string {
	if !sub.ScoreAvailable() {
		return dimColor.Sprint("unavailable")
	}
	return strconv.FormatFloat(*sub.Score, 'f', -1, 64)
}

func printStaged(w io.Writer, files []domain.BatchFile) {
	fmt.Fprintf(w, "staged %d file(s):\n", len(files))
	for i, f := range files {
		fmt.Fprintf(w, "  [%d] %s (%d bytes)\n", i, f.Filename, f.Size)
	}
}

func printSubmissions(w io.Writer, subs []domain.Submission) {
	if len(subs) == 0 {
		fmt.Fprintln(w, dimColor.Sprint("no submissions"))
		return
	}
	for _, sub := range subs {
		fmt.Fprintln(w, formatSubmission(sub))
	}
}

func describeError(err error) string {
	if valErr, ok := domain.AsValidationError(err); ok {
		return validationMessage(string(valErr.Reason), valErr.Filename, valErr.Message)
	}
	if apiErr, ok := apiclient.AsAPIError(err); ok && apiErr.Reason != "" {
		return validationMessage(apiErr.Reason, apiErr.Filename, apiErr.Message)
	}
	if errors.Is(err, domain.ErrTemporary) {
		return err.Error() + " (is the api running?)"
	}
	return err.Error()
}

func validationMessage(reason, filename, message string) string {
	if filename != "" {
		return fmt.Sprintf("%s: %s [%s]", filename, message, reason)
	}
	return fmt.Sprintf("%s [%s]", message, reason)
}

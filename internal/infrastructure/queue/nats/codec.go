package nats

import (
	"encoding/json"
	"errors"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
)

func encodeEvent(event domain.SubmissionEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "marshal submission event", err)
	}
	return payload, nil
}

func decodeEvent(data []byte) (domain.SubmissionEvent, error) {
	var event domain.SubmissionEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.SubmissionEvent{}, domain.WrapError(domain.ErrInvalidInput, "decode submission event", err)
	}
	if event.Type == "" || event.Submission.ID == "" {
		return domain.SubmissionEvent{}, domain.WrapError(domain.ErrInvalidInput, "decode submission event", errors.New("event type and submission id are required"))
	}
	return event, nil
}

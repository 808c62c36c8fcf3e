package usecase

import (
	"bytes"
	"encoding/json"
	"math"
)

// scoreFields lists the payload keys that carry a score, in priority order.
// /api/classify answers with dataset_score and /api/evaluate with unified_score.
var scoreFields = []string{"score", "unified_score", "dataset_score"}

// ExtractScore returns the first finite numeric score declared at the top
// level of a classifier payload, or nil when none is present.
func ExtractScore(payload json.RawMessage) *float64 {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil
	}
	for _, key := range scoreFields {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var value float64
		if err := json.Unmarshal(raw, &value); err != nil {
			continue
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}
		return &value
	}
	return nil
}

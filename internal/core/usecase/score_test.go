package usecase

import (
	"encoding/json"
	"testing"
)

func TestExtractScore(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    *float64
	}{
		{name: "score field", payload: `{"score": 91}`, want: ptr(91)},
		{name: "classify payload", payload: `{"file_results": {}, "dataset_score": 0.72}`, want: ptr(0.72)},
		{name: "evaluate payload", payload: `{"final": {}, "unified_score": 0.5, "files": {"dataset_score": 0.9}}`, want: ptr(0.5)},
		{name: "score wins over others", payload: `{"dataset_score": 0.1, "score": 0.2}`, want: ptr(0.2)},
		{name: "zero is a real score", payload: `{"score": 0}`, want: ptr(0)},
		{name: "missing", payload: `{"label": "Good"}`},
		{name: "non numeric skipped", payload: `{"score": "high", "dataset_score": 0.3}`, want: ptr(0.3)},
		{name: "null", payload: `{"score": null}`},
		{name: "array payload", payload: `[1,2,3]`},
		{name: "empty", payload: ``},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractScore(json.RawMessage(tc.payload))
			switch {
			case tc.want == nil && got != nil:
				t.Fatalf("expected no score, got %v", *got)
			case tc.want != nil && got == nil:
				t.Fatalf("expected score %v, got none", *tc.want)
			case tc.want != nil && *got != *tc.want:
				t.Fatalf("expected score %v, got %v", *tc.want, *got)
			}
		})
	}
}

func ptr(v float64) *float64 { return &v }

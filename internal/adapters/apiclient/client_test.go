package apiclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
)

func TestSubmitBatchSendsFilesAndDescription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/batches" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() error = %v", err)
			return
		}
		files := r.MultipartForm.File["files"]
		if len(files) != 2 || files[0].Filename != "a.zip" || files[1].Filename != `b "x".zip` {
			t.Errorf("unexpected files %+v", files)
		}
		if ct := files[0].Header.Get("Content-Type"); ct != "application/zip" {
			t.Errorf("unexpected content type %q", ct)
		}
		if got := r.FormValue("description"); got != "weather data" {
			t.Errorf("unexpected description %q", got)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(domain.BatchReceipt{
			BatchID:     "b-1",
			Submissions: []domain.Submission{{ID: "s-1", Status: domain.StatusProcessing}, {ID: "s-2", Status: domain.StatusProcessing}},
		})
	}))
	defer server.Close()

	client := New(server.URL, nil)
	receipt, err := client.SubmitBatch(context.Background(), []domain.BatchFile{
		{Filename: "a.zip", Body: strings.NewReader("PK")},
		{Filename: `b "x".zip`, MimeType: "application/x-zip-compressed", Body: strings.NewReader("PK")},
	}, "weather data")
	if err != nil {
		t.Fatalf("SubmitBatch() error = %v", err)
	}
	if receipt.BatchID != "b-1" || len(receipt.Submissions) != 2 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
}

func TestSubmitBatchDecodesValidationRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"file type is not allowed","reason":"disallowed_type","filename":"b.exe"}`))
	}))
	defer server.Close()

	_, err := New(server.URL, nil).SubmitBatch(context.Background(), []domain.BatchFile{
		{Filename: "b.exe", Body: strings.NewReader("MZ")},
	}, "d")
	apiErr, ok := AsAPIError(err)
	if !ok {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Reason != "disallowed_type" || apiErr.Filename != "b.exe" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput kind")
	}
}

func TestGetSubmissionNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := New(server.URL, nil).GetSubmission(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrSubmissionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAwaitPollsUntilTerminal(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub := domain.Submission{ID: strings.TrimPrefix(r.URL.Path, "/v1/submissions/"), Status: domain.StatusProcessing}
		if polls.Add(1) > 2 {
			score := 91.0
			sub.Status = domain.StatusCompleted
			sub.Score = &score
		}
		_ = json.NewEncoder(w).Encode(sub)
	}))
	defer server.Close()

	var transitions []domain.SubmissionStatus
	subs, err := New(server.URL, nil).Await(context.Background(), []string{"s-1"}, time.Millisecond, func(sub domain.Submission) {
		transitions = append(transitions, sub.Status)
	})
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if len(subs) != 1 || subs[0].Status != domain.StatusCompleted || *subs[0].Score != 91 {
		t.Fatalf("unexpected result %+v", subs)
	}
	if len(transitions) != 2 || transitions[0] != domain.StatusProcessing || transitions[1] != domain.StatusCompleted {
		t.Fatalf("expected processing then completed, got %v", transitions)
	}
}

func TestAwaitStopsOnContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(domain.Submission{ID: "s-1", Status: domain.StatusProcessing})
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := New(server.URL, nil).Await(ctx, []string{"s-1"}, 5*time.Millisecond, nil)
	if err == nil {
		t.Fatalf("expected context error")
	}
}

func TestHistoryPassesLimitAndMapsUnavailable(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"result log is not configured"}`))
	}))
	defer server.Close()

	_, err := New(server.URL, nil).History(context.Background(), 7)
	if gotQuery != "limit=7" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestAnalyzeDescriptionReturnsPayloadVerbatim(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["description"] != "sensor logs" {
			t.Errorf("unexpected description %q", req["description"])
		}
		_, _ = w.Write([]byte(`{"topics":["iot"]}`))
	}))
	defer server.Close()

	raw, err := New(server.URL, nil).AnalyzeDescription(context.Background(), "sensor logs")
	if err != nil {
		t.Fatalf("AnalyzeDescription() error = %v", err)
	}
	if string(raw) != `{"topics":["iot"]}` {
		t.Fatalf("unexpected payload %s", raw)
	}
}

package redisstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
)

func TestKeysUsePrefix(t *testing.T) {
	store := New(nil, Options{Prefix: "test"})
	if got := store.submissionKey("abc"); got != "test:submission:abc" {
		t.Fatalf("unexpected submission key %q", got)
	}
	if got := store.orderKey(); got != "test:submissions:order" {
		t.Fatalf("unexpected order key %q", got)
	}
	if got := New(nil, Options{}).submissionKey("x"); got != "praxis:submission:x" {
		t.Fatalf("unexpected default key %q", got)
	}
}

func TestSubmissionCodecKeepsAbsentScoreAbsent(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sub := domain.Submission{ID: "s-1", Filename: "a.zip", Status: domain.StatusCompleted, CreatedAt: now, UpdatedAt: now}

	raw, err := encodeSubmission(sub)
	if err != nil {
		t.Fatalf("encodeSubmission() error = %v", err)
	}
	decoded, err := decodeSubmission(raw)
	if err != nil {
		t.Fatalf("decodeSubmission() error = %v", err)
	}
	if decoded.Score != nil {
		t.Fatalf("absent score must stay absent, got %v", *decoded.Score)
	}
	if !decoded.CreatedAt.Equal(now) {
		t.Fatalf("unexpected created_at %v", decoded.CreatedAt)
	}
}

func TestDecodeSubmissionRejectsUnknownStatus(t *testing.T) {
	if _, err := decodeSubmission([]byte(`{"id":"s-1","status":"queued"}`)); err == nil {
		t.Fatalf("expected error for unknown status")
	}
	if _, err := decodeSubmission([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}

func TestResolveRejectsNonTerminalOutcomeWithoutRoundTrip(t *testing.T) {
	store := New(nil, Options{})
	_, err := store.Resolve(context.Background(), "s-1", domain.Outcome{Status: domain.StatusProcessing})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestConnectFailsAsTemporary(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := Connect(ctx, "127.0.0.1:1", "", 0)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	if errors.Is(err, redis.Nil) {
		t.Fatalf("unexpected redis.Nil")
	}
}

func TestCreateRejectsEmptyID(t *testing.T) {
	store := New(nil, Options{})
	if err := store.Create(context.Background(), domain.Submission{}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func newServerStore(t *testing.T) *Store {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, Options{Prefix: "test"})
}

func processing(id string, createdAt time.Time) domain.Submission {
	return domain.Submission{
		ID:        id,
		BatchID:   "batch-1",
		Filename:  id + ".zip",
		Status:    domain.StatusProcessing,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	store := newServerStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.Create(ctx, processing("s-1", now)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Create(ctx, processing("s-1", now)); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for duplicate id, got %v", err)
	}

	got, err := store.GetByID(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != domain.StatusProcessing || got.Filename != "s-1.zip" {
		t.Fatalf("unexpected submission %+v", got)
	}
	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, domain.ErrSubmissionNotFound) {
		t.Fatalf("expected ErrSubmissionNotFound, got %v", err)
	}
}

func TestResolveConcurrentSettlementHasOneWinner(t *testing.T) {
	store := newServerStore(t)
	ctx := context.Background()
	if err := store.Create(ctx, processing("s-1", time.Now().UTC())); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	const callers = 10
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  int
		resolved int
		other    []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			score := float64(i)
			_, err := store.Resolve(ctx, "s-1", domain.Completed(&score))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, domain.ErrAlreadyResolved):
				resolved++
			default:
				other = append(other, err)
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 || resolved != callers-1 || len(other) != 0 {
		t.Fatalf("expected 1 winner and %d already resolved, got %d/%d errors=%v", callers-1, winners, resolved, other)
	}
	got, err := store.GetByID(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != domain.StatusCompleted || got.Score == nil {
		t.Fatalf("expected completed with score, got %+v", got)
	}
}

func TestResolveFailedOutcomeDropsScore(t *testing.T) {
	store := newServerStore(t)
	ctx := context.Background()
	if err := store.Create(ctx, processing("s-1", time.Now().UTC())); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	score := 0.9
	outcome := domain.Failed("classifier timeout")
	outcome.Score = &score
	got, err := store.Resolve(ctx, "s-1", outcome)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Status != domain.StatusFailed || got.Score != nil || got.Error != "classifier timeout" {
		t.Fatalf("unexpected resolved submission %+v", got)
	}

	stored, err := store.GetByID(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if stored.Score != nil || stored.ResolvedAt == nil {
		t.Fatalf("expected stored failure without score, got %+v", stored)
	}
	if _, err := store.Resolve(ctx, "missing", domain.Failed("x")); !errors.Is(err, domain.ErrSubmissionNotFound) {
		t.Fatalf("expected ErrSubmissionNotFound, got %v", err)
	}
}

func TestListReturnsNewestFirstWithinBatch(t *testing.T) {
	store := newServerStore(t)
	ctx := context.Background()
	sameInstant := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, id := range []string{"b-1", "a-2", "c-3"} {
		if err := store.Create(ctx, processing(id, sameInstant)); err != nil {
			t.Fatalf("Create(%s) error = %v", id, err)
		}
	}

	subs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"c-3", "a-2", "b-1"}
	if len(subs) != len(want) {
		t.Fatalf("expected %d submissions, got %d", len(want), len(subs))
	}
	for i, id := range want {
		if subs[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, subs[i].ID)
		}
	}
}

func TestListEmpty(t *testing.T) {
	subs, err := newServerStore(t).List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if subs == nil || len(subs) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", subs)
	}
}

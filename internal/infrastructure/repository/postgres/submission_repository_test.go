package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
)

var submissionColumns = []string{
	"id", "batch_id", "filename", "size_bytes", "description", "status", "score",
	"error_message", "created_at", "updated_at", "resolved_at",
}

func newRepoWithMock(t *testing.T) (*SubmissionRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &SubmissionRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(int64(2026101601)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS submissions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecordCompletedWritesScore(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	score := 91.0
	sub := domain.Submission{
		ID: "s-1", BatchID: "b-1", Filename: "a.zip", Size: 10, Description: "sample",
		Status: domain.StatusCompleted, Score: &score, CreatedAt: now, UpdatedAt: now, ResolvedAt: &now,
	}

	mock.ExpectExec("INSERT INTO submissions").
		WithArgs("s-1", "b-1", "a.zip", int64(10), "sample", "completed", 91.0, "", now, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Record(context.Background(), sub); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecordFailedWritesNullScore(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	score := 4.0
	sub := domain.Submission{
		ID: "s-2", BatchID: "b-1", Filename: "b.zip", Status: domain.StatusFailed,
		Score: &score, Error: "timeout", CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectExec("ON CONFLICT \\(id\\) DO UPDATE").
		WithArgs("s-2", "b-1", "b.zip", int64(0), "", "failed", nil, "timeout", now, now, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Record(context.Background(), sub); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecordWrapsDriverError(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO submissions").WillReturnError(errors.New("connection refused"))

	err := repo.Record(context.Background(), domain.Submission{ID: "s-1", Status: domain.StatusProcessing})
	if err == nil || err.Error() != "upsert submission: connection refused" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, batch_id, filename").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrSubmissionNotFound) {
		t.Fatalf("expected ErrSubmissionNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListScansNullableColumns(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(submissionColumns).
		AddRow("s-2", "b-1", "b.zip", int64(5), "sample", "completed", nil, "", now, now, now).
		AddRow("s-1", "b-1", "a.zip", int64(5), "sample", "completed", 0.8, "", now, now, now).
		AddRow("s-0", "b-0", "c.zip", int64(5), "sample", "processing", nil, "", now, now, nil)
	mock.ExpectQuery("ORDER BY created_at DESC LIMIT").WithArgs(50).WillReturnRows(rows)

	subs, err := repo.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(subs) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(subs))
	}
	if subs[0].Score != nil {
		t.Fatalf("completed without score must keep score absent")
	}
	if subs[1].Score == nil || *subs[1].Score != 0.8 {
		t.Fatalf("expected score 0.8, got %v", subs[1].Score)
	}
	if subs[2].ResolvedAt != nil || subs[2].Status != domain.StatusProcessing {
		t.Fatalf("unexpected processing row %+v", subs[2])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListClampsLimit(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("ORDER BY created_at DESC LIMIT").WithArgs(maxHistoryLimit).WillReturnRows(sqlmock.NewRows(submissionColumns))

	subs, err := repo.List(context.Background(), 10_000)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("expected empty result")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

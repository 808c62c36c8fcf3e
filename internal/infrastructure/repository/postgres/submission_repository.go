package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// SubmissionRepository is the durable result log. Rows only move forward:
// once a submission is terminal its row is never rewritten.
type SubmissionRepository struct {
	db *sql.DB
}

func NewSubmissionRepository(db *sql.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *SubmissionRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS submissions (
	id TEXT PRIMARY KEY,
	batch_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	size_bytes BIGINT NOT NULL DEFAULT 0,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	score DOUBLE PRECISION,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	resolved_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_submissions_batch_id ON submissions(batch_id);
CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Record upserts the submission snapshot. A processing snapshot arriving
// after the terminal one leaves the row untouched.
func (r *SubmissionRepository) Record(ctx context.Context, sub domain.Submission) error {
	var score any
	if sub.Status == domain.StatusCompleted && sub.Score != nil {
		score = *sub.Score
	}
	var resolvedAt any
	if sub.ResolvedAt != nil {
		resolvedAt = *sub.ResolvedAt
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO submissions (
	id, batch_id, filename, size_bytes, description, status, score, error_message, created_at, updated_at, resolved_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	score = EXCLUDED.score,
	error_message = EXCLUDED.error_message,
	updated_at = EXCLUDED.updated_at,
	resolved_at = EXCLUDED.resolved_at
WHERE submissions.status = 'processing'
`,
		sub.ID, sub.BatchID, sub.Filename, sub.Size, sub.Description, string(sub.Status),
		score, sub.Error, sub.CreatedAt, sub.UpdatedAt, resolvedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert submission: %w", err)
	}
	return nil
}

const selectSubmission = `
SELECT id, batch_id, filename, size_bytes, description, status, score, error_message, created_at, updated_at, resolved_at
FROM submissions
`

func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*domain.Submission, error) {
	row := r.db.QueryRowContext(ctx, selectSubmission+`WHERE id = $1`, id)
	sub, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrSubmissionNotFound, "get submission", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan submission: %w", err)
	}
	return sub, nil
}

// List returns the most recent submissions first.
func (r *SubmissionRepository) List(ctx context.Context, limit int) ([]domain.Submission, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx, selectSubmission+`ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Submission, 0, limit)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*domain.Submission, error) {
	var (
		sub        domain.Submission
		status     string
		score      sql.NullFloat64
		resolvedAt sql.NullTime
	)
	err := row.Scan(
		&sub.ID, &sub.BatchID, &sub.Filename, &sub.Size, &sub.Description, &status,
		&score, &sub.Error, &sub.CreatedAt, &sub.UpdatedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Status = domain.SubmissionStatus(status)
	if score.Valid && sub.Status == domain.StatusCompleted {
		value := score.Float64
		sub.Score = &value
	}
	if resolvedAt.Valid {
		at := resolvedAt.Time
		sub.ResolvedAt = &at
	}
	return &sub, nil
}

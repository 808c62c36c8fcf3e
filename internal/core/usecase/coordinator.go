package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
	"github.com/kirillkom/praxis-intake/internal/core/ports"
)

type DispatchMode string

const (
	// DispatchClassify sends the archive alone to the classification endpoint.
	DispatchClassify DispatchMode = "classify"
	// DispatchEvaluate sends the archive together with the batch description.
	DispatchEvaluate DispatchMode = "evaluate"
)

func ParseDispatchMode(raw string) DispatchMode {
	switch DispatchMode(strings.ToLower(strings.TrimSpace(raw))) {
	case DispatchEvaluate:
		return DispatchEvaluate
	default:
		return DispatchClassify
	}
}

type CoordinatorOptions struct {
	Limits   domain.BatchLimits
	Mode     DispatchMode
	Events   ports.SubmissionEventPublisher
	Observer ports.SubmissionObserver
	Logger   *slog.Logger
	Now      func() time.Time
}

// Coordinator owns batch validation, the submission lifecycle and
// per-submission dispatch. Every submission is forwarded by its own task and
// settled by id, so siblings never wait on or overwrite each other.
type Coordinator struct {
	store     ports.SubmissionStore
	storage   ports.ObjectStorage
	forwarder ports.Forwarder
	events    ports.SubmissionEventPublisher
	observer  ports.SubmissionObserver
	logger    *slog.Logger
	limits    domain.BatchLimits
	mode      DispatchMode
	now       func() time.Time

	tasks conc.WaitGroup
}

type dispatchJob struct {
	submission domain.Submission
	spoolKey   string
	mimeType   string
}

func NewCoordinator(
	store ports.SubmissionStore,
	storage ports.ObjectStorage,
	forwarder ports.Forwarder,
	opts CoordinatorOptions,
) *Coordinator {
	c := &Coordinator{
		store:     store,
		storage:   storage,
		forwarder: forwarder,
		events:    opts.Events,
		observer:  opts.Observer,
		logger:    opts.Logger,
		limits:    normalizeLimits(opts.Limits),
		mode:      opts.Mode,
		now:       opts.Now,
	}
	if c.mode == "" {
		c.mode = DispatchClassify
	}
	if c.observer == nil {
		c.observer = ports.NopObserver()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	return c
}

// SubmitBatch validates the batch, registers one processing submission per
// file and dispatches each independently. It returns as soon as every
// submission is registered and dispatched; results arrive through the store.
func (c *Coordinator) SubmitBatch(ctx context.Context, files []domain.BatchFile, description string) (*domain.BatchReceipt, error) {
	if err := ValidateBatch(files, description, c.limits); err != nil {
		return nil, err
	}

	batchID := uuid.NewString()
	now := c.now()
	// In-flight calls outlive the request that started them.
	detached := context.WithoutCancel(ctx)

	created := make([]domain.Submission, 0, len(files))
	for _, f := range files {
		sub := domain.Submission{
			ID:          uuid.NewString(),
			BatchID:     batchID,
			Filename:    f.Filename,
			Size:        f.Size,
			Description: description,
			Status:      domain.StatusProcessing,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := c.store.Create(ctx, sub); err != nil {
			c.abortRegistered(detached, created, err)
			return nil, fmt.Errorf("register submission %s: %w", f.Filename, err)
		}
		created = append(created, sub)
		c.publish(detached, domain.EventSubmissionCreated, sub)
	}
	c.observer.SubmissionCreated(len(created))

	c.logger.Info("batch_submitted",
		"batch_id", batchID,
		"files", len(created),
		"mode", string(c.mode),
	)

	for i, sub := range created {
		job, err := c.spool(ctx, sub, files[i])
		if err != nil {
			c.logger.Warn("submission_spool_failed", "submission_id", sub.ID, "batch_id", batchID, "error", err)
			c.settle(detached, sub, domain.Failed(err.Error()))
			continue
		}
		c.tasks.Go(func() {
			c.dispatch(detached, job)
		})
	}

	return &domain.BatchReceipt{BatchID: batchID, Submissions: created}, nil
}

func (c *Coordinator) Get(ctx context.Context, id string) (*domain.Submission, error) {
	sub, err := c.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (c *Coordinator) List(ctx context.Context) ([]domain.Submission, error) {
	return c.store.List(ctx)
}

// Wait blocks until every dispatched submission has settled.
func (c *Coordinator) Wait() {
	c.tasks.Wait()
}

func (c *Coordinator) spool(ctx context.Context, sub domain.Submission, f domain.BatchFile) (dispatchJob, error) {
	if f.Body == nil {
		return dispatchJob{}, domain.WrapError(domain.ErrInvalidInput, "spool upload", errors.New("file body is missing"))
	}
	key := spoolKey(sub)
	if err := c.storage.Save(ctx, key, f.Body); err != nil {
		return dispatchJob{}, fmt.Errorf("spool upload: %w", err)
	}
	return dispatchJob{submission: sub, spoolKey: key, mimeType: f.MimeType}, nil
}

func (c *Coordinator) dispatch(ctx context.Context, job dispatchJob) {
	sub := job.submission
	defer c.discardSpool(ctx, job.spoolKey)

	var (
		result *domain.ForwardResult
		err    error
	)
	var catcher panics.Catcher
	catcher.Try(func() {
		result, err = c.forward(ctx, job)
	})
	if recovered := catcher.Recovered(); recovered != nil {
		err = fmt.Errorf("forwarding panicked: %v", recovered.Value)
	}

	if err != nil {
		c.logger.Warn("submission_forward_failed",
			"submission_id", sub.ID,
			"batch_id", sub.BatchID,
			"filename", sub.Filename,
			"error", err,
		)
		c.settle(ctx, sub, domain.Failed(err.Error()))
		return
	}

	score := ExtractScore(result.Body)
	if score == nil {
		c.logger.Warn("submission_score_unavailable",
			"submission_id", sub.ID,
			"batch_id", sub.BatchID,
		)
	}
	c.settle(ctx, sub, domain.Completed(score))
}

func (c *Coordinator) forward(ctx context.Context, job dispatchJob) (*domain.ForwardResult, error) {
	body, err := c.storage.Open(ctx, job.spoolKey)
	if err != nil {
		return nil, fmt.Errorf("open spooled upload: %w", err)
	}
	defer body.Close()

	upload := domain.Upload{
		Filename:    job.submission.Filename,
		ContentType: job.mimeType,
		Body:        body,
	}
	switch c.mode {
	case DispatchEvaluate:
		return c.forwarder.Evaluate(ctx, upload, job.submission.Description)
	default:
		return c.forwarder.Classify(ctx, upload)
	}
}

func (c *Coordinator) settle(ctx context.Context, sub domain.Submission, outcome domain.Outcome) {
	resolved, err := c.store.Resolve(ctx, sub.ID, outcome)
	if err != nil {
		c.logger.Error("submission_settle_failed",
			"submission_id", sub.ID,
			"status", string(outcome.Status),
			"error", err,
		)
		return
	}

	c.observer.SubmissionResolved(resolved.Status, resolved.ScoreAvailable(), resolved.UpdatedAt.Sub(resolved.CreatedAt))
	c.logger.Info("submission_resolved",
		"submission_id", resolved.ID,
		"batch_id", resolved.BatchID,
		"status", string(resolved.Status),
		"score_available", resolved.ScoreAvailable(),
	)
	c.publish(ctx, domain.EventSubmissionResolved, resolved)
}

// abortRegistered settles already registered members of a batch whose
// registration could not complete, so none of them stays processing.
func (c *Coordinator) abortRegistered(ctx context.Context, created []domain.Submission, cause error) {
	for _, sub := range created {
		c.settle(ctx, sub, domain.Failed(fmt.Sprintf("batch registration aborted: %v", cause)))
	}
}

func (c *Coordinator) publish(ctx context.Context, eventType domain.SubmissionEventType, sub domain.Submission) {
	if c.events == nil {
		return
	}
	event := domain.SubmissionEvent{Type: eventType, Submission: sub, OccurredAt: c.now()}
	if err := c.events.PublishSubmissionEvent(ctx, event); err != nil {
		c.logger.Warn("submission_event_publish_failed",
			"submission_id", sub.ID,
			"event", string(eventType),
			"error", err,
		)
	}
}

func (c *Coordinator) discardSpool(ctx context.Context, key string) {
	if err := c.storage.Delete(ctx, key); err != nil {
		c.logger.Warn("spool_delete_failed", "key", key, "error", err)
	}
}

// maxSpoolNameBytes bounds the filename part of a spool key so that
// id + name stays well under the common 255 byte filesystem limit.
const maxSpoolNameBytes = 64

func spoolKey(sub domain.Submission) string {
	return sub.ID + "_" + truncateFilename(sanitizeFilename(sub.Filename), maxSpoolNameBytes)
}

// truncateFilename shortens an already sanitised (ASCII) name, keeping a
// short extension when there is one.
func truncateFilename(name string, limit int) string {
	if len(name) <= limit {
		return name
	}
	ext := filepath.Ext(name)
	if len(ext) > limit/4 {
		ext = ""
	}
	return name[:limit-len(ext)] + ext
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "dataset.zip"
	}
	return base
}

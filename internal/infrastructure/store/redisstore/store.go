package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
)

const (
	defaultPrefix     = "praxis"
	maxResolveRetries = 8
)

type Options struct {
	Prefix string
	// TTL bounds how long tracked submissions are kept. Zero keeps them forever.
	TTL time.Duration
}

// Store shares the tracked submission set between API replicas. Each
// submission is a JSON value under its own key; a sorted set scored by an
// INCR sequence keeps creation order. Resolve uses WATCH/MULTI so only one settlement can win.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func New(client *redis.Client, opts Options) *Store {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{
		client: client,
		prefix: prefix,
		ttl:    opts.TTL,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Connect opens a client and verifies the server answers.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, domain.WrapError(domain.ErrTemporary, "connect redis", err)
	}
	return client, nil
}

func (s *Store) Create(ctx context.Context, sub domain.Submission) error {
	if sub.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "create submission", errors.New("id is empty"))
	}
	payload, err := encodeSubmission(sub)
	if err != nil {
		return err
	}

	created, err := s.client.SetNX(ctx, s.submissionKey(sub.ID), payload, s.ttl).Result()
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "create submission", err)
	}
	if !created {
		return domain.WrapError(domain.ErrInvalidInput, "create submission", fmt.Errorf("id %s already exists", sub.ID))
	}

	seq, err := s.client.Incr(ctx, s.sequenceKey()).Result()
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "index submission", err)
	}
	member := redis.Z{Score: float64(seq), Member: sub.ID}
	if err := s.client.ZAdd(ctx, s.orderKey(), member).Err(); err != nil {
		return domain.WrapError(domain.ErrTemporary, "index submission", err)
	}
	return nil
}

func (s *Store) Resolve(ctx context.Context, id string, outcome domain.Outcome) (domain.Submission, error) {
	if !outcome.Status.Terminal() {
		return domain.Submission{}, domain.WrapError(domain.ErrInvalidInput, "resolve submission", fmt.Errorf("status %q is not terminal", outcome.Status))
	}

	key := s.submissionKey(id)
	var resolved domain.Submission
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrSubmissionNotFound
		}
		if err != nil {
			return err
		}
		sub, err := decodeSubmission(raw)
		if err != nil {
			return err
		}
		if sub.Status.Terminal() {
			return domain.ErrAlreadyResolved
		}

		resolved = outcome.Apply(sub, s.now())
		payload, err := encodeSubmission(resolved)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, redis.KeepTTL)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxResolveRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return resolved, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, domain.ErrSubmissionNotFound), errors.Is(err, domain.ErrAlreadyResolved), domain.IsKind(err, domain.ErrInvalidInput):
			return domain.Submission{}, err
		default:
			return domain.Submission{}, domain.WrapError(domain.ErrTemporary, "resolve submission", err)
		}
	}
	return domain.Submission{}, domain.WrapError(domain.ErrTemporary, "resolve submission", fmt.Errorf("contention on %s", id))
}

func (s *Store) GetByID(ctx context.Context, id string) (domain.Submission, error) {
	raw, err := s.client.Get(ctx, s.submissionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Submission{}, domain.ErrSubmissionNotFound
	}
	if err != nil {
		return domain.Submission{}, domain.WrapError(domain.ErrTemporary, "get submission", err)
	}
	return decodeSubmission(raw)
}

// List returns submissions newest first. Ids whose value expired are skipped.
func (s *Store) List(ctx context.Context) ([]domain.Submission, error) {
	ids, err := s.client.ZRevRange(ctx, s.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "list submissions", err)
	}
	if len(ids) == 0 {
		return []domain.Submission{}, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.submissionKey(id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "list submissions", err)
	}

	out := make([]domain.Submission, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		sub, err := decodeSubmission([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

func (s *Store) submissionKey(id string) string {
	return s.prefix + ":submission:" + id
}

func (s *Store) orderKey() string {
	return s.prefix + ":submissions:order"
}

func (s *Store) sequenceKey() string {
	return s.prefix + ":submissions:seq"
}

func encodeSubmission(sub domain.Submission) ([]byte, error) {
	payload, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("marshal submission %s: %w", sub.ID, err)
	}
	return payload, nil
}

func decodeSubmission(raw []byte) (domain.Submission, error) {
	var sub domain.Submission
	if err := json.Unmarshal(raw, &sub); err != nil {
		return domain.Submission{}, fmt.Errorf("unmarshal submission: %w", err)
	}
	if !sub.Status.Valid() {
		return domain.Submission{}, fmt.Errorf("unmarshal submission %s: unknown status %q", sub.ID, sub.Status)
	}
	return sub, nil
}

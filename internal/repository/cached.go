package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/photon-decode/internal/cache"
	"github.com/joseph-ayodele/photon-decode/internal/entity"
)

// CachedRepository puts a read-through cache in front of GetByID. Submissions never
// change after create, so entries are only ever evicted by TTL.
type CachedRepository struct {
	SubmissionRepository
	cache  cache.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedRepository(inner SubmissionRepository, c cache.Client, ttl time.Duration, logger *slog.Logger) *CachedRepository {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedRepository{SubmissionRepository: inner, cache: c, ttl: ttl, logger: logger}
}

func submissionKey(id uuid.UUID) string {
	return cache.Key("submission", id.String())
}

func (r *CachedRepository) Create(ctx context.Context, in entity.SubmissionInput) (*entity.Submission, error) {
	sub, err := r.SubmissionRepository.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	r.store(ctx, sub)
	return sub, nil
}

func (r *CachedRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Submission, error) {
	key := submissionKey(id)
	if raw, err := r.cache.Get(ctx, key); err == nil {
		var sub entity.Submission
		if err := json.Unmarshal(raw, &sub); err == nil {
			return &sub, nil
		}
		r.logger.Warn("dropping undecodable cache entry", "key", key)
		_ = r.cache.Delete(ctx, key)
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		r.logger.Warn("cache get failed", "key", key, "error", err)
	}

	sub, err := r.SubmissionRepository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(ctx, sub)
	return sub, nil
}

func (r *CachedRepository) store(ctx context.Context, sub *entity.Submission) {
	raw, err := json.Marshal(sub)
	if err != nil {
		r.logger.Warn("cache encode failed", "submission_id", sub.ID, "error", err)
		return
	}
	if err := r.cache.Set(ctx, submissionKey(sub.ID), raw, r.ttl); err != nil {
		r.logger.Warn("cache set failed", "submission_id", sub.ID, "error", err)
	}
}

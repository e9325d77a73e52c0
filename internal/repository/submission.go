package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/photon-decode/internal/common"
	"github.com/joseph-ayodele/photon-decode/internal/entity"
)

var (
	// ErrPersistence wraps any storage failure.
	ErrPersistence = fmt.Errorf("submission store: %w", common.ErrDatabase)
	// ErrNotFound is returned when no submission matches.
	ErrNotFound = fmt.Errorf("submission: %w", common.ErrNotFound)
	// ErrDuplicateKey is returned when the idempotency key is already taken.
	ErrDuplicateKey = errors.New("submission: idempotency key already used")
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// SubmissionRepository is the durable store of processed uploads. Records are immutable once created.
type SubmissionRepository interface {
	Create(ctx context.Context, in entity.SubmissionInput) (*entity.Submission, error)
	List(ctx context.Context, page, limit int) (entity.Page, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Submission, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*entity.Submission, error)
	FindByContentHash(ctx context.Context, hash []byte) (*entity.Submission, error)
	Ping(ctx context.Context) error
}

// Pinger is anything with a liveness probe: a pgx pool or a submission store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck pings p, bounded by timeout when positive.
func HealthCheck(ctx context.Context, p Pinger, timeout time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	logger.Debug("pinging database")
	if err := p.Ping(ctx); err != nil {
		logger.Error("database ping failed", "error", err)
		return err
	}
	logger.Debug("database ping successful")
	return nil
}

// ClampPage applies the defaults for page (1) and limit (10), capping limit at MaxPageLimit.
func ClampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

// PageOffset returns the row offset of page, or false when page lies past the last page of total rows.
func PageOffset(page, limit, total int) (int, bool) {
	if page > entity.TotalPages(total, limit) {
		return 0, false
	}
	return (page - 1) * limit, true
}

func newPage(subs []*entity.Submission, page, limit, total int) entity.Page {
	if subs == nil {
		subs = []*entity.Submission{}
	}
	return entity.Page{
		Submissions: subs,
		Page:        page,
		Limit:       limit,
		Total:       total,
		TotalPages:  entity.TotalPages(total, limit),
	}
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}

const insertSQL = `INSERT INTO image_submissions (
	id, status, extracted_text, extraction_success, quality, thumbnail_url, approach,
	confidence, content_hash, content_type, width, height, idempotency_key, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

const selectColumns = `id, status, extracted_text, extraction_success, quality, thumbnail_url, approach,
	confidence, content_hash, content_type, width, height, idempotency_key, created_at`

func qualityArg(in entity.SubmissionInput) *string {
	if in.Quality == nil {
		return nil
	}
	q := string(*in.Quality)
	return &q
}

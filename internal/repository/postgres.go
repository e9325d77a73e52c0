package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joseph-ayodele/photon-decode/constants"
	"github.com/joseph-ayodele/photon-decode/internal/entity"
)

type Config struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// OpenPostgres creates a pgx pool and verifies it with a ping.
func OpenPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("connecting to database", "driver", "postgres")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database config", "error", err)
		return nil, err
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "photon-decode"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = cfg.StatementTimeout.String()
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		logger.Error("failed to ping database", "error", err)
		return nil, err
	}

	logger.Info("successfully connected to database")
	return pool, nil
}

// ClosePostgres closes the pool gracefully.
func ClosePostgres(pool *pgxpool.Pool, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("closing database connections")
	if pool != nil {
		pool.Close()
	}
	logger.Info("database connections closed")
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS image_submissions (
		id                 UUID PRIMARY KEY,
		status             TEXT NOT NULL CHECK (status IN ('pending', 'processed', 'failed')),
		extracted_text     TEXT,
		extraction_success BOOLEAN NOT NULL,
		quality            TEXT CHECK (quality IN ('good', 'fair', 'poor')),
		thumbnail_url      TEXT,
		approach           TEXT NOT NULL DEFAULT '',
		confidence         REAL NOT NULL DEFAULT 0,
		content_hash       BYTEA,
		content_type       TEXT NOT NULL DEFAULT '',
		width              INTEGER NOT NULL DEFAULT 0,
		height             INTEGER NOT NULL DEFAULT 0,
		idempotency_key    TEXT UNIQUE,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_image_submissions_created ON image_submissions (created_at DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_image_submissions_hash ON image_submissions (content_hash)`,
}

// PostgresSubmissions stores submissions in Postgres through pgx.
type PostgresSubmissions struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

func NewPostgresSubmissions(pool *pgxpool.Pool, logger *slog.Logger) *PostgresSubmissions {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSubmissions{pool: pool, logger: logger, now: time.Now}
}

// Migrate creates the table and indexes when missing.
func (r *PostgresSubmissions) Migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			r.logger.Error("schema migration failed", "error", err)
			return persistErr("migrate", err)
		}
	}
	return nil
}

func (r *PostgresSubmissions) Create(ctx context.Context, in entity.SubmissionInput) (*entity.Submission, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	sub := in.Build(uuid.New(), r.now().UTC().Truncate(time.Microsecond))
	_, err := r.pool.Exec(ctx, insertSQL,
		sub.ID, string(sub.Status), sub.ExtractedText, sub.ExtractionSuccess, qualityArg(in),
		sub.ThumbnailURL, sub.Approach, sub.Confidence, sub.ContentHash, sub.ContentType,
		sub.Width, sub.Height, sub.IdempotencyKey, sub.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && sub.IdempotencyKey != nil {
			return nil, ErrDuplicateKey
		}
		r.logger.Error("failed to create submission", "error", err)
		return nil, persistErr("insert", err)
	}
	r.logger.Debug("submission created", "submission_id", sub.ID, "status", sub.Status)
	return sub, nil
}

func (r *PostgresSubmissions) List(ctx context.Context, page, limit int) (entity.Page, error) {
	page, limit = ClampPage(page, limit)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM image_submissions`).Scan(&total); err != nil {
		r.logger.Error("failed to count submissions", "error", err)
		return entity.Page{}, persistErr("count", err)
	}

	offset, ok := PageOffset(page, limit, total)
	if !ok {
		return newPage(nil, page, limit, total), nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+selectColumns+` FROM image_submissions ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		r.logger.Error("failed to list submissions", "page", page, "limit", limit, "error", err)
		return entity.Page{}, persistErr("list", err)
	}
	defer rows.Close()

	subs := make([]*entity.Submission, 0, limit)
	for rows.Next() {
		s, err := scanPostgres(rows)
		if err != nil {
			return entity.Page{}, persistErr("scan", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return entity.Page{}, persistErr("list", err)
	}
	return newPage(subs, page, limit, total), nil
}

func (r *PostgresSubmissions) GetByID(ctx context.Context, id uuid.UUID) (*entity.Submission, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *PostgresSubmissions) GetByIdempotencyKey(ctx context.Context, key string) (*entity.Submission, error) {
	return r.getOne(ctx, `WHERE idempotency_key = $1`, key)
}

func (r *PostgresSubmissions) FindByContentHash(ctx context.Context, hash []byte) (*entity.Submission, error) {
	return r.getOne(ctx, `WHERE content_hash = $1 ORDER BY created_at DESC, id DESC LIMIT 1`, hash)
}

func (r *PostgresSubmissions) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Now returns the database clock, used by the health endpoint.
func (r *PostgresSubmissions) Now(ctx context.Context) (time.Time, error) {
	var t time.Time
	if err := r.pool.QueryRow(ctx, `SELECT now()`).Scan(&t); err != nil {
		return time.Time{}, persistErr("now", err)
	}
	return t, nil
}

// Count returns the number of stored submissions.
func (r *PostgresSubmissions) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM image_submissions`).Scan(&n); err != nil {
		return 0, persistErr("count", err)
	}
	return n, nil
}

func (r *PostgresSubmissions) getOne(ctx context.Context, where string, arg any) (*entity.Submission, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM image_submissions `+where, arg)
	s, err := scanPostgres(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error("failed to get submission", "error", err)
		return nil, persistErr("get", err)
	}
	return s, nil
}

func scanPostgres(row pgx.Row) (*entity.Submission, error) {
	var (
		s       entity.Submission
		status  string
		quality *string
	)
	if err := row.Scan(
		&s.ID, &status, &s.ExtractedText, &s.ExtractionSuccess, &quality, &s.ThumbnailURL, &s.Approach,
		&s.Confidence, &s.ContentHash, &s.ContentType, &s.Width, &s.Height, &s.IdempotencyKey, &s.CreatedAt,
	); err != nil {
		return nil, err
	}
	s.Status = constants.SubmissionStatus(status)
	s.Quality = parseQuality(quality)
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}

func parseQuality(v *string) *constants.Quality {
	if v == nil {
		return nil
	}
	q, ok := constants.ParseQuality(*v)
	if !ok {
		return nil
	}
	return &q
}

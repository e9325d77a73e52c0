package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/joseph-ayodele/photon-decode/constants"
	"github.com/joseph-ayodele/photon-decode/internal/entity"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS image_submissions (
	id                 TEXT PRIMARY KEY,
	status             TEXT NOT NULL CHECK (status IN ('pending', 'processed', 'failed')),
	extracted_text     TEXT,
	extraction_success INTEGER NOT NULL,
	quality            TEXT CHECK (quality IN ('good', 'fair', 'poor')),
	thumbnail_url      TEXT,
	approach           TEXT NOT NULL DEFAULT '',
	confidence         REAL NOT NULL DEFAULT 0,
	content_hash       BLOB,
	content_type       TEXT NOT NULL DEFAULT '',
	width              INTEGER NOT NULL DEFAULT 0,
	height             INTEGER NOT NULL DEFAULT 0,
	idempotency_key    TEXT UNIQUE,
	created_at         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_image_submissions_created ON image_submissions (created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_image_submissions_hash ON image_submissions (content_hash);
`

// OpenSQLite opens (or creates) a database at path with WAL, busy_timeout and
// foreign keys enabled, then applies the schema. ":memory:" pins a single connection.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	path = strings.TrimPrefix(path, "sqlite:")
	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir: %w", err)
		}
	}
	logger.Info("connecting to database", "driver", "sqlite", "path", path)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if memory {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return db, nil
}

// SQLiteSubmissions stores submissions through database/sql and modernc.org/sqlite.
type SQLiteSubmissions struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewSQLiteSubmissions(db *sql.DB, logger *slog.Logger) *SQLiteSubmissions {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteSubmissions{db: db, logger: logger, now: time.Now}
}

func (r *SQLiteSubmissions) Create(ctx context.Context, in entity.SubmissionInput) (*entity.Submission, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	sub := in.Build(uuid.New(), r.now().UTC().Truncate(time.Microsecond))
	_, err := r.db.ExecContext(ctx, toQMarks(insertSQL),
		sub.ID.String(), string(sub.Status), sub.ExtractedText, sub.ExtractionSuccess, qualityArg(in),
		sub.ThumbnailURL, sub.Approach, float64(sub.Confidence), sub.ContentHash, sub.ContentType,
		sub.Width, sub.Height, sub.IdempotencyKey, sub.CreatedAt.UnixMicro(),
	)
	if err != nil {
		if isUniqueViolation(err) && sub.IdempotencyKey != nil {
			return nil, ErrDuplicateKey
		}
		r.logger.Error("failed to create submission", "error", err)
		return nil, persistErr("insert", err)
	}
	r.logger.Debug("submission created", "submission_id", sub.ID, "status", sub.Status)
	return sub, nil
}

func (r *SQLiteSubmissions) List(ctx context.Context, page, limit int) (entity.Page, error) {
	page, limit = ClampPage(page, limit)
	total, err := r.Count(ctx)
	if err != nil {
		return entity.Page{}, err
	}

	offset, ok := PageOffset(page, limit, total)
	if !ok {
		return newPage(nil, page, limit, total), nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM image_submissions ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		r.logger.Error("failed to list submissions", "page", page, "limit", limit, "error", err)
		return entity.Page{}, persistErr("list", err)
	}
	defer rows.Close()

	subs := make([]*entity.Submission, 0, limit)
	for rows.Next() {
		s, err := scanSQLite(rows)
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

func (r *SQLiteSubmissions) GetByID(ctx context.Context, id uuid.UUID) (*entity.Submission, error) {
	return r.getOne(ctx, `WHERE id = ?`, id.String())
}

func (r *SQLiteSubmissions) GetByIdempotencyKey(ctx context.Context, key string) (*entity.Submission, error) {
	return r.getOne(ctx, `WHERE idempotency_key = ?`, key)
}

func (r *SQLiteSubmissions) FindByContentHash(ctx context.Context, hash []byte) (*entity.Submission, error) {
	return r.getOne(ctx, `WHERE content_hash = ? ORDER BY created_at DESC, id DESC LIMIT 1`, hash)
}

func (r *SQLiteSubmissions) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Now returns the database clock.
func (r *SQLiteSubmissions) Now(ctx context.Context) (time.Time, error) {
	var micros int64
	err := r.db.QueryRowContext(ctx, `SELECT CAST((julianday('now') - 2440587.5) * 86400000000 AS INTEGER)`).Scan(&micros)
	if err != nil {
		return time.Time{}, persistErr("now", err)
	}
	return time.UnixMicro(micros).UTC(), nil
}

func (r *SQLiteSubmissions) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM image_submissions`).Scan(&n); err != nil {
		r.logger.Error("failed to count submissions", "error", err)
		return 0, persistErr("count", err)
	}
	return n, nil
}

func (r *SQLiteSubmissions) getOne(ctx context.Context, where string, arg any) (*entity.Submission, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM image_submissions `+where, arg)
	s, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		r.logger.Error("failed to get submission", "error", err)
		return nil, persistErr("get", err)
	}
	return s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row scanner) (*entity.Submission, error) {
	var (
		s          entity.Submission
		id, status string
		quality    sql.NullString
		text       sql.NullString
		thumb      sql.NullString
		idemKey    sql.NullString
		confidence float64
		created    int64
	)
	if err := row.Scan(
		&id, &status, &text, &s.ExtractionSuccess, &quality, &thumb, &s.Approach,
		&confidence, &s.ContentHash, &s.ContentType, &s.Width, &s.Height, &idemKey, &created,
	); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("bad id %q: %w", id, err)
	}
	s.ID = parsed
	s.Status = constants.SubmissionStatus(status)
	s.ExtractedText = nullable(text)
	s.Quality = parseQuality(nullable(quality))
	s.ThumbnailURL = nullable(thumb)
	s.IdempotencyKey = nullable(idemKey)
	s.Confidence = float32(confidence)
	s.CreatedAt = time.UnixMicro(created).UTC()
	return &s, nil
}

func nullable(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// toQMarks rewrites $N placeholders for SQLite.
func toQMarks(q string) string {
	var b strings.Builder
	for i := 0; i < len(q); i++ {
		if q[i] == '$' {
			b.WriteByte('?')
			for i+1 < len(q) && q[i+1] >= '0' && q[i+1] <= '9' {
				i++
			}
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

package repository

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/photon-decode/constants"
	"github.com/joseph-ayodele/photon-decode/internal/cache"
	"github.com/joseph-ayodele/photon-decode/internal/entity"
)

func ptr[T any](v T) *T { return &v }

func processedInput(text string) entity.SubmissionInput {
	return entity.SubmissionInput{
		Status:            constants.SubmissionStatusProcessed,
		ExtractedText:     ptr(text),
		ExtractionSuccess: true,
		Quality:           ptr(constants.QualityGood),
		ThumbnailURL:      ptr("/uploads/thumbnails/x.jpg"),
		Approach:          "grayscale",
		Confidence:        0.91,
		ContentHash:       []byte{1, 2, 3},
		ContentType:       "image/png",
		Width:             640,
		Height:            480,
	}
}

func failedInput() entity.SubmissionInput {
	return entity.SubmissionInput{Status: constants.SubmissionStatusFailed, ContentType: "image/jpeg"}
}

// newSQLiteRepo returns a store over a fresh in-memory database with a ticking clock.
func newSQLiteRepo(t *testing.T) *SQLiteSubmissions {
	t.Helper()
	db, err := OpenSQLite(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	r := NewSQLiteSubmissions(db, nil)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return r
}

func TestSQLite_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	r := newSQLiteRepo(t)

	created, err := r.Create(ctx, processedInput("SN-4821"))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)

	got, err := r.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, constants.SubmissionStatusProcessed, got.Status)
	require.NotNil(t, got.ExtractedText)
	assert.Equal(t, "SN-4821", *got.ExtractedText)
	require.NotNil(t, got.Quality)
	assert.Equal(t, constants.QualityGood, *got.Quality)
	assert.Equal(t, "/uploads/thumbnails/x.jpg", *got.ThumbnailURL)
	assert.Equal(t, "grayscale", got.Approach)
	assert.InDelta(t, 0.91, got.Confidence, 1e-6)
	assert.Equal(t, []byte{1, 2, 3}, got.ContentHash)
	assert.Equal(t, 640, got.Width)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
}

func TestSQLite_FailedShape(t *testing.T) {
	ctx := context.Background()
	r := newSQLiteRepo(t)

	created, err := r.Create(ctx, failedInput())
	require.NoError(t, err)
	got, err := r.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.SubmissionStatusFailed, got.Status)
	assert.False(t, got.ExtractionSuccess)
	assert.Nil(t, got.ExtractedText)
	assert.Nil(t, got.Quality)
	assert.Nil(t, got.ThumbnailURL)
}

func TestSQLite_RejectsInvalidShape(t *testing.T) {
	ctx := context.Background()
	r := newSQLiteRepo(t)

	bad := failedInput()
	bad.Quality = ptr(constants.QualityPoor)
	_, err := r.Create(ctx, bad)
	assert.ErrorIs(t, err, entity.ErrInvalidSubmission)

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_GetMissing(t *testing.T) {
	r := newSQLiteRepo(t)
	_, err := r.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListPagination(t *testing.T) {
	ctx := context.Background()
	r := newSQLiteRepo(t)

	empty, err := r.List(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, empty.Submissions)
	assert.NotNil(t, empty.Submissions)
	assert.Equal(t, 0, empty.Total)
	assert.Equal(t, 1, empty.TotalPages)

	var ids []uuid.UUID
	for i := 0; i < 25; i++ {
		s, err := r.Create(ctx, failedInput())
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}

	p1, err := r.List(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 25, p1.Total)
	assert.Equal(t, 3, p1.TotalPages)
	require.Len(t, p1.Submissions, 10)
	assert.Equal(t, ids[24], p1.Submissions[0].ID, "most recent first")

	p3, err := r.List(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, p3.Submissions, 5)
	assert.Equal(t, ids[0], p3.Submissions[4].ID)

	beyond, err := r.List(ctx, 9, 10)
	require.NoError(t, err)
	assert.Empty(t, beyond.Submissions)
	assert.Equal(t, 3, beyond.TotalPages)

	clamped, err := r.List(ctx, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, clamped.Page)
	assert.Equal(t, MaxPageLimit, clamped.Limit)
	assert.Len(t, clamped.Submissions, 25)
}

func TestSQLite_ListHugePage(t *testing.T) {
	ctx := context.Background()
	r := newSQLiteRepo(t)
	for i := 0; i < 3; i++ {
		_, err := r.Create(ctx, failedInput())
		require.NoError(t, err)
	}

	p, err := r.List(ctx, math.MaxInt, 10)
	require.NoError(t, err)
	assert.Empty(t, p.Submissions)
	assert.NotNil(t, p.Submissions)
	assert.Equal(t, math.MaxInt, p.Page)
	assert.Equal(t, 3, p.Total)
	assert.Equal(t, 1, p.TotalPages)
}

func TestSQLite_IdempotencyKey(t *testing.T) {
	ctx := context.Background()
	r := newSQLiteRepo(t)

	in := failedInput()
	in.IdempotencyKey = ptr("req-1")
	first, err := r.Create(ctx, in)
	require.NoError(t, err)

	_, err = r.Create(ctx, in)
	assert.ErrorIs(t, err, ErrDuplicateKey)

	got, err := r.GetByIdempotencyKey(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// absent keys never collide
	_, err = r.Create(ctx, failedInput())
	require.NoError(t, err)
	_, err = r.Create(ctx, failedInput())
	require.NoError(t, err)
}

func TestSQLite_FindByContentHash(t *testing.T) {
	ctx := context.Background()
	r := newSQLiteRepo(t)

	_, err := r.FindByContentHash(ctx, []byte{9})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Create(ctx, processedInput("old"))
	require.NoError(t, err)
	newer, err := r.Create(ctx, processedInput("new"))
	require.NoError(t, err)

	got, err := r.FindByContentHash(ctx, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)
}

func TestSQLite_PingAndNow(t *testing.T) {
	ctx := context.Background()
	r := newSQLiteRepo(t)
	require.NoError(t, r.Ping(ctx))
	now, err := r.Now(ctx)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), now, time.Minute)
}

func TestSQLite_CancelledContextWritesNothing(t *testing.T) {
	r := newSQLiteRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Create(ctx, failedInput())
	require.Error(t, err)

	n, err := r.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthCheck(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, HealthCheck(ctx, newSQLiteRepo(t), time.Second, nil))

	down := errors.New("connection refused")
	assert.ErrorIs(t, HealthCheck(ctx, pingFunc(func(context.Context) error { return down }), 0, nil), down)

	err := HealthCheck(ctx, pingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), 10*time.Millisecond, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClampPage(t *testing.T) {
	p, l := ClampPage(-3, 0)
	assert.Equal(t, 1, p)
	assert.Equal(t, DefaultPageLimit, l)
	p, l = ClampPage(4, 500)
	assert.Equal(t, 4, p)
	assert.Equal(t, MaxPageLimit, l)
}

func TestPageOffset(t *testing.T) {
	tests := []struct {
		name               string
		page, limit, total int
		want               int
		wantOK             bool
	}{
		{"first page of empty store", 1, 10, 0, 0, true},
		{"third page", 3, 10, 25, 20, true},
		{"last page", 3, 10, 30, 20, true},
		{"past the end", 4, 10, 30, 0, false},
		{"overflowing page", math.MaxInt, 100, 5, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PageOffset(tt.page, tt.limit, tt.total)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToQMarks(t *testing.T) {
	assert.Equal(t, "VALUES (?, ?, ?)", toQMarks("VALUES ($1, $2, $13)"))
}

func TestCachedRepository_ReadThrough(t *testing.T) {
	ctx := context.Background()
	inner := newSQLiteRepo(t)
	mem := cache.NewMemoryClient(100)
	defer mem.Close()
	r := NewCachedRepository(inner, mem, time.Minute, nil)

	created, err := r.Create(ctx, processedInput("CACHED-1"))
	require.NoError(t, err)
	assert.Equal(t, 1, mem.Len(), "create populates the cache")

	require.NoError(t, mem.Delete(ctx, submissionKey(created.ID)))
	got, err := r.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "CACHED-1", *got.ExtractedText)
	assert.Equal(t, 1, mem.Len(), "miss refills the cache")

	// served from cache even when the backing row is unreachable
	require.NoError(t, inner.db.Close())
	again, err := r.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)
	assert.True(t, created.CreatedAt.Equal(again.CreatedAt))
	assert.Equal(t, constants.QualityGood, *again.Quality)

	_, err = r.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrPersistence)
}

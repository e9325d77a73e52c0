//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/joseph-ayodele/photon-decode/constants"
)

func newPostgresRepo(t *testing.T) *PostgresSubmissions {
	t.Helper()
	ctx := context.Background()

	pg, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("photon_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := OpenPostgres(ctx, Config{DSN: dsn, MaxConns: 4, DialTimeout: 30 * time.Second}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ClosePostgres(pool, nil) })
	require.NoError(t, HealthCheck(ctx, pool, 5*time.Second, nil))

	r := NewPostgresSubmissions(pool, nil)
	require.NoError(t, r.Migrate(ctx))
	require.NoError(t, r.Migrate(ctx), "migration is repeatable")

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return r
}

func TestPostgres_Submissions(t *testing.T) {
	ctx := context.Background()
	r := newPostgresRepo(t)

	empty, err := r.List(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, empty.Submissions)
	assert.Equal(t, 1, empty.TotalPages)

	ok, err := r.Create(ctx, processedInput("PG-77"))
	require.NoError(t, err)
	got, err := r.GetByID(ctx, ok.ID)
	require.NoError(t, err)
	assert.Equal(t, "PG-77", *got.ExtractedText)
	assert.Equal(t, constants.QualityGood, *got.Quality)
	assert.True(t, ok.CreatedAt.Equal(got.CreatedAt))

	keyed := failedInput()
	keyed.IdempotencyKey = ptr("pg-key")
	first, err := r.Create(ctx, keyed)
	require.NoError(t, err)
	_, err = r.Create(ctx, keyed)
	assert.ErrorIs(t, err, ErrDuplicateKey)
	byKey, err := r.GetByIdempotencyKey(ctx, "pg-key")
	require.NoError(t, err)
	assert.Equal(t, first.ID, byKey.ID)

	page, err := r.List(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, first.ID, page.Submissions[0].ID)

	byHash, err := r.FindByContentHash(ctx, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, ok.ID, byHash.ID)

	_, err = r.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = r.Now(ctx)
	require.NoError(t, err)
}

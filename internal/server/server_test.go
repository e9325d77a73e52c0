package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/photon-decode/constants"
	"github.com/joseph-ayodele/photon-decode/internal/artifact"
	"github.com/joseph-ayodele/photon-decode/internal/common"
	"github.com/joseph-ayodele/photon-decode/internal/contract"
	"github.com/joseph-ayodele/photon-decode/internal/export"
	"github.com/joseph-ayodele/photon-decode/internal/extract"
	"github.com/joseph-ayodele/photon-decode/internal/imaging"
	"github.com/joseph-ayodele/photon-decode/internal/pipeline"
	"github.com/joseph-ayodele/photon-decode/internal/repository"
)

type testServer struct {
	handler http.Handler
	store   *repository.SQLiteSubmissions
	calls   *atomic.Int32
}

func newTestServer(t *testing.T, ex extract.ExtractorFunc) *testServer {
	t.Helper()
	db, err := repository.OpenSQLite(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := repository.NewSQLiteSubmissions(db, nil)

	thumbs := t.TempDir()
	local, err := artifact.NewLocalStore(thumbs, "/uploads/thumbnails", nil)
	require.NoError(t, err)

	calls := &atomic.Int32{}
	counted := extract.ExtractorFunc(func(ctx context.Context, img image.Image) (extract.Text, error) {
		calls.Add(1)
		return ex(ctx, img)
	})

	cfg := common.DefaultConfig()
	cfg.OCR.StrategyTimeout = time.Second
	cfg.Pipeline.Timeout = 10 * time.Second
	p, err := BuildPipeline(cfg, counted, local, store, nil)
	require.NoError(t, err)

	h := NewHandlers(HandlersConfig{
		Pipeline: p,
		Store:    store,
		Exporter: export.NewService(store, nil),
		Clock:    store,
	}, nil)
	router := NewRouter(h, RouterConfig{
		BasePath:     "/api",
		StaticPrefix: "/uploads/thumbnails",
		StaticDir:    thumbs,
	}, nil)
	return &testServer{handler: router, store: store, calls: calls}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) upload(t *testing.T, data []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, "image", "photo.png", data)
	req := httptest.NewRequest(http.MethodPost, "/api/submissions/upload", body)
	req.Header.Set("Content-Type", ct)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return s.do(req)
}

func (s *testServer) count(t *testing.T) int {
	t.Helper()
	n, err := s.store.Count(context.Background())
	require.NoError(t, err)
	return n
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func photo(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 80, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 80; x++ {
			c := color.RGBA{R: 235, G: 230, B: 220, A: 255}
			if y > 15 && y < 25 && x > 10 && x < 70 {
				c = color.RGBA{R: 10, G: 10, B: 40, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// textOn answers on the n-th attempt only.
func textOn(n int32, value string, conf float32) extract.ExtractorFunc {
	var seen atomic.Int32
	return func(context.Context, image.Image) (extract.Text, error) {
		if seen.Add(1) == n {
			return extract.Text{Value: value, Confidence: conf, Found: true}, nil
		}
		return extract.Text{}, extract.ErrNoText
	}
}

func noText(context.Context, image.Image) (extract.Text, error) {
	return extract.Text{}, extract.ErrNoText
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	require.NoError(t, contract.Validate(contract.SchemaError, rec.Body.Bytes()))
	var body contract.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestUpload_Success(t *testing.T) {
	s := newTestServer(t, textOn(1, "SN-12345", 0.92))

	rec := s.upload(t, photo(t), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, contract.Version, rec.Header().Get("X-API-Version"))
	require.NoError(t, contract.Validate(contract.SchemaUpload, rec.Body.Bytes()))

	var resp contract.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "processed", resp.Status)
	assert.True(t, resp.ExtractionSuccess)
	require.NotNil(t, resp.ExtractedText)
	assert.Equal(t, "SN-12345", *resp.ExtractedText)
	require.NotNil(t, resp.Quality)
	assert.Equal(t, "good", *resp.Quality)
	assert.Equal(t, imaging.ApproachOriginal, resp.Approach)
	assert.Empty(t, resp.Message)
	assert.Equal(t, 1, s.count(t))

	require.NotNil(t, resp.ThumbnailURL)
	assert.True(t, strings.HasPrefix(*resp.ThumbnailURL, "/uploads/thumbnails/"))
	thumb := s.do(httptest.NewRequest(http.MethodGet, *resp.ThumbnailURL, nil))
	assert.Equal(t, http.StatusOK, thumb.Code)
	assert.Equal(t, "image/jpeg", thumb.Header().Get("Content-Type"))
}

func TestUpload_LaterStrategyWins(t *testing.T) {
	s := newTestServer(t, textOn(3, "LOT 7731", 0.6))

	rec := s.upload(t, photo(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp contract.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, imaging.ApproachContrast, resp.Approach)
	assert.Equal(t, "fair", *resp.Quality)
	assert.Equal(t, int32(3), s.calls.Load())
}

func TestUpload_NoText(t *testing.T) {
	s := newTestServer(t, noText)

	rec := s.upload(t, photo(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, contract.Validate(contract.SchemaUpload, rec.Body.Bytes()))

	var resp contract.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "failed", resp.Status)
	assert.False(t, resp.ExtractionSuccess)
	assert.Nil(t, resp.ExtractedText)
	assert.Nil(t, resp.Quality)
	assert.Equal(t, contract.MessageNoText, resp.Message)
	assert.Equal(t, int32(len(imaging.DefaultStrategies())), s.calls.Load())
	assert.Equal(t, 1, s.count(t))
}

func TestUpload_InvalidType(t *testing.T) {
	s := newTestServer(t, textOn(1, "never", 0.9))

	rec := s.upload(t, []byte("just some text pretending to be a photo"), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgInvalidFileType, decodeError(t, rec))
	assert.Equal(t, int32(0), s.calls.Load())
	assert.Equal(t, 0, s.count(t))
}

func TestUpload_SizeBoundary(t *testing.T) {
	s := newTestServer(t, textOn(1, "A1", 0.9))
	exact := make([]byte, constants.MaxUploadBytes)
	copy(exact, photo(t))

	rec := s.upload(t, exact, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	over := append(exact, 0)
	rec = s.upload(t, over, nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, MsgFileTooLarge, decodeError(t, rec))

	huge := make([]byte, 20<<20)
	copy(huge, photo(t))
	rec = s.upload(t, huge, nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, decodeError(t, rec), "File too large")
	assert.Equal(t, 1, s.count(t))
}

func TestUpload_CorruptImage(t *testing.T) {
	s := newTestServer(t, textOn(1, "never", 0.9))

	data := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("fake jpeg data")...)
	rec := s.upload(t, data, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, MsgInternal, decodeError(t, rec))
	assert.Equal(t, int32(0), s.calls.Load())
	assert.Equal(t, 0, s.count(t))
}

func TestUpload_ExtractorUnavailable(t *testing.T) {
	s := newTestServer(t, func(context.Context, image.Image) (extract.Text, error) {
		return extract.Text{}, errors.New("exec: tesseract: not found")
	})

	rec := s.upload(t, photo(t), nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, MsgInternal, decodeError(t, rec))
	assert.Equal(t, 0, s.count(t))
}

func TestUpload_MissingImage(t *testing.T) {
	s := newTestServer(t, noText)

	t.Run("other field", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("note", "hello"))
		require.NoError(t, mw.Close())
		req := httptest.NewRequest(http.MethodPost, "/api/submissions/upload", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())

		rec := s.do(req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, MsgNoImage, decodeError(t, rec))
	})
	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/submissions/upload", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")

		rec := s.do(req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, MsgNoImage, decodeError(t, rec))
	})
}

func TestUpload_IdempotencyKey(t *testing.T) {
	s := newTestServer(t, textOn(1, "SN-1", 0.9))
	headers := map[string]string{"Idempotency-Key": "retry-42"}

	first := s.upload(t, photo(t), headers)
	require.Equal(t, http.StatusOK, first.Code)
	second := s.upload(t, photo(t), headers)
	require.Equal(t, http.StatusOK, second.Code)

	var a, b contract.UploadResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, int32(1), s.calls.Load())
	assert.Equal(t, 1, s.count(t))

	long := s.upload(t, photo(t), map[string]string{"Idempotency-Key": strings.Repeat("k", 129)})
	require.Equal(t, http.StatusBadRequest, long.Code)
	assert.Equal(t, MsgIdempotencyKeyLong, decodeError(t, long))
}

func TestList_Pagination(t *testing.T) {
	s := newTestServer(t, noText)

	list := func(query string) contract.ListResponse {
		rec := s.do(httptest.NewRequest(http.MethodGet, "/api/submissions"+query, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, contract.Version, rec.Header().Get("X-API-Version"))
		require.NoError(t, contract.Validate(contract.SchemaList, rec.Body.Bytes()))
		var resp contract.ListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp
	}

	empty := list("")
	assert.Empty(t, empty.Submissions)
	assert.NotNil(t, empty.Submissions)
	assert.Equal(t, 1, empty.Page)
	assert.Equal(t, repository.DefaultPageLimit, empty.Limit)
	assert.Equal(t, 0, empty.Total)
	assert.Equal(t, 1, empty.TotalPages)

	var ids []string
	for i := 0; i < 5; i++ {
		rec := s.upload(t, photo(t), nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp contract.UploadResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		ids = append(ids, resp.ID)
	}

	p1 := list("?page=1&limit=2")
	assert.Equal(t, 5, p1.Total)
	assert.Equal(t, 3, p1.TotalPages)
	require.Len(t, p1.Submissions, 2)
	last := list("?page=3&limit=2")
	require.Len(t, last.Submissions, 1)

	seen := map[string]bool{}
	for _, q := range []string{"?page=1&limit=2", "?page=2&limit=2", "?page=3&limit=2"} {
		for _, sub := range list(q).Submissions {
			seen[sub.ID] = true
		}
	}
	assert.Len(t, seen, 5)
	for _, id := range ids {
		assert.True(t, seen[id], id)
	}

	beyond := list("?page=9&limit=2")
	assert.Empty(t, beyond.Submissions)

	huge := list("?page=9223372036854775807&limit=10")
	assert.Empty(t, huge.Submissions)
	assert.Equal(t, 5, huge.Total)
	assert.Equal(t, 1, huge.TotalPages)

	junk := list("?page=abc&limit=-4")
	assert.Equal(t, 1, junk.Page)
	assert.Equal(t, repository.DefaultPageLimit, junk.Limit)

	capped := list("?limit=1000")
	assert.Equal(t, repository.MaxPageLimit, capped.Limit)
}

func TestGet(t *testing.T) {
	s := newTestServer(t, textOn(1, "SN-9", 0.7))
	rec := s.upload(t, photo(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var up contract.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))

	got := s.do(httptest.NewRequest(http.MethodGet, "/api/submissions/"+up.ID, nil))
	require.Equal(t, http.StatusOK, got.Code)
	require.NoError(t, contract.Validate(contract.SchemaSubmission, got.Body.Bytes()))
	var sub contract.Submission
	require.NoError(t, json.Unmarshal(got.Body.Bytes(), &sub))
	assert.Equal(t, up.ID, sub.ID)
	assert.Equal(t, "SN-9", *sub.ExtractedText)

	for _, id := range []string{"00000000-0000-0000-0000-000000000000", "not-a-uuid"} {
		rec := s.do(httptest.NewRequest(http.MethodGet, "/api/submissions/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code, id)
		assert.Equal(t, MsgNotFound, decodeError(t, rec))
	}
}

func TestExport(t *testing.T) {
	s := newTestServer(t, textOn(1, "SN-77", 0.9))
	require.Equal(t, http.StatusOK, s.upload(t, photo(t), nil).Code)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/api/submissions/export.xlsx", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Submissions")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "SN-77", rows[1][3])

	bad := s.do(httptest.NewRequest(http.MethodGet, "/api/submissions/export.xlsx?from=yesterday", nil))
	require.Equal(t, http.StatusBadRequest, bad.Code)
	assert.Equal(t, MsgInvalidDate, decodeError(t, bad))
}

type clockFunc func(context.Context) (time.Time, error)

func (f clockFunc) Now(ctx context.Context) (time.Time, error) { return f(ctx) }

func TestHealth(t *testing.T) {
	s := newTestServer(t, noText)
	rec := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body contract.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.WithinDuration(t, time.Now(), body.DBTime, time.Minute)

	down := NewRouter(NewHandlers(HandlersConfig{
		Clock: clockFunc(func(context.Context) (time.Time, error) { return time.Time{}, errors.New("connection refused") }),
	}, nil), RouterConfig{}, nil)
	rec = httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, MsgDatabaseDown, decodeError(t, rec))
}

func TestStaticFiles_NoListing(t *testing.T) {
	s := newTestServer(t, noText)
	rec := s.do(httptest.NewRequest(http.MethodGet, "/uploads/thumbnails/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type processFunc func(ctx context.Context, up pipeline.Upload) (*pipeline.Result, error)

func (f processFunc) Process(ctx context.Context, up pipeline.Upload) (*pipeline.Result, error) {
	return f(ctx, up)
}

func TestUpload_TooLargeMessageFollowsLimit(t *testing.T) {
	h := NewHandlers(HandlersConfig{
		Pipeline: processFunc(func(context.Context, pipeline.Upload) (*pipeline.Result, error) {
			return &pipeline.Result{}, imaging.ErrFileTooLarge
		}),
		MaxBytes: 2 << 20,
	}, nil)

	body, ct := multipartBody(t, "image", "big.png", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/api/submissions/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "File too large. Maximum size is 2MB.", decodeError(t, rec))
}

func TestFileTooLargeMessage(t *testing.T) {
	assert.Equal(t, MsgFileTooLarge, FileTooLargeMessage(constants.MaxUploadBytes))
	assert.Equal(t, "File too large. Maximum size is 512KB.", FileTooLargeMessage(512<<10))
	assert.Equal(t, "File too large. Maximum size is 1500 bytes.", FileTooLargeMessage(1500))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		msg    string
	}{
		{fmt.Errorf("wrap: %w", imaging.ErrFileTooLarge), http.StatusRequestEntityTooLarge, MsgFileTooLarge},
		{&http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge, MsgFileTooLarge},
		{imaging.ErrInvalidFileType, http.StatusBadRequest, MsgInvalidFileType},
		{errNoImage, http.StatusBadRequest, MsgNoImage},
		{repository.ErrNotFound, http.StatusNotFound, MsgNotFound},
		{imaging.ErrCorruptImage, http.StatusInternalServerError, MsgInternal},
		{extract.ErrExtractionUnavailable, http.StatusInternalServerError, MsgInternal},
		{repository.ErrPersistence, http.StatusInternalServerError, MsgInternal},
		{context.DeadlineExceeded, http.StatusInternalServerError, MsgInternal},
	}
	for _, tt := range tests {
		status, msg := statusFor(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.msg, msg, tt.err.Error())
	}
}

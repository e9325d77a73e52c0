package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/photon-decode/constants"
	"github.com/joseph-ayodele/photon-decode/internal/common"
	"github.com/joseph-ayodele/photon-decode/internal/contract"
	"github.com/joseph-ayodele/photon-decode/internal/export"
	"github.com/joseph-ayodele/photon-decode/internal/pipeline"
	"github.com/joseph-ayodele/photon-decode/internal/repository"
)

const (
	imageField           = "image"
	maxIdempotencyKeyLen = 128
	xlsxContentType      = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	// multipart framing allowance on top of the image limit
	multipartSlack = 1 << 20
)

// Processor runs one upload through the submission pipeline.
type Processor interface {
	Process(ctx context.Context, up pipeline.Upload) (*pipeline.Result, error)
}

// Clock reports the database time, for health checks.
type Clock interface {
	Now(ctx context.Context) (time.Time, error)
}

// Handlers serves the submissions API.
type Handlers struct {
	pipeline Processor
	store    repository.SubmissionRepository
	exporter *export.Service
	clock    Clock
	maxBytes int64
	tooLarge string
	logger   *slog.Logger
}

// HandlersConfig collects the collaborators of Handlers. Exporter and Clock are optional.
type HandlersConfig struct {
	Pipeline Processor
	Store    repository.SubmissionRepository
	Exporter *export.Service
	Clock    Clock
	MaxBytes int64
}

func NewHandlers(cfg HandlersConfig, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = constants.MaxUploadBytes
	}
	return &Handlers{
		pipeline: cfg.Pipeline,
		store:    cfg.Store,
		exporter: cfg.Exporter,
		clock:    cfg.Clock,
		maxBytes: cfg.MaxBytes,
		tooLarge: FileTooLargeMessage(cfg.MaxBytes),
		logger:   logger,
	}
}

func (h *Handlers) log(r *http.Request) *slog.Logger {
	if id := common.RequestIDFromContext(r.Context()); id != "" {
		return h.logger.With("request_id", id)
	}
	return h.logger
}

// Upload handles POST /submissions/upload.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if len(key) > maxIdempotencyKeyLen {
		writeError(w, http.StatusBadRequest, MsgIdempotencyKeyLong)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartSlack)
	data, contentType, filename, err := h.readImage(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.pipeline.Process(r.Context(), pipeline.Upload{
		Data:           data,
		ContentType:    contentType,
		Filename:       filename,
		IdempotencyKey: key,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contract.NewUploadResponse(res.Submission))
}

// readImage streams the multipart body to the image part and reads at most maxBytes+1 of it,
// leaving the size verdict to the validator.
func (h *Handlers) readImage(r *http.Request) ([]byte, string, string, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: %v", errNoImage, err)
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, "", "", errNoImage
		}
		if err != nil {
			var maxBytes *http.MaxBytesError
			if errors.As(err, &maxBytes) {
				return nil, "", "", err
			}
			return nil, "", "", fmt.Errorf("%w: %v", errNoImage, err)
		}
		if part.FormName() != imageField || part.FileName() == "" {
			_ = part.Close()
			continue
		}
		data, err := io.ReadAll(io.LimitReader(part, h.maxBytes+1))
		_ = part.Close()
		if err != nil {
			var maxBytes *http.MaxBytesError
			if errors.As(err, &maxBytes) {
				return nil, "", "", err
			}
			return nil, "", "", fmt.Errorf("%w: %v", errNoImage, err)
		}
		return data, part.Header.Get("Content-Type"), part.FileName(), nil
	}
}

// List handles GET /submissions. Unparseable page or limit values take the defaults.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	p, err := h.store.List(r.Context(), page, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contract.NewListResponse(p))
}

// Get handles GET /submissions/{id}. A malformed id is reported as not found.
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, MsgNotFound)
		return
	}
	sub, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, contract.NewSubmission(sub))
}

// Export handles GET /submissions/export.xlsx with optional from/to (YYYY-MM-DD).
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		writeError(w, http.StatusNotFound, "Export is not enabled")
		return
	}
	var win export.Window
	for name, dst := range map[string]**time.Time{"from": &win.From, "to": &win.To} {
		v := strings.TrimSpace(r.URL.Query().Get(name))
		if v == "" {
			continue
		}
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, MsgInvalidDate)
			return
		}
		*dst = &t
	}

	data, err := h.exporter.ExportSubmissionsXLSX(r.Context(), win)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="submissions.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.clock == nil {
		writeError(w, http.StatusInternalServerError, MsgDatabaseDown)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	now, err := h.clock.Now(ctx)
	if err != nil {
		h.log(r).Error("health check failed", "error", err)
		writeError(w, http.StatusInternalServerError, MsgDatabaseDown)
		return
	}
	writeJSON(w, http.StatusOK, contract.HealthResponse{Status: "ok", DBTime: now})
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joseph-ayodele/photon-decode/internal/contract"
	"github.com/joseph-ayodele/photon-decode/internal/imaging"
	"github.com/joseph-ayodele/photon-decode/internal/repository"
)

// Client-visible messages. Internal causes are only logged.
// MsgFileTooLarge is the message at the default limit; see FileTooLargeMessage.
const (
	MsgFileTooLarge       = "File too large. Maximum size is 10MB."
	MsgInvalidFileType    = "Invalid file type. Only JPEG, PNG, GIF, WEBP, BMP and TIFF images are accepted."
	MsgNoImage            = "No image file provided"
	MsgNotFound           = "Submission not found"
	MsgInternal           = "Unexpected server error"
	MsgDatabaseDown       = "Database connection failed"
	MsgIdempotencyKeyLong = "Idempotency-Key must be at most 128 characters"
	MsgInvalidDate        = "Invalid date, expected YYYY-MM-DD"
)

var errNoImage = errors.New("no image part in request")

// FileTooLargeMessage renders the 413 message for a byte limit, in whole MB or KB when it divides evenly.
func FileTooLargeMessage(limit int64) string {
	switch {
	case limit >= 1<<20 && limit%(1<<20) == 0:
		return fmt.Sprintf("File too large. Maximum size is %dMB.", limit>>20)
	case limit >= 1<<10 && limit%(1<<10) == 0:
		return fmt.Sprintf("File too large. Maximum size is %dKB.", limit>>10)
	default:
		return fmt.Sprintf("File too large. Maximum size is %d bytes.", limit)
	}
}

// statusFor maps an error from the pipeline or store to a status and a fixed message.
func statusFor(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, imaging.ErrFileTooLarge), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, MsgFileTooLarge
	case errors.Is(err, imaging.ErrInvalidFileType):
		return http.StatusBadRequest, MsgInvalidFileType
	case errors.Is(err, errNoImage):
		return http.StatusBadRequest, MsgNoImage
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, MsgNotFound
	default:
		return http.StatusInternalServerError, MsgInternal
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, contract.ErrorResponse{Error: message})
}

// fail writes the mapped response for err, logging 5xx causes.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	logger := h.log(r)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Info("request rejected", "status", status, "error", err)
	}
	if status == http.StatusRequestEntityTooLarge {
		msg = h.tooLarge
	}
	writeError(w, status, msg)
}

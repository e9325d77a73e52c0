package entity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/photon-decode/constants"
)

// Submission is one processed upload, as persisted in image_submissions.
type Submission struct {
	ID                uuid.UUID                  `json:"id"`
	Status            constants.SubmissionStatus `json:"status"`
	ExtractedText     *string                    `json:"extracted_text,omitempty"`
	ExtractionSuccess bool                       `json:"extraction_success"`
	Quality           *constants.Quality         `json:"quality,omitempty"`
	ThumbnailURL      *string                    `json:"thumbnail_url,omitempty"`
	Approach          string                     `json:"approach,omitempty"`
	Confidence        float32                    `json:"confidence"`
	ContentHash       []byte                     `json:"content_hash,omitempty"`
	ContentType       string                     `json:"content_type,omitempty"`
	Width             int                        `json:"width"`
	Height            int                        `json:"height"`
	IdempotencyKey    *string                    `json:"idempotency_key,omitempty"`
	CreatedAt         time.Time                  `json:"created_at"`
}

// SubmissionInput carries everything the store needs to create a Submission.
// ID and CreatedAt are assigned by the store.
type SubmissionInput struct {
	Status            constants.SubmissionStatus
	ExtractedText     *string
	ExtractionSuccess bool
	Quality           *constants.Quality
	ThumbnailURL      *string
	Approach          string
	Confidence        float32
	ContentHash       []byte
	ContentType       string
	Width             int
	Height            int
	IdempotencyKey    *string
}

// ErrInvalidSubmission is returned when an input breaks the submission shape.
var ErrInvalidSubmission = errors.New("invalid submission")

// Validate enforces the success/failure shape before anything is written.
func (in SubmissionInput) Validate() error {
	hasText := in.ExtractedText != nil && strings.TrimSpace(*in.ExtractedText) != ""
	switch {
	case !in.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidSubmission, in.Status)
	case in.ExtractionSuccess != hasText:
		return fmt.Errorf("%w: extraction_success=%t but text present=%t", ErrInvalidSubmission, in.ExtractionSuccess, hasText)
	case in.ExtractionSuccess != (in.Quality != nil):
		return fmt.Errorf("%w: quality must be set iff extraction succeeded", ErrInvalidSubmission)
	case in.Quality != nil && in.Quality.Rank() == 0:
		return fmt.Errorf("%w: unknown quality %q", ErrInvalidSubmission, *in.Quality)
	case in.ExtractionSuccess && in.Status != constants.SubmissionStatusProcessed:
		return fmt.Errorf("%w: successful extraction must be %q", ErrInvalidSubmission, constants.SubmissionStatusProcessed)
	case !in.ExtractionSuccess && in.Status == constants.SubmissionStatusProcessed:
		return fmt.Errorf("%w: processed submission without text", ErrInvalidSubmission)
	}
	return nil
}

// Build materializes the input with a store-assigned id and timestamp.
func (in SubmissionInput) Build(id uuid.UUID, createdAt time.Time) *Submission {
	return &Submission{
		ID:                id,
		Status:            in.Status,
		ExtractedText:     in.ExtractedText,
		ExtractionSuccess: in.ExtractionSuccess,
		Quality:           in.Quality,
		ThumbnailURL:      in.ThumbnailURL,
		Approach:          in.Approach,
		Confidence:        in.Confidence,
		ContentHash:       in.ContentHash,
		ContentType:       in.ContentType,
		Width:             in.Width,
		Height:            in.Height,
		IdempotencyKey:    in.IdempotencyKey,
		CreatedAt:         createdAt,
	}
}

// Page is one slice of the submission list, most recent first.
type Page struct {
	Submissions []*Submission
	Page        int
	Limit       int
	Total       int
	TotalPages  int
}

// TotalPages returns ceil(total/limit), with an empty set counting as one page.
func TotalPages(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 1
	}
	return (total + limit - 1) / limit
}

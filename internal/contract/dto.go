// Package contract holds the versioned JSON shapes served by the HTTP API.
package contract

import (
	"time"

	"github.com/joseph-ayodele/photon-decode/internal/entity"
)

// Version is sent as X-API-Version on every API response.
const Version = "v1"

// MessageNoText accompanies uploads where no strategy produced text.
const MessageNoText = "No text could be extracted from the image"

// UploadResponse is returned by POST /submissions/upload.
type UploadResponse struct {
	ID                string    `json:"id"`
	Status            string    `json:"status"`
	ExtractedText     *string   `json:"extractedText"`
	ExtractionSuccess bool      `json:"extractionSuccess"`
	Quality           *string   `json:"quality"`
	ProcessedAt       time.Time `json:"processedAt"`
	ThumbnailURL      *string   `json:"thumbnailUrl,omitempty"`
	Approach          string    `json:"approach,omitempty"`
	Message           string    `json:"message,omitempty"`
}

// Submission is the list/detail shape.
type Submission struct {
	ID                string    `json:"id"`
	ExtractedText     *string   `json:"extractedText"`
	ExtractionSuccess bool      `json:"extractionSuccess"`
	Quality           *string   `json:"quality"`
	ThumbnailURL      *string   `json:"thumbnailUrl"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
	Approach          string    `json:"approach,omitempty"`
}

// ListResponse is one page of submissions, most recent first.
type ListResponse struct {
	Submissions []Submission `json:"submissions"`
	Page        int          `json:"page"`
	Limit       int          `json:"limit"`
	Total       int          `json:"total"`
	TotalPages  int          `json:"totalPages"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status string    `json:"status"`
	DBTime time.Time `json:"dbTime"`
}

func qualityString(s *entity.Submission) *string {
	if s.Quality == nil {
		return nil
	}
	q := string(*s.Quality)
	return &q
}

func NewUploadResponse(s *entity.Submission) UploadResponse {
	resp := UploadResponse{
		ID:                s.ID.String(),
		Status:            string(s.Status),
		ExtractedText:     s.ExtractedText,
		ExtractionSuccess: s.ExtractionSuccess,
		Quality:           qualityString(s),
		ProcessedAt:       s.CreatedAt,
		ThumbnailURL:      s.ThumbnailURL,
		Approach:          s.Approach,
	}
	if !s.ExtractionSuccess {
		resp.Message = MessageNoText
	}
	return resp
}

func NewSubmission(s *entity.Submission) Submission {
	return Submission{
		ID:                s.ID.String(),
		ExtractedText:     s.ExtractedText,
		ExtractionSuccess: s.ExtractionSuccess,
		Quality:           qualityString(s),
		ThumbnailURL:      s.ThumbnailURL,
		Status:            string(s.Status),
		CreatedAt:         s.CreatedAt,
		Approach:          s.Approach,
	}
}

func NewListResponse(p entity.Page) ListResponse {
	subs := make([]Submission, 0, len(p.Submissions))
	for _, s := range p.Submissions {
		subs = append(subs, NewSubmission(s))
	}
	return ListResponse{
		Submissions: subs,
		Page:        p.Page,
		Limit:       p.Limit,
		Total:       p.Total,
		TotalPages:  p.TotalPages,
	}
}

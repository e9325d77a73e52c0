// Package extract runs text extraction over preprocessed image candidates.
package extract

import (
	"context"
	"errors"
	"image"
	"time"
)

var (
	// ErrNoText is returned by a TextExtractor that found nothing readable.
	ErrNoText = errors.New("no text found")
	// ErrExtractionUnavailable means every attempted candidate failed with an engine error.
	ErrExtractionUnavailable = errors.New("text extraction unavailable")
)

// TextExtractor recognizes text in a single image.
type TextExtractor interface {
	Extract(ctx context.Context, img image.Image) (Text, error)
}

// Text is what an extractor recognized. Found is false when nothing was read.
type Text struct {
	Value      string
	Confidence float32
	Found      bool
}

// Attempt records one strategy's try.
type Attempt struct {
	Strategy string
	Duration time.Duration
	Found    bool
	Skipped  bool // the transform itself failed; the extractor never ran
	Err      error
}

// Outcome is the result of a full run over the strategy list.
type Outcome struct {
	Success    bool
	Text       string
	Confidence float32
	Approach   string
	Attempts   []Attempt
}

// ExtractorFunc adapts a plain function to TextExtractor.
type ExtractorFunc func(ctx context.Context, img image.Image) (Text, error)

func (f ExtractorFunc) Extract(ctx context.Context, img image.Image) (Text, error) {
	return f(ctx, img)
}

package extract

import (
	"context"
	"image"
	"log/slog"

	"github.com/joseph-ayodele/photon-decode/internal/ocr"
)

// OCRAdapter exposes the tesseract engine as a TextExtractor.
type OCRAdapter struct {
	engine *ocr.Engine
	logger *slog.Logger
}

func NewOCRAdapter(e *ocr.Engine, logger *slog.Logger) *OCRAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &OCRAdapter{engine: e, logger: logger}
}

func (a *OCRAdapter) Extract(ctx context.Context, img image.Image) (Text, error) {
	r, err := a.engine.Recognize(ctx, img)
	if err != nil {
		return Text{}, err
	}
	if len(r.Warnings) > 0 {
		a.logger.Debug("ocr warnings", "warnings", r.Warnings)
	}
	if r.Text == "" {
		return Text{}, ErrNoText
	}
	return Text{Value: r.Text, Confidence: r.Confidence, Found: true}, nil
}

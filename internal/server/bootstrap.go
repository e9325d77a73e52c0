package server

import (
	"context"
	"log/slog"

	"cloud.google.com/go/storage"

	"github.com/joseph-ayodele/photon-decode/internal/artifact"
	"github.com/joseph-ayodele/photon-decode/internal/common"
	"github.com/joseph-ayodele/photon-decode/internal/extract"
	"github.com/joseph-ayodele/photon-decode/internal/imaging"
	"github.com/joseph-ayodele/photon-decode/internal/ocr"
	"github.com/joseph-ayodele/photon-decode/internal/pipeline"
	"github.com/joseph-ayodele/photon-decode/internal/quality"
	repo "github.com/joseph-ayodele/photon-decode/internal/repository"
)

// OpenArtifacts builds the configured thumbnail store. The returned func releases it.
func OpenArtifacts(ctx context.Context, cfg common.ThumbnailConfig, logger *slog.Logger) (artifact.Store, func(), error) {
	switch cfg.Store {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, common.NewAppError("GCS_CONNECT", "create storage client", err)
		}
		gs, err := artifact.NewGCSStore(client, cfg.Bucket, cfg.Prefix, cfg.BaseURL, logger)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return gs, func() { _ = client.Close() }, nil
	default:
		ls, err := artifact.NewLocalStore(cfg.Dir, cfg.BaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		return ls, func() {}, nil
	}
}

// NewTesseractExtractor wires the tesseract engine as a TextExtractor. A missing binary is
// logged, not fatal: every attempt then fails and uploads answer 500.
func NewTesseractExtractor(cfg common.OCRConfig, logger *slog.Logger) extract.TextExtractor {
	engine := ocr.NewEngine(ocr.Config{
		Tesseract:           cfg.Tesseract,
		TesseractLang:       cfg.Lang,
		TessdataDir:         cfg.TessdataDir,
		EnableTSVConfidence: cfg.EnableTSV,
		PSM:                 cfg.PSM,
		OEM:                 cfg.OEM,
		TempDir:             cfg.TempDir,
	}, logger)
	if err := engine.Available(); err != nil {
		logger.Warn("tesseract unavailable", "error", err)
	}
	return extract.NewOCRAdapter(engine, logger)
}

// BuildPipeline assembles the submission pipeline from configuration.
// Artifacts may be nil to disable thumbnails.
func BuildPipeline(cfg *common.Config, extractor extract.TextExtractor, artifacts artifact.Store, store repo.SubmissionRepository, logger *slog.Logger) (*pipeline.Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	classifier, err := quality.NewClassifier(quality.Thresholds{Good: cfg.Quality.Good, Fair: cfg.Quality.Fair})
	if err != nil {
		return nil, err
	}
	return pipeline.NewPipeline(pipeline.Deps{
		Validator: imaging.NewValidator(imaging.ValidatorConfig{
			MaxBytes:  cfg.Upload.MaxBytes,
			MaxPixels: cfg.Upload.MaxPixels,
		}, logger),
		Runner:      extract.NewRunner(extractor, cfg.OCR.StrategyTimeout, logger),
		Classifier:  classifier,
		Thumbnailer: imaging.NewThumbnailer(cfg.Thumbnail.MaxEdge),
		Artifacts:   artifacts,
		Store:       store,
	}, logger, pipeline.WithTimeout(cfg.Pipeline.Timeout))
}

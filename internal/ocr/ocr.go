// Package ocr wraps the tesseract CLI as a text recognition engine.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// Config controls how tesseract is invoked. Zero values take defaults.
type Config struct {
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	TessdataDir   string

	EnableTSVConfidence bool

	PSM int // e.g. 7 treats the image as a single text line; 0 keeps tesseract's default
	OEM int // 1 = LSTM; leave 0 to use default

	TempDir string // where candidate PNGs are written; empty -> os.TempDir()
}

// Result is one recognition pass over an image.
type Result struct {
	Text       string // normalized
	Confidence float32
	Language   string
	Duration   time.Duration
	Warnings   []string
}

// Engine runs tesseract against in-memory images.
type Engine struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	return &Engine{cfg: cfg, runner: execRunner{}, logger: logger}
}

// Available reports whether the tesseract binary can be found.
func (e *Engine) Available() error {
	if _, err := exec.LookPath(e.cfg.Tesseract); err != nil {
		return fmt.Errorf("tesseract not available: %w", err)
	}
	return nil
}

// Recognize encodes img as PNG, runs tesseract on it and scores the result.
// An image with no readable text yields an empty Text and a nil error.
func (e *Engine) Recognize(ctx context.Context, img image.Image) (Result, error) {
	start := time.Now()
	path, cleanup, err := e.writeTemp(img)
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	raw, warn, err := e.tesseractText(ctx, path)
	if err != nil {
		return Result{Warnings: warn, Duration: time.Since(start)}, err
	}
	txt := Normalize(raw)
	res := Result{Text: txt, Language: e.cfg.TesseractLang, Warnings: warn}
	if txt == "" {
		res.Duration = time.Since(start)
		return res, nil
	}

	var engineConf float32
	var engineOK bool
	if e.cfg.EnableTSVConfidence {
		c, ok, w, err := e.tesseractTSVConfidence(ctx, path)
		switch {
		case err != nil:
			res.Warnings = append(res.Warnings, err.Error())
		default:
			engineConf, engineOK = c, ok
			res.Warnings = append(res.Warnings, w...)
		}
	}
	res.Confidence = blend(engineConf, engineOK, heuristicConfidence(txt))
	res.Duration = time.Since(start)

	e.logger.Debug("ocr pass complete",
		"chars", len(txt),
		"confidence", res.Confidence,
		"engine_confidence", engineConf,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (e *Engine) writeTemp(img image.Image) (string, func(), error) {
	f, err := os.CreateTemp(e.cfg.TempDir, "photon-ocr-*.png")
	if err != nil {
		return "", nil, fmt.Errorf("ocr temp file: %w", err)
	}
	cleanup := func() {
		if err := os.Remove(f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			e.logger.Warn("failed to remove ocr temp file", "path", f.Name(), "error", err)
		}
	}
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(f, img); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("ocr encode candidate: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("ocr temp file: %w", err)
	}
	return f.Name(), cleanup, nil
}

func (e *Engine) baseArgs(path string) []string {
	// tesseract <file> stdout -l <lang> [--psm N] [--oem N] [--tessdata-dir D]
	args := []string{path, "stdout", "-l", e.cfg.TesseractLang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(e.cfg.OEM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	return args
}

func (e *Engine) tesseractText(ctx context.Context, path string) (string, []string, error) {
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, e.logger, e.baseArgs(path)...)
	if err != nil {
		return "", []string{truncate(string(errb), 1<<10)}, fmt.Errorf("tesseract: %w", err)
	}
	return string(out), nil, nil
}

func (e *Engine) tesseractTSVConfidence(ctx context.Context, path string) (float32, bool, []string, error) {
	args := append(e.baseArgs(path), "tsv")
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, e.logger, args...)
	if err != nil {
		return 0, false, []string{truncate(string(errb), 1<<10)}, fmt.Errorf("tesseract TSV: %w", err)
	}
	conf, ok := meanWordConfidence(out)
	if !ok {
		return 0, false, []string{"tsv output carried no word confidences"}, nil
	}
	return conf, true, nil, nil
}

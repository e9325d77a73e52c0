package extract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/photon-decode/internal/common"
	"github.com/joseph-ayodele/photon-decode/internal/imaging"
	"github.com/joseph-ayodele/photon-decode/internal/ocr"
)

// DefaultAttemptTimeout bounds a single extractor call.
const DefaultAttemptTimeout = 20 * time.Second

// Runner tries strategies in order and keeps the first one that yields text.
type Runner struct {
	extractor TextExtractor
	timeout   time.Duration
	logger    *slog.Logger
}

func NewRunner(extractor TextExtractor, attemptTimeout time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}
	return &Runner{extractor: extractor, timeout: attemptTimeout, logger: logger}
}

// Run applies each strategy lazily; nothing after the winner is transformed or extracted.
// A run where no candidate produced text is a non-success Outcome, not an error.
func (r *Runner) Run(ctx context.Context, img image.Image, strategies []imaging.Strategy) (Outcome, error) {
	logger := common.LoggerFromContext(ctx, r.logger)
	var out Outcome
	var attempted, failed int

	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		start := time.Now()
		candidate, err := s.Apply(img)
		if err != nil {
			logger.Debug("strategy skipped", "approach", s.Name, "error", err)
			out.Attempts = append(out.Attempts, Attempt{Strategy: s.Name, Skipped: true, Err: err, Duration: time.Since(start)})
			continue
		}

		attempted++
		text, err := r.attempt(ctx, candidate)
		a := Attempt{Strategy: s.Name, Duration: time.Since(start)}
		switch {
		case err == nil:
		case errors.Is(err, ErrNoText):
		case ctx.Err() != nil:
			return out, ctx.Err()
		default:
			failed++
			a.Err = err
			out.Attempts = append(out.Attempts, a)
			logger.Warn("extractor failed", "approach", s.Name, "duration_ms", a.Duration.Milliseconds(), "error", err)
			continue
		}

		value := ocr.Normalize(text.Value)
		if err == nil && text.Found && ocr.HasSignal(value) {
			a.Found = true
			out.Attempts = append(out.Attempts, a)
			out.Success = true
			out.Text = value
			out.Confidence = text.Confidence
			out.Approach = s.Name
			logger.Info("text extracted",
				"approach", s.Name,
				"confidence", text.Confidence,
				"attempts", len(out.Attempts),
				"duration_ms", a.Duration.Milliseconds(),
			)
			return out, nil
		}
		out.Attempts = append(out.Attempts, a)
		logger.Debug("no text", "approach", s.Name, "duration_ms", a.Duration.Milliseconds())
	}

	if attempted > 0 && failed == attempted {
		return out, fmt.Errorf("%w: %d of %d attempts failed", ErrExtractionUnavailable, failed, attempted)
	}
	return out, nil
}

func (r *Runner) attempt(ctx context.Context, candidate image.Image) (Text, error) {
	actx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.extractor.Extract(actx, candidate)
}

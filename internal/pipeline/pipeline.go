// Package pipeline turns one uploaded image into one persisted submission.
package pipeline

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/photon-decode/constants"
	"github.com/joseph-ayodele/photon-decode/internal/artifact"
	"github.com/joseph-ayodele/photon-decode/internal/common"
	"github.com/joseph-ayodele/photon-decode/internal/entity"
	"github.com/joseph-ayodele/photon-decode/internal/extract"
	"github.com/joseph-ayodele/photon-decode/internal/imaging"
	"github.com/joseph-ayodele/photon-decode/internal/quality"
	"github.com/joseph-ayodele/photon-decode/internal/repository"
)

// DefaultTimeout bounds one Process call.
const DefaultTimeout = 60 * time.Second

// Upload is the raw input of one run.
type Upload struct {
	Data           []byte
	ContentType    string // as declared by the client; never trusted
	Filename       string
	IdempotencyKey string
}

// Result describes a run. Submission is nil unless the run reached Completed.
type Result struct {
	Submission  *entity.Submission
	Outcome     extract.Outcome
	Transitions []Transition
	Final       State
	// Replayed is true when an existing submission was returned for the idempotency key.
	Replayed bool
}

// Deps are the collaborators of a Pipeline. Artifacts may be nil, which disables thumbnails.
type Deps struct {
	Validator   *imaging.Validator
	Runner      *extract.Runner
	Classifier  *quality.Classifier
	Thumbnailer *imaging.Thumbnailer
	Artifacts   artifact.Store
	Store       repository.SubmissionRepository
}

type Option func(*Pipeline)

// WithTimeout bounds each run. Non-positive values keep DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithStrategies replaces the preprocessing order.
func WithStrategies(s []imaging.Strategy) Option {
	return func(p *Pipeline) { p.strategies = s }
}

// WithOnTransition registers an observer called for every edge, in order.
func WithOnTransition(fn func(Transition)) Option {
	return func(p *Pipeline) { p.onTransition = fn }
}

type Pipeline struct {
	deps         Deps
	strategies   []imaging.Strategy
	timeout      time.Duration
	onTransition func(Transition)
	logger       *slog.Logger
	steps        map[State]stepFunc
}

func NewPipeline(deps Deps, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Validator == nil || deps.Runner == nil || deps.Classifier == nil || deps.Store == nil {
		return nil, common.NewAppError("PIPELINE_CONFIG", "validator, runner, classifier and store are required", common.ErrInvalidInput)
	}
	if deps.Thumbnailer == nil {
		deps.Thumbnailer = imaging.NewThumbnailer(0)
	}
	p := &Pipeline{
		deps:       deps,
		strategies: imaging.DefaultStrategies(),
		timeout:    DefaultTimeout,
		logger:     logger,
	}
	for _, o := range opts {
		o(p)
	}
	p.steps = map[State]stepFunc{
		StateReceived:      p.received,
		StateValidating:    p.validating,
		StatePreprocessing: p.preprocessing,
		StateExtracting:    p.extracting,
		StateClassifying:   p.classifying,
		StateThumbnailing:  p.thumbnailing,
		StatePersisting:    p.persisting,
	}
	return p, nil
}

// run is the mutable state of one Process call.
type run struct {
	upload    Upload
	logger    *slog.Logger
	image     *imaging.ValidatedImage
	hash      []byte
	outcome   extract.Outcome
	quality   *constants.Quality
	thumbnail *string
	thumbKey  string
	result    *Result
}

type stepFunc func(ctx context.Context, r *run) (State, error)

// Process drives an upload to a terminal state. The returned Result is never nil.
// Rejected runs return the validation error (imaging.ErrFileTooLarge or ErrInvalidFileType);
// ServerError runs return the internal cause. Neither writes a submission.
func (p *Pipeline) Process(ctx context.Context, up Upload) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	logger := common.LoggerFromContext(ctx, p.logger)
	if id := common.RequestIDFromContext(ctx); id != "" {
		logger = logger.With("request_id", id)
	}
	r := &run{upload: up, logger: logger, result: &Result{}}
	ctx = common.WithLogger(ctx, logger)

	start := time.Now()
	state := StateReceived
	var runErr error
	for !state.Terminal() {
		step, ok := p.steps[state]
		if !ok {
			runErr = fmt.Errorf("no step for state %q: %w", state, common.ErrInternal)
			p.transition(r, state, StateServerError, runErr)
			state = StateServerError
			break
		}
		next, err := step(ctx, r)
		p.transition(r, state, next, err)
		if err != nil {
			runErr = err
		}
		state = next
	}
	r.result.Final = state
	r.result.Outcome = r.outcome

	attrs := []any{"state", state, "duration_ms", time.Since(start).Milliseconds(), "bytes", len(up.Data)}
	switch state {
	case StateCompleted:
		sub := r.result.Submission
		logger.Info("submission processed", append(attrs,
			"submission_id", sub.ID, "status", sub.Status, "approach", sub.Approach, "replayed", r.result.Replayed)...)
		return r.result, nil
	case StateRejected:
		logger.Warn("upload rejected", append(attrs, "error", runErr)...)
	default:
		logger.Error("upload failed", append(attrs, "error", runErr)...)
	}
	return r.result, runErr
}

func (p *Pipeline) transition(r *run, from, to State, err error) {
	t := Transition{From: from, To: to, At: time.Now(), Err: err}
	r.result.Transitions = append(r.result.Transitions, t)
	r.logger.Debug("pipeline transition", "from", from, "to", to)
	if p.onTransition != nil {
		p.onTransition(t)
	}
}

func (p *Pipeline) received(ctx context.Context, r *run) (State, error) {
	key := strings.TrimSpace(r.upload.IdempotencyKey)
	r.upload.IdempotencyKey = key
	if key == "" {
		return StateValidating, nil
	}
	existing, err := p.deps.Store.GetByIdempotencyKey(ctx, key)
	switch {
	case err == nil:
		r.result.Submission = existing
		r.result.Replayed = true
		return StateCompleted, nil
	case errors.Is(err, repository.ErrNotFound):
		return StateValidating, nil
	default:
		return StateServerError, err
	}
}

func (p *Pipeline) validating(_ context.Context, r *run) (State, error) {
	img, err := p.deps.Validator.Validate(r.upload.Data, r.upload.ContentType)
	switch {
	case err == nil:
	case errors.Is(err, imaging.ErrFileTooLarge), errors.Is(err, imaging.ErrInvalidFileType):
		return StateRejected, err
	default:
		return StateServerError, err
	}
	sum := sha256.Sum256(r.upload.Data)
	r.image = img
	r.hash = sum[:]
	return StatePreprocessing, nil
}

// preprocessing only checks that there is something to try; transforms run lazily in Extracting.
func (p *Pipeline) preprocessing(ctx context.Context, r *run) (State, error) {
	if err := ctx.Err(); err != nil {
		return StateServerError, err
	}
	if len(p.strategies) == 0 {
		return StateServerError, fmt.Errorf("no preprocessing strategies configured: %w", common.ErrInternal)
	}
	return StateExtracting, nil
}

func (p *Pipeline) extracting(ctx context.Context, r *run) (State, error) {
	out, err := p.deps.Runner.Run(ctx, r.image.Image, p.strategies)
	r.outcome = out
	if err != nil {
		return StateServerError, err
	}
	if out.Success {
		return StateClassifying, nil
	}
	return StateThumbnailing, nil
}

func (p *Pipeline) classifying(_ context.Context, r *run) (State, error) {
	q := p.deps.Classifier.Classify(r.outcome.Confidence)
	r.quality = &q
	return StateThumbnailing, nil
}

// thumbnailing never fails the run; a missing preview is only logged.
func (p *Pipeline) thumbnailing(ctx context.Context, r *run) (State, error) {
	if p.deps.Artifacts == nil {
		return StatePersisting, nil
	}
	data, err := p.deps.Thumbnailer.Generate(r.image.Image)
	if err != nil {
		r.logger.Warn("thumbnail generation failed", "error", err)
		return StatePersisting, nil
	}
	key := uuid.NewString() + ".jpg"
	url, err := p.deps.Artifacts.Save(ctx, key, imaging.ThumbnailContentType, data)
	if err != nil {
		r.logger.Warn("thumbnail store failed", "key", key, "error", err)
		return StatePersisting, nil
	}
	r.thumbnail = &url
	r.thumbKey = key
	return StatePersisting, nil
}

// discardThumbnail removes a saved preview that no stored submission references.
func (p *Pipeline) discardThumbnail(ctx context.Context, r *run) {
	if r.thumbKey == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.deps.Artifacts.Delete(ctx, r.thumbKey); err != nil {
		r.logger.Warn("orphaned thumbnail not removed", "key", r.thumbKey, "error", err)
	} else {
		r.logger.Debug("orphaned thumbnail removed", "key", r.thumbKey)
	}
	r.thumbKey, r.thumbnail = "", nil
}

func (p *Pipeline) persisting(ctx context.Context, r *run) (State, error) {
	if err := ctx.Err(); err != nil {
		p.discardThumbnail(ctx, r)
		return StateServerError, err
	}
	in := entity.SubmissionInput{
		Status:       constants.SubmissionStatusFailed,
		ThumbnailURL: r.thumbnail,
		Approach:     r.outcome.Approach,
		ContentHash:  r.hash,
		ContentType:  r.image.ContentType,
		Width:        r.image.Width,
		Height:       r.image.Height,
	}
	if r.outcome.Success {
		text := r.outcome.Text
		in.Status = constants.SubmissionStatusProcessed
		in.ExtractedText = &text
		in.ExtractionSuccess = true
		in.Quality = r.quality
		in.Confidence = r.outcome.Confidence
	}
	if r.upload.IdempotencyKey != "" {
		key := r.upload.IdempotencyKey
		in.IdempotencyKey = &key
	}

	sub, err := p.deps.Store.Create(ctx, in)
	if errors.Is(err, repository.ErrDuplicateKey) {
		// a concurrent request with the same key won the insert
		p.discardThumbnail(ctx, r)
		existing, gerr := p.deps.Store.GetByIdempotencyKey(ctx, r.upload.IdempotencyKey)
		if gerr != nil {
			return StateServerError, gerr
		}
		r.result.Submission = existing
		r.result.Replayed = true
		return StateCompleted, nil
	}
	if err != nil {
		p.discardThumbnail(ctx, r)
		return StateServerError, err
	}
	r.result.Submission = sub
	return StateCompleted, nil
}

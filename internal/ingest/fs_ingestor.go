package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/photon-decode/constants"
	"github.com/joseph-ayodele/photon-decode/internal/pipeline"
	"github.com/joseph-ayodele/photon-decode/internal/repository"
)

const defaultWorkers = 4

// FSIngestor reads from the local filesystem.
type FSIngestor struct {
	processor Processor
	store     repository.SubmissionRepository // optional; enables dedup by content hash
	workers   int
	maxBytes  int64
	logger    *slog.Logger
}

type Option func(*FSIngestor)

// WithDedup skips files whose content hash is already stored.
func WithDedup(store repository.SubmissionRepository) Option {
	return func(i *FSIngestor) { i.store = store }
}

// WithWorkers bounds concurrent pipeline runs. Non-positive values keep the default.
func WithWorkers(n int) Option {
	return func(i *FSIngestor) {
		if n > 0 {
			i.workers = n
		}
	}
}

// WithMaxBytes refuses to read files above n bytes. The pipeline still applies its own limit.
func WithMaxBytes(n int64) Option {
	return func(i *FSIngestor) {
		if n > 0 {
			i.maxBytes = n
		}
	}
}

func NewFSIngestor(p Processor, logger *slog.Logger, opts ...Option) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	i := &FSIngestor{
		processor: p,
		workers:   defaultWorkers,
		maxBytes:  constants.MaxUploadBytes,
		logger:    logger,
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

func (i *FSIngestor) IngestPath(ctx context.Context, path string) (IngestionResult, error) {
	out := IngestionResult{SourcePath: path}

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, fmt.Errorf("abs path: %w", err)
	}
	out.SourcePath = abs

	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !AllowedExt(ext) {
		return out, fmt.Errorf("unsupported or missing extension: %q", ext)
	}
	out.FileExt = ext

	st, err := os.Stat(abs)
	if err != nil {
		return out, err
	}
	// one byte over lets the validator report the size itself
	if st.Size() > i.maxBytes+1 {
		return out, fmt.Errorf("file is %d bytes, limit is %d", st.Size(), i.maxBytes)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return out, fmt.Errorf("read: %w", err)
	}
	sum := sha256.Sum256(data)
	out.HashHex = hex.EncodeToString(sum[:])

	if i.store != nil {
		existing, err := i.store.FindByContentHash(ctx, sum[:])
		switch {
		case err == nil:
			out.SubmissionID = existing.ID.String()
			out.Status = string(existing.Status)
			out.Deduplicated = true
			i.logger.Debug("ingest deduplicated", "path", abs, "submission_id", existing.ID)
			return out, nil
		case !errors.Is(err, repository.ErrNotFound):
			return out, err
		}
	}

	res, err := i.processor.Process(ctx, uploadFor(abs, data))
	if err != nil {
		return out, err
	}
	out.SubmissionID = res.Submission.ID.String()
	out.Status = string(res.Submission.Status)
	out.Deduplicated = res.Replayed
	return out, nil
}

// IngestDirectory walks root, skips hidden entries if requested, and runs IngestPath
// for every matching file on a bounded set of workers. Results are sorted by path.
func (i *FSIngestor) IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root_path is required")
	}

	var (
		mu      sync.Mutex
		results []IngestionResult
		stats   DirStats
	)
	record := func(r IngestionResult, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			r.Err = err.Error()
			stats.Failed++
		} else {
			stats.Succeeded++
			if r.Deduplicated {
				stats.Deduplicated++
			}
		}
		results = append(results, r)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.workers)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		mu.Lock()
		stats.Scanned++
		mu.Unlock()
		if walkErr != nil {
			record(IngestionResult{SourcePath: path}, walkErr)
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		mu.Lock()
		stats.Matched++
		mu.Unlock()

		g.Go(func() error {
			r, err := i.IngestPath(gctx, path)
			if err != nil {
				i.logger.Warn("ingest file failed", "path", path, "error", err)
			}
			record(r, err)
			// per-file failures are counted, only cancellation stops the batch
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		})
		return nil
	})
	gErr := g.Wait()

	sort.Slice(results, func(a, b int) bool { return results[a].SourcePath < results[b].SourcePath })
	i.logger.Info("ingest directory done",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
	)
	if walkErr != nil {
		return results, stats, fmt.Errorf("walk: %w", walkErr)
	}
	if gErr != nil {
		return results, stats, gErr
	}
	return results, stats, nil
}

func uploadFor(path string, data []byte) pipeline.Upload {
	return pipeline.Upload{
		Data:        data,
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Filename:    filepath.Base(path),
	}
}

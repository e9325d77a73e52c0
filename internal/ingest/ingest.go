// Package ingest feeds image files from the local filesystem through the submission pipeline.
package ingest

import (
	"context"

	"github.com/joseph-ayodele/photon-decode/internal/pipeline"
)

// IngestionResult is the per-file ingest outcome.
type IngestionResult struct {
	SourcePath   string
	SubmissionID string
	Status       string
	Deduplicated bool
	HashHex      string
	FileExt      string
	Err          string
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Processor is the part of the pipeline the ingestor drives.
type Processor interface {
	Process(ctx context.Context, up pipeline.Upload) (*pipeline.Result, error)
}

// Ingestor is the behavior the CLI depends on.
type Ingestor interface {
	// IngestPath processes a single file.
	IngestPath(ctx context.Context, path string) (IngestionResult, error)
	// IngestDirectory processes all matching files under root.
	IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]IngestionResult, DirStats, error)
}

package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/photon-decode/internal/ingest"
)

func newIngestCmd() *cobra.Command {
	var (
		workers       int
		includeHidden bool
		noDedup       bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <dir>",
		Short: "Process every image file under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := []ingest.Option{ingest.WithWorkers(workers), ingest.WithMaxBytes(cfg.Upload.MaxBytes)}
			if !noDedup {
				opts = append(opts, ingest.WithDedup(a.db.Submissions))
			}
			ing := ingest.NewFSIngestor(a.pipeline, logger, opts...)

			results, stats, err := ing.IngestDirectory(ctx, args[0], !includeHidden)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(map[string]any{"stats": stats, "results": results}); encErr != nil {
				return encErr
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "concurrent pipeline runs")
	cmd.Flags().BoolVar(&includeHidden, "include-hidden", false, "also walk dot files and directories")
	cmd.Flags().BoolVar(&noDedup, "no-dedup", false, "process files even if their content is already stored")
	return cmd
}

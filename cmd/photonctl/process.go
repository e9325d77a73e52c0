package main

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/photon-decode/internal/contract"
	"github.com/joseph-ayodele/photon-decode/internal/pipeline"
)

func newProcessCmd() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "process <file>",
		Short: "Run one image through the pipeline and print the upload response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Pipeline.Timeout+30*time.Second)
			defer cancel()

			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			start := time.Now()
			res, err := a.pipeline.Process(ctx, pipeline.Upload{
				Data:           data,
				ContentType:    mime.TypeByExtension(filepath.Ext(path)),
				Filename:       filepath.Base(path),
				IdempotencyKey: key,
			})
			if err != nil {
				logger.Error("processing failed", "path", path, "state", res.Final, "error", err,
					"duration_ms", time.Since(start).Milliseconds())
				return err
			}

			out, err := json.MarshalIndent(contract.NewUploadResponse(res.Submission), "", "  ")
			if err != nil {
				return fmt.Errorf("encode response: %w", err)
			}
			if err := contract.Validate(contract.SchemaUpload, out); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
	cmd.Flags().StringVar(&key, "idempotency-key", "", "reuse the submission stored under this key")
	return cmd
}

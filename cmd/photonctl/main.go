// Command photonctl runs the submission pipeline and store maintenance from the shell.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/photon-decode/internal/common"
	"github.com/joseph-ayodele/photon-decode/internal/pipeline"
	svc "github.com/joseph-ayodele/photon-decode/internal/server"
)

var (
	verbose bool

	cfg    *common.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "photonctl",
	Short:         "Process images and manage stored submissions",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = common.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if verbose {
			cfg.Log.Level = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		// logs go to stderr so stdout stays machine-readable
		logger = common.NewLogger(common.LogConfig{Level: cfg.Log.Level, Format: "text"}, os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(newProcessCmd(), newIngestCmd(), newExportCmd(), newDBHealthCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app is what the pipeline-running commands share.
type app struct {
	db       *svc.Database
	pipeline *pipeline.Pipeline
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func openDB(ctx context.Context) (*svc.Database, error) {
	db, err := svc.ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	if err := db.WithCache(ctx, cfg.Cache); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func openApp(ctx context.Context) (*app, error) {
	db, err := openDB(ctx)
	if err != nil {
		return nil, err
	}
	a := &app{db: db, closers: []func(){db.Close}}

	artifacts, closeArtifacts, err := svc.OpenArtifacts(ctx, cfg.Thumbnail, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closeArtifacts)

	p, err := svc.BuildPipeline(cfg, svc.NewTesseractExtractor(cfg.OCR, logger), artifacts, db.Submissions, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.pipeline = p
	return a, nil
}

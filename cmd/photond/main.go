package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/photon-decode/internal/common"
	"github.com/joseph-ayodele/photon-decode/internal/export"
	svc "github.com/joseph-ayodele/photon-decode/internal/server"
)

func main() {
	if err := run(); err != nil {
		slog.Error("photond exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := common.LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := common.NewLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := svc.ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.PingDB(ctx, 5*time.Second); err != nil {
		return err
	}
	if err := db.WithCache(ctx, cfg.Cache); err != nil {
		return err
	}

	artifacts, closeArtifacts, err := svc.OpenArtifacts(ctx, cfg.Thumbnail, logger)
	if err != nil {
		return err
	}
	defer closeArtifacts()

	extractor := svc.NewTesseractExtractor(cfg.OCR, logger)
	p, err := svc.BuildPipeline(cfg, extractor, artifacts, db.Submissions, logger)
	if err != nil {
		return err
	}

	handlers := svc.NewHandlers(svc.HandlersConfig{
		Pipeline: p,
		Store:    db.Submissions,
		Exporter: export.NewService(db.Submissions, logger),
		Clock:    db.Store,
		MaxBytes: cfg.Upload.MaxBytes,
	}, logger)
	routerCfg := svc.RouterConfig{
		BasePath:       cfg.Server.BasePath,
		RequestTimeout: cfg.Pipeline.Timeout + 30*time.Second,
	}
	if cfg.Thumbnail.Store == "local" {
		routerCfg.StaticPrefix = cfg.Thumbnail.BaseURL
		routerCfg.StaticDir = cfg.Thumbnail.Dir
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           svc.NewRouter(handlers, routerCfg, logger),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("photond listening", "addr", cfg.Server.HTTPAddr, "base_path", cfg.Server.BasePath)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	var health *svc.HealthServer
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			stop()
			_ = httpSrv.Close()
			_ = g.Wait()
			return err
		}
		health = svc.NewHealthServer(db.Store, 15*time.Second, logger)
		g.Go(func() error {
			health.Run(gctx)
			return nil
		})
		g.Go(func() error {
			logger.Info("grpc health listening", "addr", cfg.Server.GRPCAddr)
			return health.GRPC().Serve(lis)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "grace", cfg.Server.GracefulShutdown)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
			_ = httpSrv.Close()
		}
		if health != nil {
			health.GRPC().GracefulStop()
		}
		return nil
	})

	return g.Wait()
}

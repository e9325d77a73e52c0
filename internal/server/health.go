package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// ServiceName is the gRPC health service name reported alongside the overall "" entry.
const ServiceName = "photon.submissions"

// Pinger checks storage liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer publishes store liveness over the standard gRPC health protocol.
type HealthServer struct {
	grpc     *grpc.Server
	health   *health.Server
	db       Pinger
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewHealthServer registers grpc.health.v1 on a new grpc.Server. interval <= 0 defaults to 15s.
func NewHealthServer(db Pinger, interval time.Duration, logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	hs := health.NewServer()
	gs := grpc.NewServer(grpc.UnaryInterceptor(unaryLogger(logger)))
	healthpb.RegisterHealthServer(gs, hs)
	return &HealthServer{
		grpc:     gs,
		health:   hs,
		db:       db,
		interval: interval,
		timeout:  3 * time.Second,
		logger:   logger,
	}
}

// GRPC returns the underlying server for Serve/GracefulStop.
func (s *HealthServer) GRPC() *grpc.Server { return s.grpc }

// Check pings the store once and updates the serving status.
func (s *HealthServer) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	st := healthpb.HealthCheckResponse_SERVING
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Warn("store ping failed", "error", err)
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
	return st
}

// Run refreshes the status until ctx is done, then marks everything NOT_SERVING.
func (s *HealthServer) Run(ctx context.Context) {
	s.Check(ctx)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-t.C:
			s.Check(ctx)
		}
	}
}

func unaryLogger(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		level := slog.LevelDebug
		if code != codes.OK && code != codes.NotFound {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "grpc request",
			"method", info.FullMethod,
			"code", code.String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}

package server

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthServer_Check(t *testing.T) {
	var down bool
	hs := NewHealthServer(pingFunc(func(context.Context) error {
		if down {
			return errors.New("connection refused")
		}
		return nil
	}), 0, nil)

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, hs.Check(context.Background()))
	resp, err := hs.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	down = true
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, hs.Check(context.Background()))
	resp, err = hs.health.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestHealthServer_RunStopsOnCancel(t *testing.T) {
	hs := NewHealthServer(pingFunc(func(context.Context) error { return nil }), 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hs.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	resp, err := hs.health.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

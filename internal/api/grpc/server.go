// Package grpcapi exposes the kiosk over gRPC: the standard health service,
// tracking detector readiness, plus reflection for grpcurl.
package grpcapi

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"expo-kiosk-service/internal/observability"
	"expo-kiosk-service/internal/observability/metrics"
)

// ServiceName is the health service name reported for the kiosk.
const ServiceName = "expo.kiosk.InteractionService"

// NewServer creates a gRPC server with the logging and metrics interceptors.
func NewServer(m *metrics.Metrics) *grpc.Server {
	return grpc.NewServer(
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor(m)),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(m)),
	)
}

// Health reports SERVING for the kiosk service only while ready returns true.
// The overall ("") status is SERVING as soon as the process is up.
type Health struct {
	server *health.Server
	ready  func() bool
}

// Register installs the health and reflection services on g.
func Register(g *grpc.Server, ready func() bool) *Health {
	h := &Health{
		server: health.NewServer(),
		ready:  ready,
	}
	grpc_health_v1.RegisterHealthServer(g, h.server)
	reflection.Register(g)

	h.server.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	h.server.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return h
}

// Sync updates the kiosk service status from ready and reports it.
func (h *Health) Sync() grpc_health_v1.HealthCheckResponse_ServingStatus {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if h.ready == nil || h.ready() {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.server.SetServingStatus(ServiceName, status)
	return status
}

// Watch keeps the health status in step with readiness until ctx is done.
func (h *Health) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	last := h.Sync()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if status := h.Sync(); status != last {
				log.Info().Str("service", ServiceName).Str("status", status.String()).Msg("gRPC health changed")
				last = status
			}
		}
	}
}

// Shutdown marks every service NOT_SERVING.
func (h *Health) Shutdown() {
	h.server.Shutdown()
}

package api

import (
	"context"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"signal-engine/pkg/i18n"
)

// EngineService is the gRPC health service name reported for the engine.
const EngineService = "signal-engine"

// HealthServer exposes the standard gRPC health protocol for orchestrators.
type HealthServer struct {
	grpc   *grpc.Server
	health *health.Server
	log    zerolog.Logger
}

func NewHealthServer(log zerolog.Logger) *HealthServer {
	h := &HealthServer{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
		log:    log.With().Str("component", "grpc-health").Logger(),
	}
	healthpb.RegisterHealthServer(h.grpc, h.health)
	h.health.SetServingStatus(EngineService, healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// SetServing flips both the overall and the engine status.
func (h *HealthServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", st)
	h.health.SetServingStatus(EngineService, st)
}

// Serve blocks until the listener fails or ctx is done.
func (h *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		h.health.Shutdown()
		h.grpc.GracefulStop()
	}()
	h.log.Info().Msgf(i18n.M().HealthListening, lis.Addr().String())
	return h.grpc.Serve(lis)
}

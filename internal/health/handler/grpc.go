// Package handler serves the standard gRPC health protocol backed by readiness probes.
package handler

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger reports whether the store is reachable. store.Store implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PolicyChecker reports whether the role policy engine is usable. *engine.OPAEvaluator implements it.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server implements grpc.health.v1.Health. Check runs the readiness probes for the overall
// service ("") and reports NOT_SERVING when any fails; Watch and named services are served
// by the embedded health.Server.
type Server struct {
	*health.Server
	pinger Pinger
	policy PolicyChecker
	log    *zap.Logger
}

// NewServer returns a health server. Nil probes are skipped.
func NewServer(pinger Pinger, policy PolicyChecker, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{Server: health.NewServer(), pinger: pinger, policy: policy, log: log}
}

// Check returns service health status for Kubernetes, load balancers, and CI.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if req.GetService() != "" {
		return s.Server.Check(ctx, req)
	}
	if s.pinger != nil {
		if err := s.pinger.Ping(ctx); err != nil {
			s.log.Warn("health: store unreachable", zap.Error(err))
			return notServing(), nil
		}
	}
	if s.policy != nil {
		if err := s.policy.HealthCheck(ctx); err != nil {
			s.log.Warn("health: policy engine unhealthy", zap.Error(err))
			return notServing(), nil
		}
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

func notServing() *healthpb.HealthCheckResponse {
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}
}

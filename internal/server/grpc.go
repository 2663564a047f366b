// Package server assembles the gRPC server: interceptors, OpenTelemetry stats, and registered services.
package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthhandler "orgauth/backend/internal/health/handler"
	"orgauth/backend/internal/server/interceptors"
)

// PublicMethods run without credentials.
var PublicMethods = map[string]bool{
	healthpb.Health_Check_FullMethodName: true,
	healthpb.Health_Watch_FullMethodName: true,
}

// Deps holds the collaborators of the gRPC server.
type Deps struct {
	// Tokens validates Bearer access tokens. If nil, only API tokens authenticate.
	Tokens interceptors.AccessValidator
	// APITokens validates x-api-key tokens. If nil, only Bearer tokens authenticate.
	APITokens interceptors.APITokenVerifier
	// Attacher resolves the caller's active organization (usually *tenancy.Service).
	Attacher interceptors.Attacher
	// Health serves grpc.health.v1.Health. If nil, a probe-less health server is registered.
	Health *healthhandler.Server
	Log    *zap.Logger
	// Reflection registers the reflection service (development only).
	Reflection bool
}

// NewGRPCServer returns a server with the error and auth interceptors chained in that order, the
// otelgrpc stats handler, and every service registered.
func NewGRPCServer(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.ErrorsUnary(deps.Log),
			interceptors.AuthUnary(deps.Tokens, deps.APITokens, deps.Attacher, PublicMethods),
		),
	}, opts...)
	s := grpc.NewServer(opts...)
	RegisterServices(s, deps)
	if deps.Reflection {
		reflection.Register(s)
	}
	return s
}

// RegisterServices registers all gRPC services with the given registrar.
//
// Proto → handler mapping:
//   - grpc.health.v1.Health → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	h := deps.Health
	if h == nil {
		h = healthhandler.NewServer(nil, nil, deps.Log)
	}
	healthpb.RegisterHealthServer(s, h)
}

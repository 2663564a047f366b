package server

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	healthhandler "orgauth/backend/internal/health/handler"
	"orgauth/backend/internal/requestctx"
)

// mockServiceRegistrar implements grpc.ServiceRegistrar for testing.
type mockServiceRegistrar struct {
	services []string
}

func (m *mockServiceRegistrar) RegisterService(desc *grpc.ServiceDesc, impl interface{}) {
	m.services = append(m.services, desc.ServiceName)
}

type nopAttacher struct{}

func (nopAttacher) Authenticate(ctx context.Context, userID string, method requestctx.AuthMethod, _ string) (context.Context, error) {
	return requestctx.WithIdentity(ctx, userID, method), nil
}

func TestRegisterServices_NilDependencies(t *testing.T) {
	reg := &mockServiceRegistrar{}
	RegisterServices(reg, Deps{})
	if len(reg.services) != 1 || reg.services[0] != healthpb.Health_ServiceDesc.ServiceName {
		t.Errorf("services = %v, want [%s]", reg.services, healthpb.Health_ServiceDesc.ServiceName)
	}
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return context.DeadlineExceeded }

func TestNewGRPCServer_HealthIsPublic(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer(Deps{
		Attacher: nopAttacher{},
		Health:   healthhandler.NewServer(downPinger{}, nil, nil),
	})
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check without credentials: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %v, want NOT_SERVING while the store is down", resp.GetStatus())
	}
}

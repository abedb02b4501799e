package grpcapi

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"ai-speech-session-service/internal/events"
)

func TestServer_SessionStatusFollowsBus(t *testing.T) {
	srv := NewServer(zerolog.Nop(), nil)
	bus := events.NewBus(zerolog.Nop(), nil)
	srv.Attach(bus)
	ctx := context.Background()

	steps := []struct {
		name    string
		publish func()
		want    grpc_health_v1.HealthCheckResponse_ServingStatus
	}{
		{"idle", func() {}, grpc_health_v1.HealthCheckResponse_NOT_SERVING},
		{"started", func() { bus.PublishStarted("s", "Plain") }, grpc_health_v1.HealthCheckResponse_SERVING},
		{"error keeps serving", func() { bus.PublishError("s", "Plain", context.Canceled) }, grpc_health_v1.HealthCheckResponse_SERVING},
		{"completed", func() { bus.PublishCompleted("s", "Plain", nil) }, grpc_health_v1.HealthCheckResponse_NOT_SERVING},
	}
	for _, st := range steps {
		st.publish()
		got, err := srv.Check(ctx, SessionService)
		if err != nil {
			t.Fatalf("%s: Check: %v", st.name, err)
		}
		if got != st.want {
			t.Errorf("%s: status = %v, want %v", st.name, got, st.want)
		}
	}

	if got, _ := srv.Check(ctx, ""); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("overall status = %v, want SERVING", got)
	}
}

func TestServer_HealthOverNetwork(t *testing.T) {
	srv := NewServer(zerolog.Nop(), nil)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.Status)
	}
}

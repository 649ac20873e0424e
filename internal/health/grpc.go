package health

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the service reported by the gRPC health endpoint.
const ServiceName = "portalgate.Pipeline"

// StatusSource produces the health report the gRPC status follows.
type StatusSource interface {
	CheckHealth(ctx context.Context) Report
}

// GRPCServer serves the standard grpc.health.v1 service. With a source it
// reports NOT_SERVING while the pipeline is critical.
type GRPCServer struct {
	port   int
	server *grpc.Server
	health *grpchealth.Server
	source StatusSource
}

// NewGRPCServer creates a gRPC health server. Both the overall status and
// ServiceName start as NOT_SERVING.
func NewGRPCServer(port int) *GRPCServer {
	g := &GRPCServer{
		port:   port,
		server: grpc.NewServer(),
		health: grpchealth.NewServer(),
	}
	healthpb.RegisterHealthServer(g.server, g.health)
	g.SetServing(false)
	return g
}

// SetServing updates the reported status.
func (g *GRPCServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(ServiceName, status)
}

// Follow makes the reported status track src. Call it before Serve.
func (g *GRPCServer) Follow(src StatusSource) {
	g.source = src
}

// Run refreshes the status from the source every interval until ctx is
// cancelled.
func (g *GRPCServer) Run(ctx context.Context, interval time.Duration) {
	if g.source == nil || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.refresh(ctx)
		}
	}
}

func (g *GRPCServer) refresh(ctx context.Context) {
	report := g.source.CheckHealth(ctx)
	g.SetServing(report.Status != StatusCritical)
}

// Start listens on the configured port and serves until Stop.
func (g *GRPCServer) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", g.port))
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port %d: %w", g.port, err)
	}
	return g.Serve(lis)
}

// Serve sets the initial status and serves on lis. Without a source the
// service is SERVING for as long as it runs.
func (g *GRPCServer) Serve(lis net.Listener) error {
	if g.source != nil {
		g.refresh(context.Background())
	} else {
		g.SetServing(true)
	}
	return g.server.Serve(lis)
}

// Stop reports NOT_SERVING to watchers and drains in-flight calls.
func (g *GRPCServer) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}

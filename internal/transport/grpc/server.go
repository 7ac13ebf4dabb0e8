package grpc

import (
	"net"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server serves the standard grpc.health.v1 service.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	service    string
	log        *zap.Logger
}

func New(service string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)

	s := &Server{
		grpcServer: grpcServer,
		health:     hs,
		service:    service,
		log:        log,
	}
	s.SetServing(false)
	return s
}

// SetServing flips both the overall and the per-service health status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.service, status)
}

func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("gRPC listening", zap.String("addr", lis.Addr().String()))
	return s.grpcServer.Serve(lis)
}

// Start listens on addr and serves until Stop.
func (s *Server) Start(addr string) error {
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

func (s *Server) Stop() {
	s.log.Info("shutting down gRPC...")
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

// Package grpcserver exposes the standard gRPC health service for the OCR engine.
package grpcserver

import (
	"context"
	"log/slog"
	"net"
	"runtime/debug"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	apperrors "github.com/GriffinCanCode/resource-overlay/internal/errors"
	"github.com/GriffinCanCode/resource-overlay/internal/trace"
)

// ServiceName is the health service name reflecting engine availability.
const ServiceName = "ocr"

// Server is a gRPC server carrying health and reflection.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// New creates a server. The ocr service starts NOT_SERVING.
func New() *Server {
	s := &Server{
		grpc: grpc.NewServer(grpc.ChainUnaryInterceptor(
			trace.UnaryServerInterceptor(),
			recoverInterceptor,
		)),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// SetServing updates the ocr service status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

// Serve blocks serving lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	slog.Info("grpc server listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Stop drains in-flight calls, forcing a stop when ctx ends first.
func (s *Server) Stop(ctx context.Context) {
	s.health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
	}
}

func recoverInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			trace.Logger(ctx).Error("grpc handler panic", "method", info.FullMethod, "panic", r, "stack", string(debug.Stack()))
			err = apperrors.Newf(apperrors.Internal, "panic in %s", info.FullMethod).GRPCStatus().Err()
		}
	}()
	return handler(ctx, req)
}

// Package grpcclient probes the service's gRPC health endpoint.
package grpcclient

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	apperrors "github.com/GriffinCanCode/resource-overlay/internal/errors"
	"github.com/GriffinCanCode/resource-overlay/internal/trace"
)

// Client wraps a health client over one connection.
type Client struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// New creates a client for addr. The connection is established lazily.
func New(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(trace.UnaryClientInterceptor()),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.InvalidArgument, "grpc target %q", addr)
	}
	return &Client{conn: conn, health: healthpb.NewHealthClient(conn)}, nil
}

// Close closes the gRPC connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Check reports whether service is SERVING. An empty service asks about the process.
func (c *Client) Check(ctx context.Context, service string) (bool, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, HealthCheckTimeout)
		defer cancel()
	}
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return false, apperrors.FromGRPCError(err)
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

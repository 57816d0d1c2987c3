package trace

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// UnaryServerInterceptor continues the trace from incoming metadata and logs each call.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx = extractMetadata(ctx)
		ctx, span := StartSpan(ctx, info.FullMethod)
		resp, err := handler(ctx, req)
		span.End()

		log := Logger(ctx)
		if err != nil {
			log.Warn("grpc call failed", "span", span, "error", err)
		} else {
			log.Debug("grpc call", "span", span)
		}
		return resp, err
	}
}

func extractMetadata(ctx context.Context) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return WithContext(ctx, New())
	}
	return WithContext(ctx, Continue(first(md, TraceIDKey), first(md, SpanIDKey)))
}

func first(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

// UnaryClientInterceptor injects trace context into outgoing gRPC calls.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(injectMetadata(ctx), method, req, reply, cc, opts...)
	}
}

// injectMetadata adds trace context to outgoing gRPC metadata.
func injectMetadata(ctx context.Context) context.Context {
	ctx, tc := EnsureContext(ctx)
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		md = metadata.New(nil)
	} else {
		md = md.Copy()
	}

	md.Set(TraceIDKey, tc.TraceID)
	md.Set(SpanIDKey, tc.SpanID)
	if tc.ParentSpanID != "" {
		md.Set(ParentSpanIDKey, tc.ParentSpanID)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

package transport

import (
	"context"
	"time"

	"github.com/arcadeflow/agentserver/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// tracingUnaryInterceptor returns a gRPC unary server interceptor that spans
// every call on tracer. Metrics are deliberately not recorded here: the
// canonical Metrics struct carries no gRPC-specific vectors, and the
// AgentOrchestrator service's traffic is already covered by the HTTP
// surface's metrics for the same underlying handler calls.
func tracingUnaryInterceptor(tracer *observability.Tracer) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		ctx, span := tracer.Start(ctx, info.FullMethod,
			trace.WithAttributes(
				attribute.String("rpc.system", "grpc"),
				attribute.String("rpc.service", extractServiceName(info.FullMethod)),
				attribute.String("rpc.method", extractMethodName(info.FullMethod)),
			),
		)
		defer span.End()

		resp, err := handler(ctx, req)
		duration := time.Since(start)

		grpcStatus, _ := status.FromError(err)
		span.SetAttributes(
			attribute.String("rpc.grpc.status_code", grpcStatus.Code().String()),
			attribute.Int64("rpc.duration_ms", duration.Milliseconds()),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, grpcStatus.Message())
		} else {
			span.SetStatus(codes.Ok, "success")
		}

		return resp, err
	}
}

// tracingStreamInterceptor is tracingUnaryInterceptor's counterpart for the
// AgentOrchestrator service's server-streaming methods.
func tracingStreamInterceptor(tracer *observability.Tracer) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()

		ctx, span := tracer.Start(ss.Context(), info.FullMethod,
			trace.WithAttributes(
				attribute.String("rpc.system", "grpc"),
				attribute.String("rpc.service", extractServiceName(info.FullMethod)),
				attribute.String("rpc.method", extractMethodName(info.FullMethod)),
				attribute.Bool("rpc.is_server_stream", info.IsServerStream),
			),
		)
		defer span.End()

		err := handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
		duration := time.Since(start)

		grpcStatus, _ := status.FromError(err)
		span.SetAttributes(
			attribute.String("rpc.grpc.status_code", grpcStatus.Code().String()),
			attribute.Int64("rpc.duration_ms", duration.Milliseconds()),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, grpcStatus.Message())
		} else {
			span.SetStatus(codes.Ok, "success")
		}

		return err
	}
}

// wrappedServerStream wraps grpc.ServerStream to inject a context carrying
// the span started by tracingStreamInterceptor.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context { return w.ctx }

// extractServiceName extracts "agentserver.AgentOrchestrator" out of
// "/agentserver.AgentOrchestrator/Invoke".
func extractServiceName(fullMethod string) string {
	if len(fullMethod) == 0 {
		return "unknown"
	}
	if fullMethod[0] == '/' {
		fullMethod = fullMethod[1:]
	}
	for i := 0; i < len(fullMethod); i++ {
		if fullMethod[i] == '/' {
			return fullMethod[:i]
		}
	}
	return fullMethod
}

// extractMethodName extracts "Invoke" out of "/agentserver.AgentOrchestrator/Invoke".
func extractMethodName(fullMethod string) string {
	if len(fullMethod) == 0 {
		return "unknown"
	}
	for i := len(fullMethod) - 1; i >= 0; i-- {
		if fullMethod[i] == '/' {
			return fullMethod[i+1:]
		}
	}
	return fullMethod
}

package auth

import (
	"context"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// HTTPMiddleware authenticates every request via authorizer, storing the
// resulting user_id in the request context, grounded on the teacher's
// JWTValidator.HTTPMiddleware shape but generalized to any Authorizer.
func HTTPMiddleware(authorizer Authorizer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, `{"status":"error","message":"missing Authorization header"}`, http.StatusUnauthorized)
			return
		}

		userID, err := authorizer.AuthorizeRequest(r.Context(), authHeader)
		if err != nil {
			http.Error(w, `{"status":"error","message":"unauthorized"}`, http.StatusUnauthorized)
			return
		}

		ctx := ContextWithUserID(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UnaryServerInterceptor authenticates gRPC unary calls the same way, per
// the teacher's pkg/auth/middleware.go gRPC interceptor pair.
func UnaryServerInterceptor(authorizer Authorizer) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		userID, err := authorizeFromMetadata(ctx, authorizer)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(ContextWithUserID(ctx, userID), req)
	}
}

// StreamServerInterceptor authenticates gRPC streaming calls.
func StreamServerInterceptor(authorizer Authorizer) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		userID, err := authorizeFromMetadata(ss.Context(), authorizer)
		if err != nil {
			return status.Error(codes.Unauthenticated, err.Error())
		}
		wrapped := &authenticatedStream{ServerStream: ss, ctx: ContextWithUserID(ss.Context(), userID)}
		return handler(srv, wrapped)
	}
}

func authorizeFromMetadata(ctx context.Context, authorizer Authorizer) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", ErrNotAuthenticated
	}
	headers := md.Get("authorization")
	if len(headers) == 0 {
		return "", ErrNotAuthenticated
	}
	return authorizer.AuthorizeRequest(ctx, headers[0])
}

// authenticatedStream wraps grpc.ServerStream to carry the authenticated context.
type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context { return s.ctx }

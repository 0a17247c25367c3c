package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestHTTPMiddleware_MissingHeader(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler should not be called")
	})
	mw := HTTPMiddleware(DummyAuthorizer{}, next)

	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHTTPMiddleware_DummyAuthorizerSetsUserID(t *testing.T) {
	var gotUserID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := UserIDFromContext(r.Context())
		require.True(t, ok)
		gotUserID = id
		w.WriteHeader(http.StatusOK)
	})
	mw := HTTPMiddleware(DummyAuthorizer{}, next)

	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", nil)
	req.Header.Set("Authorization", "Bearer user-42")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-42", gotUserID)
}

func TestHTTPMiddleware_JWTAuthorizer(t *testing.T) {
	h := setupTestAuthorizer(t)
	token := createTestJWT(t, h.PrivateKey, h.Issuer, h.Audience, "user-jwt", nil)

	var gotUserID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := UserIDFromContext(r.Context())
		gotUserID = id
		w.WriteHeader(http.StatusOK)
	})
	mw := HTTPMiddleware(h.Authorizer, next)

	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-jwt", gotUserID)
}

func TestUnaryServerInterceptor_MissingMetadata(t *testing.T) {
	interceptor := UnaryServerInterceptor(DummyAuthorizer{})
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		t.Fatal("handler should not be called")
		return nil, nil
	}

	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{}, handler)
	require.Error(t, err)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestUnaryServerInterceptor_AuthenticatesAndForwards(t *testing.T) {
	interceptor := UnaryServerInterceptor(DummyAuthorizer{})
	var gotUserID string
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		id, _ := UserIDFromContext(ctx)
		gotUserID = id
		return "ok", nil
	}

	md := metadata.Pairs("authorization", "Bearer user-grpc")
	ctx := metadata.NewIncomingContext(context.Background(), md)

	resp, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{}, handler)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, "user-grpc", gotUserID)
}

type fakeServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f *fakeServerStream) Context() context.Context { return f.ctx }

func TestStreamServerInterceptor_AuthenticatesAndWraps(t *testing.T) {
	interceptor := StreamServerInterceptor(DummyAuthorizer{})
	md := metadata.Pairs("authorization", "Bearer user-stream")
	ctx := metadata.NewIncomingContext(context.Background(), md)
	stream := &fakeServerStream{ctx: ctx}

	var gotUserID string
	handler := func(srv interface{}, ss grpc.ServerStream) error {
		id, _ := UserIDFromContext(ss.Context())
		gotUserID = id
		return nil
	}

	err := interceptor(nil, stream, &grpc.StreamServerInfo{}, handler)
	require.NoError(t, err)
	assert.Equal(t, "user-stream", gotUserID)
}

func TestStreamServerInterceptor_RejectsMissingMetadata(t *testing.T) {
	interceptor := StreamServerInterceptor(DummyAuthorizer{})
	stream := &fakeServerStream{ctx: context.Background()}

	err := interceptor(nil, stream, &grpc.StreamServerInfo{}, func(srv interface{}, ss grpc.ServerStream) error {
		t.Fatal("handler should not be called")
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

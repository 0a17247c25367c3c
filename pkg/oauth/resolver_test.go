package oauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arcadeflow/agentserver/internal/keylock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct {
	refreshCalls int
	refreshFunc  func(ctx context.Context, authServer string, prev *TokenData) (*TokenData, error)
}

func (f *fakeRefresher) Refresh(ctx context.Context, authServer string, prev *TokenData) (*TokenData, error) {
	f.refreshCalls++
	return f.refreshFunc(ctx, authServer, prev)
}

func (f *fakeRefresher) AuthorizationURL(authServer, flowID string, scopes []string, resourceURI string) string {
	return "https://" + authServer + "/authorize?state=" + flowID
}

func cfg() ServerAuthConfig {
	return ServerAuthConfig{ServerName: "github", AuthServer: "https://github.com/login/oauth", Scopes: []string{"repo"}}
}

func TestResolver_ReturnsStoredTokenWhenUsable(t *testing.T) {
	storage := NewInMemoryStorage()
	require.NoError(t, storage.Store(context.Background(), "alice", CompositeKey(cfg().AuthServer, cfg().Scopes), &TokenData{
		AccessToken: "tok-123",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))

	r := NewResolver(storage, &fakeRefresher{}, &keylock.Map[string]{})
	header, err := r.AuthHeader(context.Background(), "alice", cfg())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", header)
}

func TestResolver_RefreshesExpiredToken(t *testing.T) {
	storage := NewInMemoryStorage()
	key := CompositeKey(cfg().AuthServer, cfg().Scopes)
	require.NoError(t, storage.Store(context.Background(), "alice", key, &TokenData{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}))

	refresher := &fakeRefresher{refreshFunc: func(ctx context.Context, authServer string, prev *TokenData) (*TokenData, error) {
		return &TokenData{AccessToken: "fresh", RefreshToken: "refresh-2", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}}

	r := NewResolver(storage, refresher, &keylock.Map[string]{})
	header, err := r.AuthHeader(context.Background(), "alice", cfg())
	require.NoError(t, err)
	assert.Equal(t, "Bearer fresh", header)
	assert.Equal(t, 1, refresher.refreshCalls)

	stored, err := storage.Retrieve(context.Background(), "alice", key)
	require.NoError(t, err)
	assert.Equal(t, "fresh", stored.AccessToken)
}

func TestResolver_RaisesAuthRequiredWhenAbsent(t *testing.T) {
	r := NewResolver(NewInMemoryStorage(), &fakeRefresher{}, &keylock.Map[string]{})
	_, err := r.AuthHeader(context.Background(), "alice", cfg())

	require.Error(t, err)
	var authRequired *AuthRequired
	require.True(t, errors.As(err, &authRequired))
	assert.Equal(t, "github", authRequired.ServerName)
}

func TestResolver_DropsTokenWhenRefreshFails(t *testing.T) {
	storage := NewInMemoryStorage()
	key := CompositeKey(cfg().AuthServer, cfg().Scopes)
	require.NoError(t, storage.Store(context.Background(), "alice", key, &TokenData{
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}))

	refresher := &fakeRefresher{refreshFunc: func(ctx context.Context, authServer string, prev *TokenData) (*TokenData, error) {
		return nil, errors.New("refresh rejected")
	}}

	r := NewResolver(storage, refresher, &keylock.Map[string]{})
	_, err := r.AuthHeader(context.Background(), "alice", cfg())

	var authRequired *AuthRequired
	require.True(t, errors.As(err, &authRequired))

	_, getErr := storage.Retrieve(context.Background(), "alice", key)
	assert.ErrorIs(t, getErr, ErrNotFound, "failed refresh should drop the stale token")
}

func TestResolver_RaisesAuthRequiredWhenNoRefreshToken(t *testing.T) {
	storage := NewInMemoryStorage()
	key := CompositeKey(cfg().AuthServer, cfg().Scopes)
	require.NoError(t, storage.Store(context.Background(), "alice", key, &TokenData{
		AccessToken: "stale",
		ExpiresAt:   time.Now().Add(-time.Minute),
	}))

	r := NewResolver(storage, &fakeRefresher{}, &keylock.Map[string]{})
	_, err := r.AuthHeader(context.Background(), "alice", cfg())

	var authRequired *AuthRequired
	require.True(t, errors.As(err, &authRequired))
}

package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "exchanged-access-token",
			"refresh_token": "exchanged-refresh-token",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
}

func TestBroker_AuthorizationURL_IncludesPKCEChallenge(t *testing.T) {
	server := newTestTokenServer(t)
	defer server.Close()

	b := NewBroker(map[string]ServerCredentials{
		"github": {
			ClientID:    "client-1",
			AuthURL:     "https://github.example.com/authorize",
			TokenURL:    server.URL,
			RedirectURL: "https://agentserver.example.com/oauth/callback",
		},
	}, nil)

	authURL := b.AuthorizationURL("github", "flow-1", []string{"repo"}, "")
	require.NotEmpty(t, authURL)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, "flow-1", q.Get("state"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
}

func TestBroker_AuthorizationURL_BindsResourceWhenResourceAware(t *testing.T) {
	server := newTestTokenServer(t)
	defer server.Close()

	b := NewBroker(map[string]ServerCredentials{
		"github": {ClientID: "c", AuthURL: "https://github.example.com/authorize", TokenURL: server.URL},
	}, map[string]bool{"github": true})

	authURL := b.AuthorizationURL("github", "flow-2", []string{"repo"}, "https://mcp.example.com/server")
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "https://mcp.example.com/server", parsed.Query().Get("resource"))
}

func TestBroker_ExchangeCode_ConsumesVerifierOnce(t *testing.T) {
	server := newTestTokenServer(t)
	defer server.Close()

	b := NewBroker(map[string]ServerCredentials{
		"github": {ClientID: "c", AuthURL: "https://github.example.com/authorize", TokenURL: server.URL},
	}, nil)

	b.AuthorizationURL("github", "flow-3", []string{"repo"}, "")

	tok, err := b.ExchangeCode(context.Background(), "github", "flow-3", "auth-code", []string{"repo"}, "")
	require.NoError(t, err)
	assert.Equal(t, "exchanged-access-token", tok.AccessToken)

	_, err = b.ExchangeCode(context.Background(), "github", "flow-3", "auth-code", []string{"repo"}, "")
	require.Error(t, err, "flow_id should be single-use")
}

func TestBroker_Refresh_UsesRefreshToken(t *testing.T) {
	server := newTestTokenServer(t)
	defer server.Close()

	b := NewBroker(map[string]ServerCredentials{
		"github": {ClientID: "c", TokenURL: server.URL},
	}, nil)

	tok, err := b.Refresh(context.Background(), "github", &TokenData{RefreshToken: "old-refresh", Scopes: []string{"repo"}})
	require.NoError(t, err)
	assert.Equal(t, "exchanged-access-token", tok.AccessToken)
}

func TestBroker_Refresh_RequiresRefreshToken(t *testing.T) {
	b := NewBroker(map[string]ServerCredentials{"github": {}}, nil)
	_, err := b.Refresh(context.Background(), "github", &TokenData{})
	require.Error(t, err)
}

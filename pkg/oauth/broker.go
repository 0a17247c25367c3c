package oauth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// ServerCredentials is the static OAuth2 client registration for one
// named authorization server, sourced from agent configuration.
type ServerCredentials struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
}

// Broker implements Refresher against real OAuth 2.1 authorization
// servers using golang.org/x/oauth2's authorization-code+PKCE+refresh
// mechanics. No teacher file implements this flow directly; the shape
// here follows golang.org/x/oauth2's own Config/Exchange/TokenSource
// idioms.
type Broker struct {
	credentials         map[string]ServerCredentials
	resourceAwareServer map[string]bool // auth_server -> MCP protocol >= 2025-06-18
}

var _ Refresher = (*Broker)(nil)

// NewBroker builds a Broker from the agent configuration's per-server
// OAuth2 client registrations.
func NewBroker(credentials map[string]ServerCredentials, resourceAware map[string]bool) *Broker {
	return &Broker{credentials: credentials, resourceAwareServer: resourceAware}
}

func (b *Broker) config(authServer string, scopes []string) (oauth2.Config, error) {
	creds, ok := b.credentials[authServer]
	if !ok {
		return oauth2.Config{}, fmt.Errorf("oauth: no client registration for auth_server %q", authServer)
	}
	return oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURL,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  creds.AuthURL,
			TokenURL: creds.TokenURL,
		},
	}, nil
}

// AuthorizationURL builds the OAuth 2.1 authorization URL with a PKCE
// challenge, encoding flowID as the state parameter so the verifier
// endpoint can correlate the callback. resourceURI is bound per spec
// §4.7.2 ("Resource binding") when the MCP server's protocol version
// requires it.
func (b *Broker) AuthorizationURL(authServer, flowID string, scopes []string, resourceURI string) string {
	cfg, err := b.config(authServer, scopes)
	if err != nil {
		return ""
	}
	verifier := oauth2.GenerateVerifier()
	pkceVerifiers.store(flowID, verifier)

	opts := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}
	if b.resourceAwareServer[authServer] && resourceURI != "" {
		opts = append(opts, oauth2.SetAuthURLParam("resource", resourceURI))
	}
	return cfg.AuthCodeURL(flowID, opts...)
}

// ExchangeCode completes an authorization-code flow for the verifier
// endpoint (spec §4.7.2's "Custom verifier endpoint"): it looks up the
// PKCE verifier stashed at AuthorizationURL time, exchanges the code,
// and returns the resulting TokenData to be stored under the composite
// key.
func (b *Broker) ExchangeCode(ctx context.Context, authServer, flowID, code string, scopes []string, resourceURI string) (*TokenData, error) {
	cfg, err := b.config(authServer, scopes)
	if err != nil {
		return nil, err
	}
	verifier, ok := pkceVerifiers.take(flowID)
	if !ok {
		return nil, fmt.Errorf("oauth: unknown or expired flow_id %q", flowID)
	}

	opts := []oauth2.AuthCodeOption{oauth2.VerifierOption(verifier)}
	if b.resourceAwareServer[authServer] && resourceURI != "" {
		opts = append(opts, oauth2.SetAuthURLParam("resource", resourceURI))
	}

	tok, err := cfg.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("oauth: code exchange failed: %w", err)
	}
	return fromOAuth2Token(tok, scopes), nil
}

// Refresh exchanges a refresh_token for a new access token, per spec
// §4.7.2 step 3. A single attempt only; no backoff (spec §9 Open
// Questions notes the source shows no retry logic).
func (b *Broker) Refresh(ctx context.Context, authServer string, prev *TokenData) (*TokenData, error) {
	if prev == nil || prev.RefreshToken == "" {
		return nil, fmt.Errorf("oauth: no refresh_token available")
	}
	cfg, err := b.config(authServer, prev.Scopes)
	if err != nil {
		return nil, err
	}
	source := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: prev.RefreshToken})
	tok, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("oauth: refresh failed: %w", err)
	}
	return fromOAuth2Token(tok, prev.Scopes), nil
}

func fromOAuth2Token(tok *oauth2.Token, scopes []string) *TokenData {
	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(time.Hour)
	}
	refreshToken := tok.RefreshToken
	return &TokenData{
		AccessToken:  tok.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		Scopes:       scopes,
	}
}

package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

func generateRSAKeyPair(t testing.TB) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key pair: %v", err)
	}
	return privateKey, &privateKey.PublicKey
}

func createJWKS(t testing.TB, publicKey *rsa.PublicKey) jwk.Set {
	t.Helper()
	key, err := jwk.FromRaw(publicKey)
	if err != nil {
		t.Fatalf("failed to build jwk: %v", err)
	}
	if err := key.Set(jwk.KeyIDKey, "test-key-id"); err != nil {
		t.Fatalf("failed to set kid: %v", err)
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		t.Fatalf("failed to set alg: %v", err)
	}

	keyset := jwk.NewSet()
	if err := keyset.AddKey(key); err != nil {
		t.Fatalf("failed to add key to set: %v", err)
	}
	return keyset
}

func createTestJWT(t testing.TB, privateKey *rsa.PrivateKey, issuer, audience, subject string, claims map[string]any) string {
	t.Helper()
	token := jwt.New()
	mustSet := func(key string, v any) {
		if err := token.Set(key, v); err != nil {
			t.Fatalf("failed to set claim %s: %v", key, err)
		}
	}
	mustSet(jwt.IssuerKey, issuer)
	mustSet(jwt.AudienceKey, audience)
	if subject != "" {
		mustSet(jwt.SubjectKey, subject)
	}
	mustSet(jwt.IssuedAtKey, time.Now())
	mustSet(jwt.ExpirationKey, time.Now().Add(time.Hour))
	for k, v := range claims {
		mustSet(k, v)
	}

	key, err := jwk.FromRaw(privateKey)
	if err != nil {
		t.Fatalf("failed to build signing key: %v", err)
	}
	if err := key.Set(jwk.KeyIDKey, "test-key-id"); err != nil {
		t.Fatalf("failed to set kid: %v", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, key))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return string(signed)
}

// testHarness wires a JWKS httptest server, a matching JWTAuthorizer, and
// the private key needed to mint tokens for it.
type testHarness struct {
	Authorizer *JWTAuthorizer
	PrivateKey *rsa.PrivateKey
	Issuer     string
	Audience   string
}

func setupTestAuthorizer(t testing.TB) *testHarness {
	t.Helper()
	privateKey, publicKey := generateRSAKeyPair(t)
	keyset := createJWKS(t, publicKey)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/jwks.json" {
			http.NotFound(w, r)
			return
		}
		body, err := json.Marshal(keyset)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	t.Cleanup(server.Close)

	issuer := "https://test-issuer.example.com"
	audience := "agentserver-test"

	a, err := NewJWTAuthorizer(context.Background(), JWTAuthorizerConfig{
		JWKSURL:  server.URL + "/.well-known/jwks.json",
		Issuer:   issuer,
		Audience: audience,
	})
	if err != nil {
		t.Fatalf("failed to create authorizer: %v", err)
	}

	return &testHarness{Authorizer: a, PrivateKey: privateKey, Issuer: issuer, Audience: audience}
}

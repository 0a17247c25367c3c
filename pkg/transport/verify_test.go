package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arcadeflow/agentserver/internal/keylock"
	"github.com/arcadeflow/agentserver/pkg/auth"
	"github.com/arcadeflow/agentserver/pkg/catalog"
	"github.com/arcadeflow/agentserver/pkg/mcpregistry"
	"github.com/arcadeflow/agentserver/pkg/oauth"
	"github.com/arcadeflow/agentserver/pkg/session"
	"github.com/stretchr/testify/assert"
)

func newTestVerifyDeps() verifyDeps {
	cache := session.NewCache()
	cat := catalog.New()
	storage := oauth.NewInMemoryStorage()
	resolver := oauth.NewResolver(storage, fakeRefresher{}, &keylock.Map[string]{})
	registry := mcpregistry.NewRegistry(cache, cat, resolver)
	return verifyDeps{
		authorizer: auth.DummyAuthorizer{},
		broker:     oauth.NewBroker(nil, nil),
		storage:    storage,
		registry:   registry,
	}
}

func TestVerifyHandler_MissingParams(t *testing.T) {
	deps := newTestVerifyDeps()
	req := httptest.NewRequest(http.MethodPost, "/auth/arcade/verify", nil)
	req.Header.Set("Authorization", "Bearer alice")
	rec := httptest.NewRecorder()

	newVerifyHandler(deps)(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyHandler_Unauthenticated(t *testing.T) {
	deps := newTestVerifyDeps()
	req := httptest.NewRequest(http.MethodPost, "/auth/arcade/verify?flow_id=f1&code=abc", nil)
	rec := httptest.NewRecorder()

	newVerifyHandler(deps)(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifyHandler_UnknownFlow(t *testing.T) {
	deps := newTestVerifyDeps()
	req := httptest.NewRequest(http.MethodPost, "/auth/arcade/verify?flow_id=unknown-flow&code=abc", nil)
	req.Header.Set("Authorization", "Bearer alice")
	rec := httptest.NewRecorder()

	newVerifyHandler(deps)(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyHandler_UpstreamAuthError(t *testing.T) {
	deps := newTestVerifyDeps()
	req := httptest.NewRequest(http.MethodPost, "/auth/arcade/verify?error=access_denied", nil)
	rec := httptest.NewRecorder()

	newVerifyHandler(deps)(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

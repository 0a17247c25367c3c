package transport

import (
	"fmt"
	"html"
	"net/http"

	"github.com/arcadeflow/agentserver/pkg/auth"
	"github.com/arcadeflow/agentserver/pkg/mcpregistry"
	"github.com/arcadeflow/agentserver/pkg/oauth"
)

// verifyDeps bundles what the OAuth callback consumer (spec §4.7.2's
// "Custom verifier endpoint") needs beyond a flow_id: an authorizer to
// re-identify the caller, the same Broker that minted the AuthorizationURL,
// where to persist the resulting token, and the registry whose discovery
// cache must be invalidated once the token lands.
type verifyDeps struct {
	authorizer auth.Authorizer
	broker     *oauth.Broker
	storage    oauth.Storage
	registry   *mcpregistry.Registry
}

const verifyPageTemplate = `<!DOCTYPE html>
<html><head><title>%s</title></head>
<body><h1>%s</h1><p>%s</p></body></html>`

func verifyPage(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, verifyPageTemplate, html.EscapeString(title), html.EscapeString(title), html.EscapeString(message))
}

// newVerifyHandler implements the callback a downstream authorization
// server redirects the user's browser back to once they grant consent.
// Unlike the agent request surface, this endpoint is process-wide rather
// than per-agent mount, since a flow_id alone identifies the originating
// user/session/server (spec §4.7.2's PendingFlow).
func newVerifyHandler(deps verifyDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		flowID := q.Get("flow_id")
		code := q.Get("code")

		if authErr := q.Get("error"); authErr != "" {
			verifyPage(w, http.StatusBadRequest, "Authorization failed", authErr)
			return
		}
		if flowID == "" || code == "" {
			verifyPage(w, http.StatusBadRequest, "Authorization failed", "missing flow_id or code")
			return
		}

		if _, err := deps.authorizer.AuthorizeRequest(r.Context(), r.Header.Get("Authorization")); err != nil {
			verifyPage(w, http.StatusUnauthorized, "Authorization failed", "not authenticated")
			return
		}

		flow, ok := oauth.TakeFlow(flowID)
		if !ok {
			verifyPage(w, http.StatusNotFound, "Authorization failed", "unknown or already-completed flow")
			return
		}

		token, err := deps.broker.ExchangeCode(r.Context(), flow.AuthServer, flowID, code, flow.Scopes, flow.ResourceURI)
		if err != nil {
			verifyPage(w, http.StatusBadGateway, "Authorization failed", "token exchange failed")
			return
		}

		key := oauth.CompositeKey(flow.AuthServer, flow.Scopes)
		if err := deps.storage.Store(r.Context(), flow.UserID, key, token); err != nil {
			verifyPage(w, http.StatusInternalServerError, "Authorization failed", "failed to persist token")
			return
		}

		deps.registry.ForceRediscover(flow.UserID, flow.SessionID)

		verifyPage(w, http.StatusOK, "Authorization complete",
			fmt.Sprintf("%s is now authorized. You may close this window and retry your request.", flow.ServerName))
	}
}

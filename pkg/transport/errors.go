package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/arcadeflow/agentserver/pkg/handler"
)

// statusForKind maps a handler.Kind to its HTTP status code (spec §7: the
// mapping lives at the transport boundary, never derived ad hoc in the
// business logic).
func statusForKind(k handler.Kind) int {
	switch k {
	case handler.KindAuthentication:
		return http.StatusUnauthorized
	case handler.KindAuthorization:
		return http.StatusForbidden
	case handler.KindNotFound:
		return http.StatusNotFound
	case handler.KindConflict:
		return http.StatusConflict
	case handler.KindUpstream:
		return http.StatusBadGateway
	case handler.KindPersistence:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// writeHandlerError renders a handler/transport error as a JSON body with
// the status statusForKind picks. Message is always handler.Error.Message,
// never Err's text, so wrapped causes (token contents, JWKS material) never
// reach the client.
func writeHandlerError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	var herr *handler.Error
	if errors.As(err, &herr) {
		status = statusForKind(herr.Kind)
		msg = herr.Message
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg})
}

// handlerErrorMessage extracts the safe-to-show Message from a
// handler.Error, or a generic message for anything else.
func handlerErrorMessage(err error) string {
	var herr *handler.Error
	if errors.As(err, &herr) {
		return herr.Message
	}
	return "internal error"
}

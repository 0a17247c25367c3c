package transport

import (
	"encoding/json"
	"net/http"

	"github.com/arcadeflow/agentserver/pkg/handler"
	"github.com/arcadeflow/agentserver/pkg/model"
	"github.com/go-chi/chi/v5"
)

// mountAgent registers one agent's four request-surface routes (spec §6)
// under m.Path, e.g. "/planner/v1".
func mountAgent(r chi.Router, m Mount) {
	r.Route(m.Path, func(r chi.Router) {
		r.Post("/", invokeHandler(m.Handler))
		r.Post("/stream", invokeStreamHandler(m.Handler))
		r.Post("/resume/{request_id}", resumeHandler(m.Handler))
		r.Post("/resume/{request_id}/stream", resumeStreamHandler(m.Handler))
	})
}

func decodeUserMessage(r *http.Request) (model.UserMessage, error) {
	var msg model.UserMessage
	err := json.NewDecoder(r.Body).Decode(&msg)
	return msg, err
}

type resumeBody struct {
	Decision model.ResumeDecision `json:"decision"`
	Reason   string               `json:"reason,omitempty"`
}

func decodeResumeBody(r *http.Request) (resumeBody, error) {
	var body resumeBody
	err := json.NewDecoder(r.Body).Decode(&body)
	return body, err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func invokeHandler(h *handler.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msg, err := decodeUserMessage(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
			return
		}
		resp, err := h.Invoke(r.Context(), r.Header.Get("Authorization"), msg)
		if err != nil {
			writeHandlerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func invokeStreamHandler(h *handler.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msg, err := decodeUserMessage(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
			return
		}

		sw, ok := newSSEWriter(w)
		if !ok {
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming unsupported"})
			return
		}

		done := make(chan struct{})
		go keepaliveLoop(sw, done)

		resp, err := h.InvokeStream(r.Context(), r.Header.Get("Authorization"), msg, func(text string) bool {
			_ = sw.sendJSON("partial", model.PartialResponse{
				SessionID:     msg.SessionID,
				TaskID:        msg.TaskID,
				OutputPartial: text,
			})
			return true
		})
		close(done)

		if resp == nil && err == nil {
			return // request cancelled mid-stream, nothing left to say
		}
		sseFinal(sw, resp, err)
	}
}

func resumeHandler(h *handler.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := chi.URLParam(r, "request_id")
		body, err := decodeResumeBody(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
			return
		}
		resp, err := h.Resume(r.Context(), r.Header.Get("Authorization"), requestID, body.Decision, body.Reason)
		if err != nil {
			writeHandlerError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func resumeStreamHandler(h *handler.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := chi.URLParam(r, "request_id")
		body, err := decodeResumeBody(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
			return
		}

		sw, ok := newSSEWriter(w)
		if !ok {
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming unsupported"})
			return
		}

		done := make(chan struct{})
		go keepaliveLoop(sw, done)

		resp, err := h.ResumeStream(r.Context(), r.Header.Get("Authorization"), requestID, body.Decision, body.Reason, func(text string) bool {
			_ = sw.sendJSON("partial", model.PartialResponse{RequestID: requestID, OutputPartial: text})
			return true
		})
		close(done)

		sseFinal(sw, resp, err)
	}
}

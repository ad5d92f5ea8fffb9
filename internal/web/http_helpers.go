package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/inercia/adkinspect/internal/adk"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 1 << 20

// writeJSON writes a JSON response with the given status code.
// It sets the Content-Type header to application/json.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeJSONOK writes a JSON response with status 200 OK.
func writeJSONOK(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, data)
}

// writeErrorJSON writes a structured JSON error response.
func writeErrorJSON(w http.ResponseWriter, status int, errorCode, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// writeNoContent writes a 204 No Content response.
func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// parseJSONBody decodes the request body as JSON into the given value.
// Returns true if successful, false if there was an error (error response already sent).
func parseJSONBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// agentErrorStatus maps an error from the agent client to an HTTP status
// and error code.
func agentErrorStatus(err error) (int, string) {
	if errors.Is(err, adk.ErrNoActiveSession) {
		return http.StatusConflict, "no_session"
	}
	if _, ok := adk.AsRemoteError(err); ok {
		return http.StatusBadGateway, "agent_error"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "agent_timeout"
	}
	if adk.IsTransport(err) {
		return http.StatusBadGateway, "agent_unreachable"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeAgentError writes the JSON error response for an agent client error.
func writeAgentError(w http.ResponseWriter, err error) {
	status, code := agentErrorStatus(err)
	writeErrorJSON(w, status, code, err.Error())
}

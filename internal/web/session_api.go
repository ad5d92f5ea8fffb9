package web

import (
	"net/http"
	"strings"

	"github.com/inercia/adkinspect/internal/adk"
	"github.com/inercia/adkinspect/internal/inspector"
)

// SessionResponse describes the browser's agent session.
type SessionResponse struct {
	SessionKey         string `json:"session_key"`
	SessionID          string `json:"session_id,omitempty"`
	Active             bool   `json:"active"`
	AppName            string `json:"app_name"`
	CredentialOverride bool   `json:"credential_override"`
}

func sessionResponse(key string, c *adk.Client) SessionResponse {
	return SessionResponse{
		SessionKey:         key,
		SessionID:          c.SessionID(),
		Active:             c.HasSession(),
		AppName:            c.AppName(),
		CredentialOverride: c.HasCredentialOverride(),
	}
}

// handleGetSession returns the session of the caller, creating it on
// first use.
// Route: GET /api/session
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	key := sessionKey(w, r)
	c := s.config.Registry.Get(r.Context(), key)
	writeJSONOK(w, sessionResponse(key, c))
}

// handleRestartSession ends the caller's remote session and starts a new one.
// Route: POST /api/session
func (s *Server) handleRestartSession(w http.ResponseWriter, r *http.Request) {
	key := sessionKey(w, r)
	c := s.config.Registry.Get(r.Context(), key)
	c.EndSession(r.Context())
	if !c.StartSession(r.Context()) {
		writeErrorJSON(w, http.StatusBadGateway, "session_start_failed",
			"Could not start a session on "+c.BaseURL())
		return
	}
	s.logger.Info("Session restarted", "session_key", key, "session_id", c.SessionID())
	writeJSONOK(w, sessionResponse(key, c))
}

// handleDeleteSession ends the caller's remote session and forgets its client.
// Route: DELETE /api/session
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if key := readSessionKey(r); key != "" {
		s.config.Registry.Remove(r.Context(), key)
	}
	writeNoContent(w)
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse carries the assistant messages of one turn.
type ChatResponse struct {
	Messages []inspector.ChatMessage `json:"messages"`
}

// handleChat sends a user message to the agent.
// Route: POST /api/chat
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	key := sessionKey(w, r)

	var req ChatRequest
	if !parseJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeErrorJSON(w, http.StatusBadRequest, "empty_message", "Message must not be empty")
		return
	}
	if !s.limiter.Allow(key) {
		w.Header().Set("Retry-After", "1")
		writeErrorJSON(w, http.StatusTooManyRequests, "rate_limited", "Too many messages, slow down")
		return
	}

	c := s.config.Registry.Get(r.Context(), key)
	if !c.HasSession() {
		writeErrorJSON(w, http.StatusConflict, "no_session", inspector.NoSessionMessage)
		return
	}

	events, err := c.SendMessage(r.Context(), req.Message)
	if err != nil {
		s.logger.Warn("Chat message failed", "session_key", key, "error", err)
		writeAgentError(w, err)
		return
	}

	writeJSONOK(w, ChatResponse{Messages: s.config.Inspector.ChatMessages(events)})
}

// CredentialsRequest is the body of POST /api/credentials.
type CredentialsRequest struct {
	APIKey string `json:"api_key"`
}

// handleSetCredentials sets the credential used by the caller's session.
// An empty key leaves the current credential in place.
// Route: POST /api/credentials
func (s *Server) handleSetCredentials(w http.ResponseWriter, r *http.Request) {
	key := sessionKey(w, r)

	var req CredentialsRequest
	if !parseJSONBody(w, r, &req) {
		return
	}

	c := s.config.Registry.Get(r.Context(), key)
	if apiKey := strings.TrimSpace(req.APIKey); apiKey != "" {
		c.SetCredentialOverride(apiKey)
		s.logger.Info("Credential override set", "session_key", key)
	}
	writeJSONOK(w, map[string]bool{"credential_override": c.HasCredentialOverride()})
}

// handleClearCredentials reverts the caller's session to the default credential.
// Route: DELETE /api/credentials
func (s *Server) handleClearCredentials(w http.ResponseWriter, r *http.Request) {
	if key := readSessionKey(r); key != "" {
		if c, ok := s.config.Registry.Peek(key); ok {
			c.SetCredentialOverride("")
		}
	}
	writeNoContent(w)
}

// handleConfig returns the agent settings shown in the config tab. The
// credential itself is never returned.
// Route: GET /api/config
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"credential_source": s.config.CredentialSource,
		"registry": map[string]int{
			"capacity": s.config.Registry.Capacity(),
			"sessions": s.config.Registry.Len(),
		},
	}
	if s.config.Settings != nil {
		if cfg := s.config.Settings(); cfg != nil {
			resp["agent"] = map[string]interface{}{
				"base_url":          cfg.Agent.BaseURL,
				"app_name":          cfg.Agent.AppName,
				"user_id":           cfg.Agent.UserID,
				"credential_header": cfg.Agent.CredentialHeader,
				"timeout":           cfg.Agent.Timeout.String(),
			}
		}
	}
	writeJSONOK(w, resp)
}

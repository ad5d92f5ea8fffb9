package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/inercia/adkinspect/internal/adk"
)

func TestWriteErrorJSON(t *testing.T) {
	w := httptest.NewRecorder()
	writeErrorJSON(w, http.StatusBadRequest, "bad", "nope")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if body := w.Body.String(); body != `{"error":"bad","message":"nope"}`+"\n" {
		t.Errorf("body = %q", body)
	}
}

func TestAgentErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"no session", adk.ErrNoActiveSession, http.StatusConflict, "no_session"},
		{"remote", &adk.RemoteError{Op: "send message", StatusCode: 500, Body: "x"}, http.StatusBadGateway, "agent_error"},
		{"wrapped remote", fmt.Errorf("chat: %w", &adk.RemoteError{StatusCode: 400}), http.StatusBadGateway, "agent_error"},
		{"transport", &adk.TransportError{Op: "send message", Err: errors.New("connection refused")}, http.StatusBadGateway, "agent_unreachable"},
		{"timeout", &adk.TransportError{Op: "send message", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout, "agent_timeout"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := agentErrorStatus(tt.err)
			if status != tt.wantStatus || code != tt.wantCode {
				t.Errorf("agentErrorStatus() = (%d, %q), want (%d, %q)", status, code, tt.wantStatus, tt.wantCode)
			}
		})
	}
}

func TestSessionKey(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/api/session", nil)
	key := sessionKey(w, r)
	if key == "" {
		t.Fatal("sessionKey() returned empty key")
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != SessionCookieName || cookies[0].Value != key || !cookies[0].HttpOnly {
		t.Fatalf("cookies = %+v", cookies)
	}

	w = httptest.NewRecorder()
	r = httptest.NewRequest("GET", "/api/session", nil)
	r.AddCookie(cookies[0])
	if got := sessionKey(w, r); got != key {
		t.Errorf("sessionKey() with cookie = %q, want %q", got, key)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Error("existing key should not be re-issued")
	}

	r = httptest.NewRequest("GET", "/api/session", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "not-a-uuid"})
	if got := readSessionKey(r); got != "" {
		t.Errorf("readSessionKey() accepted %q", got)
	}
}

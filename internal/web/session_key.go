package web

import (
	"net/http"

	"github.com/google/uuid"
)

// SessionCookieName holds the browser's session key.
const SessionCookieName = "adkinspect_session"

// readSessionKey returns the session key carried by the request cookie, or
// "" when the cookie is missing or not a UUID.
func readSessionKey(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(cookie.Value); err != nil {
		return ""
	}
	return cookie.Value
}

func newSessionCookie(key string) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    key,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// sessionKey returns the request's session key, issuing a new one in a
// cookie when the browser has none yet.
func sessionKey(w http.ResponseWriter, r *http.Request) string {
	if key := readSessionKey(r); key != "" {
		return key
	}
	key := newSessionKey()
	http.SetCookie(w, newSessionCookie(key))
	return key
}

func newSessionKey() string {
	return uuid.NewString()
}

// generateClientID returns a short id distinguishing connections in logs.
func generateClientID() string {
	return uuid.NewString()[:8]
}

// Package adk provides a session-scoped client for an ADK-compatible agent
// runtime REST API.
//
// A Client owns one remote conversation: it creates the session, sends user
// messages through the non-streaming run endpoint, and fetches the session
// events together with the per-event debug trace and call graph used by the
// inspector. Traces and graphs are cached per event for the client's life,
// including the nil result of a failed fetch.
//
// # Basic Usage
//
//	c := adk.New("http://localhost:8000", adk.WithApp("weather_agent", "user"))
//	if !c.StartSession(ctx) {
//	    return errors.New("agent service unavailable")
//	}
//	events, err := c.SendMessage(ctx, "What's the weather in Paris?")
//
// # Credentials
//
// A credential override set with SetCredentialOverride travels as a header on
// that client's run requests only. Clients never share a credential slot, so
// concurrent sessions cannot observe each other's keys.
//
// # Thread Safety
//
// Client is safe for concurrent use from multiple goroutines.
package adk

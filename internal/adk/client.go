package adk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/inercia/adkinspect/internal/logging"
)

const (
	// DefaultAppName is the agent application targeted when none is configured.
	DefaultAppName = "weather_agent"
	// DefaultUserID is the user identity used for every session.
	DefaultUserID = "user"
	// DefaultCredentialHeader carries the credential on run requests.
	DefaultCredentialHeader = "X-Goog-Api-Key"
	// DefaultTimeout bounds a single request to the agent service.
	DefaultTimeout = 60 * time.Second
)

// Client manages one conversational session against a remote agent service.
// It is safe for concurrent use.
type Client struct {
	sessionKey string
	baseURL    string
	appName    string
	userID     string
	httpClient *http.Client
	logger     *slog.Logger

	credentialHeader  string
	defaultCredential string

	traceCacheSize int
	graphCacheSize int
	traces         *payloadCache
	graphs         *payloadCache

	mu                 sync.RWMutex
	sessionID          string
	credentialOverride string
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. Clients created by one registry
// share a single *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		if c != nil {
			client.httpClient = c
		}
	}
}

// WithApp sets the target application name and user id.
func WithApp(appName, userID string) Option {
	return func(client *Client) {
		if appName != "" {
			client.appName = appName
		}
		if userID != "" {
			client.userID = userID
		}
	}
}

// WithSessionKey records the adapter-side key this client is bound to.
// It is only used for logging and introspection.
func WithSessionKey(key string) Option {
	return func(client *Client) {
		client.sessionKey = key
	}
}

// WithCredentialHeader sets the request header carrying the credential.
func WithCredentialHeader(name string) Option {
	return func(client *Client) {
		if name != "" {
			client.credentialHeader = name
		}
	}
}

// WithDefaultCredential sets the deployment-wide credential sent when no
// override is set. An empty value sends no credential.
func WithDefaultCredential(value string) Option {
	return func(client *Client) {
		client.defaultCredential = value
	}
}

// WithCacheSizes bounds the trace and graph caches. Non-positive sizes use
// DefaultCacheSize.
func WithCacheSizes(traces, graphs int) Option {
	return func(client *Client) {
		client.traceCacheSize = traces
		client.graphCacheSize = graphs
	}
}

// WithLogger sets the logger. Defaults to the "agent" component logger.
func WithLogger(logger *slog.Logger) Option {
	return func(client *Client) {
		client.logger = logger
	}
}

// New creates a client for the agent service at baseURL
// (e.g., "http://localhost:8000"). No session exists until StartSession.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:          strings.TrimRight(baseURL, "/"),
		appName:          DefaultAppName,
		userID:           DefaultUserID,
		credentialHeader: DefaultCredentialHeader,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if c.logger == nil {
		c.logger = logging.Agent()
	}
	if c.sessionKey != "" {
		c.logger = logging.WithSessionKey(c.logger, c.sessionKey)
	}
	c.traces = newPayloadCache(c.traceCacheSize)
	c.graphs = newPayloadCache(c.graphCacheSize)
	return c
}

// SessionKey returns the adapter-side key of this client.
func (c *Client) SessionKey() string {
	return c.sessionKey
}

// BaseURL returns the agent service address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AppName returns the target application name.
func (c *Client) AppName() string {
	return c.appName
}

// SessionID returns the server-assigned session id, or "" when no session is active.
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// HasSession reports whether a remote session is active.
func (c *Client) HasSession() bool {
	return c.SessionID() != ""
}

// Attach binds the client to an already existing remote session.
func (c *Client) Attach(sessionID string) {
	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()
}

// SetCredentialOverride sets the credential used by subsequent SendMessage
// calls of this client. An empty value clears the override.
func (c *Client) SetCredentialOverride(value string) {
	c.mu.Lock()
	c.credentialOverride = value
	c.mu.Unlock()
}

// HasCredentialOverride reports whether an override is set.
func (c *Client) HasCredentialOverride() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.credentialOverride != ""
}

// CacheStats reports the number of cached traces and graphs.
type CacheStats struct {
	Traces int `json:"traces"`
	Graphs int `json:"graphs"`
}

// CacheStats returns the current cache occupancy.
func (c *Client) CacheStats() CacheStats {
	return CacheStats{Traces: c.traces.len(), Graphs: c.graphs.len()}
}

func (c *Client) sessionsPath() string {
	return "/apps/" + url.PathEscape(c.appName) + "/users/" + url.PathEscape(c.userID) + "/sessions"
}

func (c *Client) sessionPath(sessionID string) string {
	return c.sessionsPath() + "/" + url.PathEscape(sessionID)
}

// StartSession creates a remote session and stores its id.
// Failures are logged and reported as false; it never returns an error.
func (c *Client) StartSession(ctx context.Context) bool {
	var created struct {
		ID string `json:"id"`
	}
	err := c.doJSON(ctx, "start session", http.MethodPost, c.sessionsPath(), nil, nil, "", &created)
	if err != nil {
		c.logger.Warn("Failed to start session", "base_url", c.baseURL, "app", c.appName, "error", err)
		return false
	}
	if created.ID == "" {
		c.logger.Warn("Session created without an id", "base_url", c.baseURL, "app", c.appName)
		return false
	}

	c.mu.Lock()
	c.sessionID = created.ID
	c.mu.Unlock()

	c.logger.Info("Session started", "session_id", created.ID, "app", c.appName)
	return true
}

// SendMessage sends a user message through the non-streaming run endpoint and
// returns the ordered events produced by the agent.
func (c *Client) SendMessage(ctx context.Context, text string) ([]Event, error) {
	c.mu.RLock()
	sessionID := c.sessionID
	credential := c.credentialOverride
	c.mu.RUnlock()

	if sessionID == "" {
		return nil, ErrNoActiveSession
	}
	if credential == "" {
		credential = c.defaultCredential
	}

	req := RunRequest{
		AppName:    c.appName,
		UserID:     c.userID,
		SessionID:  sessionID,
		NewMessage: UserMessage(text),
		Streaming:  false,
	}

	var events []Event
	if err := c.doJSON(ctx, "send message", http.MethodPost, "/run", nil, req, credential, &events); err != nil {
		return nil, err
	}
	c.logger.Debug("Message sent", "session_id", sessionID, "event_count", len(events))
	return events, nil
}

// GetEvents returns the session state, including its event list.
func (c *Client) GetEvents(ctx context.Context) (*Session, error) {
	sessionID := c.SessionID()
	if sessionID == "" {
		return nil, ErrNoActiveSession
	}

	query := url.Values{}
	query.Set("app_name", c.appName)
	query.Set("user_id", c.userID)
	query.Set("session_id", sessionID)

	var sess Session
	if err := c.doJSON(ctx, "get events", http.MethodGet, c.sessionPath(sessionID), query, nil, "", &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetTrace returns the debug trace of an event. A cached result, including
// the nil left by an earlier failed fetch, is returned without a network call.
func (c *Client) GetTrace(ctx context.Context, eventID string) (Trace, error) {
	if trace, ok := c.traces.get(eventID); ok {
		return trace, nil
	}
	if !c.HasSession() {
		return nil, ErrNoActiveSession
	}

	var trace Trace
	err := c.doJSON(ctx, "get trace", http.MethodGet, "/debug/trace/"+url.PathEscape(eventID), nil, nil, "", &trace)
	if err != nil {
		if _, ok := AsRemoteError(err); ok {
			c.traces.add(eventID, nil)
		}
		return nil, err
	}
	c.traces.add(eventID, trace)
	return trace, nil
}

// GetGraph returns the execution graph of an event, with the same caching
// rules as GetTrace. Failures are remembered in the graph cache only.
func (c *Client) GetGraph(ctx context.Context, eventID string) (Graph, error) {
	if graph, ok := c.graphs.get(eventID); ok {
		return graph, nil
	}
	sessionID := c.SessionID()
	if sessionID == "" {
		return nil, ErrNoActiveSession
	}

	var graph Graph
	path := c.sessionPath(sessionID) + "/events/" + url.PathEscape(eventID) + "/graph"
	if err := c.doJSON(ctx, "get graph", http.MethodGet, path, nil, nil, "", &graph); err != nil {
		if _, ok := AsRemoteError(err); ok {
			c.graphs.add(eventID, nil)
		}
		return nil, err
	}
	c.graphs.add(eventID, graph)
	return graph, nil
}

// EndSession deletes the remote session on a best-effort basis and clears
// the session id whatever the outcome.
func (c *Client) EndSession(ctx context.Context) {
	c.mu.Lock()
	sessionID := c.sessionID
	c.sessionID = ""
	c.mu.Unlock()

	if sessionID == "" {
		return
	}
	if err := c.doJSON(ctx, "end session", http.MethodDelete, c.sessionPath(sessionID), nil, nil, "", nil); err != nil {
		c.logger.Debug("Failed to delete remote session", "session_id", sessionID, "error", err)
		return
	}
	c.logger.Info("Session ended", "session_id", sessionID)
}

// doJSON issues a request and decodes a 200 JSON response into out (when non-nil).
// Non-200 responses become *RemoteError, everything else *TransportError.
func (c *Client) doJSON(ctx context.Context, op, method, path string, query url.Values, body any, credential string, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if method != http.MethodDelete {
		req.Header.Set("Content-Type", "application/json")
	}
	if credential != "" {
		req.Header.Set(c.credentialHeader, credential)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &RemoteError{Op: op, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

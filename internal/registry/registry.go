// Package registry maps adapter-side session keys to agent session clients.
//
// Each key owns exactly one *adk.Client with its own remote session,
// credential override and caches. The registry is bounded: once it holds
// Capacity clients, adding a new key evicts the least recently used one.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/inercia/adkinspect/internal/adk"
	"github.com/inercia/adkinspect/internal/config"
	"github.com/inercia/adkinspect/internal/logging"
)

// DefaultCapacity is the number of clients kept when none is configured.
const DefaultCapacity = 100

// Factory builds an unstarted client for a session key.
type Factory func(key string) *adk.Client

// Registry is a bounded, concurrency-safe map from session key to client.
type Registry struct {
	capacity   int
	endOnEvict bool
	logger     *slog.Logger

	cache *lru.Cache[string, *adk.Client]
	group singleflight.Group

	mu      sync.RWMutex
	factory Factory
}

// Option configures the registry.
type Option func(*Registry)

// WithCapacity bounds the number of live clients.
func WithCapacity(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// WithEndOnEvict makes evicted clients delete their remote session in the
// background. Off by default: an evicted session is simply forgotten.
func WithEndOnEvict(enabled bool) Option {
	return func(r *Registry) {
		r.endOnEvict = enabled
	}
}

// WithLogger sets the logger. Defaults to the "registry" component logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New creates a registry that builds clients with factory.
func New(factory Factory, opts ...Option) (*Registry, error) {
	if factory == nil {
		return nil, fmt.Errorf("registry: nil factory")
	}
	r := &Registry{
		capacity: DefaultCapacity,
		factory:  factory,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.Registry()
	}

	cache, err := lru.NewWithEvict[string, *adk.Client](r.capacity, r.onEvict)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	r.cache = cache
	return r, nil
}

// NewClientFactory returns a Factory building clients from the agent and
// cache settings. All clients share httpClient; when nil, one honoring
// agent.Timeout is created.
func NewClientFactory(agent config.AgentConfig, caches config.CacheConfig, httpClient *http.Client, defaultCredential string) Factory {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: agent.Timeout}
	}
	return func(key string) *adk.Client {
		return adk.New(agent.BaseURL,
			adk.WithHTTPClient(httpClient),
			adk.WithApp(agent.AppName, agent.UserID),
			adk.WithCredentialHeader(agent.CredentialHeader),
			adk.WithDefaultCredential(defaultCredential),
			adk.WithCacheSizes(caches.TraceSize, caches.GraphSize),
			adk.WithSessionKey(key),
		)
	}
}

// SetFactory replaces the factory used for keys created from now on.
// Existing clients are left untouched.
func (r *Registry) SetFactory(factory Factory) {
	if factory == nil {
		return
	}
	r.mu.Lock()
	r.factory = factory
	r.mu.Unlock()
}

// Get returns the client for key, creating it and starting its remote
// session on first use. A failed session start still yields a client; it
// reports no active session until restarted.
//
// Session start does not follow ctx cancellation, so a request abandoned
// by its caller still leaves a usable client behind.
func (r *Registry) Get(ctx context.Context, key string) *adk.Client {
	if c, ok := r.cache.Get(key); ok {
		return c
	}

	v, _, _ := r.group.Do(key, func() (any, error) {
		if c, ok := r.cache.Get(key); ok {
			return c, nil
		}
		r.mu.RLock()
		factory := r.factory
		r.mu.RUnlock()

		c := factory(key)
		c.StartSession(context.WithoutCancel(ctx))
		r.cache.Add(key, c)
		r.logger.Debug("Client created", "session_key", key, "session_id", c.SessionID(), "clients", r.cache.Len())
		return c, nil
	})
	return v.(*adk.Client)
}

// Attach binds key to an existing remote session without creating a new
// one. A client already held under key is replaced; its session is left
// untouched.
func (r *Registry) Attach(key, sessionID string) *adk.Client {
	r.mu.RLock()
	factory := r.factory
	r.mu.RUnlock()

	c := factory(key)
	c.Attach(sessionID)
	r.cache.Add(key, c)
	r.logger.Debug("Client attached", "session_key", key, "session_id", sessionID)
	return c
}

// Peek returns the client for key without creating it or refreshing its
// recency.
func (r *Registry) Peek(key string) (*adk.Client, bool) {
	return r.cache.Peek(key)
}

// Keys returns the live session keys, oldest first.
func (r *Registry) Keys() []string {
	return r.cache.Keys()
}

// Len returns the number of live clients.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Capacity returns the maximum number of live clients.
func (r *Registry) Capacity() int {
	return r.capacity
}

// Remove ends the remote session of key and drops its client.
// It reports whether the key was present.
func (r *Registry) Remove(ctx context.Context, key string) bool {
	c, ok := r.cache.Peek(key)
	if !ok {
		return false
	}
	c.EndSession(ctx)
	return r.cache.Remove(key)
}

// Purge ends every remote session and empties the registry.
func (r *Registry) Purge(ctx context.Context) {
	for _, key := range r.cache.Keys() {
		if c, ok := r.cache.Peek(key); ok {
			c.EndSession(ctx)
		}
	}
	r.cache.Purge()
}

// onEvict runs on the goroutine whose Add evicted the entry, after the cache
// lock is released. The remote call is left to a goroutine so Get never waits
// on it.
func (r *Registry) onEvict(key string, c *adk.Client) {
	r.logger.Debug("Client evicted", "session_key", key, "session_id", c.SessionID())
	if r.endOnEvict && c.HasSession() {
		go c.EndSession(context.Background())
	}
}

package web

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/inercia/adkinspect/internal/config"
	"github.com/inercia/adkinspect/internal/inspector"
	"github.com/inercia/adkinspect/internal/logging"
	"github.com/inercia/adkinspect/internal/registry"
	staticweb "github.com/inercia/adkinspect/web"
)

// DefaultRequestTimeout bounds non-WebSocket requests. It is longer than
// the agent client timeout so agent errors surface as JSON, not as a cut
// connection.
const DefaultRequestTimeout = 2 * time.Minute

// Config holds the web server configuration.
type Config struct {
	// Registry maps browser session keys to agent clients. Required.
	Registry *registry.Registry
	// Inspector renders chat messages and snapshots. Defaults to inspector.New().
	Inspector *inspector.Inspector
	// Settings returns the current application configuration for /api/config.
	// May be nil.
	Settings func() *config.Config
	// CredentialSource names where the default credential came from
	// ("env", "keychain" or "").
	CredentialSource string
	// StaticDir is an optional filesystem directory to serve static files from
	// instead of the embedded assets.
	StaticDir string
	// RateLimit limits chat messages per session key.
	RateLimit RateLimitConfig
	// WebSocket configures the chat WebSocket.
	WebSocket WebSocketSecurityConfig
	// RequestTimeout bounds plain HTTP requests. Defaults to DefaultRequestTimeout.
	RequestTimeout time.Duration
}

// Server is the web server for adkinspect.
type Server struct {
	config     Config
	httpServer *http.Server
	logger     *slog.Logger
	limiter    *ChatRateLimiter

	mu       sync.Mutex
	shutdown bool
}

// NewServer creates a new web server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("web: registry is required")
	}
	if cfg.Inspector == nil {
		cfg.Inspector = inspector.New()
	}
	if cfg.WebSocket.PongWait == 0 {
		cfg.WebSocket = DefaultWebSocketSecurityConfig()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	s := &Server{
		config:  cfg,
		logger:  logging.Web(),
		limiter: NewChatRateLimiter(cfg.RateLimit),
	}

	var staticFS fs.FS
	if cfg.StaticDir != "" {
		staticFS = os.DirFS(cfg.StaticDir)
		s.logger.Info("Serving static files from filesystem", "dir", cfg.StaticDir)
	} else {
		var err error
		staticFS, err = fs.Sub(staticweb.StaticFS, "static")
		if err != nil {
			s.limiter.Close()
			return nil, err
		}
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/session", s.handleGetSession)
	api.HandleFunc("POST /api/session", s.handleRestartSession)
	api.HandleFunc("DELETE /api/session", s.handleDeleteSession)
	api.HandleFunc("POST /api/chat", s.handleChat)
	api.HandleFunc("GET /api/inspector", s.handleInspector)
	api.HandleFunc("GET /api/events/{eventID}/trace", s.handleEventTrace)
	api.HandleFunc("GET /api/events/{eventID}/graph", s.handleEventGraph)
	api.HandleFunc("POST /api/credentials", s.handleSetCredentials)
	api.HandleFunc("DELETE /api/credentials", s.handleClearCredentials)
	api.HandleFunc("GET /api/config", s.handleConfig)
	api.HandleFunc("GET /healthz", s.handleHealthCheck)
	api.Handle("GET /", s.staticFileHandler(staticFS))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/ws", s.handleWS)
	mux.Handle("/", http.TimeoutHandler(api, cfg.RequestTimeout, `{"error":"timeout","message":"request timed out"}`))

	s.httpServer = &http.Server{
		Handler:           s.loggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the HTTP handler for the server.
// This is useful for testing with httptest.Server.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve starts the HTTP server on the given listener.
func (s *Server) Serve(listener net.Listener) error {
	s.logger.Info("Web server listening", "addr", listener.Addr().String())
	return s.httpServer.Serve(listener)
}

// Shutdown gracefully shuts down the server and ends every remote session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	s.mu.Unlock()

	err := s.httpServer.Shutdown(ctx)
	s.limiter.Close()
	s.config.Registry.Purge(ctx)
	return err
}

// IsShutdown returns whether the server has been shut down.
func (s *Server) IsShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// handleHealthCheck reports liveness and the number of live sessions.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.IsShutdown() {
		status = "shutting_down"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":   status,
		"sessions": s.config.Registry.Len(),
	})
}

// loggingMiddleware logs HTTP requests with their status and duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelDebug
		if rec.statusCode >= 500 {
			level = slog.LevelWarn
		}
		s.logger.Log(r.Context(), level, "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.statusCode,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
		)
	})
}

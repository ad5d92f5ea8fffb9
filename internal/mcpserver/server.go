// Package mcpserver provides an MCP (Model Context Protocol) server for debugging adkinspect.
// The server exposes the live registry sessions, their events, traces and
// graphs as tools. It binds only to 127.0.0.1 for security reasons.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/inercia/adkinspect/internal/adk"
	"github.com/inercia/adkinspect/internal/config"
	"github.com/inercia/adkinspect/internal/inspector"
	"github.com/inercia/adkinspect/internal/logging"
	"github.com/inercia/adkinspect/internal/registry"
)

const (
	// DefaultPort is the default port for the MCP server.
	DefaultPort = 5758
	// ServerName is the name of the MCP server.
	ServerName = "adkinspect-debug"
	// ServerVersion is the version of the MCP server.
	ServerVersion = "1.0.0"
)

// TransportMode specifies the transport mode for the MCP server.
type TransportMode string

const (
	// TransportModeHTTP uses the Streamable HTTP transport (default).
	// The server listens on a TCP port on 127.0.0.1.
	TransportModeHTTP TransportMode = "http"

	// TransportModeSTDIO uses standard input/output for communication.
	// This is useful for running the MCP server as a subprocess.
	TransportModeSTDIO TransportMode = "stdio"
)

// Server is the MCP debug server for adkinspect.
type Server struct {
	mcpServer *mcp.Server
	logger    *slog.Logger
	port      int
	mode      TransportMode
	listener  net.Listener
	httpSrv   *http.Server

	// For STDIO mode
	stdioSession *mcp.ServerSession
	stdioDone    chan struct{}

	mu        sync.RWMutex
	registry  *registry.Registry
	settings  func() *config.Config
	inspector *inspector.Inspector
	running   bool
	shutdown  bool
}

// Dependencies holds the dependencies needed by the MCP server.
type Dependencies struct {
	// Registry is the client registry whose sessions are exposed. Required.
	Registry *registry.Registry
	// Settings returns the effective configuration. Optional.
	Settings func() *config.Config
	// Inspector builds snapshots. Defaults to inspector.New().
	Inspector *inspector.Inspector
}

// Config holds the configuration for the MCP server.
type Config struct {
	// Port to listen on (default: 5758). Only used in HTTP mode.
	Port int

	// Mode specifies the transport mode (http or stdio). Default: http.
	Mode TransportMode
}

// NewServer creates a new MCP debug server.
// If cfg.Port is -1, the default port (5758) is used.
// If cfg.Port is 0, a random available port is assigned when the server starts.
func NewServer(cfg Config, deps Dependencies) (*Server, error) {
	if deps.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if deps.Inspector == nil {
		deps.Inspector = inspector.New()
	}

	// Port -1 means use default, 0 means random available port
	if cfg.Port < 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Mode == "" {
		cfg.Mode = TransportModeHTTP
	}

	s := &Server{
		logger:    logging.MCP(),
		port:      cfg.Port,
		mode:      cfg.Mode,
		registry:  deps.Registry,
		settings:  deps.Settings,
		inspector: deps.Inspector,
	}

	mcpSrv := mcp.NewServer(&mcp.Implementation{
		Name:    ServerName,
		Version: ServerVersion,
	}, nil)
	s.registerTools(mcpSrv)

	s.mcpServer = mcpSrv
	return s, nil
}

// Start starts the MCP server.
// For HTTP mode, it starts an HTTP server on 127.0.0.1.
// For STDIO mode, it starts reading from stdin and writing to stdout.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.mu.Unlock()

	switch s.mode {
	case TransportModeSTDIO:
		return s.startSTDIO(ctx, &mcp.StdioTransport{})
	case TransportModeHTTP:
		return s.startHTTP()
	default:
		return fmt.Errorf("unknown transport mode: %s", s.mode)
	}
}

// startHTTP serves the Streamable HTTP transport on 127.0.0.1.
func (s *Server) startHTTP() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.running = true
	s.port = listener.Addr().(*net.TCPAddr).Port
	s.mu.Unlock()

	s.logger.Info("MCP debug server started", "mode", "http", "port", s.Port())

	streamableHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("/mcp", streamableHandler)
	mux.Handle("/", streamableHandler)

	s.httpSrv = &http.Server{Handler: mux}

	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("MCP server error", "error", err)
		}
	}()

	return nil
}

// startSTDIO connects the server to the given transport in a goroutine.
// Use Wait() to block until the session ends.
func (s *Server) startSTDIO(ctx context.Context, transport mcp.Transport) error {
	s.mu.Lock()
	s.running = true
	s.stdioDone = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("MCP debug server started", "mode", "stdio")

	go func() {
		defer close(s.stdioDone)

		session, err := s.mcpServer.Connect(ctx, transport, nil)
		if err != nil {
			s.logger.Error("Failed to connect STDIO transport", "error", err)
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			return
		}

		s.mu.Lock()
		s.stdioSession = session
		s.mu.Unlock()

		if err := session.Wait(); err != nil {
			s.logger.Debug("STDIO session ended", "error", err)
		}

		s.mu.Lock()
		s.running = false
		s.stdioSession = nil
		s.mu.Unlock()

		s.logger.Info("MCP debug server stopped", "mode", "stdio")
	}()

	return nil
}

// Wait blocks until the server stops (STDIO mode only).
// For HTTP mode, this returns immediately.
func (s *Server) Wait() error {
	s.mu.RLock()
	done := s.stdioDone
	s.mu.RUnlock()

	if done != nil {
		<-done
	}
	return nil
}

// Stop stops the MCP server gracefully.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.shutdown {
		return nil
	}

	s.shutdown = true
	s.running = false

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Warn("Error shutting down MCP HTTP server", "error", err)
		}
	}
	if s.listener != nil {
		s.listener.Close()
	}
	if s.stdioSession != nil {
		if err := s.stdioSession.Close(); err != nil {
			s.logger.Warn("Error closing STDIO session", "error", err)
		}
	}

	s.logger.Info("MCP debug server stopped")
	return nil
}

// Port returns the actual port the server is listening on.
// Returns 0 for STDIO mode.
func (s *Server) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.mode == TransportModeSTDIO {
		return 0
	}
	return s.port
}

// Mode returns the transport mode of the server.
func (s *Server) Mode() TransportMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running && !s.shutdown
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools(mcpSrv *mcp.Server) {
	mcp.AddTool(mcpSrv, &mcp.Tool{
		Name:        "list_sessions",
		Description: "List the session keys held by the registry with their remote session ids, app names and cache sizes",
	}, s.handleListSessions)

	mcp.AddTool(mcpSrv, &mcp.Tool{
		Name:        "get_events",
		Description: "Get the remote session document (events only) for a session key",
	}, s.handleGetEvents)

	mcp.AddTool(mcpSrv, &mcp.Tool{
		Name:        "get_trace",
		Description: "Get the decoded execution trace of one event of a session",
	}, s.handleGetTrace)

	mcp.AddTool(mcpSrv, &mcp.Tool{
		Name:        "get_graph",
		Description: "Get the execution graph of one event of a session",
	}, s.handleGetGraph)

	mcp.AddTool(mcpSrv, &mcp.Tool{
		Name:        "get_config",
		Description: "Get the current effective adkinspect configuration",
	}, s.handleGetConfig)

	mcp.AddTool(mcpSrv, &mcp.Tool{
		Name:        "get_runtime_info",
		Description: "Get runtime information including OS, architecture, data directory and log file paths",
	}, s.handleGetRuntimeInfo)
}

// lookup finds an existing client. Tools never create registry entries.
func (s *Server) lookup(key string) (*adk.Client, error) {
	if key == "" {
		return nil, fmt.Errorf("session_key is required")
	}
	c, ok := s.registry.Peek(key)
	if !ok {
		return nil, fmt.Errorf("unknown session key: %s", key)
	}
	return c, nil
}

func (s *Server) handleListSessions(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, ListSessionsOutput, error) {
	keys := s.registry.Keys()
	out := ListSessionsOutput{
		Capacity: s.registry.Capacity(),
		Sessions: make([]SessionInfo, 0, len(keys)),
	}
	for _, key := range keys {
		c, ok := s.registry.Peek(key)
		if !ok {
			continue
		}
		out.Sessions = append(out.Sessions, sessionInfo(key, c))
	}
	return nil, out, nil
}

func (s *Server) handleGetEvents(ctx context.Context, req *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, EventsOutput, error) {
	c, err := s.lookup(input.SessionKey)
	if err != nil {
		return nil, EventsOutput{}, err
	}
	snap, err := s.inspector.EventsOnly(ctx, c)
	if err != nil {
		return nil, EventsOutput{}, fmt.Errorf("failed to get events: %w", err)
	}
	return nil, EventsOutput{SessionKey: input.SessionKey, Session: snap}, nil
}

func (s *Server) handleGetTrace(ctx context.Context, req *mcp.CallToolRequest, input EventInput) (*mcp.CallToolResult, TraceOutput, error) {
	c, err := s.lookup(input.SessionKey)
	if err != nil {
		return nil, TraceOutput{}, err
	}
	if input.EventID == "" {
		return nil, TraceOutput{}, fmt.Errorf("event_id is required")
	}
	trace, err := c.GetTrace(ctx, input.EventID)
	if err != nil {
		return nil, TraceOutput{}, fmt.Errorf("failed to get trace: %w", err)
	}
	out := TraceOutput{EventID: input.EventID, Found: trace != nil}
	if trace != nil {
		out.Trace = inspector.DecodeTrace(trace, s.logger)
	}
	return nil, out, nil
}

func (s *Server) handleGetGraph(ctx context.Context, req *mcp.CallToolRequest, input EventInput) (*mcp.CallToolResult, GraphOutput, error) {
	c, err := s.lookup(input.SessionKey)
	if err != nil {
		return nil, GraphOutput{}, err
	}
	if input.EventID == "" {
		return nil, GraphOutput{}, fmt.Errorf("event_id is required")
	}
	graph, err := c.GetGraph(ctx, input.EventID)
	if err != nil {
		return nil, GraphOutput{}, fmt.Errorf("failed to get graph: %w", err)
	}
	return nil, GraphOutput{EventID: input.EventID, Found: graph != nil, Graph: graph}, nil
}

func (s *Server) handleGetConfig(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, ConfigInfo, error) {
	s.mu.RLock()
	settings := s.settings
	s.mu.RUnlock()

	if settings == nil {
		return nil, ConfigInfo{}, fmt.Errorf("configuration not available")
	}
	cfg := settings()
	if cfg == nil {
		return nil, ConfigInfo{}, fmt.Errorf("configuration not available")
	}
	return nil, configToSafeOutput(cfg), nil
}

func (s *Server) handleGetRuntimeInfo(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, RuntimeInfo, error) {
	return nil, *buildRuntimeInfo(), nil
}

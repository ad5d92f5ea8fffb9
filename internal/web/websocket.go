package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/inercia/adkinspect/internal/adk"
	"github.com/inercia/adkinspect/internal/inspector"
	"github.com/inercia/adkinspect/internal/logging"
)

// WebSocketSecurityConfig holds security configuration for WebSocket connections.
type WebSocketSecurityConfig struct {
	// AllowedOrigins is a list of allowed origins for WebSocket connections.
	// If empty, only same-origin requests are allowed.
	// Use "*" to allow all origins (not recommended).
	AllowedOrigins []string

	// MaxMessageSize is the maximum size of a WebSocket message in bytes.
	MaxMessageSize int64

	// PongWait is the time to wait for a pong response.
	PongWait time.Duration

	// PingPeriod is the interval between ping messages. Must be less than PongWait.
	PingPeriod time.Duration

	// WriteWait is the time allowed to write a message.
	WriteWait time.Duration
}

// DefaultWebSocketSecurityConfig returns sensible defaults.
func DefaultWebSocketSecurityConfig() WebSocketSecurityConfig {
	return WebSocketSecurityConfig{
		MaxMessageSize: 64 * 1024,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		WriteWait:      10 * time.Second,
	}
}

// configureWebSocketConn applies security settings to a WebSocket connection.
func configureWebSocketConn(conn *websocket.Conn, config WebSocketSecurityConfig) {
	conn.SetReadLimit(config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(config.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})
}

func (s *Server) newUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     createOriginChecker(s.config.WebSocket.AllowedOrigins),
	}
}

// createOriginChecker returns a function that validates WebSocket origins.
func createOriginChecker(allowedOrigins []string) func(*http.Request) bool {
	allowedSet := make(map[string]bool)
	allowAll := false
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
			break
		}
		allowedSet[strings.ToLower(origin)] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		// Non-browser clients send no origin and cannot perform CSWSH attacks.
		if origin == "" || allowAll {
			return true
		}
		originURL, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if len(allowedSet) > 0 {
			return allowedSet[strings.ToLower(origin)] || allowedSet[strings.ToLower(originURL.Host)]
		}
		return isSameOrigin(r, originURL)
	}
}

// isSameOrigin checks that the origin host and port match the request host.
func isSameOrigin(r *http.Request, originURL *url.URL) bool {
	requestHostname, requestPort, err := net.SplitHostPort(r.Host)
	if err != nil {
		requestHostname = r.Host
		requestPort = ""
	}
	originHostname, originPort, err := net.SplitHostPort(originURL.Host)
	if err != nil {
		originHostname = originURL.Host
		originPort = ""
	}

	if !strings.EqualFold(requestHostname, originHostname) {
		return false
	}
	if originPort == "" {
		switch originURL.Scheme {
		case "https", "wss":
			originPort = "443"
		case "http", "ws":
			originPort = "80"
		}
	}
	// Behind a reverse proxy the request host may carry no port.
	if requestPort == "" {
		return true
	}
	return requestPort == originPort
}

// handleWS serves the chat WebSocket.
// Route: GET /api/ws
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	key := readSessionKey(r)
	var header http.Header
	if key == "" {
		key = newSessionKey()
		header = http.Header{}
		header.Add("Set-Cookie", newSessionCookie(key).String())
	}

	upgrader := s.newUpgrader()
	conn, err := upgrader.Upgrade(w, r, header)
	if err != nil {
		s.logger.Debug("WebSocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := logging.WithClient(s.logger, generateClientID(), key)
	ws := NewWSConn(conn, s.config.WebSocket, logger)
	done := make(chan struct{})
	go ws.WritePump(ctx, done)

	logger.Debug("WebSocket connected")
	defer logger.Debug("WebSocket disconnected")

	var busy atomic.Bool
	for {
		data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		msg, err := ParseMessage(data)
		if err != nil {
			ws.SendError("invalid_message", "Invalid message: "+err.Error())
			continue
		}

		switch msg.Type {
		case WSMsgTypePrompt:
			var p PromptData
			if err := json.Unmarshal(msg.Data, &p); err != nil {
				ws.SendError("invalid_message", "Invalid prompt: "+err.Error())
				continue
			}
			if strings.TrimSpace(p.Message) == "" {
				continue
			}
			if !s.limiter.Allow(key) {
				ws.SendError("rate_limited", "Too many messages, slow down")
				continue
			}
			if !busy.CompareAndSwap(false, true) {
				ws.SendError("busy", "The agent is still answering the previous message")
				continue
			}
			go func() {
				defer busy.Store(false)
				s.runPrompt(ctx, ws, key, p.Message)
			}()

		case WSMsgTypeRefresh:
			go s.sendInspector(ctx, ws, s.config.Registry.Get(ctx, key), true)

		default:
			ws.SendError("unknown_type", "Unknown message type: "+msg.Type)
		}
	}

	cancel()
	<-done
}

// runPrompt sends one user message and streams the resulting UI updates:
// the echoed user message, the assistant messages, then the inspector
// snapshots.
func (s *Server) runPrompt(ctx context.Context, ws *WSConn, key, text string) {
	ws.SendMessage(WSMsgTypeUserMessage, inspector.UserMessage(text))

	client := s.config.Registry.Get(ctx, key)
	if !client.HasSession() {
		ws.SendMessage(WSMsgTypeAgentMessages, AgentMessagesData{
			Messages: []inspector.ChatMessage{inspector.AssistantNotice(inspector.NoSessionMessage)},
		})
		return
	}

	events, err := client.SendMessage(ctx, text)
	if err != nil {
		_, code := agentErrorStatus(err)
		ws.SendError(code, err.Error())
		return
	}
	ws.SendMessage(WSMsgTypeAgentMessages, AgentMessagesData{
		Messages: s.config.Inspector.ChatMessages(events),
	})

	s.sendInspector(ctx, ws, client, false)
	s.sendInspector(ctx, ws, client, true)
}

func (s *Server) sendInspector(ctx context.Context, ws *WSConn, client *adk.Client, full bool) {
	var (
		snap inspector.Snapshot
		err  error
	)
	if full {
		snap, err = s.config.Inspector.Build(ctx, client)
	} else {
		snap, err = s.config.Inspector.EventsOnly(ctx, client)
	}
	if err != nil {
		_, code := agentErrorStatus(err)
		ws.SendError(code, err.Error())
		return
	}
	ws.SendMessage(WSMsgTypeInspector, InspectorData{Full: full, Session: snap})
}

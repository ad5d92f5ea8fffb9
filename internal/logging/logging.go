// Package logging provides centralized logging configuration for adkinspect.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	globalLogger *slog.Logger
	globalMu     sync.RWMutex

	// logWriter is the rotating file writer, if file logging is enabled.
	logWriter   io.WriteCloser
	logWriterMu sync.Mutex

	// allowedComponents is the set of components to log (nil means all).
	allowedComponents map[string]bool
	componentsMu      sync.RWMutex
)

// FileLogConfig holds configuration for file-based logging with rotation.
type FileLogConfig struct {
	// Path is the log file path. Empty disables file logging.
	Path string
	// MaxSizeMB is the size in megabytes at which the file is rotated. Default: 10.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept. Default: 3.
	MaxBackups int
	// Compress gzips rotated files.
	Compress bool
}

// Config holds logging configuration.
type Config struct {
	// Level is the minimum level for console output (debug, info, warn, error).
	Level string
	// FileLevel is the minimum level for file output. Defaults to Level.
	FileLevel string
	// FileLog enables rotating file output in addition to the console.
	FileLog *FileLogConfig
	// JSON switches both outputs to JSON records.
	JSON bool
	// Components restricts output to the named components (empty means all).
	Components []string
	// Console is the console writer. Defaults to os.Stderr.
	Console io.Writer
}

// Initialize sets up the global logger and installs it as the slog default.
// When file and console levels differ, records fan out to two handlers.
func Initialize(cfg Config) error {
	consoleLevel := ParseLevel(cfg.Level)
	fileLevel := consoleLevel
	if cfg.FileLevel != "" {
		fileLevel = ParseLevel(cfg.FileLevel)
	}

	SetComponents(cfg.Components)

	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}

	logWriterMu.Lock()
	defer logWriterMu.Unlock()

	if logWriter != nil {
		logWriter.Close()
		logWriter = nil
	}

	var fileWriter io.Writer
	if cfg.FileLog != nil && cfg.FileLog.Path != "" {
		maxSize := cfg.FileLog.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		maxBackups := cfg.FileLog.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 3
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.FileLog.Path,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			Compress:   cfg.FileLog.Compress,
		}
		// Fail early on an unwritable path instead of on the first record.
		if _, err := lj.Write(nil); err != nil {
			return fmt.Errorf("failed to open log file %s: %w", cfg.FileLog.Path, err)
		}
		logWriter = lj
		fileWriter = lj
	}

	newHandler := func(w io.Writer, level slog.Level) slog.Handler {
		opts := &slog.HandlerOptions{Level: level}
		if cfg.JSON {
			return slog.NewJSONHandler(w, opts)
		}
		return slog.NewTextHandler(w, opts)
	}

	var handler slog.Handler
	switch {
	case fileWriter != nil && fileLevel != consoleLevel:
		handler = &multiHandler{handlers: []slog.Handler{
			newHandler(console, consoleLevel),
			newHandler(fileWriter, fileLevel),
		}}
	case fileWriter != nil:
		handler = newHandler(io.MultiWriter(console, fileWriter), consoleLevel)
	default:
		handler = newHandler(console, consoleLevel)
	}

	logger := slog.New(handler)

	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()

	slog.SetDefault(logger)
	return nil
}

// SetComponents replaces the component filter. An empty list allows all.
func SetComponents(components []string) {
	componentsMu.Lock()
	defer componentsMu.Unlock()

	allowedComponents = nil
	for _, c := range components {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if allowedComponents == nil {
			allowedComponents = make(map[string]bool)
		}
		allowedComponents[c] = true
	}
}

// multiHandler fans out records to several handlers with their own levels.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// Get returns the global logger, or slog.Default() before Initialize.
func Get() *slog.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()

	if globalLogger == nil {
		return slog.Default()
	}
	return globalLogger
}

// Close releases the log file, if any.
func Close() error {
	logWriterMu.Lock()
	defer logWriterMu.Unlock()

	if logWriter != nil {
		err := logWriter.Close()
		logWriter = nil
		return err
	}
	return nil
}

// ParseLevel converts a level name to slog.Level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isComponentAllowed(component string) bool {
	componentsMu.RLock()
	defer componentsMu.RUnlock()

	if allowedComponents == nil {
		return true
	}
	return allowedComponents[component]
}

// componentFilterHandler drops records of components outside the filter.
// The filter is checked on every record so SetComponents applies to loggers
// created earlier.
type componentFilterHandler struct {
	inner     slog.Handler
	component string
}

func (h *componentFilterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if !isComponentAllowed(h.component) {
		return false
	}
	return h.inner.Enabled(ctx, level)
}

func (h *componentFilterHandler) Handle(ctx context.Context, r slog.Record) error {
	if !isComponentAllowed(h.component) {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *componentFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &componentFilterHandler{inner: h.inner.WithAttrs(attrs), component: h.component}
}

func (h *componentFilterHandler) WithGroup(name string) slog.Handler {
	return &componentFilterHandler{inner: h.inner.WithGroup(name), component: h.component}
}

// WithComponent returns a logger tagged with a component attribute and
// subject to the component filter.
func WithComponent(component string) *slog.Logger {
	base := Get()
	return slog.New(&componentFilterHandler{
		inner:     base.Handler().WithAttrs([]slog.Attr{slog.String("component", component)}),
		component: component,
	})
}

// Web returns a logger for the web adapter.
func Web() *slog.Logger {
	return WithComponent("web")
}

// Agent returns a logger for calls to the agent service.
func Agent() *slog.Logger {
	return WithComponent("agent")
}

// Registry returns a logger for client registry events.
func Registry() *slog.Logger {
	return WithComponent("registry")
}

// Inspector returns a logger for inspector snapshot building.
func Inspector() *slog.Logger {
	return WithComponent("inspector")
}

// Settings returns a logger for configuration loading and reloads.
func Settings() *slog.Logger {
	return WithComponent("config")
}

// MCP returns a logger for the MCP debug server.
func MCP() *slog.Logger {
	return WithComponent("mcp")
}

// Shutdown returns a logger for shutdown events.
func Shutdown() *slog.Logger {
	return WithComponent("shutdown")
}

// WithSessionKey returns a child logger that includes the session key.
func WithSessionKey(base *slog.Logger, key string) *slog.Logger {
	if base == nil {
		return nil
	}
	return base.With("session_key", key)
}

// WithClient returns a child logger for a WebSocket client of a session key.
func WithClient(base *slog.Logger, clientID, sessionKey string) *slog.Logger {
	if base == nil {
		return nil
	}
	return base.With(
		"client_id", clientID,
		"session_key", sessionKey,
	)
}

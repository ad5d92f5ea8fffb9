package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/inercia/adkinspect/internal/config"
	"github.com/inercia/adkinspect/internal/conversion"
	"github.com/inercia/adkinspect/internal/inspector"
	"github.com/inercia/adkinspect/internal/logging"
	"github.com/inercia/adkinspect/internal/mcpserver"
	"github.com/inercia/adkinspect/internal/registry"
	"github.com/inercia/adkinspect/internal/web"
)

var (
	webPort      int
	webHost      string
	webStaticDir string
	webMCP       bool
	webNoWatch   bool
)

// shutdownTimeout bounds the graceful shutdown, including ending remote sessions.
const shutdownTimeout = 10 * time.Second

// webCmd represents the web command
var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Start the browser chat and inspector interface",
	Long: `Start a web server with a chat tab, a setup tab for the API key and an
inspector panel showing the session events with their traces and graphs.

Every browser session gets its own agent session. Sessions are kept in an
LRU registry and ended on shutdown.

Example:
  adkinspect web                              # Start on 127.0.0.1:7860
  adkinspect web --port 0                     # Use random port (auto-selected)
  adkinspect web --mcp                        # Also start the MCP debug server
  adkinspect web --static-dir ./web/static    # Serve from filesystem (for development)`,
	RunE: runWeb,
}

func init() {
	rootCmd.AddCommand(webCmd)

	webCmd.Flags().IntVar(&webPort, "port", 0, "HTTP server port (default: from config, 7860). Use 0 for random port")
	webCmd.Flags().StringVar(&webHost, "host", "", "HTTP server host (default: from config, 127.0.0.1)")
	webCmd.Flags().StringVar(&webStaticDir, "static-dir", "", "Serve static files from this directory instead of embedded assets (for development)")
	webCmd.Flags().BoolVar(&webMCP, "mcp", false, "Start the MCP debug server (default: from config)")
	webCmd.Flags().BoolVar(&webNoWatch, "no-watch", false, "Do not reload the configuration file when it changes")
}

func runWeb(cmd *cobra.Command, args []string) error {
	host := cfg.Web.Host
	if cmd.Flags().Changed("host") {
		host = webHost
	}
	port := cfg.Web.Port
	if cmd.Flags().Changed("port") {
		port = webPort
	}
	staticDir := cfg.Web.StaticDir
	if cmd.Flags().Changed("static-dir") {
		staticDir = webStaticDir
	}
	mcpEnabled := cfg.MCP.Enabled || webMCP

	reg, err := newRegistry(cfg)
	if err != nil {
		return err
	}
	insp := inspector.New(
		inspector.WithConverter(conversion.DefaultConverter()),
		inspector.WithLogger(logging.Inspector()),
	)

	var current atomic.Pointer[config.Config]
	current.Store(cfg)
	settings := func() *config.Config { return current.Load() }

	srv, err := web.NewServer(web.Config{
		Registry:         reg,
		Inspector:        insp,
		Settings:         settings,
		CredentialSource: string(credentialSource),
		StaticDir:        staticDir,
		RateLimit: web.RateLimitConfig{
			MessagesPerSecond: cfg.Web.RateLimit,
			BurstSize:         cfg.Web.RateBurst,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if !webNoWatch {
		watcher, err := config.NewWatcher(cfgFile, func(next *config.Config) {
			if baseURL != "" {
				next.Agent.BaseURL = baseURL
			}
			current.Store(next)
			reg.SetFactory(registry.NewClientFactory(next.Agent, next.Cache, nil, defaultCredential))
			logging.SetComponents(parseComponents(logComponents))
		}, logging.Settings())
		if err != nil {
			logging.Settings().Warn("Config hot reload disabled", "path", cfgFile, "error", err)
		} else {
			watcher.Start()
			defer watcher.Close()
		}
	}

	var mcpSrv *mcpserver.Server
	if mcpEnabled {
		mcpSrv, err = mcpserver.NewServer(
			mcpserver.Config{Port: cfg.MCP.Port, Mode: mcpserver.TransportModeHTTP},
			mcpserver.Dependencies{Registry: reg, Settings: settings, Inspector: insp},
		)
		if err != nil {
			return fmt.Errorf("failed to create MCP server: %w", err)
		}
		if err := mcpSrv.Start(context.Background()); err != nil {
			return fmt.Errorf("failed to start MCP server: %w", err)
		}
		defer mcpSrv.Stop()
	}

	addr := net.JoinHostPort(host, fmt.Sprint(port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	fmt.Printf("🌐 Starting web interface...\n")
	fmt.Printf("   Agent service: %s (app %s)\n", cfg.Agent.BaseURL, cfg.Agent.AppName)
	if credentialSource != "" {
		fmt.Printf("   Default API key: from %s\n", credentialSource)
	} else {
		fmt.Printf("   Default API key: none (set one in the Setup tab)\n")
	}
	if staticDir != "" {
		fmt.Printf("   Static files: %s\n", staticDir)
	}
	fmt.Printf("   Local URL: http://%s\n", listener.Addr().String())
	if mcpSrv != nil {
		fmt.Printf("   MCP debug server (%s): http://127.0.0.1:%d/mcp\n", mcpSrv.Mode(), mcpSrv.Port())
	}

	// Handle signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-sigChan
		fmt.Println("\n👋 Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logging.Shutdown().Warn("Web server shutdown error", "error", err)
		}
	}()

	fmt.Printf("\n   Press Ctrl+C to stop\n\n")

	// Serve (blocks until shutdown)
	if err := srv.Serve(listener); err != nil && !srv.IsShutdown() {
		return fmt.Errorf("server error: %w", err)
	}
	// Serve returns as soon as shutdown starts; wait for sessions to end.
	<-shutdownDone
	logging.Shutdown().Info("Web server stopped")
	return nil
}

package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/inercia/adkinspect/internal/config"
	"github.com/inercia/adkinspect/internal/mcpserver"
)

var (
	mcpUseProxy bool
	mcpProxyTo  string
	mcpAttach   []string
)

// mcpCmd represents the mcp command for running MCP servers
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP debug server over STDIO",
	Long: `Run an MCP server exposing agent sessions, events, traces and graphs
as tools over standard input/output.

A standalone server owns its own registry: use --attach to expose existing
remote sessions. To inspect the sessions of a running "adkinspect web"
(started with --mcp), use --proxy, which forwards STDIO to its HTTP
endpoint.

Examples:
  # Expose two existing remote sessions
  adkinspect mcp --attach 3f2a... --attach 9b1c...

  # Proxy to the MCP endpoint of a running web server
  adkinspect mcp --proxy
  adkinspect mcp --proxy-to http://127.0.0.1:5758/mcp`,
	RunE: runMCPServer,
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().BoolVar(&mcpUseProxy, "proxy", false, "Proxy to the MCP endpoint of a running web server (port from config)")
	mcpCmd.Flags().StringVar(&mcpProxyTo, "proxy-to", "", "URL to proxy MCP requests to (STDIO-to-HTTP proxy mode)")
	mcpCmd.Flags().StringArrayVar(&mcpAttach, "attach", nil, "Remote session id to expose (can be repeated); the id is also the session key")
}

func runMCPServer(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if target := proxyTarget(mcpProxyTo, mcpUseProxy, cfg.MCP.Port); target != "" {
		p := newMCPProxy(target, os.Stdout)
		return p.run(ctx, os.Stdin)
	}
	return runStandaloneMCPServer(ctx)
}

// runStandaloneMCPServer runs the MCP server in STDIO mode on its own registry.
func runStandaloneMCPServer(ctx context.Context) error {
	reg, err := newRegistry(cfg)
	if err != nil {
		return err
	}
	for _, id := range mcpAttach {
		reg.Attach(id, id)
	}

	srv, err := mcpserver.NewServer(
		mcpserver.Config{Mode: mcpserver.TransportModeSTDIO},
		mcpserver.Dependencies{
			Registry: reg,
			Settings: func() *config.Config { return cfg },
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start MCP server: %w", err)
	}

	// Blocks until the context is cancelled or stdin closes
	return srv.Wait()
}

// proxyTarget returns the URL to proxy to, or "" when serving locally.
// An explicit URL wins over the port of a local web server.
func proxyTarget(to string, useProxy bool, port int) string {
	if to != "" {
		return to
	}
	if useProxy {
		return fmt.Sprintf("http://127.0.0.1:%d/mcp", port)
	}
	return ""
}

// mcpProxy forwards newline-delimited JSON-RPC messages to a Streamable
// HTTP MCP endpoint and writes the replies back.
//
// The endpoint keeps session state through the Mcp-Session-Id header,
// which the proxy carries across requests.
type mcpProxy struct {
	target    string
	client    *http.Client
	out       io.Writer
	sessionID string
}

func newMCPProxy(target string, out io.Writer) *mcpProxy {
	return &mcpProxy{target: target, client: &http.Client{}, out: out}
}

func (p *mcpProxy) run(ctx context.Context, in io.Reader) error {
	reader := bufio.NewReader(in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("read error: %w", err)
		}
		if msg := strings.TrimSpace(line); msg != "" {
			p.handle(ctx, msg)
		}
		if err == io.EOF {
			return nil
		}
	}
}

// handle forwards one message. Failures become JSON-RPC errors carrying the
// request id so the client can match them.
func (p *mcpProxy) handle(ctx context.Context, msg string) {
	resp, err := p.forward(ctx, msg)
	if err != nil {
		var req struct {
			ID any `json:"id"`
		}
		json.Unmarshal([]byte(msg), &req)
		writeJSONRPCError(p.out, req.ID, -32603, fmt.Sprintf("proxy error: %v", err))
		return
	}
	// Notifications have no response.
	if len(resp) == 0 {
		return
	}
	p.out.Write(resp)
	if resp[len(resp)-1] != '\n' {
		io.WriteString(p.out, "\n")
	}
}

func (p *mcpProxy) forward(ctx context.Context, msg string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.target, strings.NewReader(msg))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if p.sessionID != "" {
		req.Header.Set("Mcp-Session-Id", p.sessionID)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if id := resp.Header.Get("Mcp-Session-Id"); id != "" {
		p.sessionID = id
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("http error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if resp.StatusCode == http.StatusAccepted {
		return nil, nil
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		return parseSSEResponse(resp.Body)
	}
	return io.ReadAll(resp.Body)
}

// parseSSEResponse joins the data of every SSE event, one JSON-RPC message
// per line.
func parseSSEResponse(r io.Reader) ([]byte, error) {
	scanner := bufio.NewScanner(r)
	// Tool results such as full snapshots exceed the default 64KB line limit.
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var result, data bytes.Buffer
	flush := func() {
		if data.Len() == 0 {
			return
		}
		if result.Len() > 0 {
			result.WriteByte('\n')
		}
		result.Write(data.Bytes())
		data.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case line == "":
			flush()
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan SSE: %w", err)
	}
	return result.Bytes(), nil
}

// writeJSONRPCError writes a JSON-RPC error response to the writer.
func writeJSONRPCError(w io.Writer, id any, code int, message string) {
	data, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
	w.Write(append(data, '\n'))
}

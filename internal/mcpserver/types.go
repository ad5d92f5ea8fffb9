package mcpserver

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/inercia/adkinspect/internal/adk"
	"github.com/inercia/adkinspect/internal/appdir"
	"github.com/inercia/adkinspect/internal/config"
	"github.com/inercia/adkinspect/internal/inspector"
)

// SessionInput selects a registry entry.
type SessionInput struct {
	SessionKey string `json:"session_key" jsonschema:"the registry key of the session (the browser session cookie value)"`
}

// EventInput selects one event of a registry entry.
type EventInput struct {
	SessionKey string `json:"session_key" jsonschema:"the registry key of the session"`
	EventID    string `json:"event_id" jsonschema:"the id of the event"`
}

// SessionInfo describes one registry entry.
type SessionInfo struct {
	SessionKey         string         `json:"session_key"`
	SessionID          string         `json:"session_id,omitempty"`
	Active             bool           `json:"active"`
	AppName            string         `json:"app_name"`
	BaseURL            string         `json:"base_url"`
	CredentialOverride bool           `json:"credential_override"`
	Cache              adk.CacheStats `json:"cache"`
}

// ListSessionsOutput wraps the registry entries for MCP output schema compliance.
type ListSessionsOutput struct {
	Capacity int           `json:"capacity"`
	Sessions []SessionInfo `json:"sessions"`
}

// EventsOutput is the output of get_events.
type EventsOutput struct {
	SessionKey string             `json:"session_key"`
	Session    inspector.Snapshot `json:"session"`
}

// TraceOutput is the output of get_trace. Found is false when the service
// previously failed to provide a trace for the event.
type TraceOutput struct {
	EventID string    `json:"event_id"`
	Found   bool      `json:"found"`
	Trace   adk.Trace `json:"trace,omitempty"`
}

// GraphOutput is the output of get_graph.
type GraphOutput struct {
	EventID string    `json:"event_id"`
	Found   bool      `json:"found"`
	Graph   adk.Graph `json:"graph,omitempty"`
}

// ConfigInfo is a sanitized view of the configuration.
type ConfigInfo struct {
	Agent    AgentInfo             `json:"agent"`
	Registry config.RegistryConfig `json:"registry"`
	Cache    config.CacheConfig    `json:"cache"`
	Web      WebConfigInfo         `json:"web"`
	MCP      config.MCPConfig      `json:"mcp"`
	LogLevel string                `json:"log_level"`
}

// AgentInfo contains the agent service settings.
type AgentInfo struct {
	BaseURL          string `json:"base_url"`
	AppName          string `json:"app_name"`
	UserID           string `json:"user_id"`
	CredentialHeader string `json:"credential_header"`
	Timeout          string `json:"timeout"`
}

// WebConfigInfo contains web configuration info.
type WebConfigInfo struct {
	Host             string `json:"host"`
	Port             int    `json:"port"`
	StaticDir        string `json:"static_dir,omitempty"`
	RateLimitEnabled bool   `json:"rate_limit_enabled"`
}

// RuntimeInfo contains runtime information about the adkinspect instance.
type RuntimeInfo struct {
	OS       string `json:"os"`
	Arch     string `json:"arch"`
	NumCPU   int    `json:"num_cpu"`
	Hostname string `json:"hostname,omitempty"`

	PID        int    `json:"pid"`
	Executable string `json:"executable,omitempty"`
	WorkingDir string `json:"working_dir,omitempty"`

	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`

	DataDir    string `json:"data_dir,omitempty"`
	ConfigFile string `json:"config_file,omitempty"`
	LogFile    string `json:"log_file,omitempty"`

	DirEnv string `json:"adkinspect_dir_env,omitempty"`
}

func sessionInfo(key string, c *adk.Client) SessionInfo {
	return SessionInfo{
		SessionKey:         key,
		SessionID:          c.SessionID(),
		Active:             c.HasSession(),
		AppName:            c.AppName(),
		BaseURL:            c.BaseURL(),
		CredentialOverride: c.HasCredentialOverride(),
		Cache:              c.CacheStats(),
	}
}

// buildRuntimeInfo gathers runtime information about the process.
func buildRuntimeInfo() *RuntimeInfo {
	info := &RuntimeInfo{
		OS:           runtime.GOOS,
		Arch:         runtime.GOARCH,
		NumCPU:       runtime.NumCPU(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		PID:          os.Getpid(),
	}

	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}
	if exe, err := os.Executable(); err == nil {
		info.Executable = exe
	}
	if wd, err := os.Getwd(); err == nil {
		info.WorkingDir = wd
	}

	if dataDir, err := appdir.Dir(); err == nil {
		info.DataDir = dataDir
		info.LogFile = filepath.Join(dataDir, appdir.LogsDirName, appdir.LogFileName)
	}
	if cfgPath, err := appdir.ConfigPath(); err == nil {
		info.ConfigFile = cfgPath
	}
	info.DirEnv = os.Getenv(appdir.DirEnv)

	return info
}

// configToSafeOutput converts a config.Config to a sanitized ConfigInfo.
func configToSafeOutput(cfg *config.Config) ConfigInfo {
	return ConfigInfo{
		Agent: AgentInfo{
			BaseURL:          cfg.Agent.BaseURL,
			AppName:          cfg.Agent.AppName,
			UserID:           cfg.Agent.UserID,
			CredentialHeader: cfg.Agent.CredentialHeader,
			Timeout:          cfg.Agent.Timeout.String(),
		},
		Registry: cfg.Registry,
		Cache:    cfg.Cache,
		Web: WebConfigInfo{
			Host:             cfg.Web.Host,
			Port:             cfg.Web.Port,
			StaticDir:        cfg.Web.StaticDir,
			RateLimitEnabled: cfg.Web.RateLimit > 0,
		},
		MCP:      cfg.MCP,
		LogLevel: cfg.Log.Level,
	}
}

// Package config handles configuration loading and management for adkinspect.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inercia/adkinspect/internal/appdir"
)

// Environment variables overriding the agent section.
const (
	EnvBaseURL = "ADK_BASE_URL"
	EnvAppName = "ADK_APP_NAME"
	EnvUserID  = "ADK_USER_ID"
)

// AgentConfig describes the remote agent service.
type AgentConfig struct {
	// BaseURL is the address of the agent service (default: http://localhost:8000).
	BaseURL string `yaml:"base_url" json:"base_url"`
	// AppName is the agent application to talk to (default: weather_agent).
	AppName string `yaml:"app_name" json:"app_name"`
	// UserID is the user identity used for every session (default: user).
	UserID string `yaml:"user_id" json:"user_id"`
	// CredentialHeader is the header that carries the credential on run requests.
	CredentialHeader string `yaml:"credential_header" json:"credential_header"`
	// Timeout bounds each request to the agent service.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// RegistryConfig bounds the number of live session clients.
type RegistryConfig struct {
	// Capacity is the maximum number of session clients kept (default: 100).
	Capacity int `yaml:"capacity" json:"capacity"`
	// EndOnEvict deletes the remote session of an evicted client.
	EndOnEvict bool `yaml:"end_on_evict" json:"end_on_evict"`
}

// CacheConfig bounds the per-client trace and graph caches.
type CacheConfig struct {
	TraceSize int `yaml:"trace_size" json:"trace_size"`
	GraphSize int `yaml:"graph_size" json:"graph_size"`
}

// WebConfig represents web interface configuration.
type WebConfig struct {
	// Host is the listen address (default: 127.0.0.1).
	Host string `yaml:"host" json:"host"`
	// Port is the HTTP port (default: 7860).
	Port int `yaml:"port" json:"port"`
	// StaticDir serves the UI from disk instead of the embedded assets.
	StaticDir string `yaml:"static_dir" json:"static_dir,omitempty"`
	// RateLimit is the number of chat messages per second allowed per session key.
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`
	// RateBurst is the burst size for RateLimit.
	RateBurst int `yaml:"rate_burst" json:"rate_burst"`
}

// MCPConfig configures the MCP debug server.
type MCPConfig struct {
	// Enabled starts the MCP server alongside the web interface.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Port is the loopback port for the streamable HTTP transport (default: 5758).
	Port int `yaml:"port" json:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file,omitempty"`
	FileLevel string `yaml:"file_level" json:"file_level,omitempty"`
	JSON      bool   `yaml:"json" json:"json"`
}

// Config represents the complete adkinspect configuration.
type Config struct {
	Agent    AgentConfig    `yaml:"agent" json:"agent"`
	Registry RegistryConfig `yaml:"registry" json:"registry"`
	Cache    CacheConfig    `yaml:"cache" json:"cache"`
	Web      WebConfig      `yaml:"web" json:"web"`
	MCP      MCPConfig      `yaml:"mcp" json:"mcp"`
	Log      LogConfig      `yaml:"log" json:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			BaseURL:          "http://localhost:8000",
			AppName:          "weather_agent",
			UserID:           "user",
			CredentialHeader: "X-Goog-Api-Key",
			Timeout:          60 * time.Second,
		},
		Registry: RegistryConfig{Capacity: 100},
		Cache:    CacheConfig{TraceSize: 1024, GraphSize: 1024},
		Web: WebConfig{
			Host:      "127.0.0.1",
			Port:      7860,
			RateLimit: 2,
			RateBurst: 5,
		},
		MCP: MCPConfig{Port: 5758},
		Log: LogConfig{Level: "info"},
	}
}

// DefaultPath returns the default configuration file path.
func DefaultPath() (string, error) {
	return appdir.ConfigPath()
}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path if it exists and returns the defaults otherwise.
// Environment overrides are applied in both cases.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
	} else if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse parses YAML data on top of the defaults. Absent keys keep their
// default values.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides agent settings from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvBaseURL); v != "" {
		c.Agent.BaseURL = v
	}
	if v := getenv(EnvAppName); v != "" {
		c.Agent.AppName = v
	}
	if v := getenv(EnvUserID); v != "" {
		c.Agent.UserID = v
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Agent.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid agent base_url %q", c.Agent.BaseURL)
	}
	if c.Agent.AppName == "" {
		return fmt.Errorf("agent app_name must not be empty")
	}
	if c.Agent.UserID == "" {
		return fmt.Errorf("agent user_id must not be empty")
	}
	if c.Agent.Timeout < 0 {
		return fmt.Errorf("agent timeout must not be negative")
	}
	if c.Registry.Capacity <= 0 {
		return fmt.Errorf("registry capacity must be positive, got %d", c.Registry.Capacity)
	}
	if c.Web.Port < 0 || c.Web.Port > 65535 {
		return fmt.Errorf("invalid web port %d", c.Web.Port)
	}
	if c.MCP.Port < 0 || c.MCP.Port > 65535 {
		return fmt.Errorf("invalid mcp port %d", c.MCP.Port)
	}
	return nil
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

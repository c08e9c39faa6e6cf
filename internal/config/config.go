// Package config loads and validates qwen-tui configuration from YAML
// or JSON5 files, with $include merging, environment expansion, and
// QWEN_TUI_ environment overrides.
package config

import (
	"time"
)

// Config is the root configuration structure.
type Config struct {
	PreferredBackends []string `yaml:"preferred_backends" json:"preferred_backends,omitempty"`

	Ollama     OllamaConfig     `yaml:"ollama" json:"ollama"`
	LMStudio   LMStudioConfig   `yaml:"lm_studio" json:"lm_studio"`
	VLLM       VLLMConfig       `yaml:"vllm" json:"vllm"`
	OpenRouter OpenRouterConfig `yaml:"openrouter" json:"openrouter"`

	MCP      MCPConfig      `yaml:"mcp" json:"mcp"`
	Security SecurityConfig `yaml:"security" json:"security"`
	Sessions SessionsConfig `yaml:"sessions" json:"sessions"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`

	MaxContextTokens int  `yaml:"max_context_tokens" json:"max_context_tokens,omitempty"`
	ParallelTools    int  `yaml:"parallel_tools" json:"parallel_tools,omitempty"`
	CacheResponses   bool `yaml:"cache_responses" json:"cache_responses,omitempty"`
}

type OllamaConfig struct {
	Host      string        `yaml:"host" json:"host,omitempty"`
	Port      int           `yaml:"port" json:"port,omitempty"`
	Model     string        `yaml:"model" json:"model,omitempty"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout,omitempty"`
	KeepAlive string        `yaml:"keep_alive" json:"keep_alive,omitempty"`
}

type LMStudioConfig struct {
	Host    string        `yaml:"host" json:"host,omitempty"`
	Port    int           `yaml:"port" json:"port,omitempty"`
	APIKey  string        `yaml:"api_key" json:"api_key,omitempty"`
	Timeout time.Duration `yaml:"timeout" json:"timeout,omitempty"`
}

type VLLMConfig struct {
	Host        string        `yaml:"host" json:"host,omitempty"`
	Port        int           `yaml:"port" json:"port,omitempty"`
	Model       string        `yaml:"model" json:"model,omitempty"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout,omitempty"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens,omitempty"`
	Temperature *float64      `yaml:"temperature" json:"temperature,omitempty"`
}

type OpenRouterConfig struct {
	APIKey  string        `yaml:"api_key" json:"api_key,omitempty"`
	Model   string        `yaml:"model" json:"model,omitempty"`
	BaseURL string        `yaml:"base_url" json:"base_url,omitempty"`
	Timeout time.Duration `yaml:"timeout" json:"timeout,omitempty"`
}

type MCPConfig struct {
	Enabled bool              `yaml:"enabled" json:"enabled"`
	Servers []MCPServerConfig `yaml:"servers" json:"servers,omitempty"`
}

type MCPServerConfig struct {
	Name                string            `yaml:"name" json:"name"`
	URL                 string            `yaml:"url" json:"url"`
	Enabled             bool              `yaml:"enabled" json:"enabled"`
	Tools               []string          `yaml:"tools" json:"tools,omitempty"`
	Timeout             time.Duration     `yaml:"timeout" json:"timeout,omitempty"`
	Auth                map[string]string `yaml:"auth" json:"auth,omitempty"`
	RetryAttempts       int               `yaml:"retry_attempts" json:"retry_attempts,omitempty"`
	RetryDelay          time.Duration     `yaml:"retry_delay" json:"retry_delay,omitempty"`
	HealthCheckInterval time.Duration     `yaml:"health_check_interval" json:"health_check_interval,omitempty"`
}

type SecurityConfig struct {
	Profile            string   `yaml:"profile" json:"profile,omitempty"`
	AllowFileWrite     bool     `yaml:"allow_file_write" json:"allow_file_write"`
	AllowFileDelete    bool     `yaml:"allow_file_delete" json:"allow_file_delete"`
	AllowNetwork       bool     `yaml:"allow_network" json:"allow_network"`
	RequireApprovalFor []string `yaml:"require_approval_for" json:"require_approval_for,omitempty"`
	Yolo               bool     `yaml:"yolo" json:"yolo"`
}

type SessionsConfig struct {
	Directory string `yaml:"directory" json:"directory,omitempty"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" json:"level,omitempty"`
	Format string `yaml:"format" json:"format,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if len(cfg.PreferredBackends) == 0 {
		cfg.PreferredBackends = []string{"ollama", "lm_studio", "vllm", "openrouter"}
	}
	if cfg.Ollama.Host == "" {
		cfg.Ollama.Host = "localhost"
	}
	if cfg.Ollama.Port == 0 {
		cfg.Ollama.Port = 11434
	}
	if cfg.Ollama.Timeout == 0 {
		cfg.Ollama.Timeout = 120 * time.Second
	}
	if cfg.LMStudio.Host == "" {
		cfg.LMStudio.Host = "localhost"
	}
	if cfg.LMStudio.Port == 0 {
		cfg.LMStudio.Port = 1234
	}
	if cfg.LMStudio.Timeout == 0 {
		cfg.LMStudio.Timeout = 120 * time.Second
	}
	if cfg.VLLM.Host == "" {
		cfg.VLLM.Host = "localhost"
	}
	if cfg.VLLM.Port == 0 {
		cfg.VLLM.Port = 8000
	}
	if cfg.VLLM.Timeout == 0 {
		cfg.VLLM.Timeout = 120 * time.Second
	}
	if cfg.OpenRouter.BaseURL == "" {
		cfg.OpenRouter.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.OpenRouter.Timeout == 0 {
		cfg.OpenRouter.Timeout = 120 * time.Second
	}
	if cfg.Security.Profile == "" {
		cfg.Security.Profile = "balanced"
	}
	if cfg.MaxContextTokens == 0 {
		cfg.MaxContextTokens = 32768
	}
	if cfg.ParallelTools == 0 {
		cfg.ParallelTools = 4
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	for i := range cfg.MCP.Servers {
		srv := &cfg.MCP.Servers[i]
		if srv.RetryAttempts == 0 {
			srv.RetryAttempts = 5
		}
		if srv.RetryDelay == 0 {
			srv.RetryDelay = 5 * time.Second
		}
		if srv.HealthCheckInterval == 0 {
			srv.HealthCheckInterval = 60 * time.Second
		}
	}
}

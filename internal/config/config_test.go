package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "ollama:\n  model: qwen2.5-coder\n")

	cfg, warnings, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}
	if cfg.Ollama.Model != "qwen2.5-coder" {
		t.Errorf("model = %q", cfg.Ollama.Model)
	}
	if cfg.Ollama.Host != "localhost" || cfg.Ollama.Port != 11434 {
		t.Errorf("ollama defaults = %+v", cfg.Ollama)
	}
	if cfg.ParallelTools != 4 || cfg.MaxContextTokens != 32768 {
		t.Errorf("agent defaults = %d %d", cfg.ParallelTools, cfg.MaxContextTokens)
	}
	if len(cfg.PreferredBackends) != 4 || cfg.PreferredBackends[0] != "ollama" {
		t.Errorf("preferred = %v", cfg.PreferredBackends)
	}
}

func TestLoadParsesDurations(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "vllm:\n  timeout: 45s\n  max_tokens: 2048\n")

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.VLLM.Timeout != 45*time.Second {
		t.Errorf("timeout = %s", cfg.VLLM.Timeout)
	}
	if cfg.VLLM.MaxTokens != 2048 {
		t.Errorf("max_tokens = %d", cfg.VLLM.MaxTokens)
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "logging:\n  level: debug\nparallel_tools: 2\n")
	path := writeFile(t, dir, "config.yaml", "$include: base.yaml\nparallel_tools: 8\n")

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("included value lost: %q", cfg.Logging.Level)
	}
	// The including file wins on conflict.
	if cfg.ParallelTools != 8 {
		t.Errorf("parallel_tools = %d", cfg.ParallelTools)
	}
}

func TestLoadExpandsEnvironmentInsideInclude(t *testing.T) {
	t.Setenv("TEST_LOG_LEVEL", "debug")
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "logging:\n  level: ${TEST_LOG_LEVEL}\n")
	path := writeFile(t, dir, "config.yaml", "$include: base.yaml\n")

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
}

func TestLoadRejectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "$include: b.yaml\n")
	path := writeFile(t, dir, "b.yaml", "$include: a.yaml\n")

	if _, _, err := Load(path); err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Errorf("err = %v", err)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_OLLAMA_MODEL", "llama3")
	path := writeFile(t, t.TempDir(), "config.yaml", "ollama:\n  model: ${TEST_OLLAMA_MODEL}\n")

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Ollama.Model != "llama3" {
		t.Errorf("model = %q", cfg.Ollama.Model)
	}
}

func TestLoadJSON5(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.json5", `{
	// trailing commas and comments are fine
	ollama: {model: "qwen2.5-coder",},
}`)

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Ollama.Model != "qwen2.5-coder" {
		t.Errorf("model = %q", cfg.Ollama.Model)
	}
}

func TestEnvOverridesDottedPath(t *testing.T) {
	t.Setenv("QWEN_TUI_OLLAMA_HOST", "gpu-box")
	t.Setenv("QWEN_TUI_LM_STUDIO_PORT", "4321")
	t.Setenv("QWEN_TUI_PREFERRED_BACKENDS", "vllm,ollama")
	path := writeFile(t, t.TempDir(), "config.yaml", "ollama:\n  host: ignored\n")

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Ollama.Host != "gpu-box" {
		t.Errorf("host = %q", cfg.Ollama.Host)
	}
	if cfg.LMStudio.Port != 4321 {
		t.Errorf("port = %d", cfg.LMStudio.Port)
	}
	if len(cfg.PreferredBackends) != 2 || cfg.PreferredBackends[0] != "vllm" {
		t.Errorf("preferred = %v", cfg.PreferredBackends)
	}
}

func TestOpenRouterAPIKeyAlias(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "sk-or-alias")
	path := writeFile(t, t.TempDir(), "config.yaml", "openrouter:\n  model: qwen/qwen-2.5-coder-32b-instruct\n")

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OpenRouter.APIKey != "sk-or-alias" {
		t.Errorf("api_key = %q", cfg.OpenRouter.APIKey)
	}
}

func TestOpenRouterAliasDoesNotClobberExplicitKey(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "sk-or-alias")
	path := writeFile(t, t.TempDir(), "config.yaml", "openrouter:\n  api_key: sk-or-explicit\n")

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OpenRouter.APIKey != "sk-or-explicit" {
		t.Errorf("api_key = %q", cfg.OpenRouter.APIKey)
	}
}

func TestUnknownKeysAreWarnings(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "colour_scheme: dark\nollama:\n  hots: typo\n")

	_, warnings, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 2 {
		t.Fatalf("warnings = %v", warnings)
	}
	if !strings.Contains(warnings[0], "colour_scheme") || !strings.Contains(warnings[1], "ollama.hots") {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestUnknownServerKeyIsError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `mcp:
  enabled: true
  servers:
    - name: weather
      url: ws://localhost:9000
      enabled: true
      retry_atempts: 3
`)

	_, _, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "retry_atempts") {
		t.Errorf("err = %v", err)
	}
}

func TestSchemaRejectsWrongType(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "ollama:\n  port: not-a-number\n")

	if _, _, err := Load(path); err == nil {
		t.Error("wrong port type accepted")
	}
}

func TestValidateRejectsUnknownBackendType(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "preferred_backends: [ollama, chatgpt]\n")

	_, _, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "chatgpt") {
		t.Errorf("err = %v", err)
	}
}

func TestValidateRejectsNonWebSocketServerURL(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `mcp:
  servers:
    - name: weather
      url: http://localhost:9000
      enabled: true
`)

	_, _, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "ws://") {
		t.Errorf("err = %v", err)
	}
}

func TestValidateRejectsDuplicateServerNames(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `mcp:
  servers:
    - {name: weather, url: "ws://a:1", enabled: true}
    - {name: weather, url: "ws://b:2", enabled: true}
`)

	_, _, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("err = %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestMCPServerDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `mcp:
  enabled: true
  servers:
    - {name: weather, url: "ws://localhost:9000", enabled: true}
`)

	cfg, _, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	srv := cfg.MCP.Servers[0]
	if srv.RetryAttempts != 5 || srv.RetryDelay != 5*time.Second || srv.HealthCheckInterval != 60*time.Second {
		t.Errorf("server defaults = %+v", srv)
	}
}

func TestJSONSchemaGenerates(t *testing.T) {
	data, err := JSONSchema()
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"preferred_backends", "lm_studio", "max_context_tokens"} {
		if !strings.Contains(string(data), key) {
			t.Errorf("schema missing %q", key)
		}
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "parallel_tools: 2\n")

	reloaded := make(chan *Config, 4)
	w := NewWatcher(path, func(cfg *Config, _ []string) { reloaded <- cfg }, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	writeFile(t, dir, "config.yaml", "parallel_tools: 6\n")

	select {
	case cfg := <-reloaded:
		if cfg.ParallelTools != 6 {
			t.Errorf("parallel_tools = %d", cfg.ParallelTools)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}
}

func TestWatcherKeepsPreviousConfigOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "parallel_tools: 2\n")

	reloaded := make(chan *Config, 4)
	w := NewWatcher(path, func(cfg *Config, _ []string) { reloaded <- cfg }, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	writeFile(t, dir, "config.yaml", "parallel_tools: [broken\n")

	select {
	case cfg := <-reloaded:
		t.Errorf("broken config delivered: %+v", cfg)
	case <-time.After(time.Second):
	}
}

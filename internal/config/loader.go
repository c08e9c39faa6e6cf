package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"

	"github.com/qwen-tui/qwen-tui/internal/errdefs"
)

const (
	includeKey = "$include"
	envPrefix  = "QWEN_TUI_"
)

// Load reads the configuration file, applies environment overrides and
// defaults, and validates the result. Warnings list unknown keys found
// outside mcp.servers; unknown keys inside a server entry are errors.
func Load(path string) (*Config, []string, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, nil, err
	}
	return finish(raw)
}

// LoadDefault returns the default configuration with environment
// overrides applied, for running without a config file.
func LoadDefault() (*Config, []string, error) {
	return finish(map[string]any{})
}

func finish(raw map[string]any) (*Config, []string, error) {
	applyEnvOverrides(raw)

	warnings, err := checkUnknownKeys(raw)
	if err != nil {
		return nil, nil, err
	}
	if err := ValidateRaw(raw); err != nil {
		return nil, nil, err
	}

	cfg, err := decodeRaw(raw)
	if err != nil {
		return nil, nil, err
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, warnings, nil
}

// LoadRaw reads a configuration file into a merged raw map, resolving
// $include directives with cycle detection.
func LoadRaw(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errdefs.New(errdefs.KindConfig, errdefs.ConfigInvalidValue, "config path is required")
	}
	seen := map[string]bool{}
	return loadRawRecursive(path, seen)
}

func loadRawRecursive(path string, seen map[string]bool) (map[string]any, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if seen[absPath] {
		return nil, errdefs.New(errdefs.KindConfig, errdefs.ConfigParse,
			"include cycle at "+absPath)
	}
	seen[absPath] = true
	defer delete(seen, absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errdefs.Wrap(errdefs.KindConfig, errdefs.ConfigNotFound, absPath, err).
				WithTip("create the file or run without --config to use defaults")
		}
		return nil, err
	}
	raw, err := parseRawBytes([]byte(expandEnv(string(data))), absPath)
	if err != nil {
		return nil, err
	}

	includes, err := extractIncludes(raw)
	if err != nil {
		return nil, err
	}

	merged := map[string]any{}
	baseDir := filepath.Dir(absPath)
	for _, inc := range includes {
		if strings.TrimSpace(inc) == "" {
			continue
		}
		incPath := inc
		if !filepath.IsAbs(incPath) {
			incPath = filepath.Join(baseDir, incPath)
		}
		incRaw, err := loadRawRecursive(incPath, seen)
		if err != nil {
			return nil, err
		}
		merged = mergeMaps(merged, incRaw)
	}

	return mergeMaps(merged, raw), nil
}

// expandEnv substitutes $VAR and ${VAR} references in the raw file.
// The $include directive is not a variable reference and passes through
// untouched.
func expandEnv(s string) string {
	return os.Expand(s, func(name string) string {
		if name == "include" {
			return includeKey
		}
		return os.Getenv(name)
	})
}

func parseRawBytes(data []byte, pathHint string) (map[string]any, error) {
	format := strings.ToLower(filepath.Ext(pathHint))
	if format == ".json" || format == ".json5" {
		var raw map[string]any
		if err := json5.Unmarshal(data, &raw); err != nil {
			return nil, errdefs.Wrap(errdefs.KindConfig, errdefs.ConfigParse, pathHint, err)
		}
		if raw == nil {
			raw = map[string]any{}
		}
		return raw, nil
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		if err == io.EOF {
			return map[string]any{}, nil
		}
		return nil, errdefs.Wrap(errdefs.KindConfig, errdefs.ConfigParse, pathHint, err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, errdefs.New(errdefs.KindConfig, errdefs.ConfigParse,
			pathHint+": expected single document")
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func extractIncludes(raw map[string]any) ([]string, error) {
	var includeVal any
	if val, ok := raw[includeKey]; ok {
		includeVal = val
		delete(raw, includeKey)
	}
	if includeVal == nil {
		return nil, nil
	}

	switch typed := includeVal.(type) {
	case string:
		return []string{typed}, nil
	case []any:
		paths := make([]string, 0, len(typed))
		for _, entry := range typed {
			value, ok := entry.(string)
			if !ok {
				return nil, errdefs.New(errdefs.KindConfig, errdefs.ConfigParse,
					"$include entries must be strings")
			}
			paths = append(paths, value)
		}
		return paths, nil
	default:
		return nil, errdefs.New(errdefs.KindConfig, errdefs.ConfigParse,
			"$include must be a string or list of strings")
	}
}

func mergeMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, value := range src {
		if valueMap, ok := value.(map[string]any); ok {
			if existing, ok := dst[key].(map[string]any); ok {
				dst[key] = mergeMaps(existing, valueMap)
				continue
			}
		}
		dst[key] = value
	}
	return dst
}

func decodeRaw(raw map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindConfig, errdefs.ConfigParse, "serializing config", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(payload, &cfg); err != nil {
		return nil, errdefs.Wrap(errdefs.KindConfig, errdefs.ConfigParse, "decoding config", err)
	}
	return &cfg, nil
}

// envSections lists the top-level keys an environment override can
// target, longest compound names first so lm_studio_port splits as
// lm_studio + port rather than lm + studio_port.
var envSections = []string{
	"preferred_backends",
	"lm_studio",
	"openrouter",
	"ollama",
	"vllm",
	"mcp",
	"security",
	"sessions",
	"logging",
	"max_context_tokens",
	"parallel_tools",
	"cache_responses",
}

// applyEnvOverrides folds QWEN_TUI_* variables into the raw map.
// QWEN_TUI_OLLAMA_HOST sets ollama.host; QWEN_TUI_PARALLEL_TOOLS sets
// parallel_tools. OPENROUTER_API_KEY is a well-known alias for
// openrouter.api_key and never clobbers an explicit value.
func applyEnvOverrides(raw map[string]any) {
	for _, pair := range os.Environ() {
		eq := strings.Index(pair, "=")
		if eq < 0 || !strings.HasPrefix(pair, envPrefix) {
			continue
		}
		key := strings.ToLower(pair[len(envPrefix):eq])
		value := pair[eq+1:]

		section, field := splitEnvKey(key)
		if section == "" {
			continue
		}
		if field == "" {
			raw[section] = parseEnvScalar(section, value)
			continue
		}
		sub, ok := raw[section].(map[string]any)
		if !ok {
			sub = map[string]any{}
			raw[section] = sub
		}
		sub[field] = coerceEnvValue(value)
	}

	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		sub, ok := raw["openrouter"].(map[string]any)
		if !ok {
			sub = map[string]any{}
			raw["openrouter"] = sub
		}
		if _, set := sub["api_key"]; !set {
			sub["api_key"] = key
		}
	}
}

func splitEnvKey(key string) (section, field string) {
	for _, candidate := range envSections {
		if key == candidate {
			return candidate, ""
		}
		if strings.HasPrefix(key, candidate+"_") {
			return candidate, key[len(candidate)+1:]
		}
	}
	return "", ""
}

func parseEnvScalar(section, value string) any {
	if section == "preferred_backends" {
		parts := strings.Split(value, ",")
		list := make([]any, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				list = append(list, trimmed)
			}
		}
		return list
	}
	return coerceEnvValue(value)
}

// coerceEnvValue guesses the scalar type of an environment override so
// numeric and boolean fields pass schema validation. Duration strings
// like "30s" stay strings.
func coerceEnvValue(value string) any {
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	return value
}

// knownKeys is the recognized key tree; a nil value means the section
// is scalar or handled elsewhere.
var knownKeys = map[string]map[string]bool{
	"preferred_backends": nil,
	"max_context_tokens": nil,
	"parallel_tools":     nil,
	"cache_responses":    nil,
	"ollama":             {"host": true, "port": true, "model": true, "timeout": true, "keep_alive": true},
	"lm_studio":          {"host": true, "port": true, "api_key": true, "timeout": true},
	"vllm":               {"host": true, "port": true, "model": true, "timeout": true, "max_tokens": true, "temperature": true},
	"openrouter":         {"api_key": true, "model": true, "base_url": true, "timeout": true},
	"mcp":                {"enabled": true, "servers": true},
	"security":           {"profile": true, "allow_file_write": true, "allow_file_delete": true, "allow_network": true, "require_approval_for": true, "yolo": true},
	"sessions":           {"directory": true},
	"logging":            {"level": true, "format": true},
}

var knownServerKeys = map[string]bool{
	"name": true, "url": true, "enabled": true, "tools": true,
	"timeout": true, "auth": true, "retry_attempts": true,
	"retry_delay": true, "health_check_interval": true,
}

// checkUnknownKeys walks the raw map against the recognized key tree.
// Unknown keys are warnings, except inside mcp.servers entries where a
// typo would silently disable a server, so they are errors.
func checkUnknownKeys(raw map[string]any) ([]string, error) {
	var warnings []string

	for key, value := range raw {
		fields, known := knownKeys[key]
		if !known {
			warnings = append(warnings, "unknown configuration key: "+key)
			continue
		}
		sub, ok := value.(map[string]any)
		if fields == nil || !ok {
			continue
		}
		for field := range sub {
			if !fields[field] {
				warnings = append(warnings, fmt.Sprintf("unknown configuration key: %s.%s", key, field))
			}
		}
		if key == "mcp" {
			if err := checkServerKeys(sub["servers"]); err != nil {
				return nil, err
			}
		}
	}

	sort.Strings(warnings)
	return warnings, nil
}

func checkServerKeys(servers any) error {
	list, ok := servers.([]any)
	if !ok {
		return nil
	}
	for i, entry := range list {
		server, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		for field := range server {
			if !knownServerKeys[field] {
				return errdefs.New(errdefs.KindConfig, errdefs.ConfigValidation,
					fmt.Sprintf("unknown key %q in mcp.servers[%d]", field, i)).
					WithTip("check the server entry for typos; recognized keys are name, url, enabled, tools, timeout, auth, retry_attempts, retry_delay, health_check_interval")
			}
		}
	}
	return nil
}

var validBackendTypes = map[string]bool{
	"ollama": true, "lm_studio": true, "vllm": true, "openrouter": true,
}

// Validate checks cross-field constraints the schema cannot express.
func (c *Config) Validate() error {
	for _, name := range c.PreferredBackends {
		if !validBackendTypes[name] {
			return errdefs.New(errdefs.KindConfig, errdefs.ConfigValidation,
				"unknown backend type in preferred_backends: "+name).
				WithTip("valid types are ollama, lm_studio, vllm, openrouter")
		}
	}
	seen := map[string]bool{}
	for i, srv := range c.MCP.Servers {
		if srv.Name == "" {
			return errdefs.New(errdefs.KindConfig, errdefs.ConfigValidation,
				fmt.Sprintf("mcp.servers[%d] has no name", i))
		}
		if seen[srv.Name] {
			return errdefs.New(errdefs.KindConfig, errdefs.ConfigValidation,
				"duplicate mcp server name: "+srv.Name)
		}
		seen[srv.Name] = true
		if srv.Enabled && !strings.HasPrefix(srv.URL, "ws://") && !strings.HasPrefix(srv.URL, "wss://") {
			return errdefs.New(errdefs.KindConfig, errdefs.ConfigValidation,
				fmt.Sprintf("mcp server %q url must be ws:// or wss://", srv.Name))
		}
	}
	if c.ParallelTools < 0 {
		return errdefs.New(errdefs.KindConfig, errdefs.ConfigValidation,
			"parallel_tools must not be negative")
	}
	if c.MaxContextTokens < 0 {
		return errdefs.New(errdefs.KindConfig, errdefs.ConfigValidation,
			"max_context_tokens must not be negative")
	}
	return nil
}

// app.go assembles the runtime: configuration, observability, backend
// pool, permission engine, tool registry, MCP discovery, and the agent.
package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/qwen-tui/qwen-tui/internal/agent"
	"github.com/qwen-tui/qwen-tui/internal/backend"
	"github.com/qwen-tui/qwen-tui/internal/config"
	"github.com/qwen-tui/qwen-tui/internal/mcp"
	"github.com/qwen-tui/qwen-tui/internal/observability"
	"github.com/qwen-tui/qwen-tui/internal/permission"
	"github.com/qwen-tui/qwen-tui/internal/sessions"
	"github.com/qwen-tui/qwen-tui/internal/tools/files"
	"github.com/qwen-tui/qwen-tui/internal/tools/search"
	"github.com/qwen-tui/qwen-tui/internal/tools/shell"
	"github.com/qwen-tui/qwen-tui/internal/tools/task"
)

// app holds the wired components for one process lifetime.
type app struct {
	cfg      *config.Config
	logger   *observability.Logger
	tracer   *observability.Tracer
	manager  *backend.Manager
	registry *agent.Registry
	audit    *permission.AuditLog
	mcpd     *mcp.Discovery
	store    *sessions.FileStore
	agent    *agent.Agent
	watcher  *config.Watcher

	stopTracing func(context.Context) error
}

type appOptions struct {
	configPath  string
	yolo        bool
	debug       bool
	backend     string
	model       string
	workingDir  string
	prompter    permission.Prompter
	needBackend bool
}

// loadConfig resolves the config file: an explicit --config path must
// exist; the default path falls back to built-in defaults when absent.
func loadConfig(configPath string) (*config.Config, []string, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	path := defaultConfigPath()
	if _, err := os.Stat(path); err != nil {
		return config.LoadDefault()
	}
	return config.Load(path)
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, warnings, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	level := cfg.Logging.Level
	if opts.debug {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:  level,
		Format: cfg.Logging.Format,
	})
	for _, warning := range warnings {
		logger.Warn(ctx, warning)
	}

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	tracer, stopTracing := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "qwen-tui",
		ServiceVersion: version,
	})

	workingDir := opts.workingDir
	if workingDir == "" {
		if workingDir, err = os.Getwd(); err != nil {
			return nil, err
		}
	}

	a := &app{
		cfg:         cfg,
		logger:      logger,
		tracer:      tracer,
		audit:       &permission.AuditLog{},
		stopTracing: stopTracing,
	}

	a.manager = backend.NewManager(&backend.ManagerConfig{
		PreferredBackends: preferredTypes(cfg.PreferredBackends),
	}, logger, metrics)
	if err := a.manager.Discover(ctx, buildDrivers(cfg, logger)); err != nil {
		if opts.needBackend {
			a.Close(ctx)
			return nil, err
		}
		logger.Warn(ctx, "no backends reachable", "error", err)
	}
	a.manager.StartHealthLoop(ctx)

	prefs, err := permission.NewPrefStore(filepath.Join(stateDir(), "permissions.json"))
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	coordinator := permission.NewCoordinator(permission.Config{
		WorkingDir: workingDir,
		Yolo:       opts.yolo || cfg.Security.Yolo,
	}, prefs, a.audit, opts.prompter, logger, metrics)

	a.registry = agent.NewRegistry(coordinator, logger, metrics, tracer)
	if err := registerLocalTools(a.registry, workingDir); err != nil {
		a.Close(ctx)
		return nil, err
	}

	if cfg.MCP.Enabled && len(cfg.MCP.Servers) > 0 {
		a.mcpd = mcp.NewDiscovery(mcpServerConfigs(cfg.MCP.Servers), a.registry, logger, metrics)
		a.mcpd.Start(ctx)
	}

	a.store, err = sessions.NewFileStore(filepath.Join(stateDir(), "sessions"))
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.agent = agent.New(a.manager, a.registry, agent.Config{
		WorkingDir:    workingDir,
		ParallelTools: cfg.ParallelTools,
		Preferred:     backend.Type(opts.backend),
		Model:         opts.model,
	}, logger, tracer)

	a.startConfigWatch(ctx, opts.configPath)
	return a, nil
}

// startConfigWatch hot-reloads the config file. Routing preferences
// apply live; everything else takes effect on restart.
func (a *app) startConfigWatch(ctx context.Context, configPath string) {
	path := configPath
	if path == "" {
		path = defaultConfigPath()
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	a.watcher = config.NewWatcher(path, func(cfg *config.Config, warnings []string) {
		for _, warning := range warnings {
			a.logger.Warn(ctx, warning)
		}
		a.manager.SetPreferenceOrder(preferredTypes(cfg.PreferredBackends))
		a.logger.Info(ctx, "applied routing preferences; other changes take effect on restart",
			"preferred", cfg.PreferredBackends)
	}, a.logger)
	if err := a.watcher.Start(ctx); err != nil {
		a.logger.Warn(ctx, "config watch unavailable", "error", err)
		a.watcher = nil
	}
}

func (a *app) Close(ctx context.Context) {
	if a.watcher != nil {
		_ = a.watcher.Close()
	}
	if a.mcpd != nil {
		a.mcpd.Stop()
	}
	if a.manager != nil {
		a.manager.Shutdown()
	}
	if a.stopTracing != nil {
		_ = a.stopTracing(ctx)
	}
}

func preferredTypes(names []string) []backend.Type {
	types := make([]backend.Type, 0, len(names))
	for _, name := range names {
		types = append(types, backend.Type(name))
	}
	return types
}

func buildDrivers(cfg *config.Config, logger *observability.Logger) []backend.Backend {
	drivers := []backend.Backend{
		backend.NewOllama(backend.OllamaConfig{
			Host:      cfg.Ollama.Host,
			Port:      cfg.Ollama.Port,
			Model:     cfg.Ollama.Model,
			Timeout:   cfg.Ollama.Timeout,
			KeepAlive: cfg.Ollama.KeepAlive,
		}),
		backend.NewLMStudio(backend.LMStudioConfig{
			Host:    cfg.LMStudio.Host,
			Port:    cfg.LMStudio.Port,
			APIKey:  cfg.LMStudio.APIKey,
			Timeout: cfg.LMStudio.Timeout,
		}),
		backend.NewVLLM(backend.VLLMConfig{
			Host:        cfg.VLLM.Host,
			Port:        cfg.VLLM.Port,
			Model:       cfg.VLLM.Model,
			Timeout:     cfg.VLLM.Timeout,
			MaxTokens:   cfg.VLLM.MaxTokens,
			Temperature: cfg.VLLM.Temperature,
		}),
	}
	if cfg.OpenRouter.APIKey != "" {
		router, err := backend.NewOpenRouter(backend.OpenRouterConfig{
			APIKey:  cfg.OpenRouter.APIKey,
			Model:   cfg.OpenRouter.Model,
			BaseURL: cfg.OpenRouter.BaseURL,
			Timeout: cfg.OpenRouter.Timeout,
		})
		if err != nil {
			logger.Warn(context.Background(), "skipping openrouter driver", "error", err)
		} else {
			drivers = append(drivers, router)
		}
	}
	return drivers
}

func registerLocalTools(registry *agent.Registry, workingDir string) error {
	tools := []agent.Tool{
		&files.ReadTool{WorkingDir: workingDir},
		&files.WriteTool{WorkingDir: workingDir},
		&files.EditTool{WorkingDir: workingDir},
		&files.MultiEditTool{WorkingDir: workingDir},
		&search.GrepTool{WorkingDir: workingDir},
		&search.GlobTool{WorkingDir: workingDir},
		&search.LSTool{WorkingDir: workingDir},
		&shell.BashTool{WorkingDir: workingDir},
		&task.Tool{},
	}
	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

func mcpServerConfigs(servers []config.MCPServerConfig) []mcp.ServerConfig {
	configs := make([]mcp.ServerConfig, 0, len(servers))
	for _, srv := range servers {
		configs = append(configs, mcp.ServerConfig{
			Name:          srv.Name,
			URL:           srv.URL,
			Enabled:       srv.Enabled,
			Headers:       srv.Auth,
			RetryAttempts: srv.RetryAttempts,
			RetryDelay:    srv.RetryDelay,
			Timeout:       srv.Timeout,
		})
	}
	return configs
}

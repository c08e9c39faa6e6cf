package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/qwen-tui/qwen-tui/internal/agent"
	"github.com/qwen-tui/qwen-tui/internal/observability"
)

const (
	reconnectInterval = 30 * time.Second
	pingInterval      = 60 * time.Second
	defaultRetries    = 5
	defaultRetryDelay = 5 * time.Second
)

// Registry is the slice of the tool registry the discovery service
// needs: registering adapters on connect and removing them on
// disconnect.
type Registry interface {
	RegisterForServer(server string, tool agent.Tool) error
	RemoveServerTools(server string) []string
}

// clientFactory builds a client per server; tests substitute fakes.
type clientFactory func(config ServerConfig) *Client

// Discovery connects configured MCP servers, registers their tools,
// and keeps connections alive with reconnect and ping loops.
type Discovery struct {
	registry Registry
	logger   *observability.Logger
	metrics  *observability.Metrics
	factory  clientFactory

	mu      sync.Mutex
	servers map[string]*serverEntry
	started bool

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

type serverEntry struct {
	state  ServerState
	client *Client
}

// NewDiscovery creates the discovery service for the given servers.
func NewDiscovery(configs []ServerConfig, registry Registry, logger *observability.Logger, metrics *observability.Metrics) *Discovery {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	d := &Discovery{
		registry: registry,
		logger:   logger.With("component", "mcp-discovery"),
		metrics:  metrics,
		servers:  make(map[string]*serverEntry),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	d.factory = func(config ServerConfig) *Client {
		return NewClient(config, nil, logger)
	}
	for _, config := range configs {
		status := ServerDisconnected
		if !config.Enabled {
			status = ServerDisabled
		}
		d.servers[config.Name] = &serverEntry{
			state: ServerState{Config: config, Status: status},
		}
	}
	return d
}

// Start connects every enabled server in parallel and launches the
// background loops.
func (d *Discovery) Start(ctx context.Context) {
	var wg sync.WaitGroup
	d.mu.Lock()
	d.started = true
	names := make([]string, 0, len(d.servers))
	for name, entry := range d.servers {
		if entry.state.Status != ServerDisabled {
			names = append(names, name)
		}
	}
	d.mu.Unlock()

	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			d.connect(ctx, name)
		}(name)
	}
	wg.Wait()

	go d.run()
}

// Stop disconnects every server and halts the loops. Safe to call even
// when Start never ran.
func (d *Discovery) Stop() {
	d.mu.Lock()
	started := d.started
	d.mu.Unlock()

	d.once.Do(func() { close(d.stop) })
	if started {
		<-d.done
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for name, entry := range d.servers {
		if entry.client != nil {
			entry.client.Close()
			entry.client = nil
		}
		if entry.state.Status == ServerConnected {
			entry.state.Status = ServerDisconnected
		}
		d.registry.RemoveServerTools(name)
	}
}

// States returns a snapshot of every server's state.
func (d *Discovery) States() map[string]ServerState {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]ServerState, len(d.servers))
	for name, entry := range d.servers {
		out[name] = entry.state
	}
	return out
}

func (d *Discovery) run() {
	defer close(d.done)
	reconnect := time.NewTicker(reconnectInterval)
	ping := time.NewTicker(pingInterval)
	defer reconnect.Stop()
	defer ping.Stop()

	for {
		select {
		case <-d.stop:
			return
		case <-reconnect.C:
			d.retryFailed(context.Background())
		case <-ping.C:
			d.pingConnected(context.Background())
		}
	}
}

// connect dials one server, lists its tools, and registers adapters.
func (d *Discovery) connect(ctx context.Context, name string) {
	d.mu.Lock()
	entry, ok := d.servers[name]
	if !ok || entry.state.Status == ServerDisabled {
		d.mu.Unlock()
		return
	}
	entry.state.Status = ServerConnecting
	entry.state.ConnectionAttempts++
	config := entry.state.Config
	d.mu.Unlock()

	client := d.factory(config)
	if err := client.Connect(ctx); err != nil {
		d.setError(name, err)
		return
	}

	tools, err := client.ListTools(ctx)
	if err != nil {
		client.Close()
		d.setError(name, err)
		return
	}

	for _, tool := range tools {
		if regErr := d.registry.RegisterForServer(name, NewAdapter(name, tool, client)); regErr != nil {
			d.logger.Warn(ctx, "registering mcp tool", "server", name, "tool", tool.Name, "error", regErr)
		}
	}

	now := time.Now().UTC()
	d.mu.Lock()
	entry.client = client
	entry.state.Status = ServerConnected
	entry.state.Tools = tools
	entry.state.Info = client.ServerInfo()
	entry.state.LastError = ""
	entry.state.LastConnected = &now
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.MCPConnected.WithLabelValues(name).Set(1)
	}
	d.logger.Info(ctx, "mcp server ready", "server", name, "tools", len(tools))
}

// disconnect removes a server's adapters and closes its client.
func (d *Discovery) disconnect(name string) {
	d.mu.Lock()
	entry, ok := d.servers[name]
	if !ok {
		d.mu.Unlock()
		return
	}
	client := entry.client
	entry.client = nil
	entry.state.Status = ServerDisconnected
	entry.state.Tools = nil
	d.mu.Unlock()

	if client != nil {
		client.Close()
	}
	removed := d.registry.RemoveServerTools(name)
	if d.metrics != nil {
		d.metrics.MCPConnected.WithLabelValues(name).Set(0)
	}
	d.logger.Info(context.Background(), "mcp server disconnected", "server", name, "tools_removed", len(removed))
}

func (d *Discovery) setError(name string, err error) {
	d.mu.Lock()
	if entry, ok := d.servers[name]; ok {
		entry.state.Status = ServerError
		entry.state.LastError = err.Error()
	}
	d.mu.Unlock()
	if d.metrics != nil {
		d.metrics.MCPConnected.WithLabelValues(name).Set(0)
	}
	d.logger.Warn(context.Background(), "mcp server unavailable", "server", name, "error", err)
}

// retryFailed reconnects servers in error state, honoring the
// configured attempt budget.
func (d *Discovery) retryFailed(ctx context.Context) {
	d.mu.Lock()
	var retry []string
	for name, entry := range d.servers {
		if entry.state.Status != ServerError && entry.state.Status != ServerDisconnected {
			continue
		}
		attempts := entry.state.Config.RetryAttempts
		if attempts <= 0 {
			attempts = defaultRetries
		}
		if entry.state.ConnectionAttempts >= attempts {
			continue
		}
		retry = append(retry, name)
	}
	d.mu.Unlock()

	for _, name := range retry {
		delay := d.retryDelay(name)
		if delay > 0 {
			select {
			case <-d.stop:
				return
			case <-time.After(delay):
			}
		}
		d.connect(ctx, name)
	}
}

func (d *Discovery) retryDelay(name string) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if entry, ok := d.servers[name]; ok {
		return entry.state.Config.RetryDelay
	}
	return 0
}

// pingConnected health-checks live servers and recycles the ones that
// fail.
func (d *Discovery) pingConnected(ctx context.Context) {
	d.mu.Lock()
	type probe struct {
		name   string
		client *Client
	}
	var probes []probe
	for name, entry := range d.servers {
		if entry.state.Status == ServerConnected && entry.client != nil {
			probes = append(probes, probe{name: name, client: entry.client})
		}
	}
	d.mu.Unlock()

	for _, p := range probes {
		if err := p.client.Ping(ctx); err != nil {
			d.logger.Warn(ctx, "mcp ping failed", "server", p.name, "error", err)
			d.disconnect(p.name)
			d.connect(ctx, p.name)
		}
	}
}

package mcp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/qwen-tui/qwen-tui/internal/agent"
)

// fakeRegistry records adapter registration per server.
type fakeRegistry struct {
	mu    sync.Mutex
	tools map[string][]string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{tools: make(map[string][]string)}
}

func (r *fakeRegistry) RegisterForServer(server string, tool agent.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[server] = append(r.tools[server], tool.Name())
	return nil
}

func (r *fakeRegistry) RemoveServerTools(server string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := r.tools[server]
	delete(r.tools, server)
	return removed
}

func (r *fakeRegistry) names(server string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.tools[server]...)
}

func discoveryWithFake(t *testing.T, configs []ServerConfig, transports map[string]*fakeTransport) (*Discovery, *fakeRegistry) {
	t.Helper()
	registry := newFakeRegistry()
	d := NewDiscovery(configs, registry, nil, nil)
	d.factory = func(config ServerConfig) *Client {
		transport, ok := transports[config.Name]
		if !ok {
			transport = newFakeTransport()
		}
		return NewClient(config, transport, nil)
	}
	return d, registry
}

func TestDiscoveryRegistersToolsOnConnect(t *testing.T) {
	transport := newFakeTransport()
	transport.responses["initialize"] = initResult()
	transport.responses["tools/list"] = ListToolsResult{Tools: []MCPTool{
		{Name: "forecast"}, {Name: "alerts"},
	}}

	configs := []ServerConfig{{Name: "weather", URL: "ws://localhost:9000", Enabled: true}}
	d, registry := discoveryWithFake(t, configs, map[string]*fakeTransport{"weather": transport})

	d.Start(context.Background())
	defer d.Stop()

	names := registry.names("weather")
	if len(names) != 2 || names[0] != "mcp_weather_forecast" || names[1] != "mcp_weather_alerts" {
		t.Errorf("registered = %v", names)
	}

	state := d.States()["weather"]
	if state.Status != ServerConnected || len(state.Tools) != 2 {
		t.Errorf("state = %+v", state)
	}
}

func TestDiscoverySkipsDisabledServers(t *testing.T) {
	configs := []ServerConfig{{Name: "off", URL: "ws://localhost:9001", Enabled: false}}
	d, registry := discoveryWithFake(t, configs, nil)

	d.Start(context.Background())
	defer d.Stop()

	if state := d.States()["off"]; state.Status != ServerDisabled {
		t.Errorf("status = %s", state.Status)
	}
	if len(registry.names("off")) != 0 {
		t.Error("disabled server registered tools")
	}
}

func TestDiscoveryRecordsConnectFailure(t *testing.T) {
	transport := newFakeTransport()
	transport.errors["initialize"] = &JSONRPCError{Code: ErrCodeInternalError, Message: "boom"}

	configs := []ServerConfig{{Name: "flaky", URL: "ws://localhost:9002", Enabled: true}}
	d, _ := discoveryWithFake(t, configs, map[string]*fakeTransport{"flaky": transport})

	d.Start(context.Background())
	defer d.Stop()

	state := d.States()["flaky"]
	if state.Status != ServerError || state.LastError == "" {
		t.Errorf("state = %+v", state)
	}
	if state.ConnectionAttempts != 1 {
		t.Errorf("attempts = %d", state.ConnectionAttempts)
	}
}

func TestDiscoveryStopWithoutStart(t *testing.T) {
	configs := []ServerConfig{{Name: "srv", URL: "ws://localhost:9003", Enabled: true}}
	d, _ := discoveryWithFake(t, configs, nil)

	done := make(chan struct{})
	go func() {
		d.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked without a prior Start")
	}
}

func TestDiscoveryStopRemovesTools(t *testing.T) {
	transport := newFakeTransport()
	transport.responses["initialize"] = initResult()
	transport.responses["tools/list"] = ListToolsResult{Tools: []MCPTool{{Name: "echo"}}}

	configs := []ServerConfig{{Name: "srv", URL: "ws://localhost:9003", Enabled: true}}
	d, registry := discoveryWithFake(t, configs, map[string]*fakeTransport{"srv": transport})

	d.Start(context.Background())
	if len(registry.names("srv")) != 1 {
		t.Fatal("tool not registered")
	}

	d.Stop()
	if len(registry.names("srv")) != 0 {
		t.Error("tools not removed on stop")
	}
	if transport.Connected() {
		t.Error("client transport left open")
	}
}

func TestDiscoveryPingFailureRecycles(t *testing.T) {
	transport := newFakeTransport()
	transport.responses["initialize"] = initResult()
	transport.responses["tools/list"] = ListToolsResult{Tools: []MCPTool{{Name: "echo"}}}
	transport.errors["ping"] = &JSONRPCError{Code: ErrCodeInternalError, Message: "dead"}

	configs := []ServerConfig{{Name: "srv", URL: "ws://localhost:9004", Enabled: true}}
	d, registry := discoveryWithFake(t, configs, map[string]*fakeTransport{"srv": transport})

	d.Start(context.Background())
	defer d.Stop()

	d.pingConnected(context.Background())

	// Ping failure triggers disconnect then an immediate reconnect
	// attempt against the same scripted transport, which succeeds.
	state := d.States()["srv"]
	if state.Status != ServerConnected {
		t.Errorf("status after recycle = %s", state.Status)
	}
	if len(registry.names("srv")) != 1 {
		t.Errorf("tools after recycle = %v", registry.names("srv"))
	}
}

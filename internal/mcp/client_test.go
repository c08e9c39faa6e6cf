package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
)

// fakeTransport scripts JSON-RPC responses by method.
type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	responses map[string]any
	errors    map[string]error
	calls     []string
	notifies  []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		responses: make(map[string]any),
		errors:    make(map[string]error),
	}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	err := f.errors[method]
	resp := f.responses[method]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if resp == nil {
		return json.RawMessage(`{}`), nil
	}
	data, marshalErr := json.Marshal(resp)
	if marshalErr != nil {
		return nil, marshalErr
	}
	return data, nil
}

func (f *fakeTransport) Notify(ctx context.Context, method string, params any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifies = append(f.notifies, method)
	return nil
}

func initResult() InitializeResult {
	return InitializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      ServerInfo{Name: "test-server", Version: "1.2.3"},
	}
}

func testConfig() ServerConfig {
	return ServerConfig{Name: "test", URL: "ws://localhost:9000/mcp", Enabled: true}
}

func TestClientConnectHandshake(t *testing.T) {
	transport := newFakeTransport()
	transport.responses["initialize"] = initResult()

	client := NewClient(testConfig(), transport, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if info := client.ServerInfo(); info == nil || info.Name != "test-server" {
		t.Errorf("server info = %+v", info)
	}
	if len(transport.calls) != 1 || transport.calls[0] != "initialize" {
		t.Errorf("calls = %v", transport.calls)
	}
}

func TestClientConnectRejectsProtocolMismatch(t *testing.T) {
	transport := newFakeTransport()
	transport.responses["initialize"] = InitializeResult{
		ProtocolVersion: "2.0.0",
		ServerInfo:      ServerInfo{Name: "future"},
	}

	client := NewClient(testConfig(), transport, nil)
	err := client.Connect(context.Background())
	if err == nil {
		t.Fatal("protocol mismatch accepted")
	}
	if transport.Connected() {
		t.Error("transport left open after failed handshake")
	}
}

func TestClientConnectValidatesConfig(t *testing.T) {
	client := NewClient(ServerConfig{Name: "bad", URL: "http://not-ws"}, newFakeTransport(), nil)
	if err := client.Connect(context.Background()); err == nil {
		t.Error("non-websocket url accepted")
	}
}

func TestClientListTools(t *testing.T) {
	transport := newFakeTransport()
	transport.responses["initialize"] = initResult()
	transport.responses["tools/list"] = ListToolsResult{Tools: []MCPTool{
		{Name: "echo", Description: "echoes input"},
		{Name: "forecast"},
	}}

	client := NewClient(testConfig(), transport, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	tools, err := client.ListTools(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(tools) != 2 || tools[0].Name != "echo" {
		t.Errorf("tools = %+v", tools)
	}
}

func TestClientCallTool(t *testing.T) {
	transport := newFakeTransport()
	transport.responses["initialize"] = initResult()
	transport.responses["tools/call"] = ToolCallResult{
		Content: []ToolResultContent{{Type: "text", Text: "pong"}},
	}

	client := NewClient(testConfig(), transport, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	result, err := client.CallTool(context.Background(), "echo", map[string]any{"text": "ping"})
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError || result.Content[0].Text != "pong" {
		t.Errorf("result = %+v", result)
	}
}

func TestClientCloseSendsShutdown(t *testing.T) {
	transport := newFakeTransport()
	transport.responses["initialize"] = initResult()

	client := NewClient(testConfig(), transport, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := client.Close(); err != nil {
		t.Fatal(err)
	}
	if len(transport.notifies) != 1 || transport.notifies[0] != "shutdown" {
		t.Errorf("notifies = %v", transport.notifies)
	}
	if transport.Connected() {
		t.Error("transport still connected")
	}
}

func TestClientPingPropagatesError(t *testing.T) {
	transport := newFakeTransport()
	transport.responses["initialize"] = initResult()
	transport.errors["ping"] = fmt.Errorf("connection lost")

	client := NewClient(testConfig(), transport, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := client.Ping(context.Background()); err == nil {
		t.Error("ping error swallowed")
	}
}

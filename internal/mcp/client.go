package mcp

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/qwen-tui/qwen-tui/internal/errdefs"
	"github.com/qwen-tui/qwen-tui/internal/observability"
)

// defaultRequestTimeout bounds one MCP request.
const defaultRequestTimeout = 30 * time.Second

// clientVersion is reported to servers during initialize.
const clientVersion = "0.1.0"

// Client speaks MCP to one server over a Transport.
type Client struct {
	config    ServerConfig
	transport Transport
	logger    *observability.Logger

	mu         sync.Mutex
	serverInfo *ServerInfo
}

// NewClient creates a client for the configured server. transport may
// be nil, in which case a WebSocket transport is built from the config.
func NewClient(config ServerConfig, transport Transport, logger *observability.Logger) *Client {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if transport == nil {
		transport = NewWebSocketTransport(config.URL, config.Headers, nil)
	}
	return &Client{
		config:    config,
		transport: transport,
		logger:    logger.With("component", "mcp", "server", config.Name),
	}
}

// Connect opens the transport and performs the initialize handshake.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.config.Validate(); err != nil {
		return errdefs.Wrap(errdefs.KindMCP, errdefs.MCPValidation,
			"invalid server configuration", err)
	}
	if err := c.transport.Connect(ctx); err != nil {
		return err
	}

	result, err := c.initialize(ctx)
	if err != nil {
		c.transport.Close()
		return err
	}

	c.mu.Lock()
	c.serverInfo = &result.ServerInfo
	c.mu.Unlock()

	c.logger.Info(ctx, "mcp server connected",
		"server_name", result.ServerInfo.Name, "version", result.ServerInfo.Version)
	return nil
}

func (c *Client) initialize(ctx context.Context) (*InitializeResult, error) {
	raw, err := c.call(ctx, "initialize", InitializeParams{
		ProtocolVersion: ProtocolVersion,
		ClientInfo:      ClientInfo{Name: "qwen-tui", Version: clientVersion},
		Capabilities:    Capabilities{Tools: &ToolsCapability{ListChanged: true}},
	})
	if err != nil {
		return nil, err
	}

	var result InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, errdefs.Wrap(errdefs.KindMCP, errdefs.MCPProtocol,
			"decoding initialize response", err)
	}
	if result.ProtocolVersion != ProtocolVersion {
		return nil, errdefs.New(errdefs.KindMCP, errdefs.MCPProtocol,
			"server speaks protocol "+result.ProtocolVersion+", expected "+ProtocolVersion).
			WithTip("upgrade the server or this client so the protocol versions match")
	}
	return &result, nil
}

// ListTools fetches the server's tool catalog.
func (c *Client) ListTools(ctx context.Context) ([]MCPTool, error) {
	raw, err := c.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var result ListToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, errdefs.Wrap(errdefs.KindMCP, errdefs.MCPProtocol,
			"decoding tools/list response", err)
	}
	return result.Tools, nil
}

// CallTool invokes one remote tool.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolCallResult, error) {
	raw, err := c.call(ctx, "tools/call", CallToolParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, err
	}
	var result ToolCallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, errdefs.Wrap(errdefs.KindMCP, errdefs.MCPProtocol,
			"decoding tools/call response", err)
	}
	return &result, nil
}

// Ping checks server liveness.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, "ping", nil)
	return err
}

// Close notifies the server and tears the transport down.
func (c *Client) Close() error {
	if c.transport.Connected() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := c.transport.Notify(ctx, "shutdown", nil); err != nil {
			c.logger.Debug(ctx, "shutdown notification failed", "error", err)
		}
		cancel()
	}
	return c.transport.Close()
}

// Connected reports transport state.
func (c *Client) Connected() bool { return c.transport.Connected() }

// ServerInfo returns the identity reported at initialize.
func (c *Client) ServerInfo() *ServerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// call applies the per-request timeout around a transport call.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	timeout := c.config.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.transport.Call(callCtx, method, params)
}

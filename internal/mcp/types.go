// Package mcp implements the Model Context Protocol client plane:
// JSON-RPC 2.0 over WebSocket, remote tool discovery, and adapters that
// expose remote tools through the local tool contract.
package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ProtocolVersion is the MCP protocol revision this client speaks.
const ProtocolVersion = "1.0.0"

// ServerConfig describes one configured MCP server.
type ServerConfig struct {
	Name          string            `yaml:"name" json:"name"`
	URL           string            `yaml:"url" json:"url"`
	Enabled       bool              `yaml:"enabled" json:"enabled"`
	Headers       map[string]string `yaml:"headers" json:"headers,omitempty"`
	RetryAttempts int               `yaml:"retry_attempts" json:"retry_attempts,omitempty"`
	RetryDelay    time.Duration     `yaml:"retry_delay" json:"retry_delay,omitempty"`
	Timeout       time.Duration     `yaml:"timeout" json:"timeout,omitempty"`
}

// Validate checks the configuration before a connection is attempted.
func (c *ServerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("server name is required")
	}
	if c.URL == "" {
		return fmt.Errorf("url is required for server %s", c.Name)
	}
	if !strings.HasPrefix(c.URL, "ws://") && !strings.HasPrefix(c.URL, "wss://") {
		return fmt.Errorf("url for server %s must start with ws:// or wss://", c.Name)
	}
	return nil
}

// ServerStatus is the connection state of one server.
type ServerStatus string

const (
	ServerDisconnected ServerStatus = "disconnected"
	ServerConnecting   ServerStatus = "connecting"
	ServerConnected    ServerStatus = "connected"
	ServerError        ServerStatus = "error"
	ServerDisabled     ServerStatus = "disabled"
)

// ServerState is the live record the discovery service keeps per server.
type ServerState struct {
	Config             ServerConfig `json:"config"`
	Status             ServerStatus `json:"status"`
	Info               *ServerInfo  `json:"info,omitempty"`
	Tools              []MCPTool    `json:"tools,omitempty"`
	LastError          string       `json:"last_error,omitempty"`
	LastConnected      *time.Time   `json:"last_connected,omitempty"`
	ConnectionAttempts int          `json:"connection_attempts"`
}

// MCPTool is a tool exposed by a server.
type MCPTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// ToolCallResult is the payload of a tools/call response.
type ToolCallResult struct {
	Content []ToolResultContent `json:"content"`
	IsError bool                `json:"isError,omitempty"`
}

// ToolResultContent is one piece of tool output.
type ToolResultContent struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ServerInfo identifies a server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientInfo identifies this client.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities advertises optional protocol features.
type Capabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

// ToolsCapability describes tool-related capabilities.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// InitializeParams is the payload of the initialize request.
type InitializeParams struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ClientInfo      ClientInfo   `json:"clientInfo"`
	Capabilities    Capabilities `json:"capabilities"`
}

// InitializeResult is the payload of the initialize response.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
	Capabilities    Capabilities `json:"capabilities"`
}

// ListToolsResult is the payload of a tools/list response.
type ListToolsResult struct {
	Tools []MCPTool `json:"tools"`
}

// CallToolParams is the payload of a tools/call request.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// JSON-RPC 2.0 frames.

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the append-only conversation transcript.
// Insertion order is semantically significant.
type Message struct {
	Role       Role           `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// NewMessage builds a message stamped with the current time.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now()}
}

// ToolCall represents a model's request to execute a tool.
// ID is unique within a turn; Name resolves against the registry
// at execution time.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// RawArguments returns the arguments encoded as JSON for transports
// that carry tool parameters as an opaque blob.
func (c ToolCall) RawArguments() json.RawMessage {
	if len(c.Arguments) == 0 {
		return json.RawMessage(`{}`)
	}
	payload, err := json.Marshal(c.Arguments)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return payload
}

// ToolStatus is the lifecycle state of a tool execution.
type ToolStatus string

const (
	ToolStatusPending   ToolStatus = "pending"
	ToolStatusRunning   ToolStatus = "running"
	ToolStatusCompleted ToolStatus = "completed"
	ToolStatusError     ToolStatus = "error"
	ToolStatusCancelled ToolStatus = "cancelled"
)

// ToolResult is the normalized output of one tool execution.
// A result is a success iff Status is completed and Error is empty.
type ToolResult struct {
	ToolName      string         `json:"tool_name"`
	ToolCallID    string         `json:"tool_call_id,omitempty"`
	Status        ToolStatus     `json:"status"`
	Result        any            `json:"result,omitempty"`
	Error         string         `json:"error,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	ExecutionTime float64        `json:"execution_time_seconds"`
}

// Success reports whether the execution completed without error.
func (r *ToolResult) Success() bool {
	return r != nil && r.Status == ToolStatusCompleted && r.Error == ""
}

// Text renders the result payload as a string for transcript appends.
func (r *ToolResult) Text() string {
	if r == nil {
		return ""
	}
	if r.Error != "" {
		return r.Error
	}
	switch v := r.Result.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		payload, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(payload)
	}
}

package mcp

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/qwen-tui/qwen-tui/internal/errdefs"
	"github.com/qwen-tui/qwen-tui/pkg/models"
)

// Adapter exposes one remote MCP tool through the local tool contract.
// The registry name is mangled to mcp_<server>_<tool> so remote tools
// never collide with local ones.
type Adapter struct {
	server string
	tool   MCPTool
	client *Client
}

// NewAdapter wraps a remote tool. The client reference is shared with
// the discovery service, which owns its lifetime.
func NewAdapter(server string, tool MCPTool, client *Client) *Adapter {
	return &Adapter{server: server, tool: tool, client: client}
}

func (a *Adapter) Name() string {
	return fmt.Sprintf("mcp_%s_%s", a.server, a.tool.Name)
}

func (a *Adapter) Description() string {
	desc := a.tool.Description
	if desc == "" {
		desc = "remote tool " + a.tool.Name
	}
	return fmt.Sprintf("[%s] %s", a.server, desc)
}

func (a *Adapter) Schema() map[string]any {
	if a.tool.InputSchema != nil {
		return a.tool.InputSchema
	}
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (a *Adapter) Execute(ctx context.Context, args map[string]any) (*models.ToolResult, error) {
	coerced, err := a.coerceArguments(args)
	if err != nil {
		return nil, err
	}

	result, err := a.client.CallTool(ctx, a.tool.Name, coerced)
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{
		"mcp_server": a.server,
		"mcp_tool":   a.tool.Name,
	}
	if result.IsError {
		return &models.ToolResult{
			Status:   models.ToolStatusError,
			Error:    renderText(result.Content),
			Metadata: metadata,
		}, nil
	}
	return &models.ToolResult{
		Status:   models.ToolStatusCompleted,
		Result:   convertContent(result.Content),
		Metadata: metadata,
	}, nil
}

// coerceArguments converts argument values to the types the schema
// declares and enforces enum membership.
func (a *Adapter) coerceArguments(args map[string]any) (map[string]any, error) {
	props, _ := a.Schema()["properties"].(map[string]any)
	if props == nil {
		return args, nil
	}

	out := make(map[string]any, len(args))
	for key, value := range args {
		spec, ok := props[key].(map[string]any)
		if !ok {
			out[key] = value
			continue
		}
		coerced, err := coerceValue(value, spec)
		if err != nil {
			return nil, errdefs.Wrap(errdefs.KindMCP, errdefs.MCPValidation,
				fmt.Sprintf("parameter %q for %s", key, a.tool.Name), err)
		}
		out[key] = coerced
	}
	return out, nil
}

func coerceValue(value any, spec map[string]any) (any, error) {
	typ, _ := spec["type"].(string)
	switch typ {
	case "string":
		if s, ok := value.(string); ok {
			value = s
		} else {
			value = fmt.Sprintf("%v", value)
		}
	case "integer":
		switch v := value.(type) {
		case float64:
			value = int(v)
		case int:
		case string:
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("%q is not an integer", v)
			}
			value = n
		default:
			return nil, fmt.Errorf("%v is not an integer", value)
		}
	case "number":
		switch v := value.(type) {
		case float64, int:
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("%q is not a number", v)
			}
			value = f
		default:
			return nil, fmt.Errorf("%v is not a number", value)
		}
	case "boolean":
		switch v := value.(type) {
		case bool:
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("%q is not a boolean", v)
			}
			value = b
		default:
			return nil, fmt.Errorf("%v is not a boolean", value)
		}
	}

	if enum, ok := spec["enum"].([]any); ok && len(enum) > 0 {
		found := false
		for _, allowed := range enum {
			if fmt.Sprintf("%v", allowed) == fmt.Sprintf("%v", value) {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%v is not one of the allowed values", value)
		}
	}
	return value, nil
}

// convertContent maps a tool-call result to the local result shape:
// one text item becomes a string, several text items join with
// newlines, and mixed content becomes a structured object.
func convertContent(content []ToolResultContent) any {
	if len(content) == 0 {
		return ""
	}

	allText := true
	for _, item := range content {
		if item.Type != "text" {
			allText = false
			break
		}
	}

	if allText {
		if len(content) == 1 {
			return content[0].Text
		}
		parts := make([]string, len(content))
		for i, item := range content {
			parts[i] = item.Text
		}
		return strings.Join(parts, "\n")
	}

	var texts []string
	var data []any
	for _, item := range content {
		if item.Type == "text" {
			texts = append(texts, item.Text)
		} else {
			data = append(data, map[string]any{
				"type":     item.Type,
				"data":     item.Data,
				"mimeType": item.MimeType,
			})
		}
	}
	return map[string]any{
		"text":        strings.Join(texts, "\n"),
		"data":        data,
		"all_content": content,
	}
}

func renderText(content []ToolResultContent) string {
	var parts []string
	for _, item := range content {
		if item.Text != "" {
			parts = append(parts, item.Text)
		}
	}
	if len(parts) == 0 {
		return "remote tool reported an error"
	}
	return strings.Join(parts, "\n")
}

package mcp

import (
	"context"
	"strings"
	"testing"

	"github.com/qwen-tui/qwen-tui/pkg/models"
)

func adapterWithResult(t *testing.T, tool MCPTool, result ToolCallResult) *Adapter {
	t.Helper()
	transport := newFakeTransport()
	transport.responses["initialize"] = initResult()
	transport.responses["tools/call"] = result

	client := NewClient(testConfig(), transport, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	return NewAdapter("weather", tool, client)
}

func TestAdapterNameMangling(t *testing.T) {
	a := NewAdapter("weather", MCPTool{Name: "forecast"}, nil)
	if a.Name() != "mcp_weather_forecast" {
		t.Errorf("name = %q", a.Name())
	}
}

func TestAdapterSingleTextResult(t *testing.T) {
	a := adapterWithResult(t, MCPTool{Name: "echo"}, ToolCallResult{
		Content: []ToolResultContent{{Type: "text", Text: "hello back"}},
	})

	res, err := a.Execute(context.Background(), map[string]any{"text": "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != models.ToolStatusCompleted {
		t.Errorf("status = %s", res.Status)
	}
	if res.Result != "hello back" {
		t.Errorf("result = %v (%T)", res.Result, res.Result)
	}
	if res.Metadata["mcp_server"] != "weather" {
		t.Errorf("metadata = %v", res.Metadata)
	}
}

func TestAdapterMultipleTextItemsJoin(t *testing.T) {
	a := adapterWithResult(t, MCPTool{Name: "echo"}, ToolCallResult{
		Content: []ToolResultContent{
			{Type: "text", Text: "line one"},
			{Type: "text", Text: "line two"},
		},
	})

	res, err := a.Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Result != "line one\nline two" {
		t.Errorf("result = %v", res.Result)
	}
}

func TestAdapterMixedContentStructured(t *testing.T) {
	a := adapterWithResult(t, MCPTool{Name: "chart"}, ToolCallResult{
		Content: []ToolResultContent{
			{Type: "text", Text: "summary"},
			{Type: "image", Data: "base64data", MimeType: "image/png"},
		},
	})

	res, err := a.Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	structured, ok := res.Result.(map[string]any)
	if !ok {
		t.Fatalf("result = %T", res.Result)
	}
	if structured["text"] != "summary" {
		t.Errorf("text = %v", structured["text"])
	}
	if structured["data"] == nil || structured["all_content"] == nil {
		t.Errorf("structured = %v", structured)
	}
}

func TestAdapterErrorResult(t *testing.T) {
	a := adapterWithResult(t, MCPTool{Name: "echo"}, ToolCallResult{
		IsError: true,
		Content: []ToolResultContent{{Type: "text", Text: "tool exploded"}},
	})

	res, err := a.Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != models.ToolStatusError || res.Error != "tool exploded" {
		t.Errorf("result = %+v", res)
	}
}

func TestAdapterCoercesParameterTypes(t *testing.T) {
	tool := MCPTool{
		Name: "configure",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"count":   map[string]any{"type": "integer"},
				"ratio":   map[string]any{"type": "number"},
				"verbose": map[string]any{"type": "boolean"},
				"label":   map[string]any{"type": "string"},
			},
		},
	}
	a := NewAdapter("srv", tool, nil)

	coerced, err := a.coerceArguments(map[string]any{
		"count":   "42",
		"ratio":   "0.5",
		"verbose": "true",
		"label":   7,
	})
	if err != nil {
		t.Fatal(err)
	}
	if coerced["count"] != 42 {
		t.Errorf("count = %v (%T)", coerced["count"], coerced["count"])
	}
	if coerced["ratio"] != 0.5 {
		t.Errorf("ratio = %v", coerced["ratio"])
	}
	if coerced["verbose"] != true {
		t.Errorf("verbose = %v", coerced["verbose"])
	}
	if coerced["label"] != "7" {
		t.Errorf("label = %v", coerced["label"])
	}
}

func TestAdapterEnforcesEnum(t *testing.T) {
	tool := MCPTool{
		Name: "setmode",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"mode": map[string]any{
					"type": "string",
					"enum": []any{"fast", "slow"},
				},
			},
		},
	}
	a := NewAdapter("srv", tool, nil)

	if _, err := a.coerceArguments(map[string]any{"mode": "fast"}); err != nil {
		t.Errorf("valid enum rejected: %v", err)
	}
	_, err := a.coerceArguments(map[string]any{"mode": "warp"})
	if err == nil || !strings.Contains(err.Error(), "allowed values") {
		t.Errorf("err = %v", err)
	}
}

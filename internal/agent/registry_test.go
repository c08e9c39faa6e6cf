package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/qwen-tui/qwen-tui/pkg/models"
)

type fakeTool struct {
	name    string
	desc    string
	execute func(ctx context.Context, args map[string]any) (*models.ToolResult, error)
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return f.desc }
func (f *fakeTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"input": map[string]any{"type": "string"},
		},
	}
}

func (f *fakeTool) Execute(ctx context.Context, args map[string]any) (*models.ToolResult, error) {
	if f.execute != nil {
		return f.execute(ctx, args)
	}
	return &models.ToolResult{Status: models.ToolStatusCompleted, Result: "ok"}, nil
}

type fakeChecker struct {
	err error
}

func (f *fakeChecker) Approve(ctx context.Context, tool string, args map[string]any) error {
	return f.err
}

func newTestRegistry(t *testing.T, checker PermissionChecker) *Registry {
	t.Helper()
	return NewRegistry(checker, nil, nil, nil)
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := newTestRegistry(t, nil)
	if err := r.Register(&fakeTool{name: "read_file"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, ok := r.Get("read_file"); !ok {
		t.Fatal("tool not found after register")
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatal("unexpected tool")
	}
}

func TestRegistryRejectsBadNames(t *testing.T) {
	r := newTestRegistry(t, nil)
	if err := r.Register(&fakeTool{name: "  "}); err == nil {
		t.Error("empty name accepted")
	}
	if err := r.Register(&fakeTool{name: strings.Repeat("x", MaxToolNameLength+1)}); err == nil {
		t.Error("oversized name accepted")
	}
	if err := r.Register(nil); err == nil {
		t.Error("nil tool accepted")
	}
}

func TestRegistryRegisterUnregisterRestoresState(t *testing.T) {
	r := newTestRegistry(t, nil)
	if err := r.Register(&fakeTool{name: "read_file"}); err != nil {
		t.Fatal(err)
	}
	before := r.List()

	if err := r.Register(&fakeTool{name: "transient"}); err != nil {
		t.Fatal(err)
	}
	r.Unregister("transient")

	after := r.List()
	if len(after) != len(before) || after[0] != before[0] {
		t.Errorf("list = %v, want %v", after, before)
	}
}

func TestRegistryRemoveServerTools(t *testing.T) {
	r := newTestRegistry(t, nil)
	r.Register(&fakeTool{name: "read_file"})
	r.RegisterForServer("weather", &fakeTool{name: "mcp_weather_forecast"})
	r.RegisterForServer("weather", &fakeTool{name: "mcp_weather_alerts"})
	r.RegisterForServer("calc", &fakeTool{name: "mcp_calc_eval"})

	removed := r.RemoveServerTools("weather")
	if len(removed) != 2 {
		t.Fatalf("removed = %v", removed)
	}
	if _, ok := r.Get("mcp_weather_forecast"); ok {
		t.Error("server tool still registered")
	}
	if _, ok := r.Get("read_file"); !ok {
		t.Error("local tool removed")
	}
	if _, ok := r.Get("mcp_calc_eval"); !ok {
		t.Error("other server's tool removed")
	}
}

func TestRegistryOpenAISchemasSorted(t *testing.T) {
	r := newTestRegistry(t, nil)
	r.Register(&fakeTool{name: "write_file", desc: "writes"})
	r.Register(&fakeTool{name: "bash", desc: "runs commands"})

	schemas := r.OpenAISchemas()
	if len(schemas) != 2 {
		t.Fatalf("got %d schemas", len(schemas))
	}
	if schemas[0].Name != "bash" || schemas[1].Name != "write_file" {
		t.Errorf("order = %s, %s", schemas[0].Name, schemas[1].Name)
	}
	if schemas[0].Description != "runs commands" {
		t.Errorf("description = %q", schemas[0].Description)
	}
	if schemas[0].Parameters["type"] != "object" {
		t.Errorf("parameters = %v", schemas[0].Parameters)
	}
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := newTestRegistry(t, nil)
	res := r.Execute(context.Background(), models.ToolCall{ID: "1", Name: "nope"})
	if res.Status != models.ToolStatusError {
		t.Errorf("status = %s", res.Status)
	}
	if !strings.Contains(res.Error, "not registered") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestRegistryExecutePermissionDenied(t *testing.T) {
	r := newTestRegistry(t, &fakeChecker{err: errors.New("denied at prompt")})
	called := false
	r.Register(&fakeTool{name: "bash", execute: func(ctx context.Context, args map[string]any) (*models.ToolResult, error) {
		called = true
		return &models.ToolResult{Status: models.ToolStatusCompleted}, nil
	}})

	res := r.Execute(context.Background(), models.ToolCall{ID: "1", Name: "bash"})
	if called {
		t.Error("tool ran despite denial")
	}
	if res.Status != models.ToolStatusError || res.Error != "Permission denied by user" {
		t.Errorf("result = %+v", res)
	}
}

func TestRegistryExecuteCapturesPanic(t *testing.T) {
	r := newTestRegistry(t, nil)
	r.Register(&fakeTool{name: "bomb", execute: func(ctx context.Context, args map[string]any) (*models.ToolResult, error) {
		panic("boom")
	}})

	res := r.Execute(context.Background(), models.ToolCall{ID: "1", Name: "bomb"})
	if res.Status != models.ToolStatusError {
		t.Errorf("status = %s", res.Status)
	}
	if !strings.Contains(res.Error, "boom") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestRegistryExecuteRecordsTiming(t *testing.T) {
	r := newTestRegistry(t, nil)
	r.Register(&fakeTool{name: "slow", execute: func(ctx context.Context, args map[string]any) (*models.ToolResult, error) {
		time.Sleep(10 * time.Millisecond)
		return &models.ToolResult{Status: models.ToolStatusCompleted}, nil
	}})

	res := r.Execute(context.Background(), models.ToolCall{ID: "1", Name: "slow"})
	if res.ExecutionTime <= 0 {
		t.Errorf("execution time = %v", res.ExecutionTime)
	}
	if res.ToolName != "slow" || res.ToolCallID != "1" {
		t.Errorf("identity fields = %q %q", res.ToolName, res.ToolCallID)
	}
}

func TestRegistryExecuteErrorReturn(t *testing.T) {
	r := newTestRegistry(t, nil)
	r.Register(&fakeTool{name: "fail", execute: func(ctx context.Context, args map[string]any) (*models.ToolResult, error) {
		return nil, errors.New("disk full")
	}})

	res := r.Execute(context.Background(), models.ToolCall{ID: "1", Name: "fail"})
	if res.Status != models.ToolStatusError || res.Error != "disk full" {
		t.Errorf("result = %+v", res)
	}
}

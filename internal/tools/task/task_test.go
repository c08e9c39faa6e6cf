package task

import (
	"context"
	"strings"
	"testing"

	"github.com/qwen-tui/qwen-tui/pkg/models"
)

func TestTaskAcceptsValidInput(t *testing.T) {
	tool := &Tool{}
	res, err := tool.Execute(context.Background(), map[string]any{
		"description": "refactor config",
		"prompt":      "Split the loader into parse and validate stages.",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != models.ToolStatusCompleted {
		t.Errorf("status = %s", res.Status)
	}
	if !strings.Contains(res.Result.(string), "refactor config") {
		t.Errorf("result = %v", res.Result)
	}
}

func TestTaskRejectsLongDescription(t *testing.T) {
	tool := &Tool{}
	_, err := tool.Execute(context.Background(), map[string]any{
		"description": strings.Repeat("x", 101),
		"prompt":      "A prompt of sufficient length.",
	})
	if err == nil || !strings.Contains(err.Error(), "maximum") {
		t.Errorf("err = %v", err)
	}
}

func TestTaskRejectsShortPrompt(t *testing.T) {
	tool := &Tool{}
	_, err := tool.Execute(context.Background(), map[string]any{
		"description": "ok",
		"prompt":      "too short",
	})
	if err == nil || !strings.Contains(err.Error(), "minimum") {
		t.Errorf("err = %v", err)
	}
}

func TestTaskRequiresBothFields(t *testing.T) {
	tool := &Tool{}
	if _, err := tool.Execute(context.Background(), map[string]any{"description": "x"}); err == nil {
		t.Error("missing prompt accepted")
	}
	if _, err := tool.Execute(context.Background(), map[string]any{"prompt": "a long enough prompt"}); err == nil {
		t.Error("missing description accepted")
	}
}

// Package task implements the Task tool, a structured delegation
// placeholder. It validates its inputs and reports a summary without
// spawning a nested agent.
package task

import (
	"context"
	"fmt"

	"github.com/qwen-tui/qwen-tui/internal/errdefs"
	"github.com/qwen-tui/qwen-tui/internal/tools/toolutil"
	"github.com/qwen-tui/qwen-tui/pkg/models"
)

const (
	maxDescriptionLength = 100
	minPromptLength      = 10
)

// Tool accepts a delegated sub-task description and prompt.
type Tool struct{}

func (t *Tool) Name() string { return "Task" }

func (t *Tool) Description() string {
	return "Delegate a self-contained sub-task. description is a short label (max 100 chars); prompt is the full task statement (min 10 chars)."
}

func (t *Tool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"description": map[string]any{"type": "string", "description": "Short label for the sub-task"},
			"prompt":      map[string]any{"type": "string", "description": "Full task statement"},
		},
		"required": []string{"description", "prompt"},
	}
}

func (t *Tool) Execute(ctx context.Context, args map[string]any) (*models.ToolResult, error) {
	description, err := toolutil.RequiredString(args, "description")
	if err != nil {
		return nil, err
	}
	if len(description) > maxDescriptionLength {
		return nil, errdefs.New(errdefs.KindTool, errdefs.ToolParameter,
			fmt.Sprintf("description is %d characters, the maximum is %d", len(description), maxDescriptionLength))
	}
	prompt, err := toolutil.RequiredString(args, "prompt")
	if err != nil {
		return nil, err
	}
	if len(prompt) < minPromptLength {
		return nil, errdefs.New(errdefs.KindTool, errdefs.ToolParameter,
			fmt.Sprintf("prompt is %d characters, the minimum is %d", len(prompt), minPromptLength)).
			WithTip("state the sub-task fully so it can run without additional context")
	}

	return &models.ToolResult{
		Status: models.ToolStatusCompleted,
		Result: fmt.Sprintf("Accepted task %q (%d character prompt)", description, len(prompt)),
		Metadata: map[string]any{
			"description": description,
			"prompt_size": len(prompt),
		},
	}, nil
}

package files

import (
	"context"
	"fmt"
	"os"

	"github.com/qwen-tui/qwen-tui/internal/errdefs"
	"github.com/qwen-tui/qwen-tui/internal/tools/toolutil"
	"github.com/qwen-tui/qwen-tui/pkg/models"
)

// MultiEditTool applies a sequence of edits to one file. The edits run
// against an in-memory copy and the file is written once at the end,
// so a failing edit leaves the file untouched.
type MultiEditTool struct {
	WorkingDir string
}

func (t *MultiEditTool) Name() string { return "MultiEdit" }

func (t *MultiEditTool) Description() string {
	return "Apply multiple Edit operations to one file atomically. If any edit fails, the file is not modified."
}

func (t *MultiEditTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{"type": "string", "description": "Path to edit"},
			"edits": map[string]any{
				"type":        "array",
				"description": "Edits applied in order",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"old_string":  map[string]any{"type": "string"},
						"new_string":  map[string]any{"type": "string"},
						"replace_all": map[string]any{"type": "boolean"},
					},
					"required": []string{"old_string", "new_string"},
				},
			},
		},
		"required": []string{"file_path", "edits"},
	}
}

func (t *MultiEditTool) Execute(ctx context.Context, args map[string]any) (*models.ToolResult, error) {
	path, err := toolutil.RequiredString(args, "file_path")
	if err != nil {
		return nil, err
	}
	rawEdits, ok := args["edits"].([]any)
	if !ok || len(rawEdits) == 0 {
		return nil, errdefs.New(errdefs.KindTool, errdefs.ToolParameter,
			`"edits" must be a non-empty array`)
	}
	abs := resolve(t.WorkingDir, path)

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindTool, errdefs.ToolFileSystem,
			"reading "+path, err)
	}

	content := string(data)
	total := 0
	for i, raw := range rawEdits {
		edit, ok := raw.(map[string]any)
		if !ok {
			return nil, errdefs.New(errdefs.KindTool, errdefs.ToolParameter,
				fmt.Sprintf("edit %d is not an object", i+1))
		}
		oldStr, ok := toolutil.String(edit, "old_string")
		if !ok || oldStr == "" {
			return nil, errdefs.New(errdefs.KindTool, errdefs.ToolParameter,
				fmt.Sprintf("edit %d is missing old_string", i+1))
		}
		newStr, ok := toolutil.String(edit, "new_string")
		if !ok {
			return nil, errdefs.New(errdefs.KindTool, errdefs.ToolParameter,
				fmt.Sprintf("edit %d is missing new_string", i+1))
		}

		edited, count, editErr := applyEdit(content, oldStr, newStr,
			toolutil.BoolOr(edit, "replace_all", false))
		if editErr != nil {
			return nil, errdefs.Wrap(errdefs.KindTool, errdefs.ToolParameter,
				fmt.Sprintf("edit %d of %d failed, file not modified", i+1, len(rawEdits)), editErr)
		}
		content = edited
		total += count
	}

	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return nil, errdefs.Wrap(errdefs.KindTool, errdefs.ToolFileSystem,
			"writing "+path, err)
	}

	return &models.ToolResult{
		Status: models.ToolStatusCompleted,
		Result: fmt.Sprintf("Applied %d edit(s) with %d replacement(s) in %s", len(rawEdits), total, path),
		Metadata: map[string]any{
			"file_path":    abs,
			"edits":        len(rawEdits),
			"replacements": total,
		},
	}, nil
}

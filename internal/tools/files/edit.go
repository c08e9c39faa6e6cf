package files

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/qwen-tui/qwen-tui/internal/errdefs"
	"github.com/qwen-tui/qwen-tui/internal/tools/toolutil"
	"github.com/qwen-tui/qwen-tui/pkg/models"
)

// EditTool replaces an exact literal substring in a file.
type EditTool struct {
	WorkingDir string
}

func (t *EditTool) Name() string { return "Edit" }

func (t *EditTool) Description() string {
	return "Replace an exact literal substring in a file. Fails if the target appears more than once unless replace_all is set."
}

func (t *EditTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path":   map[string]any{"type": "string", "description": "Path to edit"},
			"old_string":  map[string]any{"type": "string", "description": "Exact text to replace"},
			"new_string":  map[string]any{"type": "string", "description": "Replacement text"},
			"replace_all": map[string]any{"type": "boolean", "description": "Replace every occurrence"},
		},
		"required": []string{"file_path", "old_string", "new_string"},
	}
}

func (t *EditTool) Execute(ctx context.Context, args map[string]any) (*models.ToolResult, error) {
	path, err := toolutil.RequiredString(args, "file_path")
	if err != nil {
		return nil, err
	}
	oldStr, err := toolutil.RequiredString(args, "old_string")
	if err != nil {
		return nil, err
	}
	newStr, ok := toolutil.String(args, "new_string")
	if !ok {
		return nil, errdefs.New(errdefs.KindTool, errdefs.ToolParameter,
			`missing required parameter "new_string"`)
	}
	abs := resolve(t.WorkingDir, path)

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindTool, errdefs.ToolFileSystem,
			"reading "+path, err)
	}

	edited, count, err := applyEdit(string(data), oldStr, newStr,
		toolutil.BoolOr(args, "replace_all", false))
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(abs, []byte(edited), 0o644); err != nil {
		return nil, errdefs.Wrap(errdefs.KindTool, errdefs.ToolFileSystem,
			"writing "+path, err)
	}

	return &models.ToolResult{
		Status: models.ToolStatusCompleted,
		Result: fmt.Sprintf("Replaced %d occurrence(s) in %s", count, path),
		Metadata: map[string]any{
			"file_path":    abs,
			"replacements": count,
		},
	}, nil
}

// applyEdit performs one literal replacement in memory.
func applyEdit(content, oldStr, newStr string, replaceAll bool) (string, int, error) {
	count := strings.Count(content, oldStr)
	if count == 0 {
		return "", 0, errdefs.New(errdefs.KindTool, errdefs.ToolParameter,
			"old_string not found in file").
			WithTip("Read the file first and copy the target text exactly, including whitespace")
	}
	if count > 1 && !replaceAll {
		return "", 0, errdefs.New(errdefs.KindTool, errdefs.ToolParameter,
			fmt.Sprintf("old_string appears %d times in the file", count)).
			WithTip("make the target unique by including surrounding lines, or set replace_all")
	}
	return strings.ReplaceAll(content, oldStr, newStr), count, nil
}

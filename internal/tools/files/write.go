package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/qwen-tui/qwen-tui/internal/errdefs"
	"github.com/qwen-tui/qwen-tui/internal/tools/toolutil"
	"github.com/qwen-tui/qwen-tui/pkg/models"
)

// WriteTool writes content to a file, optionally creating parent
// directories.
type WriteTool struct {
	WorkingDir string
}

func (t *WriteTool) Name() string { return "Write" }

func (t *WriteTool) Description() string {
	return "Write content to a file, overwriting any existing content. Set create_dirs to create missing parent directories."
}

func (t *WriteTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path":   map[string]any{"type": "string", "description": "Path to write"},
			"content":     map[string]any{"type": "string", "description": "Content to write"},
			"create_dirs": map[string]any{"type": "boolean", "description": "Create missing parent directories"},
		},
		"required": []string{"file_path", "content"},
	}
}

func (t *WriteTool) Execute(ctx context.Context, args map[string]any) (*models.ToolResult, error) {
	path, err := toolutil.RequiredString(args, "file_path")
	if err != nil {
		return nil, err
	}
	content, ok := toolutil.String(args, "content")
	if !ok {
		return nil, errdefs.New(errdefs.KindTool, errdefs.ToolParameter,
			`missing required parameter "content"`)
	}
	abs := resolve(t.WorkingDir, path)

	overwrote := false
	originalSize := int64(0)
	if info, statErr := os.Stat(abs); statErr == nil {
		if info.IsDir() {
			return nil, errdefs.New(errdefs.KindTool, errdefs.ToolFileSystem,
				path+" is a directory")
		}
		overwrote = true
		originalSize = info.Size()
	}

	if toolutil.BoolOr(args, "create_dirs", false) {
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return nil, errdefs.Wrap(errdefs.KindTool, errdefs.ToolFileSystem,
				"creating parent directories for "+path, err)
		}
	}

	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		if os.IsNotExist(err) {
			return nil, errdefs.Wrap(errdefs.KindTool, errdefs.ToolFileSystem,
				"writing "+path, err).
				WithTip("set create_dirs to true to create missing parent directories")
		}
		return nil, errdefs.Wrap(errdefs.KindTool, errdefs.ToolFileSystem,
			"writing "+path, err)
	}

	verb := "Created"
	if overwrote {
		verb = "Overwrote"
	}
	return &models.ToolResult{
		Status: models.ToolStatusCompleted,
		Result: fmt.Sprintf("%s %s (%d bytes)", verb, path, len(content)),
		Metadata: map[string]any{
			"file_path":     abs,
			"bytes_written": len(content),
			"overwrote":     overwrote,
			"original_size": originalSize,
		},
	}, nil
}

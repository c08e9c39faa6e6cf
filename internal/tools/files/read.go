// Package files implements the local file tools: Read, Write, Edit,
// and MultiEdit.
package files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/qwen-tui/qwen-tui/internal/errdefs"
	"github.com/qwen-tui/qwen-tui/internal/tools/toolutil"
	"github.com/qwen-tui/qwen-tui/pkg/models"
)

// maxLineLength truncates pathological single lines in Read output.
const maxLineLength = 2000

// ReadTool reads a UTF-8 text file with line numbers.
type ReadTool struct {
	WorkingDir string
}

func (t *ReadTool) Name() string { return "Read" }

func (t *ReadTool) Description() string {
	return "Read a UTF-8 text file. Returns content with line numbers. Supports optional offset (1-based line) and limit."
}

func (t *ReadTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{"type": "string", "description": "Path to the file to read"},
			"offset":    map[string]any{"type": "integer", "description": "1-based first line to read"},
			"limit":     map[string]any{"type": "integer", "description": "Maximum number of lines to return"},
		},
		"required": []string{"file_path"},
	}
}

func (t *ReadTool) Execute(ctx context.Context, args map[string]any) (*models.ToolResult, error) {
	path, err := toolutil.RequiredString(args, "file_path")
	if err != nil {
		return nil, err
	}
	abs := resolve(t.WorkingDir, path)

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errdefs.New(errdefs.KindTool, errdefs.ToolFileSystem,
				fmt.Sprintf("file not found: %s", path)).
				WithTip("check the path with LS or Glob first")
		}
		return nil, errdefs.Wrap(errdefs.KindTool, errdefs.ToolFileSystem,
			"reading "+path, err)
	}
	if !utf8.Valid(data) {
		return nil, errdefs.New(errdefs.KindTool, errdefs.ToolFileSystem,
			fmt.Sprintf("%s is not valid UTF-8 text", path)).
			WithTip("Read only handles text files")
	}

	lines := strings.Split(string(data), "\n")
	offset := toolutil.IntOr(args, "offset", 1)
	if offset < 1 {
		offset = 1
	}
	limit := toolutil.IntOr(args, "limit", 0)

	if offset > len(lines) {
		return &models.ToolResult{
			Status: models.ToolStatusCompleted,
			Result: "",
			Metadata: map[string]any{
				"file_path":   abs,
				"total_lines": len(lines),
				"offset":      offset,
				"returned":    0,
				"message":     "Offset beyond end of file",
			},
		}, nil
	}

	end := len(lines)
	if limit > 0 && offset-1+limit < end {
		end = offset - 1 + limit
	}

	var sb strings.Builder
	for i := offset - 1; i < end; i++ {
		line := lines[i]
		if len(line) > maxLineLength {
			line = line[:maxLineLength] + "..."
		}
		fmt.Fprintf(&sb, "%6d\t%s\n", i+1, line)
	}

	return &models.ToolResult{
		Status: models.ToolStatusCompleted,
		Result: sb.String(),
		Metadata: map[string]any{
			"file_path":   abs,
			"total_lines": len(lines),
			"offset":      offset,
			"returned":    end - (offset - 1),
		},
	}, nil
}

// resolve anchors a possibly relative path at the working directory.
func resolve(workingDir, path string) string {
	if filepath.IsAbs(path) || workingDir == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(workingDir, path)
}

package search

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar"

	"github.com/qwen-tui/qwen-tui/internal/errdefs"
	"github.com/qwen-tui/qwen-tui/internal/tools/toolutil"
	"github.com/qwen-tui/qwen-tui/pkg/models"
)

// defaultLSMaxDepth bounds recursive listings.
const defaultLSMaxDepth = 3

// LSTool lists directory contents with bounded recursion.
type LSTool struct {
	WorkingDir string
}

func (t *LSTool) Name() string { return "LS" }

func (t *LSTool) Description() string {
	return "List directory contents. Set recursive for a tree view bounded by max_depth (default 3); hidden files are skipped unless show_hidden is set."
}

func (t *LSTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":        map[string]any{"type": "string", "description": "Directory to list (defaults to the working directory)"},
			"recursive":   map[string]any{"type": "boolean", "description": "Recurse into subdirectories"},
			"max_depth":   map[string]any{"type": "integer", "description": "Recursion depth bound (default 3)"},
			"ignore":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Glob patterns to skip"},
			"show_hidden": map[string]any{"type": "boolean", "description": "Include dotfiles"},
		},
	}
}

func (t *LSTool) Execute(ctx context.Context, args map[string]any) (*models.ToolResult, error) {
	root := t.WorkingDir
	if p, ok := toolutil.String(args, "path"); ok && p != "" {
		if filepath.IsAbs(p) {
			root = p
		} else {
			root = filepath.Join(t.WorkingDir, p)
		}
	}
	recursive := toolutil.BoolOr(args, "recursive", false)
	maxDepth := toolutil.IntOr(args, "max_depth", defaultLSMaxDepth)
	if !recursive {
		maxDepth = 1
	}
	showHidden := toolutil.BoolOr(args, "show_hidden", false)
	ignore := toolutil.StringSlice(args, "ignore")

	var entries []string
	count := 0
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		name := d.Name()

		if !showHidden && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		for _, pattern := range ignore {
			if ok, _ := doublestar.Match(pattern, name); ok {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}

		depth := strings.Count(rel, string(filepath.Separator)) + 1
		if depth > maxDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		indent := strings.Repeat("  ", depth-1)
		if d.IsDir() {
			entries = append(entries, indent+name+"/")
		} else {
			entries = append(entries, indent+name)
		}
		count++
		return nil
	})
	if walkErr != nil {
		return nil, errdefs.Wrap(errdefs.KindTool, errdefs.ToolFileSystem,
			"listing "+root, walkErr)
	}

	if len(entries) == 0 {
		return &models.ToolResult{
			Status:   models.ToolStatusCompleted,
			Result:   "(empty directory)",
			Metadata: map[string]any{"entries": 0, "path": root},
		}, nil
	}

	return &models.ToolResult{
		Status: models.ToolStatusCompleted,
		Result: fmt.Sprintf("%s\n%s", root, strings.Join(entries, "\n")),
		Metadata: map[string]any{
			"entries": count,
			"path":    root,
		},
	}, nil
}

package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar"

	"github.com/qwen-tui/qwen-tui/internal/errdefs"
	"github.com/qwen-tui/qwen-tui/internal/tools/toolutil"
	"github.com/qwen-tui/qwen-tui/pkg/models"
)

// defaultGlobMaxResults caps glob output.
const defaultGlobMaxResults = 200

// GlobTool matches file paths against a glob pattern.
type GlobTool struct {
	WorkingDir string
}

func (t *GlobTool) Name() string { return "Glob" }

func (t *GlobTool) Description() string {
	return "Find files matching a glob pattern such as **/*.go or src/*.{ts,tsx}. Results are sorted by modification time, newest first."
}

func (t *GlobTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern":     map[string]any{"type": "string", "description": "Glob pattern, relative to path"},
			"path":        map[string]any{"type": "string", "description": "Root directory (defaults to the working directory)"},
			"max_results": map[string]any{"type": "integer", "description": "Result cap (default 200)"},
		},
		"required": []string{"pattern"},
	}
}

func (t *GlobTool) Execute(ctx context.Context, args map[string]any) (*models.ToolResult, error) {
	pattern, err := toolutil.RequiredString(args, "pattern")
	if err != nil {
		return nil, err
	}
	root := t.WorkingDir
	if p, ok := toolutil.String(args, "path"); ok && p != "" {
		if filepath.IsAbs(p) {
			root = p
		} else {
			root = filepath.Join(t.WorkingDir, p)
		}
	}
	maxResults := toolutil.IntOr(args, "max_results", defaultGlobMaxResults)

	paths, err := doublestar.Glob(filepath.Join(root, pattern))
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindTool, errdefs.ToolParameter,
			"invalid glob pattern", err)
	}

	type entry struct {
		rel   string
		mtime time.Time
	}
	var entries []entry
	for _, path := range paths {
		info, statErr := os.Stat(path)
		if statErr != nil || info.IsDir() {
			continue
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		entries = append(entries, entry{rel: rel, mtime: info.ModTime()})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].mtime.After(entries[j].mtime)
	})
	truncated := false
	if len(entries) > maxResults {
		entries = entries[:maxResults]
		truncated = true
	}

	if len(entries) == 0 {
		return &models.ToolResult{
			Status:   models.ToolStatusCompleted,
			Result:   fmt.Sprintf("No files match %q", pattern),
			Metadata: map[string]any{"matches": 0},
		}, nil
	}

	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(e.rel + "\n")
	}
	if truncated {
		fmt.Fprintf(&sb, "(truncated to %d results)\n", maxResults)
	}

	return &models.ToolResult{
		Status: models.ToolStatusCompleted,
		Result: sb.String(),
		Metadata: map[string]any{
			"matches":   len(entries),
			"truncated": truncated,
		},
	}, nil
}

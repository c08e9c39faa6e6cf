package search

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar"

	"github.com/qwen-tui/qwen-tui/internal/errdefs"
	"github.com/qwen-tui/qwen-tui/internal/tools/toolutil"
	"github.com/qwen-tui/qwen-tui/pkg/models"
)

// defaultGrepMaxResults caps match output.
const defaultGrepMaxResults = 100

// GrepTool searches file contents with a compiled regular expression.
type GrepTool struct {
	WorkingDir string
}

// grepMatch is one matching line with its file's mtime for sorting.
type grepMatch struct {
	file  string
	line  int
	text  string
	mtime time.Time
}

func (t *GrepTool) Name() string { return "Grep" }

func (t *GrepTool) Description() string {
	return "Search file contents with a regular expression. Supports include/exclude globs (with brace expansion like *.{ts,tsx}); results are sorted by file modification time, newest first."
}

func (t *GrepTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern":     map[string]any{"type": "string", "description": "Regular expression to search for"},
			"path":        map[string]any{"type": "string", "description": "Root directory to search (defaults to the working directory)"},
			"include":     map[string]any{"type": "string", "description": "Glob restricting searched files, e.g. *.{ts,tsx}"},
			"exclude":     map[string]any{"type": "string", "description": "Glob excluding files"},
			"max_results": map[string]any{"type": "integer", "description": "Result cap (default 100)"},
		},
		"required": []string{"pattern"},
	}
}

func (t *GrepTool) Execute(ctx context.Context, args map[string]any) (*models.ToolResult, error) {
	pattern, err := toolutil.RequiredString(args, "pattern")
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile("(?m)" + pattern)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindTool, errdefs.ToolParameter,
			"invalid regular expression", err)
	}

	root := t.WorkingDir
	if p, ok := toolutil.String(args, "path"); ok && p != "" {
		if filepath.IsAbs(p) {
			root = p
		} else {
			root = filepath.Join(t.WorkingDir, p)
		}
	}
	include, _ := toolutil.String(args, "include")
	exclude, _ := toolutil.String(args, "exclude")
	maxResults := toolutil.IntOr(args, "max_results", defaultGrepMaxResults)

	var matches []grepMatch
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if include != "" {
			if ok, _ := doublestar.Match(include, name); !ok {
				return nil
			}
		}
		if exclude != "" {
			if ok, _ := doublestar.Match(exclude, name); ok {
				return nil
			}
		}
		if !isTextFile(path) {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		info, infoErr := d.Info()
		var mtime time.Time
		if infoErr == nil {
			mtime = info.ModTime()
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		// Match against the whole file so patterns spanning lines work;
		// each match is reported once, on the line where it starts.
		content := string(data)
		seen := map[int]bool{}
		for _, loc := range re.FindAllStringIndex(content, -1) {
			line := 1 + strings.Count(content[:loc[0]], "\n")
			if seen[line] {
				continue
			}
			seen[line] = true
			start := strings.LastIndexByte(content[:loc[0]], '\n') + 1
			text := content[start:]
			if end := strings.IndexByte(text, '\n'); end >= 0 {
				text = text[:end]
			}
			matches = append(matches, grepMatch{file: rel, line: line, text: text, mtime: mtime})
		}
		return nil
	})
	if walkErr != nil && walkErr != ctx.Err() {
		return nil, errdefs.Wrap(errdefs.KindTool, errdefs.ToolFileSystem,
			"searching "+root, walkErr)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].mtime.After(matches[j].mtime)
	})
	truncated := false
	if len(matches) > maxResults {
		matches = matches[:maxResults]
		truncated = true
	}

	if len(matches) == 0 {
		return &models.ToolResult{
			Status:   models.ToolStatusCompleted,
			Result:   fmt.Sprintf("No matches for %q", pattern),
			Metadata: map[string]any{"matches": 0},
		}, nil
	}

	var sb strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&sb, "%s:%d: %s\n", m.file, m.line, strings.TrimSpace(m.text))
	}
	if truncated {
		fmt.Fprintf(&sb, "(truncated to %d results)\n", maxResults)
	}

	return &models.ToolResult{
		Status: models.ToolStatusCompleted,
		Result: sb.String(),
		Metadata: map[string]any{
			"matches":   len(matches),
			"truncated": truncated,
		},
	}, nil
}

package agent

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/qwen-tui/qwen-tui/internal/backend"
	"github.com/qwen-tui/qwen-tui/pkg/models"
)

const (
	// conversationWindow is the number of trailing messages included in
	// each prompt.
	conversationWindow = 10

	// recentActionWindow is the number of trailing action-history entries
	// included in the context block.
	recentActionWindow = 5

	// snapshotDepth bounds the directory snapshot in the context block.
	snapshotDepth = 2

	// snapshotMaxEntries caps the snapshot so a large workspace cannot
	// flood the prompt.
	snapshotMaxEntries = 50
)

const systemPrompt = `You are a coding assistant operating inside the user's workspace.

You reason step by step, then act. You may call tools to read, search,
and modify files, and to run shell commands. Wrap internal reasoning in
<think>...</think>; everything outside those tags is shown to the user.

To call a tool, emit exactly:
<function_call>tool_name({"param": "value"})</function_call>

Rules:
- Use tools to inspect the workspace before making claims about it.
- Prefer small, verifiable edits over large rewrites.
- After a tool result arrives, incorporate it before deciding the next step.
- When the task is complete, reply with a plain summary and no tool calls.`

const autonomousPreamble = `Work autonomously on the task below using a plan/act/observe cycle:
1. Plan: break the task into concrete steps.
2. Act: execute one step with a tool call.
3. Observe: read the result and adjust the plan.
Repeat until the task is done, then report what you did.

Task: `

// promptBuilder assembles the message list for one generation request.
type promptBuilder struct {
	workingDir string
}

// BuildMessages produces the prompt set: system prompt, context block,
// tool-schema block, the trailing window of conversation, and the new
// user message.
func (b *promptBuilder) BuildMessages(history []models.Message, actions []Action, tools []backend.ToolSchema, userMessage string) []models.Message {
	msgs := []models.Message{
		models.NewMessage(models.RoleSystem, systemPrompt),
		models.NewMessage(models.RoleSystem, b.contextBlock(actions)),
	}
	if len(tools) > 0 {
		msgs = append(msgs, models.NewMessage(models.RoleSystem, toolBlock(tools)))
	}

	window := history
	if len(window) > conversationWindow {
		window = window[len(window)-conversationWindow:]
	}
	msgs = append(msgs, window...)
	msgs = append(msgs, models.NewMessage(models.RoleUser, userMessage))
	return msgs
}

// contextBlock renders the working directory, a shallow directory
// snapshot, and the most recent actions.
func (b *promptBuilder) contextBlock(actions []Action) string {
	var sb strings.Builder
	sb.WriteString("Current context:\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", b.workingDir)

	if entries := b.snapshot(); len(entries) > 0 {
		sb.WriteString("\nDirectory contents:\n")
		for _, e := range entries {
			sb.WriteString("  " + e + "\n")
		}
	}

	recent := actions
	if len(recent) > recentActionWindow {
		recent = recent[len(recent)-recentActionWindow:]
	}
	if len(recent) > 0 {
		sb.WriteString("\nRecent actions:\n")
		for _, a := range recent {
			sb.WriteString("  - " + a.summarize() + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// snapshot walks the working directory to snapshotDepth, skipping
// hidden entries, and returns relative paths sorted lexically.
func (b *promptBuilder) snapshot() []string {
	root := b.workingDir
	if root == "" {
		return nil
	}
	var entries []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		base := filepath.Base(rel)
		if strings.HasPrefix(base, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		depth := strings.Count(rel, string(os.PathSeparator)) + 1
		if depth > snapshotDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			entries = append(entries, rel+"/")
		} else {
			entries = append(entries, rel)
		}
		return nil
	})
	sort.Strings(entries)
	if len(entries) > snapshotMaxEntries {
		entries = entries[:snapshotMaxEntries]
		entries = append(entries, "...")
	}
	return entries
}

// toolBlock renders the tool schemas as formatted function
// descriptions.
func toolBlock(tools []backend.ToolSchema) string {
	var sb strings.Builder
	sb.WriteString("Available tools:\n")
	for _, tool := range tools {
		fmt.Fprintf(&sb, "\n%s: %s\n", tool.Name, tool.Description)
		if len(tool.Parameters) > 0 {
			if params, err := json.Marshal(tool.Parameters); err == nil {
				fmt.Fprintf(&sb, "  parameters: %s\n", params)
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

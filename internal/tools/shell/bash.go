// Package shell implements the Bash tool: subprocess execution with
// timeouts and pinned working directory.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/qwen-tui/qwen-tui/internal/tools/toolutil"
	"github.com/qwen-tui/qwen-tui/pkg/models"
)

const (
	defaultTimeout = 120 * time.Second
	maxTimeout     = 600 * time.Second
)

// BashTool runs a shell command in a subprocess.
type BashTool struct {
	WorkingDir string

	// Env entries override the inherited environment (KEY=VALUE).
	Env []string
}

func (t *BashTool) Name() string { return "Bash" }

func (t *BashTool) Description() string {
	return "Run a shell command in the working directory. timeout is in seconds (default 120, max 600). Non-zero exit status is reported as an error."
}

func (t *BashTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{"type": "string", "description": "Shell command to run"},
			"timeout": map[string]any{"type": "number", "description": "Timeout in seconds, fractions allowed (default 120, max 600)"},
		},
		"required": []string{"command"},
	}
}

func (t *BashTool) Execute(ctx context.Context, args map[string]any) (*models.ToolResult, error) {
	command, err := toolutil.RequiredString(args, "command")
	if err != nil {
		return nil, err
	}

	// Fractional seconds are meaningful for short probes.
	timeout := defaultTimeout
	if secs, ok := toolutil.Float(args, "timeout"); ok && secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
		if timeout > maxTimeout {
			timeout = maxTimeout
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "bash", "-c", command)
	cmd.Dir = t.WorkingDir
	cmd.Env = append(os.Environ(), t.Env...)
	// After the context kills the shell, give its pipes a grace
	// period to drain before Wait gives up on them.
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	output := stdout.String()
	if stderr.Len() > 0 {
		if output != "" && !strings.HasSuffix(output, "\n") {
			output += "\n"
		}
		output += "STDERR:\n" + stderr.String()
	}

	metadata := map[string]any{
		"command":   command,
		"elapsed":   elapsed.Seconds(),
		"exit_code": 0,
		"timed_out": false,
		"workdir":   t.WorkingDir,
	}

	if runCtx.Err() == context.DeadlineExceeded {
		metadata["timed_out"] = true
		return &models.ToolResult{
			Status:   models.ToolStatusError,
			Result:   output,
			Error:    fmt.Sprintf("command timed out after %s", timeout),
			Metadata: metadata,
		}, nil
	}

	if runErr != nil {
		exitCode := -1
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		metadata["exit_code"] = exitCode
		return &models.ToolResult{
			Status:   models.ToolStatusError,
			Result:   output,
			Error:    fmt.Sprintf("command exited with status %d", exitCode),
			Metadata: metadata,
		}, nil
	}

	return &models.ToolResult{
		Status:   models.ToolStatusCompleted,
		Result:   output,
		Metadata: metadata,
	}, nil
}

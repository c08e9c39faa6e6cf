package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/qwen-tui/qwen-tui/internal/errdefs"
	"github.com/qwen-tui/qwen-tui/internal/permission"
)

// terminalPrompter renders permission requests on the terminal and
// reads the user's decision.
type terminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newTerminalPrompter() *terminalPrompter {
	return &terminalPrompter{
		in:  bufio.NewReader(os.Stdin),
		out: os.Stderr,
	}
}

// interactive reports whether stdin is a terminal; without one there
// is nobody to answer a prompt.
func interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func (p *terminalPrompter) Decide(ctx context.Context, req permission.Request) (permission.Decision, error) {
	fmt.Fprintf(p.out, "\nPermission required: %s (risk: %s)\n", req.Tool, req.Assessment.RiskLevel)
	for _, reason := range req.Assessment.Reasons {
		fmt.Fprintf(p.out, "  - %s\n", reason)
	}
	for _, warning := range req.Assessment.Warnings {
		fmt.Fprintf(p.out, "  ! %s\n", warning)
	}
	for _, suggestion := range req.Assessment.Suggestions {
		fmt.Fprintf(p.out, "  > %s\n", suggestion)
	}
	if len(req.Args) > 0 {
		fmt.Fprintf(p.out, "  args: %v\n", req.Args)
	}

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		fmt.Fprint(p.out, "[1] Allow once  [2] Deny once  [3] Always allow  [4] Always deny: ")
		line, err := p.in.ReadString('\n')
		if err != nil {
			return "", errdefs.Wrap(errdefs.KindSecurity, errdefs.SecurityPermissionDenied,
				"reading permission decision", err)
		}
		switch strings.TrimSpace(line) {
		case "1", "y", "yes":
			return permission.DecisionAllowOnce, nil
		case "2", "n", "no":
			return permission.DecisionDenyOnce, nil
		case "3":
			return permission.DecisionAlwaysAllow, nil
		case "4":
			return permission.DecisionAlwaysDeny, nil
		default:
			fmt.Fprintln(p.out, "enter 1, 2, 3, or 4")
		}
	}
}

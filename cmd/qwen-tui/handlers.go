// handlers.go implements the command handlers behind the cobra tree.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/qwen-tui/qwen-tui/internal/agent"
	"github.com/qwen-tui/qwen-tui/internal/config"
	"github.com/qwen-tui/qwen-tui/internal/sessions"
	"github.com/qwen-tui/qwen-tui/pkg/models"
)

type runOptions struct {
	configPath string
	task       string
	backend    string
	model      string
	resumeID   string
	yolo       bool
	debug      bool
	jsonOut    bool
}

func runRun(ctx context.Context, opts runOptions, args []string) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var prompter *terminalPrompter
	if interactive() {
		prompter = newTerminalPrompter()
	}

	appOpts := appOptions{
		configPath:  opts.configPath,
		yolo:        opts.yolo,
		debug:       opts.debug,
		backend:     opts.backend,
		model:       opts.model,
		needBackend: true,
	}
	if prompter != nil {
		appOpts.prompter = prompter
	}
	a, err := newApp(ctx, appOpts)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if opts.resumeID != "" {
		saved, err := a.store.Load(ctx, opts.resumeID)
		if err != nil {
			return err
		}
		if err := a.agent.Restore(saved); err != nil {
			return err
		}
		fmt.Printf("Resumed session %s (%d messages)\n", saved.ID, len(saved.Messages))
	}

	render := renderEvents
	if opts.jsonOut {
		render = renderEventsJSON
	}

	switch {
	case opts.task != "":
		return runTurn(ctx, a, opts.task, true, render)
	case len(args) > 0:
		return runTurn(ctx, a, strings.Join(args, " "), false, render)
	default:
		return runInteractive(ctx, a, render)
	}
}

// runTurn executes one message or task and persists the session.
func runTurn(ctx context.Context, a *app, text string, autonomous bool, render renderFunc) error {
	events := make(chan agent.Event, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		render(os.Stdout, events)
	}()

	var err error
	if autonomous {
		err = a.agent.RunAutonomous(ctx, text, events)
	} else {
		err = a.agent.ProcessMessage(ctx, text, events)
	}
	<-done

	if saveErr := a.store.Save(ctx, a.agent.Snapshot()); saveErr != nil {
		a.logger.Warn(ctx, "saving session", "error", saveErr)
	}
	return err
}

func runInteractive(ctx context.Context, a *app, render renderFunc) error {
	fmt.Printf("qwen-tui %s  (session %s)\n", version, a.agent.SessionID())
	fmt.Println("Type a message, or /clear, /compact, /quit.")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit", line == "/exit":
			return nil
		case line == "/clear":
			a.agent.ClearContext()
			fmt.Println("Context cleared.")
			continue
		case line == "/compact":
			a.agent.CompactContext()
			fmt.Println("Context compacted.")
			continue
		}

		if err := runTurn(ctx, a, line, false, render); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
	}
}

type renderFunc func(io.Writer, <-chan agent.Event)

// renderEvents writes the event stream to the terminal. Thinking
// previews stay off the visible output channel.
func renderEvents(w io.Writer, events <-chan agent.Event) {
	for event := range events {
		switch event.Type {
		case agent.EventText:
			fmt.Fprint(w, event.Text)
		case agent.EventToolStart:
			fmt.Fprintf(w, "\n[%s] %s\n", event.Tool, event.Text)
		case agent.EventToolResult:
			fmt.Fprintf(w, "[%s] %s\n", event.Tool, summarizeResult(event.Result))
		case agent.EventDone:
			fmt.Fprintln(w)
		}
	}
}

// renderEventsJSON emits one JSON line per event: {"type":"text",...}
// for visible text and a tool-progress object for tool lifecycle.
func renderEventsJSON(w io.Writer, events <-chan agent.Event) {
	enc := json.NewEncoder(w)
	for event := range events {
		switch event.Type {
		case agent.EventText:
			_ = enc.Encode(map[string]any{"type": "text", "text": event.Text})
		case agent.EventThinking:
			_ = enc.Encode(map[string]any{"type": "thinking", "preview_text": event.Text})
		case agent.EventToolStart:
			_ = enc.Encode(map[string]any{"type": "tool", "event": models.ToolProgress{
				Tool:      event.Tool,
				Status:    models.ToolStatusRunning,
				Timestamp: time.Now(),
			}})
		case agent.EventToolResult:
			_ = enc.Encode(map[string]any{"type": "tool", "event": models.ProgressFromResult(event.Result)})
		case agent.EventDone:
			_ = enc.Encode(map[string]any{"type": "done"})
		}
	}
}

func summarizeResult(result *models.ToolResult) string {
	if result == nil {
		return "done"
	}
	if !result.Success() {
		return "error: " + result.Error
	}
	text, ok := result.Result.(string)
	if !ok {
		return "done"
	}
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		lines := strings.Count(text, "\n") + 1
		return fmt.Sprintf("%s (+%d lines)", text[:idx], lines-1)
	}
	return text
}

func runModels(ctx context.Context, configPath string) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, appOptions{configPath: configPath, needBackend: true})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	infos, err := a.manager.GetAllModels(ctx)
	if err != nil {
		return err
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Backend != infos[j].Backend {
			return infos[i].Backend < infos[j].Backend
		}
		return infos[i].ID < infos[j].ID
	})

	for _, info := range infos {
		marker := " "
		if info.Current {
			marker = "*"
		}
		fmt.Printf("%s %-12s %s\n", marker, info.Backend, info.ID)
	}
	return nil
}

func runSessions(ctx context.Context, configPath string) error {
	// Session listing needs no backends; read the store directly.
	store, err := sessions.NewFileStore(filepath.Join(stateDir(), "sessions"))
	if err != nil {
		return err
	}
	ids, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No saved sessions.")
		return nil
	}
	for _, id := range ids {
		session, err := store.Load(ctx, id)
		if err != nil {
			fmt.Printf("%s  (unreadable: %v)\n", id, err)
			continue
		}
		fmt.Printf("%s  %s  %d messages\n", id,
			session.StartedAt.Format("2006-01-02 15:04"), len(session.Messages))
	}
	return nil
}

func runSchema(w io.Writer) error {
	data, err := config.JSONSchema()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

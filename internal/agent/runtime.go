package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/qwen-tui/qwen-tui/internal/backend"
	"github.com/qwen-tui/qwen-tui/internal/errdefs"
	"github.com/qwen-tui/qwen-tui/internal/observability"
	"github.com/qwen-tui/qwen-tui/pkg/models"
)

// Mode selects the agent's operating style.
type Mode string

const (
	ModeInteractive Mode = "interactive"
	ModeAutonomous  Mode = "autonomous"
	ModePlanning    Mode = "planning"
	ModeExecution   Mode = "execution"
)

// Phase tracks where the agent is inside one turn.
type Phase string

const (
	PhaseAnalysis      Phase = "analysis"
	PhasePlanning      Phase = "planning"
	PhaseToolSelection Phase = "tool_selection"
	PhaseExecution     Phase = "execution"
	PhaseSynthesis     Phase = "synthesis"
	PhaseReflection    Phase = "reflection"
)

// EventType classifies a progress event streamed to the UI.
type EventType string

const (
	EventText       EventType = "text"
	EventThinking   EventType = "thinking"
	EventToolStart  EventType = "tool_start"
	EventToolResult EventType = "tool_result"
	EventDone       EventType = "done"
)

// Event is one unit of turn progress delivered to the caller.
type Event struct {
	Type   EventType
	Text   string
	Tool   string
	Result *models.ToolResult
}

const (
	// maxConversationEntries bounds the retained conversation history.
	maxConversationEntries = 20

	// compactRetainedExchanges is the number of trailing user/assistant
	// exchanges kept by compaction.
	compactRetainedExchanges = 6

	// maxTurnIterations bounds generate/execute cycles within one turn
	// so a misbehaving model cannot loop forever.
	maxTurnIterations = 10
)

// Config configures the agent runtime.
type Config struct {
	WorkingDir    string
	Mode          Mode
	ParallelTools int
	Temperature   *float64
	MaxTokens     *int
	Preferred     backend.Type
	Model         string
}

// Agent drives the plan/act/observe loop: it assembles prompts, streams
// generation through the backend manager, separates thinking from
// visible output, extracts and executes tool calls, and feeds results
// back until the model produces a terminal response.
type Agent struct {
	manager  *backend.Manager
	registry *Registry
	builder  promptBuilder
	config   Config

	mu        sync.Mutex
	mode      Mode
	phase     Phase
	sessionID string
	startedAt time.Time
	history   []models.Message
	actions   []Action
	context   map[string]any

	logger *observability.Logger
	tracer *observability.Tracer
}

// New creates an agent bound to a backend manager and tool registry.
func New(manager *backend.Manager, registry *Registry, config Config, logger *observability.Logger, tracer *observability.Tracer) *Agent {
	if config.Mode == "" {
		config.Mode = ModeInteractive
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Agent{
		manager:   manager,
		registry:  registry,
		builder:   promptBuilder{workingDir: config.WorkingDir},
		config:    config,
		mode:      config.Mode,
		phase:     PhaseAnalysis,
		sessionID: uuid.NewString(),
		startedAt: time.Now().UTC(),
		context:   make(map[string]any),
		logger:    logger.With("component", "agent"),
		tracer:    tracer,
	}
}

// SessionID returns the identifier of the current session.
func (a *Agent) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

// History returns a copy of the conversation history.
func (a *Agent) History() []models.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.Message, len(a.history))
	copy(out, a.history)
	return out
}

// ClearContext drops the conversation history and action trace.
func (a *Agent) ClearContext() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = nil
	a.actions = nil
	a.context = make(map[string]any)
}

// CompactContext retains every system message plus the trailing
// exchanges, dropping the middle of a long conversation.
func (a *Agent) CompactContext() {
	a.mu.Lock()
	defer a.mu.Unlock()

	var system, rest []models.Message
	for _, msg := range a.history {
		if msg.Role == models.RoleSystem {
			system = append(system, msg)
		} else {
			rest = append(rest, msg)
		}
	}
	keep := compactRetainedExchanges * 2
	if len(rest) > keep {
		rest = rest[len(rest)-keep:]
	}
	a.history = append(system, rest...)
}

// ProcessMessage runs one interactive turn. Progress is delivered on
// events, which is closed before return.
func (a *Agent) ProcessMessage(ctx context.Context, userMessage string, events chan<- Event) error {
	defer close(events)
	return a.runTurn(ctx, userMessage, events)
}

// RunAutonomous wraps a single task in the plan/act/observe preamble
// and runs it through the same turn algorithm.
func (a *Agent) RunAutonomous(ctx context.Context, task string, events chan<- Event) error {
	defer close(events)
	a.mu.Lock()
	a.mode = ModeAutonomous
	a.mu.Unlock()
	return a.runTurn(ctx, autonomousPreamble+task, events)
}

func (a *Agent) runTurn(ctx context.Context, userMessage string, events chan<- Event) error {
	if a.tracer != nil {
		var span trace.Span
		ctx, span = a.tracer.StartTurn(ctx, a.SessionID())
		defer span.End()
	}

	a.setPhase(PhaseAnalysis)
	userMsg := models.NewMessage(models.RoleUser, userMessage)

	// Transcript of this turn, appended to history at the end.
	var turn []models.Message
	pending := userMessage

	for iteration := 0; iteration < maxTurnIterations; iteration++ {
		msgs := a.buildPrompt(turn, pending)
		visible, toolCalls, err := a.generate(ctx, msgs, events)
		if err != nil {
			return err
		}

		if iteration == 0 {
			turn = append(turn, userMsg)
		}
		assistant := models.NewMessage(models.RoleAssistant, visible)
		assistant.ToolCalls = toolCalls
		turn = append(turn, assistant)

		if len(toolCalls) == 0 {
			a.setPhase(PhaseSynthesis)
			break
		}

		a.setPhase(PhaseExecution)
		for _, call := range toolCalls {
			a.recordAction(newAction(ActionToolUse, describeCall(call), call.Name))
			events <- Event{Type: EventToolStart, Tool: call.Name, Text: describeCall(call)}

			result := a.registry.Execute(ctx, call)
			a.recordAction(newAction(ActionObserve, truncateSummary(result.Text()), call.Name))
			events <- Event{Type: EventToolResult, Tool: call.Name, Result: result}

			toolMsg := models.NewMessage(models.RoleTool, result.Text())
			toolMsg.ToolCallID = call.ID
			turn = append(turn, toolMsg)
		}
		pending = "Continue with the task using the tool results above."
	}

	a.appendHistory(turn)
	events <- Event{Type: EventDone}
	return nil
}

// buildPrompt assembles messages under the lock, including this turn's
// partial transcript so tool results reach the model.
func (a *Agent) buildPrompt(turn []models.Message, pending string) []models.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	history := make([]models.Message, 0, len(a.history)+len(turn))
	history = append(history, a.history...)
	history = append(history, turn...)
	return a.builder.BuildMessages(history, a.actions, a.registry.OpenAISchemas(), pending)
}

// generate streams one model response, applying the thinking filter per
// chunk and extracting tool calls from the terminal state.
func (a *Agent) generate(ctx context.Context, msgs []models.Message, events chan<- Event) (string, []models.ToolCall, error) {
	req := &backend.ChatRequest{
		Messages:    msgs,
		Model:       a.config.Model,
		Temperature: a.config.Temperature,
		MaxTokens:   a.config.MaxTokens,
		Stream:      true,
		Tools:       a.registry.OpenAISchemas(),
	}

	stream, err := a.manager.Generate(ctx, req, backend.GenerateOptions{
		Preferred: a.config.Preferred,
		Fallback:  true,
	})
	if err != nil {
		return "", nil, err
	}

	filter := &StreamingThinkingFilter{}
	var visible, thinking strings.Builder
	var nativeCalls []models.ToolCall
	var streamErr error

	for chunk := range stream {
		if chunk.Err != nil {
			streamErr = chunk.Err
			break
		}
		if chunk.Delta != "" {
			vis, think := filter.Feed(chunk.Delta)
			if vis != "" {
				visible.WriteString(vis)
				events <- Event{Type: EventText, Text: vis}
			}
			if think != "" {
				thinking.WriteString(think)
				events <- Event{Type: EventThinking, Text: think}
			}
		}
		if len(chunk.ToolCalls) > 0 {
			nativeCalls = append(nativeCalls, chunk.ToolCalls...)
		}
	}
	if streamErr != nil {
		return "", nil, streamErr
	}

	vis, think := filter.Flush()
	if vis != "" {
		visible.WriteString(vis)
		events <- Event{Type: EventText, Text: vis}
	}
	if think != "" {
		thinking.WriteString(think)
		events <- Event{Type: EventThinking, Text: think}
	}
	if thinking.Len() > 0 {
		a.recordAction(newAction(ActionThink, truncateSummary(thinking.String()), ""))
	}

	text := visible.String()
	calls := nativeCalls
	if len(calls) == 0 {
		calls = a.extractTextualCalls(ctx, text)
	}
	return text, calls, nil
}

// extractTextualCalls parses tool invocations out of visible text and
// drops any whose name does not resolve, warning instead of failing.
func (a *Agent) extractTextualCalls(ctx context.Context, text string) []models.ToolCall {
	known := a.registry.Known()
	calls := ExtractToolCalls(text, known)
	valid := calls[:0]
	for _, call := range calls {
		if !known[call.Name] {
			a.logger.Warn(ctx, "skipping call to unknown tool", "tool", call.Name)
			continue
		}
		valid = append(valid, call)
	}
	if len(valid) == 0 {
		return nil
	}
	return valid
}

func (a *Agent) appendHistory(turn []models.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, turn...)
	if len(a.history) > maxConversationEntries {
		a.history = a.history[len(a.history)-maxConversationEntries:]
	}
}

func (a *Agent) recordAction(action Action) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
}

func (a *Agent) setPhase(phase Phase) {
	a.mu.Lock()
	a.phase = phase
	a.mu.Unlock()
}

// Snapshot exports the session for persistence.
func (a *Agent) Snapshot() *models.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	session := &models.Session{
		ID:               a.sessionID,
		StartedAt:        a.startedAt,
		WorkingDirectory: a.config.WorkingDir,
		Messages:         append([]models.Message(nil), a.history...),
		Metadata: models.SessionMeta{
			BackendType:   string(a.config.Preferred),
			Model:         a.config.Model,
			TotalMessages: len(a.history),
		},
		Context: map[string]any{},
	}
	for k, v := range a.context {
		session.Context[k] = v
	}
	return session
}

// Restore replaces the agent's conversation state with a saved session.
func (a *Agent) Restore(session *models.Session) error {
	if session == nil {
		return errdefs.New(errdefs.KindConfig, errdefs.ConfigInvalidValue,
			"session is nil").WithTip("load a session file before restoring")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessionID = session.ID
	if !session.StartedAt.IsZero() {
		a.startedAt = session.StartedAt
	}
	a.history = append([]models.Message(nil), session.Messages...)
	if len(a.history) > maxConversationEntries {
		a.history = a.history[len(a.history)-maxConversationEntries:]
	}
	return nil
}

func describeCall(call models.ToolCall) string {
	if len(call.Arguments) == 0 {
		return call.Name + "()"
	}
	return fmt.Sprintf("%s(%s)", call.Name, string(call.RawArguments()))
}

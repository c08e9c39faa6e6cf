package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/qwen-tui/qwen-tui/internal/backend"
	"github.com/qwen-tui/qwen-tui/internal/observability"
	"github.com/qwen-tui/qwen-tui/pkg/models"
)

// Tool is the uniform contract every local and remote tool satisfies.
type Tool interface {
	// Name returns the registry key.
	Name() string

	// Description is shown to the model in the tool-schema block.
	Description() string

	// Schema returns the JSON-Schema of the tool parameters.
	Schema() map[string]any

	// Execute runs the tool. Faults are reported through the result,
	// never as a panic; the error return is reserved for infrastructure
	// failures.
	Execute(ctx context.Context, args map[string]any) (*models.ToolResult, error)
}

// PermissionChecker gates tool execution. Approve returns nil to allow
// and a SecurityError to deny or block. The registry holds this as an
// interface so the permission engine stays decoupled.
type PermissionChecker interface {
	Approve(ctx context.Context, tool string, args map[string]any) error
}

// MaxToolNameLength bounds registered tool names.
const MaxToolNameLength = 256

// registryEntry pairs a tool with the MCP server that contributed it,
// empty for local tools.
type registryEntry struct {
	tool   Tool
	server string
}

// Registry maps tool names to tools. The map is read-heavy; writers
// swap entries under a write lock that is held only for map mutation.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]registryEntry
	checker PermissionChecker

	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// NewRegistry creates an empty tool registry.
func NewRegistry(checker PermissionChecker, logger *observability.Logger, metrics *observability.Metrics, tracer *observability.Tracer) *Registry {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Registry{
		tools:   make(map[string]registryEntry),
		checker: checker,
		logger:  logger.With("component", "registry"),
		metrics: metrics,
		tracer:  tracer,
	}
}

// Register adds a local tool.
func (r *Registry) Register(tool Tool) error {
	return r.register(tool, "")
}

// RegisterForServer adds a tool contributed by an MCP server so it can
// be removed when the server disconnects.
func (r *Registry) RegisterForServer(server string, tool Tool) error {
	return r.register(tool, server)
}

func (r *Registry) register(tool Tool, server string) error {
	if tool == nil {
		return fmt.Errorf("tool is nil")
	}
	name := strings.TrimSpace(tool.Name())
	if name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if len(name) > MaxToolNameLength {
		return fmt.Errorf("tool name exceeds %d characters", MaxToolNameLength)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = registryEntry{tool: tool, server: server}
	return nil
}

// Unregister removes one tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// RemoveServerTools removes every tool contributed by the given MCP
// server and returns the removed names.
func (r *Registry) RemoveServerTools(server string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for name, entry := range r.tools {
		if entry.server == server {
			delete(r.tools, name)
			removed = append(removed, name)
		}
	}
	sort.Strings(removed)
	return removed
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return entry.tool, true
}

// List returns the registered tool names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Known returns the name set used by the textual tool-call recognizers.
func (r *Registry) Known() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	known := make(map[string]bool, len(r.tools))
	for name := range r.tools {
		known[name] = true
	}
	return known
}

// Schemas returns the native JSON-Schema view of every tool.
func (r *Registry) Schemas() map[string]map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]map[string]any, len(r.tools))
	for name, entry := range r.tools {
		out[name] = entry.tool.Schema()
	}
	return out
}

// OpenAISchemas returns the function-shaped schema list handed to
// backends that support tool calling.
func (r *Registry) OpenAISchemas() []backend.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]backend.ToolSchema, 0, len(names))
	for _, name := range names {
		entry := r.tools[name]
		out = append(out, backend.ToolSchema{
			Name:        name,
			Description: entry.tool.Description(),
			Parameters:  entry.tool.Schema(),
		})
	}
	return out
}

// Execute resolves and runs one tool call under permission control.
// Tool faults become error-status results; the registry never panics
// or raises at the agent boundary.
func (r *Registry) Execute(ctx context.Context, call models.ToolCall) *models.ToolResult {
	tool, ok := r.Get(call.Name)
	if !ok {
		return &models.ToolResult{
			ToolName:   call.Name,
			ToolCallID: call.ID,
			Status:     models.ToolStatusError,
			Error:      fmt.Sprintf("ToolError: tool %q is not registered\n\nTip: list available tools with list_tools", call.Name),
		}
	}

	if r.checker != nil {
		if err := r.checker.Approve(ctx, call.Name, call.Arguments); err != nil {
			r.count(call.Name, "error")
			return &models.ToolResult{
				ToolName:   call.Name,
				ToolCallID: call.ID,
				Status:     models.ToolStatusError,
				Error:      "Permission denied by user",
				Metadata:   map[string]any{"permission_error": err.Error()},
			}
		}
	}

	start := time.Now()
	result := r.runSafely(ctx, tool, call)
	result.ExecutionTime = time.Since(start).Seconds()
	result.ToolName = call.Name
	result.ToolCallID = call.ID

	r.count(call.Name, string(result.Status))
	if r.metrics != nil {
		r.metrics.ToolDuration.WithLabelValues(call.Name).Observe(result.ExecutionTime)
	}
	r.logger.Debug(ctx, "tool executed",
		"tool", call.Name, "status", result.Status, "seconds", result.ExecutionTime)
	return result
}

// runSafely executes the tool with panic capture.
func (r *Registry) runSafely(ctx context.Context, tool Tool, call models.ToolCall) (result *models.ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = &models.ToolResult{
				Status: models.ToolStatusError,
				Error:  fmt.Sprintf("ToolError: %s panicked: %v", call.Name, rec),
			}
		}
	}()

	var span trace.Span
	if r.tracer != nil {
		ctx, span = r.tracer.StartTool(ctx, call.Name)
		defer span.End()
	}

	res, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		if span != nil {
			r.tracer.RecordError(span, err)
		}
		return &models.ToolResult{
			Status: models.ToolStatusError,
			Error:  err.Error(),
		}
	}
	if res == nil {
		return &models.ToolResult{Status: models.ToolStatusCompleted}
	}
	if res.Status == "" {
		if res.Error != "" {
			res.Status = models.ToolStatusError
		} else {
			res.Status = models.ToolStatusCompleted
		}
	}
	return res
}

func (r *Registry) count(tool, status string) {
	if r.metrics != nil {
		r.metrics.ToolExecutions.WithLabelValues(tool, status).Inc()
	}
}

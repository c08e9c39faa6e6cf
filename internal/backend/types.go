package backend

import (
	"context"
	"time"

	"github.com/qwen-tui/qwen-tui/pkg/models"
)

// Type identifies one provider family.
type Type string

const (
	TypeOllama     Type = "ollama"
	TypeLMStudio   Type = "lm_studio"
	TypeVLLM       Type = "vllm"
	TypeOpenRouter Type = "openrouter"
)

// Status is the lifecycle state of a backend driver.
type Status string

const (
	StatusUnknown      Status = "unknown"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusAvailable    Status = "available"
	StatusUnavailable  Status = "unavailable"
	StatusError        Status = "error"
	StatusDisconnected Status = "disconnected"
)

// Healthy reports whether the status admits the driver into routing.
func (s Status) Healthy() bool {
	return s == StatusConnected || s == StatusAvailable
}

// Info describes one backend instance for the UI and the manager.
type Info struct {
	Name         string     `json:"name"`
	Type         Type       `json:"type"`
	Host         string     `json:"host"`
	Port         int        `json:"port"`
	Model        string     `json:"model,omitempty"`
	Status       Status     `json:"status"`
	Version      string     `json:"version,omitempty"`
	Capabilities []string   `json:"capabilities,omitempty"`
	LastCheck    *time.Time `json:"last_check,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// ModelInfo describes one model exposed by a backend.
type ModelInfo struct {
	ID          string    `json:"id"`
	Backend     Type      `json:"backend"`
	Size        int64     `json:"size,omitempty"`
	Description string    `json:"description,omitempty"`
	ModifiedAt  time.Time `json:"modified_at,omitempty"`
	Current     bool      `json:"current,omitempty"`
}

// Usage aggregates token counters normalized across providers.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ToolSchema is the normalized function description handed to providers
// that support tool calling.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatRequest is the provider-independent generation request.
// Unset numeric fields inherit driver defaults.
type ChatRequest struct {
	Messages       []models.Message `json:"messages"`
	Tools          []ToolSchema     `json:"tools,omitempty"`
	Model          string           `json:"model,omitempty"`
	Temperature    *float64         `json:"temperature,omitempty"`
	MaxTokens      *int             `json:"max_tokens,omitempty"`
	TopP           *float64         `json:"top_p,omitempty"`
	Stream         bool             `json:"stream"`
	ResponseFormat string           `json:"response_format,omitempty"`
	BackendParams  map[string]any   `json:"backend_params,omitempty"`
}

// ChatChunk is one element of a generation stream.
//
// A partial chunk has IsPartial set and Delta carrying the increment.
// The terminal chunk carries FinishReason and, when the provider reports
// it, aggregated Usage.
type ChatChunk struct {
	Content         string            `json:"content"`
	Delta           string            `json:"delta,omitempty"`
	IsPartial       bool              `json:"is_partial"`
	ToolCalls       []models.ToolCall `json:"tool_calls,omitempty"`
	FinishReason    string            `json:"finish_reason,omitempty"`
	Usage           *Usage            `json:"usage,omitempty"`
	Model           string            `json:"model,omitempty"`
	ResponseTime    float64           `json:"response_time,omitempty"`
	BackendMetadata map[string]any    `json:"backend_metadata,omitempty"`

	// Err is set on a terminal chunk when the stream failed before
	// completion. It never crosses the wire.
	Err error `json:"-"`
}

// Backend is one provider-specific LLM driver.
//
// Generate is an asynchronous producer: the returned channel yields one
// partial chunk per provider chunk and exactly one terminal chunk, then
// closes. Drivers release HTTP resources when the context is cancelled,
// so consumers may abandon the stream at any point.
type Backend interface {
	// Name returns the instance name (usually the type string).
	Name() string

	// BackendType returns the provider family.
	BackendType() Type

	// Initialize probes the provider and leaves the driver connected,
	// releasing all resources before returning any error.
	Initialize(ctx context.Context) error

	// Cleanup releases driver resources.
	Cleanup() error

	// HealthCheck probes the provider and returns its availability.
	HealthCheck(ctx context.Context) error

	// ListModels returns the models the provider exposes. Results are
	// cached with a per-driver TTL.
	ListModels(ctx context.Context) ([]ModelInfo, error)

	// Generate streams a completion for the request.
	Generate(ctx context.Context, req *ChatRequest) (<-chan *ChatChunk, error)

	// Info returns a snapshot of the driver state.
	Info() Info
}

// ModelSwitcher is implemented by drivers that can change the active
// model at runtime. SwitchModel reports whether the change is live
// immediately or deferred to the next request.
type ModelSwitcher interface {
	SwitchModel(ctx context.Context, model string) (live bool, err error)
}

// defaultRequestTimeout bounds one generation request end to end.
const defaultRequestTimeout = 300 * time.Second

// chunkBufferSize is the channel depth used by driver stream producers.
const chunkBufferSize = 64

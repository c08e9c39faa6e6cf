// Package backend contains the LLM backend drivers and the pool manager.
package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qwen-tui/qwen-tui/internal/errdefs"
	"github.com/qwen-tui/qwen-tui/pkg/models"
)

// OllamaConfig configures the Ollama driver.
type OllamaConfig struct {
	Host      string
	Port      int
	Model     string
	Timeout   time.Duration
	KeepAlive string
}

// Ollama speaks the JSON-lines /api/chat protocol of a local Ollama host.
type Ollama struct {
	client    *http.Client
	baseURL   string
	keepAlive string

	// defaultModel is read on every request and written by SwitchModel,
	// which may run mid-turn from the UI.
	modelMu      sync.Mutex
	defaultModel string

	cache *modelCache
	state *driverState
}

var _ Backend = (*Ollama)(nil)
var _ ModelSwitcher = (*Ollama)(nil)

// NewOllama creates an Ollama driver.
func NewOllama(cfg OllamaConfig) *Ollama {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port <= 0 {
		port = 11434
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Ollama{
		client:       &http.Client{Timeout: timeout},
		baseURL:      fmt.Sprintf("http://%s:%d", host, port),
		defaultModel: strings.TrimSpace(cfg.Model),
		keepAlive:    cfg.KeepAlive,
		cache:        newModelCache(5 * time.Minute),
		state:        newDriverState("ollama", TypeOllama, host, port),
	}
}

func (p *Ollama) Name() string      { return "ollama" }
func (p *Ollama) BackendType() Type { return TypeOllama }

func (p *Ollama) currentModel() string {
	p.modelMu.Lock()
	defer p.modelMu.Unlock()
	return p.defaultModel
}

func (p *Ollama) setDefaultModel(model string) {
	p.modelMu.Lock()
	p.defaultModel = model
	p.modelMu.Unlock()
	p.state.setModel(model)
}

// Initialize probes the host version endpoint and marks the driver
// connected. On any failure the HTTP client is released before the
// error is returned.
func (p *Ollama) Initialize(ctx context.Context) error {
	p.state.setStatus(StatusConnecting, "")

	version, err := p.fetchVersion(ctx)
	if err != nil {
		p.state.setStatus(StatusError, err.Error())
		p.client.CloseIdleConnections()
		return err
	}
	p.state.setVersion(version)
	p.state.setModel(p.currentModel())
	p.state.setStatus(StatusConnected, "")
	return nil
}

// Cleanup releases driver resources.
func (p *Ollama) Cleanup() error {
	p.client.CloseIdleConnections()
	p.state.setStatus(StatusDisconnected, "")
	return nil
}

// HealthCheck probes /api/tags and updates the driver status.
func (p *Ollama) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		werr := classifyTransportError("ollama", err)
		p.state.setStatus(StatusUnavailable, werr.Error())
		return werr
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		werr := classifyHTTPError("ollama", resp)
		p.state.setStatus(StatusError, werr.Error())
		return werr
	}
	io.Copy(io.Discard, resp.Body)
	p.state.setStatus(StatusAvailable, "")
	return nil
}

// ListModels returns the local model catalog, cached for 5 minutes.
func (p *Ollama) ListModels(ctx context.Context) ([]ModelInfo, error) {
	if cached, ok := p.cache.get(); ok {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, classifyTransportError("ollama", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, classifyHTTPError("ollama", resp)
	}

	var payload struct {
		Models []struct {
			Name       string    `json:"name"`
			Size       int64     `json:"size"`
			ModifiedAt time.Time `json:"modified_at"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errdefs.Wrap(errdefs.KindBackend, errdefs.BackendInvalidResponse,
			"decode ollama model list", err)
	}

	current := p.currentModel()
	out := make([]ModelInfo, 0, len(payload.Models))
	for _, m := range payload.Models {
		out = append(out, ModelInfo{
			ID:         m.Name,
			Backend:    TypeOllama,
			Size:       m.Size,
			ModifiedAt: m.ModifiedAt,
			Current:    m.Name == current,
		})
	}
	p.cache.set(out)
	return out, nil
}

// SwitchModel verifies the model exists locally and makes it the default.
// The change is live: the next request uses the new model.
func (p *Ollama) SwitchModel(ctx context.Context, model string) (bool, error) {
	available, err := p.ListModels(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range available {
		if m.ID == model {
			p.setDefaultModel(model)
			p.cache.invalidate()
			return true, nil
		}
	}
	return false, errdefs.ModelNotFound("ollama", model, modelIDs(available))
}

// Info returns a snapshot of the driver state.
func (p *Ollama) Info() Info { return p.state.snapshot() }

// Generate streams a chat completion over the JSON-lines protocol.
func (p *Ollama) Generate(ctx context.Context, req *ChatRequest) (<-chan *ChatChunk, error) {
	if req == nil {
		return nil, errors.New("request is nil")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = p.currentModel()
	}
	if model == "" {
		return nil, errdefs.New(errdefs.KindBackend, errdefs.BackendInvalidResponse,
			"no model configured for ollama").
			WithTip("set ollama.model in the configuration or pull a model")
	}

	payload := ollamaChatRequest{
		Model:    model,
		Stream:   req.Stream,
		Messages: buildOllamaMessages(req.Messages),
	}
	if p.keepAlive != "" {
		payload.KeepAlive = p.keepAlive
	}
	if len(req.Tools) > 0 {
		payload.Tools = buildOllamaTools(req.Tools)
	}
	payload.Options = map[string]any{}
	if req.MaxTokens != nil {
		payload.Options["num_predict"] = *req.MaxTokens
	}
	if req.Temperature != nil {
		payload.Options["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		payload.Options["top_p"] = *req.TopP
	}
	if len(payload.Options) == 0 {
		payload.Options = nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError("ollama", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			available, _ := p.ListModels(ctx)
			return nil, errdefs.ModelNotFound("ollama", model, modelIDs(available))
		}
		return nil, classifyHTTPError("ollama", resp)
	}

	out := make(chan *ChatChunk, chunkBufferSize)
	if req.Stream {
		go p.streamResponse(ctx, resp.Body, out, model, start)
	} else {
		go p.singleResponse(resp.Body, out, model, start)
	}
	return out, nil
}

func (p *Ollama) streamResponse(ctx context.Context, body io.ReadCloser, out chan *ChatChunk, model string, start time.Time) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)

	var content strings.Builder
	var toolCalls []models.ToolCall
	emitted := map[string]struct{}{}

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			out <- terminalError(model, ctx.Err())
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var resp ollamaChatResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			out <- terminalError(model, errdefs.Wrap(errdefs.KindBackend, errdefs.BackendInvalidResponse,
				"decode ollama chunk", err))
			return
		}
		if resp.Error != "" {
			out <- terminalError(model, errdefs.New(errdefs.KindBackend, errdefs.BackendInvalidResponse, resp.Error))
			return
		}
		if resp.Message != nil {
			if resp.Message.Content != "" {
				content.WriteString(resp.Message.Content)
				out <- &ChatChunk{
					Delta:     resp.Message.Content,
					Content:   content.String(),
					IsPartial: true,
					Model:     model,
				}
			}
			toolCalls = appendOllamaToolCalls(toolCalls, emitted, resp.Message.ToolCalls)
		}
		if resp.Done {
			finish := resp.DoneReason
			if finish == "" {
				finish = "stop"
			}
			if len(toolCalls) > 0 {
				finish = "tool_calls"
			}
			out <- &ChatChunk{
				Content:      content.String(),
				ToolCalls:    toolCalls,
				FinishReason: finish,
				Model:        model,
				ResponseTime: time.Since(start).Seconds(),
				Usage: &Usage{
					PromptTokens:     resp.PromptEvalCount,
					CompletionTokens: resp.EvalCount,
					TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
				},
			}
			return
		}
	}

	if err := scanner.Err(); err != nil {
		out <- terminalError(model, classifyTransportError("ollama", err))
		return
	}
	// Stream ended without a done marker.
	out <- &ChatChunk{Content: content.String(), FinishReason: "stop", Model: model}
}

func (p *Ollama) singleResponse(body io.ReadCloser, out chan *ChatChunk, model string, start time.Time) {
	defer close(out)
	defer body.Close()

	var resp ollamaChatResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		out <- terminalError(model, errdefs.Wrap(errdefs.KindBackend, errdefs.BackendInvalidResponse,
			"decode ollama response", err))
		return
	}
	if resp.Error != "" {
		out <- terminalError(model, errdefs.New(errdefs.KindBackend, errdefs.BackendInvalidResponse, resp.Error))
		return
	}

	chunk := &ChatChunk{
		FinishReason: "stop",
		Model:        model,
		ResponseTime: time.Since(start).Seconds(),
		Usage: &Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
	}
	if resp.DoneReason != "" {
		chunk.FinishReason = resp.DoneReason
	}
	if resp.Message != nil {
		chunk.Content = resp.Message.Content
		chunk.ToolCalls = appendOllamaToolCalls(nil, map[string]struct{}{}, resp.Message.ToolCalls)
		if len(chunk.ToolCalls) > 0 {
			chunk.FinishReason = "tool_calls"
		}
	}
	out <- chunk
}

func (p *Ollama) fetchVersion(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/version", nil)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", classifyTransportError("ollama", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return "", classifyHTTPError("ollama", resp)
	}
	var payload struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", errdefs.Wrap(errdefs.KindBackend, errdefs.BackendInvalidResponse,
			"decode ollama version", err)
	}
	return payload.Version, nil
}

type ollamaChatRequest struct {
	Model     string              `json:"model"`
	Messages  []ollamaChatMessage `json:"messages"`
	Tools     []ollamaTool        `json:"tools,omitempty"`
	Stream    bool                `json:"stream"`
	KeepAlive string              `json:"keep_alive,omitempty"`
	Options   map[string]any      `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaChatResponse struct {
	Message         *ollamaChatMessage `json:"message"`
	Done            bool               `json:"done"`
	DoneReason      string             `json:"done_reason"`
	Error           string             `json:"error"`
	EvalCount       int                `json:"eval_count"`
	PromptEvalCount int                `json:"prompt_eval_count"`
}

type ollamaTool struct {
	Type     string             `json:"type"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolCall struct {
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  map[string]any  `json:"parameters,omitempty"`
	Arguments   json.RawMessage `json:"arguments,omitempty"`
}

func buildOllamaTools(tools []ToolSchema) []ollamaTool {
	out := make([]ollamaTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, ollamaTool{
			Type: "function",
			Function: ollamaToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func buildOllamaMessages(msgs []models.Message) []ollamaChatMessage {
	out := make([]ollamaChatMessage, 0, len(msgs))
	toolNames := map[string]string{}
	for _, msg := range msgs {
		for _, tc := range msg.ToolCalls {
			if tc.ID != "" && tc.Name != "" {
				toolNames[tc.ID] = tc.Name
			}
		}
	}
	for _, msg := range msgs {
		role := string(msg.Role)
		if role == "" {
			role = "user"
		}
		switch msg.Role {
		case models.RoleAssistant:
			m := ollamaChatMessage{Role: role, Content: msg.Content}
			if len(msg.ToolCalls) > 0 {
				m.ToolCalls = make([]ollamaToolCall, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					m.ToolCalls[i] = ollamaToolCall{
						ID:   tc.ID,
						Type: "function",
						Function: ollamaToolFunction{
							Name:      tc.Name,
							Arguments: tc.RawArguments(),
						},
					}
				}
			}
			out = append(out, m)
		case models.RoleTool:
			out = append(out, ollamaChatMessage{
				Role:     role,
				Content:  msg.Content,
				ToolName: toolNames[msg.ToolCallID],
			})
		default:
			out = append(out, ollamaChatMessage{Role: role, Content: msg.Content})
		}
	}
	return out
}

func appendOllamaToolCalls(dst []models.ToolCall, emitted map[string]struct{}, calls []ollamaToolCall) []models.ToolCall {
	for _, tc := range calls {
		key := strings.TrimSpace(tc.ID)
		if key == "" {
			key = strings.TrimSpace(tc.Function.Name) + ":" + strings.TrimSpace(string(tc.Function.Arguments))
		}
		if _, ok := emitted[key]; ok {
			continue
		}
		emitted[key] = struct{}{}

		call := models.ToolCall{
			ID:   strings.TrimSpace(tc.ID),
			Name: strings.TrimSpace(tc.Function.Name),
		}
		if call.ID == "" {
			call.ID = uuid.NewString()
		}
		if len(tc.Function.Arguments) > 0 {
			var args map[string]any
			if err := json.Unmarshal(tc.Function.Arguments, &args); err == nil {
				call.Arguments = args
			}
		}
		if call.Arguments == nil {
			call.Arguments = map[string]any{}
		}
		dst = append(dst, call)
	}
	return dst
}

func terminalError(model string, err error) *ChatChunk {
	return &ChatChunk{
		Model:        model,
		FinishReason: "error",
		Err:          err,
	}
}

func modelIDs(models []ModelInfo) []string {
	out := make([]string, 0, len(models))
	for _, m := range models {
		out = append(out, m.ID)
	}
	return out
}

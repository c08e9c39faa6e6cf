package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/qwen-tui/qwen-tui/internal/errdefs"
	"github.com/qwen-tui/qwen-tui/pkg/models"
)

// openAICompat is the shared core of the OpenAI-compatible SSE drivers
// (LM Studio, vLLM, OpenRouter). Each wrapper supplies a configured
// client, its model-cache TTL, and per-provider defaults.
type openAICompat struct {
	client *openai.Client
	name   string
	typ    Type

	// defaultModel is read on every request and written by SwitchModel,
	// which may run mid-turn from the UI.
	modelMu      sync.Mutex
	defaultModel string

	// Request defaults applied when the caller leaves fields unset.
	defaultMaxTokens   int
	defaultTemperature *float64

	cache *modelCache
	state *driverState
}

func newOpenAICompat(name string, typ Type, client *openai.Client, cacheTTL time.Duration, host string, port int) *openAICompat {
	return &openAICompat{
		client: client,
		name:   name,
		typ:    typ,
		cache:  newModelCache(cacheTTL),
		state:  newDriverState(name, typ, host, port),
	}
}

func (p *openAICompat) Name() string      { return p.name }
func (p *openAICompat) BackendType() Type { return p.typ }
func (p *openAICompat) Info() Info        { return p.state.snapshot() }

func (p *openAICompat) currentModel() string {
	p.modelMu.Lock()
	defer p.modelMu.Unlock()
	return p.defaultModel
}

func (p *openAICompat) setDefaultModel(model string) {
	p.modelMu.Lock()
	p.defaultModel = model
	p.modelMu.Unlock()
	p.state.setModel(model)
}

// Initialize probes the /v1/models endpoint and marks the driver
// connected.
func (p *openAICompat) Initialize(ctx context.Context) error {
	p.state.setStatus(StatusConnecting, "")
	if _, err := p.fetchModels(ctx); err != nil {
		p.state.setStatus(StatusError, err.Error())
		return err
	}
	p.state.setModel(p.currentModel())
	p.state.setStatus(StatusConnected, "")
	return nil
}

// Cleanup releases driver resources.
func (p *openAICompat) Cleanup() error {
	p.state.setStatus(StatusDisconnected, "")
	return nil
}

// HealthCheck probes the model list endpoint, bypassing the cache.
func (p *openAICompat) HealthCheck(ctx context.Context) error {
	if _, err := p.fetchModels(ctx); err != nil {
		p.state.setStatus(StatusUnavailable, err.Error())
		return err
	}
	p.state.setStatus(StatusAvailable, "")
	return nil
}

// ListModels returns the provider catalog, cached with the driver TTL.
func (p *openAICompat) ListModels(ctx context.Context) ([]ModelInfo, error) {
	if cached, ok := p.cache.get(); ok {
		return cached, nil
	}
	out, err := p.fetchModels(ctx)
	if err != nil {
		return nil, err
	}
	p.cache.set(out)
	return out, nil
}

func (p *openAICompat) fetchModels(ctx context.Context) ([]ModelInfo, error) {
	list, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, p.wrapError(err)
	}
	current := p.currentModel()
	out := make([]ModelInfo, 0, len(list.Models))
	for _, m := range list.Models {
		out = append(out, ModelInfo{
			ID:      m.ID,
			Backend: p.typ,
			Current: m.ID == current,
		})
	}
	return out, nil
}

// Generate streams a chat completion over SSE.
func (p *openAICompat) Generate(ctx context.Context, req *ChatRequest) (<-chan *ChatChunk, error) {
	if req == nil {
		return nil, errors.New("request is nil")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = p.currentModel()
	}
	if model == "" {
		return nil, errdefs.New(errdefs.KindBackend, errdefs.BackendInvalidResponse,
			"no model configured for "+p.name).
			WithTip("set a model in the configuration or call switch_model")
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertToOpenAIMessages(req.Messages),
	}
	if req.MaxTokens != nil {
		chatReq.MaxTokens = *req.MaxTokens
	} else if p.defaultMaxTokens > 0 {
		chatReq.MaxTokens = p.defaultMaxTokens
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	} else if p.defaultTemperature != nil {
		chatReq.Temperature = float32(*p.defaultTemperature)
	}
	if req.TopP != nil {
		chatReq.TopP = float32(*req.TopP)
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertToOpenAITools(req.Tools)
	}
	if req.ResponseFormat == "json" {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	out := make(chan *ChatChunk, chunkBufferSize)

	if !req.Stream {
		resp, err := p.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return nil, p.wrapError(err)
		}
		go func() {
			defer close(out)
			out <- p.singleChunk(&resp, model, start)
		}()
		return out, nil
	}

	chatReq.Stream = true
	chatReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, p.wrapError(err)
	}
	go p.processStream(ctx, stream, out, model, start)
	return out, nil
}

func (p *openAICompat) processStream(ctx context.Context, stream *openai.ChatCompletionStream, out chan<- *ChatChunk, model string, start time.Time) {
	defer close(out)
	defer stream.Close()

	var content strings.Builder
	var usage *Usage
	finish := ""
	toolCalls := make(map[int]*models.ToolCall)
	toolArgs := make(map[int]string)

	for {
		select {
		case <-ctx.Done():
			out <- terminalError(model, ctx.Err())
			return
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				out <- &ChatChunk{
					Content:      content.String(),
					ToolCalls:    collectToolCalls(toolCalls, toolArgs),
					FinishReason: finishOrDefault(finish, toolCalls),
					Usage:        usage,
					Model:        model,
					ResponseTime: time.Since(start).Seconds(),
				}
				return
			}
			out <- terminalError(model, p.wrapError(err))
			return
		}

		if resp.Usage != nil {
			usage = &Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			}
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		if choice.FinishReason != "" {
			finish = string(choice.FinishReason)
		}

		if choice.Delta.Content != "" {
			content.WriteString(choice.Delta.Content)
			out <- &ChatChunk{
				Delta:     choice.Delta.Content,
				Content:   content.String(),
				IsPartial: true,
				Model:     model,
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if toolCalls[index] == nil {
				toolCalls[index] = &models.ToolCall{}
			}
			if tc.ID != "" {
				toolCalls[index].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[index].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolArgs[index] += tc.Function.Arguments
			}
		}
	}
}

func (p *openAICompat) singleChunk(resp *openai.ChatCompletionResponse, model string, start time.Time) *ChatChunk {
	chunk := &ChatChunk{
		Model:        model,
		FinishReason: "stop",
		ResponseTime: time.Since(start).Seconds(),
		Usage: &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if len(resp.Choices) == 0 {
		return chunk
	}
	choice := resp.Choices[0]
	chunk.Content = choice.Message.Content
	if choice.FinishReason != "" {
		chunk.FinishReason = string(choice.FinishReason)
	}
	for _, tc := range choice.Message.ToolCalls {
		chunk.ToolCalls = append(chunk.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: parseJSONArguments(tc.Function.Arguments),
		})
	}
	return chunk
}

func (p *openAICompat) wrapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return errdefs.Wrap(errdefs.KindBackend, errdefs.BackendAuthentication,
				p.name+" rejected the request", err).
				WithTip("check the configured API key")
		case http.StatusTooManyRequests:
			return errdefs.Wrap(errdefs.KindBackend, errdefs.BackendRateLimit,
				p.name+" rate limited the request", err).
				WithTip("wait a moment and retry")
		case http.StatusNotFound:
			return errdefs.Wrap(errdefs.KindBackend, errdefs.BackendInvalidResponse,
				p.name+" reports the model is not available", err)
		}
		if apiErr.HTTPStatusCode >= 500 {
			return errdefs.Wrap(errdefs.KindBackend, errdefs.BackendUnavailable,
				p.name+" server error", err).
				WithTip("check the " + p.name + " service logs")
		}
		return errdefs.Wrap(errdefs.KindBackend, errdefs.BackendInvalidResponse, apiErr.Message, err)
	}
	return classifyTransportError(p.name, err)
}

func collectToolCalls(calls map[int]*models.ToolCall, args map[int]string) []models.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]models.ToolCall, 0, len(calls))
	for i := 0; i < len(calls); i++ {
		tc, ok := calls[i]
		if !ok || tc.Name == "" {
			continue
		}
		call := models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Name,
			Arguments: parseJSONArguments(args[i]),
		}
		if call.ID == "" {
			call.ID = uuid.NewString()
		}
		out = append(out, call)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func finishOrDefault(finish string, toolCalls map[int]*models.ToolCall) string {
	if finish != "" {
		return finish
	}
	if len(toolCalls) > 0 {
		return "tool_calls"
	}
	return "stop"
}

func parseJSONArguments(raw string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{"_raw": raw}
	}
	return args
}

func convertToOpenAIMessages(msgs []models.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case models.RoleAssistant:
			m := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.RawArguments()),
					},
				})
			}
			out = append(out, m)
		case models.RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})
		default:
			out = append(out, openai.ChatCompletionMessage{
				Role:    string(msg.Role),
				Content: msg.Content,
			})
		}
	}
	return out
}

func convertToOpenAITools(tools []ToolSchema) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

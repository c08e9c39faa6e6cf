package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// VLLMConfig configures the vLLM driver.
type VLLMConfig struct {
	Host        string
	Port        int
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature *float64
}

// VLLM drives a local vLLM server through its OpenAI-compatible API.
// vLLM serves the model it was launched with, so switching only
// updates the request default.
type VLLM struct {
	*openAICompat
}

var _ Backend = (*VLLM)(nil)
var _ ModelSwitcher = (*VLLM)(nil)

// NewVLLM creates a vLLM driver.
func NewVLLM(cfg VLLMConfig) *VLLM {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port <= 0 {
		port = 8000
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	clientConfig := openai.DefaultConfig("vllm")
	clientConfig.BaseURL = fmt.Sprintf("http://%s:%d/v1", host, port)
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}

	core := newOpenAICompat("vllm", TypeVLLM,
		openai.NewClientWithConfig(clientConfig), 5*time.Minute, host, port)
	core.defaultModel = strings.TrimSpace(cfg.Model)
	core.defaultMaxTokens = cfg.MaxTokens
	core.defaultTemperature = cfg.Temperature
	return &VLLM{openAICompat: core}
}

// Initialize probes the server and adopts the served model when none
// is configured.
func (p *VLLM) Initialize(ctx context.Context) error {
	if err := p.openAICompat.Initialize(ctx); err != nil {
		return err
	}
	if p.currentModel() == "" {
		if served, err := p.ListModels(ctx); err == nil && len(served) > 0 {
			p.setDefaultModel(served[0].ID)
		}
	}
	return nil
}

// SwitchModel updates the request default only. The served model is
// fixed at launch, so the change is always deferred.
func (p *VLLM) SwitchModel(_ context.Context, model string) (bool, error) {
	p.setDefaultModel(model)
	return false, nil
}

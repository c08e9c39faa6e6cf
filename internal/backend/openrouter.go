package backend

import (
	"context"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/qwen-tui/qwen-tui/internal/errdefs"
)

// OpenRouterConfig configures the OpenRouter driver.
type OpenRouterConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// OpenRouter drives the hosted OpenRouter gateway. The API is
// OpenAI-compatible with bearer auth; model IDs use the
// provider/model-name form (e.g. "qwen/qwen-2.5-coder-32b-instruct").
type OpenRouter struct {
	*openAICompat
}

var _ Backend = (*OpenRouter)(nil)
var _ ModelSwitcher = (*OpenRouter)(nil)

// NewOpenRouter creates an OpenRouter driver. The API key is required.
func NewOpenRouter(cfg OpenRouterConfig) (*OpenRouter, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errdefs.New(errdefs.KindConfig, errdefs.BackendAuthentication,
			"openrouter requires an API key").
			WithTip("set openrouter.api_key or the OPENROUTER_API_KEY environment variable")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = baseURL
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}

	core := newOpenAICompat("openrouter", TypeOpenRouter,
		openai.NewClientWithConfig(clientConfig), 10*time.Minute, "openrouter.ai", 443)
	core.defaultModel = strings.TrimSpace(cfg.Model)
	return &OpenRouter{openAICompat: core}, nil
}

// SwitchModel updates the default model. OpenRouter selects the model
// per request, so the change is live immediately.
func (p *OpenRouter) SwitchModel(_ context.Context, model string) (bool, error) {
	p.setDefaultModel(model)
	return true, nil
}

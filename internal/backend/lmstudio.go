package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// LMStudioConfig configures the LM Studio driver.
type LMStudioConfig struct {
	Host    string
	Port    int
	APIKey  string
	Timeout time.Duration
}

// LMStudio drives a local LM Studio host through its OpenAI-compatible
// API. The host hot-swaps its loaded model, so the catalog cache is
// short-lived and the current model is introspected from /v1/models.
type LMStudio struct {
	*openAICompat
}

var _ Backend = (*LMStudio)(nil)
var _ ModelSwitcher = (*LMStudio)(nil)

// NewLMStudio creates an LM Studio driver.
func NewLMStudio(cfg LMStudioConfig) *LMStudio {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port <= 0 {
		port = 1234
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		// LM Studio ignores the key but the client requires one.
		apiKey = "lm-studio"
	}
	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = fmt.Sprintf("http://%s:%d/v1", host, port)
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}

	core := newOpenAICompat("lm_studio", TypeLMStudio,
		openai.NewClientWithConfig(clientConfig), time.Minute, host, port)
	return &LMStudio{openAICompat: core}
}

// CurrentModel returns the model currently loaded in the host, taken as
// the first entry of /v1/models.
func (p *LMStudio) CurrentModel(ctx context.Context) (string, error) {
	models, err := p.ListModels(ctx)
	if err != nil {
		return "", err
	}
	if len(models) == 0 {
		return "", nil
	}
	return models[0].ID, nil
}

// SwitchModel updates the driver default. The change is live only when
// the host already exposes the model; otherwise it takes effect once
// the user loads it in LM Studio.
func (p *LMStudio) SwitchModel(ctx context.Context, model string) (bool, error) {
	p.setDefaultModel(model)
	p.cache.invalidate()

	available, err := p.ListModels(ctx)
	if err != nil {
		return false, nil
	}
	for _, m := range available {
		if m.ID == model {
			return true, nil
		}
	}
	return false, nil
}

// Initialize probes the host and records the loaded model.
func (p *LMStudio) Initialize(ctx context.Context) error {
	if err := p.openAICompat.Initialize(ctx); err != nil {
		return err
	}
	if current, err := p.CurrentModel(ctx); err == nil && current != "" {
		if p.currentModel() == "" {
			p.setDefaultModel(current)
		}
		p.state.setModel(current)
	}
	return nil
}

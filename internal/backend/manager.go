package backend

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/qwen-tui/qwen-tui/internal/errdefs"
	"github.com/qwen-tui/qwen-tui/internal/observability"
)

// ManagerConfig configures the backend pool.
type ManagerConfig struct {
	// PreferredBackends is the routing preference order.
	PreferredBackends []Type

	// ConnectTimeout bounds one discovery probe. Default 30s.
	ConnectTimeout time.Duration

	// HealthInterval is the health loop cadence. Default 30s.
	HealthInterval time.Duration
}

// DefaultManagerConfig returns the default pool configuration.
func DefaultManagerConfig() *ManagerConfig {
	return &ManagerConfig{
		ConnectTimeout: 30 * time.Second,
		HealthInterval: 30 * time.Second,
	}
}

// GenerateOptions selects routing behavior for one request.
type GenerateOptions struct {
	// Preferred names the backend to try first when healthy.
	Preferred Type

	// Fallback enables mid-stream failover to the remaining healthy
	// backends. Output already delivered is not retracted, so the
	// caller may observe concatenated streams.
	Fallback bool
}

// SwitchResult reports the outcome of a model switch.
type SwitchResult struct {
	Backend Type   `json:"backend"`
	Model   string `json:"model"`
	// Live is true when the switch takes effect immediately; false
	// when only the driver default was updated.
	Live bool `json:"live"`
}

// Manager owns the backend drivers, discovers and health-checks them,
// and routes generation requests with failover. Drivers are exclusively
// owned: they are never shared across managers.
type Manager struct {
	mu      sync.RWMutex
	drivers map[Type]Backend
	order   []Type

	config  *ManagerConfig
	logger  *observability.Logger
	metrics *observability.Metrics

	healthStop    chan struct{}
	healthDone    chan struct{}
	healthOnce    sync.Once
	healthStarted bool
}

// NewManager creates an empty pool. Use Discover or Register to add
// drivers.
func NewManager(cfg *ManagerConfig, logger *observability.Logger, metrics *observability.Metrics) *Manager {
	if cfg == nil {
		cfg = DefaultManagerConfig()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 30 * time.Second
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Manager{
		drivers:    make(map[Type]Backend),
		order:      append([]Type(nil), cfg.PreferredBackends...),
		config:     cfg,
		logger:     logger.With("component", "backend"),
		metrics:    metrics,
		healthStop: make(chan struct{}),
		healthDone: make(chan struct{}),
	}
}

// Discover probes each candidate driver with the connect timeout and
// keeps the ones that initialize. Failed candidates are cleaned up.
func (m *Manager) Discover(ctx context.Context, candidates []Backend) error {
	for _, b := range candidates {
		probeCtx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
		err := b.Initialize(probeCtx)
		cancel()
		if err != nil {
			m.logger.Warn(ctx, "backend unavailable", "backend", b.Name(), "error", err)
			b.Cleanup()
			continue
		}
		m.Register(b)
		m.logger.Info(ctx, "backend discovered", "backend", b.Name())
	}

	if len(m.Healthy()) == 0 {
		return errdefs.New(errdefs.KindBackend, errdefs.BackendUnavailable,
			"no LLM backends are reachable").
			WithTip("start Ollama, LM Studio, or vLLM locally, or configure an OpenRouter API key")
	}
	return nil
}

// Register adds a driver to the pool, replacing any driver of the same
// type.
func (m *Manager) Register(b Backend) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := b.BackendType()
	if old, ok := m.drivers[t]; ok {
		old.Cleanup()
	}
	m.drivers[t] = b
	found := false
	for _, o := range m.order {
		if o == t {
			found = true
			break
		}
	}
	if !found {
		m.order = append(m.order, t)
	}
}

// SetPreferenceOrder replaces the routing preference order. Registered
// types missing from the new order keep their relative position after
// the preferred ones.
func (m *Manager) SetPreferenceOrder(preferred []Type) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := make([]Type, 0, len(m.order))
	seen := make(map[Type]bool, len(preferred))
	for _, t := range preferred {
		if !seen[t] {
			next = append(next, t)
			seen[t] = true
		}
	}
	for _, t := range m.order {
		if !seen[t] {
			next = append(next, t)
			seen[t] = true
		}
	}
	m.order = next
}

// Get returns the driver for a backend type.
func (m *Manager) Get(t Type) (Backend, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.drivers[t]
	return b, ok
}

// Healthy returns a snapshot of the healthy drivers in preference
// order.
func (m *Manager) Healthy() []Backend {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Backend, 0, len(m.drivers))
	for _, t := range m.order {
		b, ok := m.drivers[t]
		if !ok {
			continue
		}
		if b.Info().Status.Healthy() {
			out = append(out, b)
		}
	}
	return out
}

// Infos returns a status snapshot of every driver in the pool.
func (m *Manager) Infos() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.drivers))
	for _, t := range m.order {
		if b, ok := m.drivers[t]; ok {
			out = append(out, b.Info())
		}
	}
	return out
}

// Route picks a backend: the preferred type when healthy, else the
// configured preference list in order, else any healthy driver.
func (m *Manager) Route(preferred Type) (Backend, error) {
	candidates := m.routeCandidates(preferred)
	if len(candidates) == 0 {
		return nil, errdefs.New(errdefs.KindBackend, errdefs.BackendUnavailable,
			"no healthy LLM backend available").
			WithTip("check backend status with the models command")
	}
	return candidates[0], nil
}

// routeCandidates returns the healthy drivers in routing order for one
// request: preferred first, then the preference list, then the rest.
func (m *Manager) routeCandidates(preferred Type) []Backend {
	healthy := m.Healthy()
	if preferred == "" {
		return healthy
	}
	out := make([]Backend, 0, len(healthy))
	for _, b := range healthy {
		if b.BackendType() == preferred {
			out = append(out, b)
		}
	}
	for _, b := range healthy {
		if b.BackendType() != preferred {
			out = append(out, b)
		}
	}
	return out
}

// Generate routes the request and streams the response. With
// opts.Fallback set, a stream failing before its terminal chunk is
// restarted on the next healthy backend; the caller sees either a
// terminal chunk or an exhausted-failover error chunk, never a
// dangling stream.
func (m *Manager) Generate(ctx context.Context, req *ChatRequest, opts GenerateOptions) (<-chan *ChatChunk, error) {
	candidates := m.routeCandidates(opts.Preferred)
	if len(candidates) == 0 {
		return nil, errdefs.New(errdefs.KindBackend, errdefs.BackendUnavailable,
			"no healthy LLM backend available").
			WithTip("start a local backend or configure OpenRouter")
	}
	if !opts.Fallback {
		candidates = candidates[:1]
	}

	out := make(chan *ChatChunk, chunkBufferSize)
	go m.generateWithFailover(ctx, req, candidates, out)
	return out, nil
}

func (m *Manager) generateWithFailover(ctx context.Context, req *ChatRequest, candidates []Backend, out chan<- *ChatChunk) {
	defer close(out)

	var lastErr error
	for i, b := range candidates {
		start := time.Now()
		stream, err := b.Generate(ctx, req)
		if err != nil {
			lastErr = err
			m.countGenerate(b, req.Model, "error")
			m.logger.Warn(ctx, "backend generate failed", "backend", b.Name(), "error", err)
			if ctx.Err() != nil {
				break
			}
			m.noteFailover(ctx, candidates, i)
			continue
		}

		finished, err := m.relay(ctx, b, stream, out)
		m.observeGenerate(b, req.Model, start)
		if finished {
			m.countGenerate(b, req.Model, statusLabel(i))
			return
		}
		lastErr = err
		m.countGenerate(b, req.Model, "error")
		m.logger.Warn(ctx, "backend stream failed", "backend", b.Name(), "error", err)
		if ctx.Err() != nil {
			break
		}
		m.noteFailover(ctx, candidates, i)
	}

	if lastErr == nil {
		lastErr = errdefs.New(errdefs.KindBackend, errdefs.BackendUnavailable,
			"all healthy backends failed").
			WithTip("check backend logs and connectivity")
	}
	out <- &ChatChunk{FinishReason: "error", Err: lastErr}
}

// relay forwards chunks until a terminal chunk or a stream failure.
// It reports whether the stream terminated cleanly.
func (m *Manager) relay(ctx context.Context, b Backend, stream <-chan *ChatChunk, out chan<- *ChatChunk) (bool, error) {
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case chunk, ok := <-stream:
			if !ok {
				return false, errdefs.New(errdefs.KindBackend, errdefs.BackendConnection,
					fmt.Sprintf("%s stream ended without completion", b.Name()))
			}
			if chunk.Err != nil {
				return false, chunk.Err
			}
			if chunk.Usage != nil && m.metrics != nil {
				m.metrics.TokensUsed.WithLabelValues(b.Name(), chunk.Model, "prompt").
					Add(float64(chunk.Usage.PromptTokens))
				m.metrics.TokensUsed.WithLabelValues(b.Name(), chunk.Model, "completion").
					Add(float64(chunk.Usage.CompletionTokens))
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return false, ctx.Err()
			}
			if !chunk.IsPartial && chunk.FinishReason != "" {
				return true, nil
			}
		}
	}
}

func (m *Manager) noteFailover(ctx context.Context, candidates []Backend, i int) {
	if i+1 >= len(candidates) {
		return
	}
	from, to := candidates[i], candidates[i+1]
	m.logger.Info(ctx, "failing over", "from", from.Name(), "to", to.Name())
	if m.metrics != nil {
		m.metrics.FailoverCounter.WithLabelValues(from.Name(), to.Name()).Inc()
	}
}

func (m *Manager) countGenerate(b Backend, model, status string) {
	if m.metrics != nil {
		m.metrics.GenerateCounter.WithLabelValues(b.Name(), model, status).Inc()
	}
}

func (m *Manager) observeGenerate(b Backend, model string, start time.Time) {
	if m.metrics != nil {
		m.metrics.GenerateDuration.WithLabelValues(b.Name(), model).
			Observe(time.Since(start).Seconds())
	}
}

func statusLabel(attempt int) string {
	if attempt > 0 {
		return "fallback"
	}
	return "success"
}

// StartHealthLoop runs the 30s health monitor until StopHealthLoop or
// context cancellation. Probes run outside the pool lock.
func (m *Manager) StartHealthLoop(ctx context.Context) {
	m.mu.Lock()
	if m.healthStarted {
		m.mu.Unlock()
		return
	}
	m.healthStarted = true
	m.mu.Unlock()

	go func() {
		defer close(m.healthDone)
		ticker := time.NewTicker(m.config.HealthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.healthStop:
				return
			case <-ticker.C:
				m.probeAll(ctx)
			}
		}
	}()
}

// StopHealthLoop stops the monitor and waits for it to exit.
func (m *Manager) StopHealthLoop() {
	m.healthOnce.Do(func() { close(m.healthStop) })
	m.mu.RLock()
	started := m.healthStarted
	m.mu.RUnlock()
	if started {
		<-m.healthDone
	}
}

func (m *Manager) probeAll(ctx context.Context) {
	m.mu.RLock()
	drivers := make([]Backend, 0, len(m.drivers))
	for _, b := range m.drivers {
		if b.Info().Status != StatusDisconnected {
			drivers = append(drivers, b)
		}
	}
	m.mu.RUnlock()

	for _, b := range drivers {
		probeCtx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
		err := b.HealthCheck(probeCtx)
		cancel()
		up := 0.0
		if err == nil {
			up = 1.0
		} else {
			m.logger.Debug(ctx, "health probe failed", "backend", b.Name(), "error", err)
		}
		if m.metrics != nil {
			m.metrics.BackendUp.WithLabelValues(b.Name()).Set(up)
		}
	}
}

// Shutdown stops the health loop and cleans up every driver.
func (m *Manager) Shutdown() {
	m.StopHealthLoop()
	m.mu.Lock()
	defer m.mu.Unlock()
	for t, b := range m.drivers {
		b.Cleanup()
		delete(m.drivers, t)
	}
}

// recommendedModelPatterns matches coding-oriented model names.
var recommendedModelPatterns = []string{
	"coder", "deepseek-coder", "codellama", "code-llama", "starcoder",
	"codegemma", "codestral", "devstral", "codeqwen", "granite-code",
}

// GetAllModels returns every model across healthy backends.
func (m *Manager) GetAllModels(ctx context.Context) ([]ModelInfo, error) {
	var out []ModelInfo
	var errs []string
	for _, b := range m.Healthy() {
		models, err := b.ListModels(ctx)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", b.Name(), err))
			continue
		}
		out = append(out, models...)
	}
	if out == nil && len(errs) > 0 {
		return nil, errdefs.New(errdefs.KindBackend, errdefs.BackendUnavailable,
			"listing models failed: "+strings.Join(errs, "; "))
	}
	return out, nil
}

// GetModelsByBackend returns the catalog of one backend.
func (m *Manager) GetModelsByBackend(ctx context.Context, t Type) ([]ModelInfo, error) {
	b, ok := m.Get(t)
	if !ok {
		return nil, errdefs.New(errdefs.KindBackend, errdefs.BackendUnavailable,
			fmt.Sprintf("backend %s is not in the pool", t))
	}
	return b.ListModels(ctx)
}

// GetCurrentModels returns the active model of every driver.
func (m *Manager) GetCurrentModels() map[Type]string {
	out := make(map[Type]string)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for t, b := range m.drivers {
		out[t] = b.Info().Model
	}
	return out
}

// SwitchModel switches the active model of one backend. The result
// reports whether the change is live or deferred to the next request
// or host-side load.
func (m *Manager) SwitchModel(ctx context.Context, t Type, model string) (*SwitchResult, error) {
	b, ok := m.Get(t)
	if !ok {
		return nil, errdefs.New(errdefs.KindBackend, errdefs.BackendUnavailable,
			fmt.Sprintf("backend %s is not in the pool", t))
	}
	switcher, ok := b.(ModelSwitcher)
	if !ok {
		return nil, errdefs.New(errdefs.KindBackend, errdefs.BackendUnsupported,
			fmt.Sprintf("backend %s cannot switch models", t))
	}
	live, err := switcher.SwitchModel(ctx, model)
	if err != nil {
		return nil, err
	}
	m.logger.Info(ctx, "model switched", "backend", t, "model", model, "live", live)
	return &SwitchResult{Backend: t, Model: model, Live: live}, nil
}

// FindModelAcrossBackends returns the models whose ID contains the
// pattern, case-insensitively, ordered by backend preference then ID.
func (m *Manager) FindModelAcrossBackends(ctx context.Context, pattern string) ([]ModelInfo, error) {
	all, err := m.GetAllModels(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(pattern))
	var out []ModelInfo
	for _, model := range all {
		if needle == "" || strings.Contains(strings.ToLower(model.ID), needle) {
			out = append(out, model)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetRecommendedModels returns the available models matching the fixed
// coding-model name patterns.
func (m *Manager) GetRecommendedModels(ctx context.Context) ([]ModelInfo, error) {
	all, err := m.GetAllModels(ctx)
	if err != nil {
		return nil, err
	}
	var out []ModelInfo
	for _, model := range all {
		id := strings.ToLower(model.ID)
		for _, pattern := range recommendedModelPatterns {
			if strings.Contains(id, pattern) {
				out = append(out, model)
				break
			}
		}
	}
	return out, nil
}

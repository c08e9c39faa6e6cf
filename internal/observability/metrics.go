package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the Prometheus series exported by the agent core.
type Metrics struct {
	// BackendUp reports backend health from the monitor loop.
	// Labels: backend. 1 = healthy, 0 = unhealthy.
	BackendUp *prometheus.GaugeVec

	// GenerateDuration measures end-to-end generation latency.
	// Labels: backend, model.
	GenerateDuration *prometheus.HistogramVec

	// GenerateCounter counts generation requests.
	// Labels: backend, model, status (success|error|fallback).
	GenerateCounter *prometheus.CounterVec

	// TokensUsed tracks token consumption.
	// Labels: backend, model, type (prompt|completion).
	TokensUsed *prometheus.CounterVec

	// FailoverCounter counts mid-stream backend failovers.
	// Labels: from, to.
	FailoverCounter *prometheus.CounterVec

	// ToolExecutions counts tool invocations.
	// Labels: tool, status (completed|error|cancelled).
	ToolExecutions *prometheus.CounterVec

	// ToolDuration measures tool execution time.
	// Labels: tool.
	ToolDuration *prometheus.HistogramVec

	// PermissionDecisions counts permission outcomes.
	// Labels: tool, outcome (allow|deny|block|yolo).
	PermissionDecisions *prometheus.CounterVec

	// MCPConnected reports MCP server connectivity.
	// Labels: server. 1 = connected.
	MCPConnected *prometheus.GaugeVec
}

// NewMetrics creates and registers all collectors with the given
// registerer (nil means the default registry).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		BackendUp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "qwen_tui_backend_up",
				Help: "Backend health as seen by the monitor loop",
			},
			[]string{"backend"},
		),
		GenerateDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qwen_tui_generate_duration_seconds",
				Help:    "Duration of LLM generation requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"backend", "model"},
		),
		GenerateCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qwen_tui_generate_requests_total",
				Help: "Total generation requests by backend, model, and status",
			},
			[]string{"backend", "model", "status"},
		),
		TokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qwen_tui_tokens_total",
				Help: "Total tokens consumed by backend, model, and type",
			},
			[]string{"backend", "model", "type"},
		),
		FailoverCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qwen_tui_failovers_total",
				Help: "Total mid-stream failovers between backends",
			},
			[]string{"from", "to"},
		),
		ToolExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qwen_tui_tool_executions_total",
				Help: "Total tool executions by tool and status",
			},
			[]string{"tool", "status"},
		),
		ToolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qwen_tui_tool_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 120},
			},
			[]string{"tool"},
		),
		PermissionDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qwen_tui_permission_decisions_total",
				Help: "Total permission decisions by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		MCPConnected: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "qwen_tui_mcp_connected",
				Help: "MCP server connectivity by server name",
			},
			[]string{"server"},
		),
	}
}

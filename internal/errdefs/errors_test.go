package errdefs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorRendering(t *testing.T) {
	err := New(KindBackend, BackendConnection, "cannot reach ollama").
		WithTip("check that the service is running")

	got := err.Error()
	want := "BackendError: cannot reach ollama\n\nTip: check that the service is running"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorWithoutTip(t *testing.T) {
	err := New(KindTool, ToolParameter, "offset must be positive")
	if strings.Contains(err.Error(), "Tip:") {
		t.Errorf("unexpected tip in %q", err.Error())
	}
}

func TestErrorRendersCause(t *testing.T) {
	cause := errors.New(`"full" is not one of the allowed values`)
	err := Wrap(KindMCP, MCPValidation, `parameter "mode" for setmode`, cause)

	got := err.Error()
	want := `MCPError: parameter "mode" for setmode: "full" is not one of the allowed values`
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorRendersCauseWithoutReason(t *testing.T) {
	err := Wrap(KindConfig, ConfigParse, "", errors.New("yaml: line 3: mapping values"))
	if !strings.Contains(err.Error(), "yaml: line 3") {
		t.Errorf("Error() = %q, want cause rendered", err.Error())
	}
}

func TestUnwrapChain(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(KindBackend, BackendConnection, "cannot reach vllm", cause)

	if !errors.Is(err, cause) {
		t.Error("wrapped cause not reachable via errors.Is")
	}

	wrapped := fmt.Errorf("generate: %w", err)
	ce, ok := As(wrapped)
	if !ok {
		t.Fatal("As should find CoreError through fmt wrapping")
	}
	if ce.SubKind != BackendConnection {
		t.Errorf("SubKind = %s, want %s", ce.SubKind, BackendConnection)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", New(KindBackend, BackendTimeout, "deadline"), true},
		{"rate limit", New(KindBackend, BackendRateLimit, "429"), true},
		{"auth", New(KindBackend, BackendAuthentication, "401"), false},
		{"connection", New(KindBackend, BackendConnection, "refused"), true},
		{"mcp timeout", New(KindMCP, MCPTimeout, "ping"), true},
		{"mcp connection", New(KindMCP, MCPConnection, "dial"), true},
		{"mcp protocol", New(KindMCP, MCPProtocol, "bad frame"), false},
		{"permission", New(KindSecurity, SecurityPermissionDenied, "denied"), false},
		{"raw timeout string", errors.New("context deadline exceeded"), true},
		{"raw refused", errors.New("dial tcp 127.0.0.1:11434: connection refused"), true},
		{"raw other", errors.New("parse failure"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestModelNotFoundCarriesAvailable(t *testing.T) {
	err := ModelNotFound("ollama", "qwen3:32b", []string{"qwen2.5-coder:7b", "llama3:8b"})

	if !strings.Contains(err.Error(), "qwen2.5-coder:7b") {
		t.Errorf("message should list available models, got %q", err.Error())
	}
	models, ok := err.Details["available_models"].([]string)
	if !ok || len(models) != 2 {
		t.Errorf("available_models detail = %v", err.Details["available_models"])
	}
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(KindMCP, MCPProtocol, "bad frame"))
	if !IsKind(err, KindMCP) {
		t.Error("IsKind(KindMCP) = false")
	}
	if IsKind(err, KindBackend) {
		t.Error("IsKind(KindBackend) = true")
	}
}

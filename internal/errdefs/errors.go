// Package errdefs defines the error taxonomy shared by the agent core.
// Every layer wraps its failures in a CoreError so that callers can branch
// on kind and sub-kind with errors.As and render a consistent user-facing
// message with remediation guidance.
package errdefs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the coarse error category.
type Kind string

const (
	KindConfig   Kind = "ConfigError"
	KindBackend  Kind = "BackendError"
	KindLLM      Kind = "LLMError"
	KindSecurity Kind = "SecurityError"
	KindTool     Kind = "ToolError"
	KindMCP      Kind = "MCPError"
)

// SubKind refines a Kind. The set is closed per kind.
type SubKind string

const (
	// ConfigError sub-kinds.
	ConfigNotFound     SubKind = "NotFound"
	ConfigParse        SubKind = "Parse"
	ConfigValidation   SubKind = "Validation"
	ConfigInvalidValue SubKind = "InvalidValue"

	// BackendError sub-kinds.
	BackendUnavailable     SubKind = "Unavailable"
	BackendConnection      SubKind = "Connection"
	BackendTimeout         SubKind = "Timeout"
	BackendAuthentication  SubKind = "Authentication"
	BackendRateLimit       SubKind = "RateLimit"
	BackendInvalidResponse SubKind = "InvalidResponse"
	BackendUnsupported     SubKind = "Unsupported"

	// LLMError sub-kinds.
	LLMGeneration SubKind = "Generation"
	LLMToolCall   SubKind = "ToolCall"

	// SecurityError sub-kinds.
	SecurityPermissionDenied SubKind = "PermissionDenied"
	SecurityUnsafeOperation  SubKind = "UnsafeOperation"
	SecurityPolicyViolation  SubKind = "PolicyViolation"

	// ToolError sub-kinds.
	ToolNotFound       SubKind = "NotFound"
	ToolInit           SubKind = "Init"
	ToolParameter      SubKind = "Parameter"
	ToolFileSystem     SubKind = "FileSystem"
	ToolShellExecution SubKind = "ShellExecution"

	// MCPError sub-kinds.
	MCPConnection    SubKind = "Connection"
	MCPProtocol      SubKind = "Protocol"
	MCPServer        SubKind = "Server"
	MCPTimeout       SubKind = "Timeout"
	MCPToolNotFound  SubKind = "ToolNotFound"
	MCPToolExecution SubKind = "ToolExecution"
	MCPDiscovery     SubKind = "Discovery"
	MCPValidation    SubKind = "Validation"
)

// CoreError is a classified error with optional remediation guidance.
type CoreError struct {
	Kind    Kind
	SubKind SubKind
	Reason  string
	Tip     string
	Details map[string]any
	Cause   error
}

// Error renders "{Kind}: {reason}: {cause}" with a trailing Tip
// paragraph when set.
func (e *CoreError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	sb.WriteString(": ")
	switch {
	case e.Reason != "" && e.Cause != nil:
		sb.WriteString(e.Reason)
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	case e.Reason != "":
		sb.WriteString(e.Reason)
	case e.Cause != nil:
		sb.WriteString(e.Cause.Error())
	}
	if e.Tip != "" {
		sb.WriteString("\n\nTip: ")
		sb.WriteString(e.Tip)
	}
	return sb.String()
}

// Unwrap returns the underlying error.
func (e *CoreError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether a retry of the same operation may succeed.
// Sub-kind names repeat across kinds, so the decision is on the pair.
func (e *CoreError) Retryable() bool {
	switch e.Kind {
	case KindBackend:
		switch e.SubKind {
		case BackendConnection, BackendTimeout, BackendRateLimit:
			return true
		}
	case KindMCP:
		switch e.SubKind {
		case MCPConnection, MCPTimeout:
			return true
		}
	}
	return false
}

// New creates a classified error.
func New(kind Kind, sub SubKind, reason string) *CoreError {
	return &CoreError{Kind: kind, SubKind: sub, Reason: reason}
}

// Wrap classifies an existing error, keeping it on the chain.
func Wrap(kind Kind, sub SubKind, reason string, cause error) *CoreError {
	return &CoreError{Kind: kind, SubKind: sub, Reason: reason, Cause: cause}
}

// WithTip attaches remediation guidance.
func (e *CoreError) WithTip(tip string) *CoreError {
	e.Tip = tip
	return e
}

// WithDetail attaches a structured detail entry, such as the list of
// available models on a model-not-found failure.
func (e *CoreError) WithDetail(key string, value any) *CoreError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// As extracts a CoreError from an error chain.
func As(err error) (*CoreError, bool) {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	if ce, ok := As(err); ok {
		return ce.Kind == kind
	}
	return false
}

// IsRetryable reports whether err should be retried or failed over.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ce, ok := As(err); ok {
		return ce.Retryable()
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset")
}

// ModelNotFound builds the backend error for a missing model, carrying the
// set of models the provider does expose so the caller can suggest one.
func ModelNotFound(backend, model string, available []string) *CoreError {
	err := New(KindBackend, BackendInvalidResponse,
		fmt.Sprintf("model %q not found on %s", model, backend))
	if len(available) > 0 {
		err = err.WithDetail("available_models", available).
			WithTip("available models: " + strings.Join(available, ", "))
	} else {
		err = err.WithTip(fmt.Sprintf("pull or load the model on %s first", backend))
	}
	return err
}

// ConnectionFailed builds the backend error for an unreachable provider.
func ConnectionFailed(backend string, cause error) *CoreError {
	return Wrap(KindBackend, BackendConnection,
		fmt.Sprintf("cannot reach %s", backend), cause).
		WithTip(fmt.Sprintf("check that the %s service is running and the host/port are correct", backend))
}

// RequestTimeout builds the backend error for an expired request deadline.
func RequestTimeout(backend string, cause error) *CoreError {
	return Wrap(KindBackend, BackendTimeout,
		fmt.Sprintf("request to %s timed out", backend), cause).
		WithTip("try a shorter prompt or raise the backend timeout")
}

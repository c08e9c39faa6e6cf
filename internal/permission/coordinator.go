package permission

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"

	"github.com/qwen-tui/qwen-tui/internal/errdefs"
	"github.com/qwen-tui/qwen-tui/internal/observability"
)

// Prompter asks the user to decide one request. Implementations block
// until the user answers or the context ends.
type Prompter interface {
	Decide(ctx context.Context, req Request) (Decision, error)
}

// decisionCall is one in-flight prompt shared by duplicate requests.
type decisionCall struct {
	wg       sync.WaitGroup
	decision Decision
	err      error
}

// Config configures the coordinator.
type Config struct {
	// WorkingDir anchors relative paths in file-access checks.
	WorkingDir string

	// Yolo allows everything without prompting. Each bypass is logged
	// as a warning and audited.
	Yolo bool
}

// Coordinator is the decision point for every tool execution. It
// dispatches to the command and file classifiers, honors standing
// preferences, prompts the user when required, and audits the outcome.
// Duplicate concurrent requests for the same tool and argument set
// share a single prompt.
type Coordinator struct {
	config   Config
	prefs    *PrefStore
	audit    *AuditLog
	prompter Prompter

	mu    sync.Mutex
	calls map[string]*decisionCall

	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewCoordinator creates the permission coordinator.
func NewCoordinator(config Config, prefs *PrefStore, audit *AuditLog, prompter Prompter, logger *observability.Logger, metrics *observability.Metrics) *Coordinator {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	if audit == nil {
		audit = &AuditLog{}
	}
	return &Coordinator{
		config:   config,
		prefs:    prefs,
		audit:    audit,
		prompter: prompter,
		calls:    make(map[string]*decisionCall),
		logger:   logger.With("component", "permission"),
		metrics:  metrics,
	}
}

// Audit returns the in-memory decision log.
func (c *Coordinator) Audit() *AuditLog { return c.audit }

// Approve decides one tool request. A nil return allows execution; a
// SecurityError denies or blocks it.
func (c *Coordinator) Approve(ctx context.Context, tool string, args map[string]any) error {
	if c.config.Yolo {
		c.logger.Warn(ctx, "yolo mode bypassing permission check", "tool", tool)
		c.record(tool, args, Assessment{RiskLevel: RiskHigh, Action: ActionAllow,
			Warnings: []string{"yolo mode active"}}, "allow")
		return nil
	}

	if c.prefs != nil {
		if pref, ok := c.prefs.Get(tool); ok {
			assessment := Assessment{Action: ActionAllow, RiskLevel: RiskLow}
			if pref == PreferenceAlwaysDeny {
				c.record(tool, args, assessment, "deny")
				return errdefs.New(errdefs.KindSecurity, errdefs.SecurityPermissionDenied,
					tool+" is always denied by saved preference").
					WithTip("remove the saved preference to be asked again")
			}
			c.record(tool, args, assessment, "allow")
			return nil
		}
	}

	assessment := c.Assess(tool, args)
	switch assessment.Action {
	case ActionAllow:
		c.record(tool, args, assessment, "allow")
		return nil
	case ActionBlock:
		c.record(tool, args, assessment, "block")
		return errdefs.New(errdefs.KindSecurity, errdefs.SecurityPolicyViolation,
			"blocked: "+strings.Join(assessment.Reasons, "; ")).
			WithTip("this operation is never allowed through the assistant")
	}

	decision, err := c.promptShared(ctx, Request{Tool: tool, Args: args, Assessment: assessment})
	if err != nil {
		c.record(tool, args, assessment, "error")
		return errdefs.Wrap(errdefs.KindSecurity, errdefs.SecurityPermissionDenied,
			"permission prompt failed", err)
	}

	switch decision {
	case DecisionAlwaysAllow:
		if c.prefs != nil {
			if err := c.prefs.Set(tool, PreferenceAlwaysAllow); err != nil {
				c.logger.Warn(ctx, "saving permission preference", "tool", tool, "error", err)
			}
		}
		c.record(tool, args, assessment, "allow")
		return nil
	case DecisionAllowOnce:
		c.record(tool, args, assessment, "allow")
		return nil
	case DecisionAlwaysDeny:
		if c.prefs != nil {
			if err := c.prefs.Set(tool, PreferenceAlwaysDeny); err != nil {
				c.logger.Warn(ctx, "saving permission preference", "tool", tool, "error", err)
			}
		}
	}
	c.record(tool, args, assessment, "deny")
	return errdefs.New(errdefs.KindSecurity, errdefs.SecurityPermissionDenied,
		"user denied "+tool)
}

// Assess classifies one request without deciding it.
func (c *Coordinator) Assess(tool string, args map[string]any) Assessment {
	switch tool {
	case "Bash":
		command, _ := args["command"].(string)
		return ClassifyCommand(command)
	case "Write", "Edit", "MultiEdit":
		return ClassifyPath(stringArg(args, "file_path", "path"), c.config.WorkingDir, AccessWrite)
	case "Read":
		return ClassifyPath(stringArg(args, "file_path", "path"), c.config.WorkingDir, AccessRead)
	case "Grep", "Glob", "LS":
		return Assessment{RiskLevel: RiskSafe, Action: ActionAllow}
	case "Task":
		return Assessment{RiskLevel: RiskLow, Action: ActionAllow}
	default:
		return Assessment{
			RiskLevel: RiskMedium,
			Action:    ActionPrompt,
			Reasons:   []string{"unrecognized tool " + tool},
		}
	}
}

// promptShared collapses duplicate concurrent prompts for the same
// tool and frozen argument set onto one user decision.
func (c *Coordinator) promptShared(ctx context.Context, req Request) (Decision, error) {
	if c.prompter == nil {
		return "", errdefs.New(errdefs.KindSecurity, errdefs.SecurityPermissionDenied,
			"no interactive prompter is available").
			WithTip("run interactively, approve the tool in advance, or enable yolo mode")
	}

	key := decisionKey(req.Tool, req.Args)

	c.mu.Lock()
	if call, ok := c.calls[key]; ok {
		c.mu.Unlock()
		call.wg.Wait()
		return call.decision, call.err
	}
	call := &decisionCall{}
	call.wg.Add(1)
	c.calls[key] = call
	c.mu.Unlock()

	call.decision, call.err = c.prompter.Decide(ctx, req)

	c.mu.Lock()
	delete(c.calls, key)
	c.mu.Unlock()
	call.wg.Done()

	return call.decision, call.err
}

func (c *Coordinator) record(tool string, args map[string]any, assessment Assessment, outcome string) {
	c.audit.Append(tool, args, assessment, outcome)
	if c.metrics != nil {
		c.metrics.PermissionDecisions.WithLabelValues(tool, outcome).Inc()
	}
}

// decisionKey freezes a request into a stable dedup key. JSON encoding
// sorts map keys, so equal argument sets hash identically.
func decisionKey(tool string, args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		data = []byte(tool)
	}
	sum := sha256.Sum256(data)
	return tool + ":" + hex.EncodeToString(sum[:])
}

func stringArg(args map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := args[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

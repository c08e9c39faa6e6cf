package agent

import (
	"fmt"
	"time"
)

// ActionType classifies one entry in the agent's action history.
type ActionType string

const (
	ActionThink   ActionType = "think"
	ActionToolUse ActionType = "tool_use"
	ActionObserve ActionType = "observe"
)

// observeSummaryLimit bounds the length of an observation summary fed
// back into the prompt.
const observeSummaryLimit = 200

// Action is one step of the plan/act/observe trace.
type Action struct {
	Type      ActionType `json:"type"`
	Content   string     `json:"content"`
	Tool      string     `json:"tool,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

func newAction(typ ActionType, content, tool string) Action {
	return Action{Type: typ, Content: content, Tool: tool, Timestamp: time.Now().UTC()}
}

// summarize renders an action for the context block.
func (a Action) summarize() string {
	switch a.Type {
	case ActionToolUse:
		return fmt.Sprintf("used %s: %s", a.Tool, a.Content)
	case ActionObserve:
		return fmt.Sprintf("observed (%s): %s", a.Tool, a.Content)
	default:
		return string(a.Type) + ": " + a.Content
	}
}

// truncateSummary shortens free-form tool output for the history.
func truncateSummary(s string) string {
	if len(s) <= observeSummaryLimit {
		return s
	}
	return s[:observeSummaryLimit-3] + "..."
}

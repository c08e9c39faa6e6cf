package models

import "time"

// ToolProgress is the machine-readable tool lifecycle event emitted on
// the conversation stream for UI consumption.
type ToolProgress struct {
	Tool       string         `json:"tool"`
	Status     ToolStatus     `json:"status"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Result     any            `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// ProgressFromResult builds the completion event for a finished call.
func ProgressFromResult(result *ToolResult) ToolProgress {
	progress := ToolProgress{
		Status:    ToolStatusCompleted,
		Timestamp: time.Now(),
	}
	if result == nil {
		return progress
	}
	progress.Tool = result.ToolName
	progress.Status = result.Status
	progress.Result = result.Result
	progress.Error = result.Error
	return progress
}

package models

import "time"

// Session is one conversation thread with its append-only message log.
type Session struct {
	ID               string         `json:"session_id"`
	StartedAt        time.Time      `json:"started_at"`
	WorkingDirectory string         `json:"working_directory,omitempty"`
	Messages         []Message      `json:"messages"`
	Metadata         SessionMeta    `json:"metadata"`
	Context          map[string]any `json:"context,omitempty"`
}

// SessionMeta is the summary block persisted with every session file.
type SessionMeta struct {
	BackendType   string `json:"backend_type,omitempty"`
	Model         string `json:"model,omitempty"`
	TotalMessages int    `json:"total_messages"`
}

// Append adds a message to the log and refreshes the summary counters.
func (s *Session) Append(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.Messages = append(s.Messages, msg)
	s.Metadata.TotalMessages = len(s.Messages)
}

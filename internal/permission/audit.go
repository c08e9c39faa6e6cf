package permission

import (
	"sync"
	"time"
)

// AuditEntry records one permission decision.
type AuditEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Tool       string         `json:"tool"`
	Args       map[string]any `json:"args,omitempty"`
	Assessment Assessment     `json:"assessment"`
	Outcome    string         `json:"outcome"`
}

// AuditLog keeps decisions in memory for the lifetime of the process.
type AuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Append records one decision.
func (l *AuditLog) Append(tool string, args map[string]any, assessment Assessment, outcome string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, AuditEntry{
		Timestamp:  time.Now().UTC(),
		Tool:       tool,
		Args:       args,
		Assessment: assessment,
		Outcome:    outcome,
	})
}

// Entries returns a copy of the log.
func (l *AuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

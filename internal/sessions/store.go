// Package sessions persists conversations as JSON files so a session
// can be resumed after restart.
package sessions

import (
	"context"

	"github.com/qwen-tui/qwen-tui/pkg/models"
)

// Store is the interface for session persistence.
type Store interface {
	// Save writes the session, creating its file on first save.
	Save(ctx context.Context, session *models.Session) error

	// Load reads one session by timestamp or session id.
	Load(ctx context.Context, ref string) (*models.Session, error)

	// List returns saved session timestamps, newest first.
	List(ctx context.Context) ([]string, error)

	// Delete removes one saved session by timestamp or session id.
	Delete(ctx context.Context, ref string) error
}

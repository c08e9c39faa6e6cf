package permission

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/qwen-tui/qwen-tui/internal/errdefs"
)

// PrefStore persists standing tool decisions as a JSON map of
// tool name to preference. Reads happen on every tool call; writes only
// on an explicit "always" decision, so a single mutex suffices.
type PrefStore struct {
	mu    sync.Mutex
	path  string
	prefs map[string]Preference
}

// NewPrefStore loads preferences from path, tolerating a missing file.
func NewPrefStore(path string) (*PrefStore, error) {
	s := &PrefStore{path: path, prefs: make(map[string]Preference)}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindConfig, errdefs.ConfigNotFound,
			"reading permission preferences", err)
	}
	if err := json.Unmarshal(data, &s.prefs); err != nil {
		return nil, errdefs.Wrap(errdefs.KindConfig, errdefs.ConfigParse,
			"parsing permission preferences", err).
			WithTip("delete " + path + " to reset saved permissions")
	}
	return s, nil
}

// Get returns the standing preference for a tool, if any.
func (s *PrefStore) Get(tool string) (Preference, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pref, ok := s.prefs[tool]
	return pref, ok
}

// Set records a standing preference and writes it through to disk.
func (s *PrefStore) Set(tool string, pref Preference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[tool] = pref
	return s.flushLocked()
}

// Clear removes a standing preference.
func (s *PrefStore) Clear(tool string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prefs, tool)
	return s.flushLocked()
}

// All returns a copy of every standing preference.
func (s *PrefStore) All() map[string]Preference {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Preference, len(s.prefs))
	for k, v := range s.prefs {
		out[k] = v
	}
	return out
}

func (s *PrefStore) flushLocked() error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.prefs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

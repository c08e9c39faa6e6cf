package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/qwen-tui/qwen-tui/internal/errdefs"
	"github.com/qwen-tui/qwen-tui/pkg/models"
)

// Conversation files are named conversation_<timestamp>.json after the
// session's start instant; the session id lives inside the file.
const (
	filePrefix    = "conversation_"
	fileSuffix    = ".json"
	stampLayout   = "20060102T150405"
	dirPermission = 0o755
)

// FileStore keeps one JSON file per session under a state directory.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the store, making the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, dirPermission); err != nil {
		return nil, errdefs.Wrap(errdefs.KindConfig, errdefs.ConfigInvalidValue,
			"creating session directory "+dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes the session to its file. The write goes through a temp
// file and rename so a crash never leaves a torn session on disk.
func (s *FileStore) Save(ctx context.Context, session *models.Session) error {
	if session == nil || session.ID == "" {
		return errdefs.New(errdefs.KindConfig, errdefs.ConfigInvalidValue,
			"session has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", session.ID, err)
	}

	path := filepath.Join(s.dir, fileName(session))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing session %s: %w", session.ID, err)
	}
	return os.Rename(tmp, path)
}

// Load reads one session by reference: either the timestamp from the
// file name or the session id stored inside the file.
func (s *FileStore) Load(ctx context.Context, ref string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, err := s.read(filepath.Join(s.dir, filePrefix+ref+fileSuffix)); err == nil {
		return session, nil
	}

	stamps, err := s.stampsLocked()
	if err != nil {
		return nil, err
	}
	for _, stamp := range stamps {
		session, err := s.read(filepath.Join(s.dir, filePrefix+stamp+fileSuffix))
		if err != nil {
			continue
		}
		if session.ID == ref {
			return session, nil
		}
	}
	return nil, errdefs.New(errdefs.KindConfig, errdefs.ConfigNotFound,
		"no saved session "+ref)
}

// List returns the saved session timestamps, newest first.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stampsLocked()
}

// Delete removes one saved session by timestamp or id.
func (s *FileStore) Delete(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, filePrefix+ref+fileSuffix)
	if _, err := os.Stat(path); err != nil {
		stamps, listErr := s.stampsLocked()
		if listErr != nil {
			return listErr
		}
		for _, stamp := range stamps {
			candidate := filepath.Join(s.dir, filePrefix+stamp+fileSuffix)
			if session, readErr := s.read(candidate); readErr == nil && session.ID == ref {
				path = candidate
				break
			}
		}
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting session %s: %w", ref, err)
	}
	return nil
}

func (s *FileStore) read(path string) (*models.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, errdefs.Wrap(errdefs.KindConfig, errdefs.ConfigParse,
			"parsing session file "+filepath.Base(path), err)
	}
	return &session, nil
}

func (s *FileStore) stampsLocked() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	var stamps []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		stamps = append(stamps, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
	}
	// Timestamp names sort chronologically; newest first.
	sort.Sort(sort.Reverse(sort.StringSlice(stamps)))
	return stamps, nil
}

func fileName(session *models.Session) string {
	started := session.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	return filePrefix + started.UTC().Format(stampLayout) + fileSuffix
}

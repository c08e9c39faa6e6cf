package sessions

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/qwen-tui/qwen-tui/pkg/models"
)

func testSession(id string, started time.Time) *models.Session {
	return &models.Session{
		ID:        id,
		StartedAt: started,
		Messages: []models.Message{
			{Role: "user", Content: "list the files"},
			{Role: "assistant", Content: "Running LS."},
		},
		Metadata: models.SessionMeta{TotalMessages: 2},
	}
}

func TestFileStoreSaveLoadRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	saved := testSession("8400dd1e-3f9a-4a71-9f3c-0a4c6e1a2b3c", time.Now().UTC())
	if err := store.Save(ctx, saved); err != nil {
		t.Fatal(err)
	}

	// Load by session id scans file contents.
	loaded, err := store.Load(ctx, saved.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.ID != saved.ID || len(loaded.Messages) != 2 {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.Messages[1].Content != "Running LS." {
		t.Errorf("message = %+v", loaded.Messages[1])
	}
}

func TestFileStoreNamesFilesByTimestamp(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	started := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	if err := store.Save(context.Background(), testSession("abc123", started)); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dir, "conversation_20260824T120000.json")); err != nil {
		t.Errorf("expected timestamped conversation file: %v", err)
	}
}

func TestFileStoreLoadByTimestamp(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	started := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	if err := store.Save(ctx, testSession("abc123", started)); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.Load(ctx, "20260824T120000")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.ID != "abc123" {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestFileStoreLoadMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(context.Background(), "nope"); err == nil {
		t.Error("missing session loaded without error")
	}
}

func TestFileStoreListNewestFirst(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	older := testSession("older", time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC))
	newer := testSession("newer", time.Date(2026, 8, 24, 18, 30, 0, 0, time.UTC))
	for _, s := range []*models.Session{older, newer} {
		if err := store.Save(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	stamps, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stamps) != 2 || stamps[0] != "20260824T183000" || stamps[1] != "20260823T090000" {
		t.Errorf("stamps = %v", stamps)
	}
}

func TestFileStoreDeleteByID(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, testSession("gone", time.Now().UTC())); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "gone"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(ctx, "gone"); err == nil {
		t.Error("deleted session still loads")
	}
	// Deleting again is a no-op.
	if err := store.Delete(ctx, "gone"); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

func TestFileStoreRejectsEmptyID(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save(context.Background(), &models.Session{}); err == nil {
		t.Error("empty id accepted")
	}
}

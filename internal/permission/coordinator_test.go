package permission

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakePrompter struct {
	decision Decision
	err      error
	delay    time.Duration
	calls    atomic.Int32
}

func (f *fakePrompter) Decide(ctx context.Context, req Request) (Decision, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.decision, f.err
}

func newTestCoordinator(t *testing.T, yolo bool, prompter Prompter) *Coordinator {
	t.Helper()
	prefs, err := NewPrefStore(filepath.Join(t.TempDir(), "permissions.json"))
	if err != nil {
		t.Fatal(err)
	}
	return NewCoordinator(Config{WorkingDir: t.TempDir(), Yolo: yolo}, prefs, &AuditLog{}, prompter, nil, nil)
}

func TestApproveSafeToolWithoutPrompt(t *testing.T) {
	prompter := &fakePrompter{decision: DecisionDenyOnce}
	c := newTestCoordinator(t, false, prompter)

	if err := c.Approve(context.Background(), "Grep", map[string]any{"pattern": "x"}); err != nil {
		t.Fatalf("safe tool denied: %v", err)
	}
	if prompter.calls.Load() != 0 {
		t.Error("safe tool triggered a prompt")
	}
}

func TestApproveBlocksCriticalCommand(t *testing.T) {
	prompter := &fakePrompter{decision: DecisionAllowOnce}
	c := newTestCoordinator(t, false, prompter)

	err := c.Approve(context.Background(), "Bash", map[string]any{"command": "rm -rf /"})
	if err == nil {
		t.Fatal("critical command allowed")
	}
	if !strings.Contains(err.Error(), "SecurityError") {
		t.Errorf("error = %v", err)
	}
	if prompter.calls.Load() != 0 {
		t.Error("blocked command still prompted")
	}
}

func TestApprovePromptAllowAndDeny(t *testing.T) {
	allow := newTestCoordinator(t, false, &fakePrompter{decision: DecisionAllowOnce})
	if err := allow.Approve(context.Background(), "Bash", map[string]any{"command": "sudo ls"}); err != nil {
		t.Errorf("allow once: %v", err)
	}

	deny := newTestCoordinator(t, false, &fakePrompter{decision: DecisionDenyOnce})
	if err := deny.Approve(context.Background(), "Bash", map[string]any{"command": "sudo ls"}); err == nil {
		t.Error("deny once did not deny")
	}
}

func TestApproveAlwaysAllowPersists(t *testing.T) {
	prompter := &fakePrompter{decision: DecisionAlwaysAllow}
	c := newTestCoordinator(t, false, prompter)
	args := map[string]any{"command": "sudo ls"}

	if err := c.Approve(context.Background(), "Bash", args); err != nil {
		t.Fatalf("first approve: %v", err)
	}
	if err := c.Approve(context.Background(), "Bash", args); err != nil {
		t.Fatalf("second approve: %v", err)
	}
	if prompter.calls.Load() != 1 {
		t.Errorf("prompt calls = %d, want 1", prompter.calls.Load())
	}
}

func TestApproveAlwaysDenyPersists(t *testing.T) {
	prompter := &fakePrompter{decision: DecisionAlwaysDeny}
	c := newTestCoordinator(t, false, prompter)
	args := map[string]any{"command": "sudo ls"}

	if err := c.Approve(context.Background(), "Bash", args); err == nil {
		t.Fatal("always deny allowed")
	}
	if err := c.Approve(context.Background(), "Bash", args); err == nil {
		t.Fatal("saved deny not honored")
	}
	if prompter.calls.Load() != 1 {
		t.Errorf("prompt calls = %d, want 1", prompter.calls.Load())
	}
}

func TestApproveYoloBypassesEverything(t *testing.T) {
	prompter := &fakePrompter{decision: DecisionDenyOnce}
	c := newTestCoordinator(t, true, prompter)

	if err := c.Approve(context.Background(), "Bash", map[string]any{"command": "sudo rm -rf ./x"}); err != nil {
		t.Errorf("yolo denied: %v", err)
	}
	if prompter.calls.Load() != 0 {
		t.Error("yolo still prompted")
	}

	entries := c.Audit().Entries()
	if len(entries) != 1 || entries[0].Outcome != "allow" {
		t.Errorf("audit = %+v", entries)
	}
}

func TestApproveDuplicateConcurrentRequestsShareOnePrompt(t *testing.T) {
	prompter := &fakePrompter{decision: DecisionAllowOnce, delay: 50 * time.Millisecond}
	c := newTestCoordinator(t, false, prompter)
	args := map[string]any{"command": "sudo systemctl restart app"}

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Approve(context.Background(), "Bash", args)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("request %d: %v", i, err)
		}
	}
	if prompter.calls.Load() != 1 {
		t.Errorf("prompt calls = %d, want 1", prompter.calls.Load())
	}
}

func TestApproveDistinctArgsPromptSeparately(t *testing.T) {
	prompter := &fakePrompter{decision: DecisionAllowOnce}
	c := newTestCoordinator(t, false, prompter)

	c.Approve(context.Background(), "Bash", map[string]any{"command": "sudo ls /a"})
	c.Approve(context.Background(), "Bash", map[string]any{"command": "sudo ls /b"})

	if prompter.calls.Load() != 2 {
		t.Errorf("prompt calls = %d, want 2", prompter.calls.Load())
	}
}

func TestApproveNoPrompterDenies(t *testing.T) {
	c := newTestCoordinator(t, false, nil)
	if err := c.Approve(context.Background(), "Bash", map[string]any{"command": "sudo ls"}); err == nil {
		t.Error("prompt-requiring request allowed without a prompter")
	}
}

func TestAuditRecordsEveryDecision(t *testing.T) {
	c := newTestCoordinator(t, false, &fakePrompter{decision: DecisionAllowOnce})

	c.Approve(context.Background(), "Grep", map[string]any{"pattern": "x"})
	c.Approve(context.Background(), "Bash", map[string]any{"command": "rm -rf /"})
	c.Approve(context.Background(), "Bash", map[string]any{"command": "sudo ls"})

	entries := c.Audit().Entries()
	if len(entries) != 3 {
		t.Fatalf("audit entries = %d, want 3", len(entries))
	}
	outcomes := []string{entries[0].Outcome, entries[1].Outcome, entries[2].Outcome}
	want := []string{"allow", "block", "allow"}
	for i := range want {
		if outcomes[i] != want[i] {
			t.Errorf("outcome[%d] = %s, want %s", i, outcomes[i], want[i])
		}
	}
}

func TestPrefStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "permissions.json")

	s, err := NewPrefStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set("Bash", PreferenceAlwaysDeny); err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewPrefStore(path)
	if err != nil {
		t.Fatal(err)
	}
	pref, ok := reloaded.Get("Bash")
	if !ok || pref != PreferenceAlwaysDeny {
		t.Errorf("reloaded pref = %v %v", pref, ok)
	}

	if err := reloaded.Clear("Bash"); err != nil {
		t.Fatal(err)
	}
	if _, ok := reloaded.Get("Bash"); ok {
		t.Error("cleared pref still present")
	}
}

func TestPrefStoreDiskFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "permissions.json")

	s, err := NewPrefStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set("Bash", PreferenceAlwaysDeny); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("Write", PreferenceAlwaysAllow); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if raw["Bash"] != "deny" || raw["Write"] != "allow" {
		t.Errorf("on-disk map = %v", raw)
	}
}

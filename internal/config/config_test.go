package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loomery/loom/pkg/models"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
anthropic:
  api_key: test-key
  model: claude-opus-4-20250514
batcher:
  max_batch_size: 16
  max_wait: 200ms
pipeline:
  parallelism: 8
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("api key = %q, want test-key", cfg.Anthropic.APIKey)
	}
	if cfg.Batcher.MaxBatchSize != 16 {
		t.Errorf("max batch size = %d, want 16", cfg.Batcher.MaxBatchSize)
	}
	if cfg.Batcher.MaxWait != 200*time.Millisecond {
		t.Errorf("max wait = %v, want 200ms", cfg.Batcher.MaxWait)
	}
	if cfg.Pipeline.Parallelism != 8 {
		t.Errorf("parallelism = %d, want 8", cfg.Pipeline.Parallelism)
	}
}

func TestLoadFromPath_DefaultsFillGaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "anthropic:\n  api_key: k\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	want := Default()
	if cfg.Batcher != want.Batcher {
		t.Errorf("batcher = %+v, want defaults %+v", cfg.Batcher, want.Batcher)
	}
	if cfg.Decomposer.PromptBudgetTokens != want.Decomposer.PromptBudgetTokens {
		t.Errorf("prompt budget = %d, want %d",
			cfg.Decomposer.PromptBudgetTokens, want.Decomposer.PromptBudgetTokens)
	}
}

func TestLoadFromPath_ExpandsEnvInAPIKey(t *testing.T) {
	t.Setenv("LOOM_TEST_KEY", "expanded-secret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "anthropic:\n  api_key: ${LOOM_TEST_KEY}\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Anthropic.APIKey != "expanded-secret" {
		t.Errorf("api key = %q, want expanded env value", cfg.Anthropic.APIKey)
	}
}

func TestParseRoster(t *testing.T) {
	profiles, err := ParseRoster([]byte(`
agents:
  - id: coder
    capabilities: [code, analyze]
    temperature: 0.7
  - id: generalist
`))
	if err != nil {
		t.Fatalf("ParseRoster failed: %v", err)
	}

	if len(profiles) != 2 {
		t.Fatalf("got %d profiles, want 2", len(profiles))
	}
	if profiles[0].ID != "coder" || len(profiles[0].Capabilities) != 2 {
		t.Errorf("coder = %+v, want 2 capabilities", profiles[0])
	}
	if profiles[0].Temperature != 0.7 {
		t.Errorf("coder temperature = %v, want 0.7", profiles[0].Temperature)
	}
	if len(profiles[1].Capabilities) != 0 {
		t.Errorf("generalist capabilities = %v, want none", profiles[1].Capabilities)
	}
}

func TestParseRoster_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty roster", "agents: []\n"},
		{"missing id", "agents:\n  - capabilities: [code]\n"},
		{"duplicate id", "agents:\n  - id: a\n  - id: a\n"},
		{"unknown capability", "agents:\n  - id: a\n    capabilities: [juggling]\n"},
		{"not yaml", "{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRoster([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestWatchRoster_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	writeFile(t, path, "agents:\n  - id: a\n")

	reloaded := make(chan int, 4)
	w, err := WatchRoster(path, func(profiles []*models.AgentProfile) {
		reloaded <- len(profiles)
	}, nil)
	if err != nil {
		t.Fatalf("WatchRoster failed: %v", err)
	}
	defer w.Close()

	writeFile(t, path, "agents:\n  - id: a\n  - id: b\n")

	select {
	case n := <-reloaded:
		if n != 2 {
			t.Errorf("reload saw %d agents, want 2", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not fire within 2s")
	}
}

func TestWatchRoster_ParseErrorKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	writeFile(t, path, "agents:\n  - id: a\n")

	reloads := make(chan struct{}, 4)
	errs := make(chan error, 4)
	w, err := WatchRoster(path,
		func([]*models.AgentProfile) { reloads <- struct{}{} },
		func(err error) { errs <- err })
	if err != nil {
		t.Fatalf("WatchRoster failed: %v", err)
	}
	defer w.Close()

	writeFile(t, path, "agents: []\n")

	select {
	case <-errs:
	case <-reloads:
		t.Fatal("invalid roster must not trigger onChange")
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not surface the parse error within 2s")
	}
}

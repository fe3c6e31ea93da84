package decompose

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/loomery/loom/pkg/models"
)

// fakeSubmitter returns a canned response or error.
type fakeSubmitter struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeSubmitter) Submit(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

func TestDecompose_EmptyInput(t *testing.T) {
	d := New(&fakeSubmitter{}, DefaultConfig())

	subtasks, err := d.Decompose(context.Background(), "req-1", "")
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	if len(subtasks) != 0 {
		t.Errorf("expected empty list for empty input, got %d subtasks", len(subtasks))
	}
}

func TestDecompose_ValidResponse(t *testing.T) {
	sub := &fakeSubmitter{response: `Here is the plan:
[
  {"type": "research", "task": "Find prior art"},
  {"type": "write", "task": "Draft the summary"}
]
Done.`}
	d := New(sub, DefaultConfig())

	subtasks, err := d.Decompose(context.Background(), "req-1", "summarize prior art")
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	if len(subtasks) != 2 {
		t.Fatalf("expected 2 subtasks, got %d", len(subtasks))
	}

	if subtasks[0].Type != models.SubtaskTypeResearch {
		t.Errorf("subtask 0 type = %q, want research", subtasks[0].Type)
	}
	if subtasks[0].Ordinal != 0 || subtasks[1].Ordinal != 1 {
		t.Errorf("ordinals = %d,%d, want 0,1", subtasks[0].Ordinal, subtasks[1].Ordinal)
	}
	if len(subtasks[0].DependsOn) != 0 {
		t.Errorf("first subtask should have no dependencies, got %v", subtasks[0].DependsOn)
	}
	if len(subtasks[1].DependsOn) != 1 || subtasks[1].DependsOn[0] != subtasks[0].ID {
		t.Errorf("second subtask should depend on the first")
	}
	for _, st := range subtasks {
		if st.ParentID != "req-1" {
			t.Errorf("subtask parent = %q, want req-1", st.ParentID)
		}
	}
}

func TestDecompose_UnparseableFallsBack(t *testing.T) {
	sub := &fakeSubmitter{response: "I could not break this down."}
	d := New(sub, DefaultConfig())

	subtasks, err := d.Decompose(context.Background(), "req-1", "do the thing")
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	if len(subtasks) != 1 {
		t.Fatalf("expected exactly 1 fallback subtask, got %d", len(subtasks))
	}
	if subtasks[0].Payload != "do the thing" {
		t.Errorf("fallback payload = %q, want the verbatim request", subtasks[0].Payload)
	}
	if subtasks[0].Type != models.SubtaskTypeGeneral {
		t.Errorf("fallback type = %q, want general", subtasks[0].Type)
	}
	if d.Stats().Fallbacks != 1 {
		t.Errorf("fallbacks = %d, want 1", d.Stats().Fallbacks)
	}
}

func TestDecompose_GenerationErrorFallsBack(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("backend down")}
	d := New(sub, DefaultConfig())

	subtasks, err := d.Decompose(context.Background(), "req-1", "do the thing")
	if err != nil {
		t.Fatalf("Decompose must not surface generation errors, got: %v", err)
	}
	if len(subtasks) != 1 || subtasks[0].Payload != "do the thing" {
		t.Errorf("expected verbatim fallback subtask, got %+v", subtasks)
	}
}

func TestDecompose_TruncatesOverlongInput(t *testing.T) {
	sub := &fakeSubmitter{response: `[{"type": "general", "task": "t"}]`}
	d := New(sub, Config{PromptBudgetTokens: 10})

	long := strings.Repeat("word ", 500)
	if _, err := d.Decompose(context.Background(), "req-1", long); err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}

	if d.Stats().Truncations != 1 {
		t.Errorf("truncations = %d, want 1", d.Stats().Truncations)
	}
	if len(sub.prompts) != 1 {
		t.Fatalf("expected 1 prompt, got %d", len(sub.prompts))
	}
	if len(sub.prompts[0]) >= len(long) {
		t.Errorf("prompt was not truncated: %d bytes for %d-byte input", len(sub.prompts[0]), len(long))
	}
}

func TestParseResponse_RepairsMalformedJSON(t *testing.T) {
	// Trailing comma and single quotes: invalid JSON that jsonrepair fixes.
	response := `[
  {'type': 'code', 'task': 'Implement the parser'},
]`

	parsed, err := ParseResponse(response)
	if err != nil {
		t.Fatalf("ParseResponse failed on repairable JSON: %v", err)
	}
	if len(parsed) != 1 || parsed[0].Task != "Implement the parser" {
		t.Errorf("parsed = %+v, want the repaired subtask", parsed)
	}
}

func TestParseResponse_NoArray(t *testing.T) {
	_, err := ParseResponse("no json here")
	if err == nil {
		t.Error("expected error for response without JSON array")
	}
}

func TestParseResponse_DropsEmptyTasks(t *testing.T) {
	response := `[{"type": "code", "task": "  "}, {"type": "write", "task": "real"}]`

	parsed, err := ParseResponse(response)
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if len(parsed) != 1 || parsed[0].Task != "real" {
		t.Errorf("parsed = %+v, want only the non-empty subtask", parsed)
	}
}

func TestParseResponse_AllEmpty(t *testing.T) {
	_, err := ParseResponse(`[{"type": "code", "task": ""}]`)
	if err == nil {
		t.Error("expected error when every subtask is empty")
	}
}

func TestTokenCounter_FallbackTruncate(t *testing.T) {
	c := &tokenCounter{} // force the bytes-per-token estimate

	text := strings.Repeat("a", 100)
	out, truncated := c.Truncate(text, 10)
	if !truncated {
		t.Fatal("expected truncation")
	}
	if len(out) != 10*approxBytesPerToken {
		t.Errorf("truncated length = %d, want %d", len(out), 10*approxBytesPerToken)
	}

	out, truncated = c.Truncate("short", 10)
	if truncated || out != "short" {
		t.Errorf("short text should pass through, got %q truncated=%v", out, truncated)
	}
}

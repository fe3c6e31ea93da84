package graph

import (
	"errors"
	"testing"

	"github.com/loomery/loom/pkg/models"
)

func chain(ids ...string) []*models.Subtask {
	subtasks := make([]*models.Subtask, len(ids))
	for i, id := range ids {
		st := &models.Subtask{ID: id, Ordinal: i, Status: models.SubtaskStatusPending}
		if i > 0 {
			st.DependsOn = []string{ids[i-1]}
		}
		subtasks[i] = st
	}
	return subtasks
}

func TestBuild_Chain(t *testing.T) {
	g := New()
	if err := g.Build(chain("a", "b", "c")); err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if g.Size() != 3 {
		t.Errorf("Size = %d, want 3", g.Size())
	}

	ready := g.GetReady()
	if len(ready) != 1 || ready[0] != "a" {
		t.Errorf("GetReady = %v, want [a]", ready)
	}
}

func TestBuild_UnknownDependency(t *testing.T) {
	g := New()
	err := g.Build([]*models.Subtask{
		{ID: "a", DependsOn: []string{"ghost"}, Status: models.SubtaskStatusPending},
	})
	if err == nil {
		t.Error("expected error for unknown dependency")
	}
}

func TestBuild_CycleDetected(t *testing.T) {
	g := New()
	err := g.Build([]*models.Subtask{
		{ID: "a", DependsOn: []string{"b"}, Status: models.SubtaskStatusPending},
		{ID: "b", DependsOn: []string{"a"}, Status: models.SubtaskStatusPending},
	})
	if !errors.Is(err, ErrCycleDetected) {
		t.Errorf("Build error = %v, want ErrCycleDetected", err)
	}
}

func TestMarkComplete_UnblocksDependents(t *testing.T) {
	g := New()
	if err := g.Build(chain("a", "b", "c")); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	g.MarkComplete("a")
	ready := g.GetReady()
	if len(ready) != 1 || ready[0] != "b" {
		t.Errorf("GetReady after completing a = %v, want [b]", ready)
	}

	g.MarkComplete("b")
	g.MarkComplete("c")
	if !g.Done() {
		t.Error("Done = false after completing all subtasks")
	}
}

func TestGetReady_IndependentSubtasksParallel(t *testing.T) {
	g := New()
	err := g.Build([]*models.Subtask{
		{ID: "a", Status: models.SubtaskStatusPending},
		{ID: "b", Status: models.SubtaskStatusPending},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if ready := g.GetReady(); len(ready) != 2 {
		t.Errorf("GetReady = %v, want both independent subtasks", ready)
	}
}

func TestGetDependents_Transitive(t *testing.T) {
	g := New()
	if err := g.Build(chain("a", "b", "c")); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	deps := g.GetDependents("a")
	if len(deps) != 2 {
		t.Errorf("GetDependents(a) = %v, want b and c", deps)
	}
}

func TestDone_FailedIsTerminal(t *testing.T) {
	g := New()
	subtasks := chain("a", "b")
	if err := g.Build(subtasks); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	subtasks[0].Status = models.SubtaskStatusFailed
	subtasks[1].Status = models.SubtaskStatusBlocked

	if !g.Done() {
		t.Error("Done = false with failed root and blocked dependent")
	}
	if ready := g.GetReady(); len(ready) != 0 {
		t.Errorf("GetReady = %v, want none for terminal statuses", ready)
	}
}

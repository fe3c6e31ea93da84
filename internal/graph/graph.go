// Package graph provides a dependency graph for subtask scheduling.
package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/loomery/loom/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found among subtasks.
var ErrCycleDetected = errors.New("circular dependency detected")

// DependencyGraph is a directed acyclic graph of subtask dependencies.
// Subtasks are nodes; edges represent "blocked by" relationships. With
// ordering-inferred dependencies the graph is a chain, but the structure
// accepts any DAG.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps subtask ID to the subtask itself.
	nodes map[string]*models.Subtask
	// edges maps subtask ID to IDs of subtasks it depends on.
	edges map[string][]string
	// completed tracks which subtasks have been marked complete.
	completed map[string]bool
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[string]*models.Subtask),
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
	}
}

// Build constructs the graph from a slice of subtasks. Returns an error if
// a cycle is detected or a dependency references an unknown subtask.
func (g *DependencyGraph) Build(subtasks []*models.Subtask) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, st := range subtasks {
		g.nodes[st.ID] = st
		g.edges[st.ID] = nil
	}

	for _, st := range subtasks {
		for _, depID := range st.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("subtask %s depends on unknown subtask %s", st.ID, depID)
			}
			g.edges[st.ID] = append(g.edges[st.ID], depID)
		}
	}

	if g.hasCycleLocked() {
		return ErrCycleDetected
	}
	return nil
}

// hasCycleLocked detects back edges via DFS coloring. Caller holds the lock.
func (g *DependencyGraph) hasCycleLocked() bool {
	// 0 = unvisited, 1 = in progress, 2 = done.
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}
		colors[id] = 2
		return false
	}

	for id := range g.nodes {
		if colors[id] == 0 && visit(id) {
			return true
		}
	}
	return false
}

// GetReady returns subtask IDs with no unmet dependencies that are neither
// completed nor terminally failed or blocked. Ready subtasks can execute in
// parallel.
func (g *DependencyGraph) GetReady() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for id, st := range g.nodes {
		if g.completed[id] {
			continue
		}
		if st.Status == models.SubtaskStatusDone || st.Status == models.SubtaskStatusFailed ||
			st.Status == models.SubtaskStatusBlocked || st.Status == models.SubtaskStatusInProgress {
			continue
		}

		allDepsComplete := true
		for _, depID := range g.edges[id] {
			if !g.completed[depID] {
				allDepsComplete = false
				break
			}
		}
		if allDepsComplete {
			ready = append(ready, id)
		}
	}
	return ready
}

// MarkComplete marks a subtask as completed, unblocking its dependents.
func (g *DependencyGraph) MarkComplete(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[id] = true
}

// GetSubtask returns the subtask for a given ID, or nil if not found.
func (g *DependencyGraph) GetSubtask(id string) *models.Subtask {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// GetDependents returns the IDs of subtasks that depend on the given one,
// directly or transitively.
func (g *DependencyGraph) GetDependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]bool)
	var collect func(target string)
	collect = func(target string) {
		for nodeID, deps := range g.edges {
			if seen[nodeID] {
				continue
			}
			for _, depID := range deps {
				if depID == target {
					seen[nodeID] = true
					collect(nodeID)
					break
				}
			}
		}
	}
	collect(id)

	dependents := make([]string, 0, len(seen))
	for nodeID := range seen {
		dependents = append(dependents, nodeID)
	}
	return dependents
}

// Size returns the number of subtasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Done reports whether every subtask is either completed or in a terminal
// failed/blocked state.
func (g *DependencyGraph) Done() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, st := range g.nodes {
		if g.completed[id] {
			continue
		}
		if st.Status == models.SubtaskStatusFailed || st.Status == models.SubtaskStatusBlocked {
			continue
		}
		return false
	}
	return true
}

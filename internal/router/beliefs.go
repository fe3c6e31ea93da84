// Package router selects the best-suited agent for a subtask type using
// Thompson sampling over per-(task type, agent) Beta belief distributions.
package router

import (
	"sync"
	"sync/atomic"

	"github.com/loomery/loom/pkg/models"
)

// Key identifies one belief cell: a task type paired with an agent.
type Key struct {
	TaskType models.SubtaskType
	AgentID  string
}

// Belief holds the success/failure counters for one key. Counters are
// incremented atomically, so independent keys never contend and readers
// never block writers.
type Belief struct {
	successes uint64
	failures  uint64
}

// Record adds one observation.
func (b *Belief) Record(success bool) {
	if success {
		atomic.AddUint64(&b.successes, 1)
	} else {
		atomic.AddUint64(&b.failures, 1)
	}
}

// Counts returns the raw observation counters. The uniform Beta(1,1) prior
// is applied at sampling time, not stored.
func (b *Belief) Counts() (successes, failures uint64) {
	return atomic.LoadUint64(&b.successes), atomic.LoadUint64(&b.failures)
}

// Store is the belief-state table shared by the router (reads) and the
// learner (writes). The map lock guards only cell lookup/creation; counter
// updates are lock-free per cell.
type Store struct {
	mu      sync.RWMutex
	beliefs map[Key]*Belief
}

// NewStore creates an empty belief store. Unseen keys sample from the
// uniform prior, so new agents receive exploration automatically.
func NewStore() *Store {
	return &Store{beliefs: make(map[Key]*Belief)}
}

// Record increments the counter pair for the given key, creating the cell
// on first observation.
func (s *Store) Record(taskType models.SubtaskType, agentID string, success bool) {
	key := Key{TaskType: taskType, AgentID: agentID}

	s.mu.RLock()
	b, ok := s.beliefs[key]
	s.mu.RUnlock()

	if !ok {
		s.mu.Lock()
		b, ok = s.beliefs[key]
		if !ok {
			b = &Belief{}
			s.beliefs[key] = b
		}
		s.mu.Unlock()
	}

	b.Record(success)
}

// Counts returns the observation counters for a key; (0,0) when unseen.
func (s *Store) Counts(taskType models.SubtaskType, agentID string) (successes, failures uint64) {
	s.mu.RLock()
	b, ok := s.beliefs[Key{TaskType: taskType, AgentID: agentID}]
	s.mu.RUnlock()

	if !ok {
		return 0, 0
	}
	return b.Counts()
}

// Snapshot returns a copy of all counters, for persistence.
func (s *Store) Snapshot() map[Key][2]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := make(map[Key][2]uint64, len(s.beliefs))
	for key, b := range s.beliefs {
		succ, fail := b.Counts()
		snap[key] = [2]uint64{succ, fail}
	}
	return snap
}

// Restore loads previously persisted counters, replacing any existing cell
// for the same key. Administrative resets go through here as well.
func (s *Store) Restore(snap map[Key][2]uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, counts := range snap {
		s.beliefs[key] = &Belief{successes: counts[0], failures: counts[1]}
	}
}

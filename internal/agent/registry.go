// Package agent provides the agent profile registry and the worker that
// executes routed subtasks through the batcher.
package agent

import (
	"sort"
	"sync"
	"time"

	"github.com/loomery/loom/pkg/models"
)

// Registry provides thread-safe storage and retrieval of agent profiles.
// Profile mutation goes through Update so the learner stays the single
// writer; all readers receive clones.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]*models.AgentProfile
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{profiles: make(map[string]*models.AgentProfile)}
}

// Register adds or replaces an agent profile. A zero temperature is lifted
// to the maximum so fresh agents start exploratory; the success EMA starts
// at the uniform 0.5 prior.
func (r *Registry) Register(p *models.AgentProfile) {
	cp := p.Clone()
	if cp.Temperature == 0 {
		cp.Temperature = models.MaxTemperature
	}
	if cp.Observations == 0 && cp.EMASuccess == 0 {
		cp.EMASuccess = 0.5
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[cp.ID] = cp
}

// Get returns a clone of the profile, or nil if unknown.
func (r *Registry) Get(id string) *models.AgentProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil
	}
	return p.Clone()
}

// Update applies fn to the stored profile under the registry lock.
// Returns false if the agent is unknown.
func (r *Registry) Update(id string, fn func(*models.AgentProfile)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[id]
	if !ok {
		return false
	}
	fn(p)
	p.UpdatedAt = time.Now()
	return true
}

// CandidatesFor returns the IDs of agents whose capability tags cover the
// given subtask type, sorted for deterministic routing.
func (r *Registry) CandidatesFor(t models.SubtaskType) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, p := range r.profiles {
		if p.CanHandle(t) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// All returns clones of every registered profile, sorted by ID.
func (r *Registry) All() []*models.AgentProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profiles := make([]*models.AgentProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		profiles = append(profiles, p.Clone())
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].ID < profiles[j].ID })
	return profiles
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}

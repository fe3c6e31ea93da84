package router

import (
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/loomery/loom/pkg/models"
)

// ErrNoAgentAvailable is returned by Select when the candidate set is
// empty. It is retryable, not fatal: callers may re-route once agents
// register.
var ErrNoAgentAvailable = errors.New("no agent available")

// Router picks the agent expected to perform best on a task type,
// balancing exploitation against exploration via Thompson sampling. The
// router never mutates belief state; all writes go through the learner.
type Router struct {
	beliefs *Store

	// rng is guarded by mu; math/rand sources are not safe for
	// concurrent draws.
	mu  sync.Mutex
	rng *rand.Rand

	debugLog func(format string, args ...interface{})
}

// Option configures a Router.
type Option func(*Router)

// WithSeed fixes the sampling seed, for deterministic tests.
func WithSeed(seed int64) Option {
	return func(r *Router) {
		r.rng = rand.New(rand.NewSource(seed))
	}
}

// WithDebugLog sets the debug logging function.
func WithDebugLog(fn func(format string, args ...interface{})) Option {
	return func(r *Router) {
		if fn != nil {
			r.debugLog = fn
		}
	}
}

// New creates a Router over the given belief store.
func New(beliefs *Store, opts ...Option) *Router {
	r := &Router{
		beliefs:  beliefs,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		debugLog: func(format string, args ...interface{}) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Select draws one sample per candidate from its Beta(successes+1,
// failures+1) belief distribution and returns the candidate with the
// highest draw. Ties break toward the lowest agent ID. An empty candidate
// set returns ErrNoAgentAvailable.
func (r *Router) Select(taskType models.SubtaskType, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoAgentAvailable
	}

	// Sorted iteration plus a strict comparison gives the lowest-ID
	// tie-break deterministically.
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)

	r.mu.Lock()
	defer r.mu.Unlock()

	best := sorted[0]
	bestDraw := -1.0
	for _, id := range sorted {
		succ, fail := r.beliefs.Counts(taskType, id)
		draw := sampleBeta(r.rng, float64(succ)+1, float64(fail)+1)
		r.debugLog("[router] %s/%s: beta(%d+1,%d+1) drew %.4f", taskType, id, succ, fail, draw)
		if draw > bestDraw {
			best = id
			bestDraw = draw
		}
	}

	r.debugLog("[router] selected %s for %s (draw %.4f of %d candidates)", best, taskType, bestDraw, len(sorted))
	return best, nil
}

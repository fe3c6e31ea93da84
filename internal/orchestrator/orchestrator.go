package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/loomery/loom/internal/agent"
	"github.com/loomery/loom/internal/backend"
	"github.com/loomery/loom/internal/batcher"
	"github.com/loomery/loom/internal/decompose"
	"github.com/loomery/loom/internal/graph"
	"github.com/loomery/loom/internal/learning"
	"github.com/loomery/loom/internal/router"
	"github.com/loomery/loom/pkg/models"
)

// ErrClosed is returned by Process after the orchestrator has been closed.
var ErrClosed = errors.New("orchestrator is closed")

// Orchestrator coordinates one request end to end: decompose into subtasks,
// walk the dependency graph, route each ready subtask to an agent, execute
// through the shared batcher and feed every outcome to the learner.
type Orchestrator struct {
	batcher    *batcher.Batcher
	decomposer *decompose.Decomposer
	beliefs    *router.Store
	router     *router.Router
	registry   *agent.Registry
	worker     *agent.Worker
	learner    *learning.Learner

	emitter *eventEmitter
	logger  *DebugLogger
	store   *learning.ProfileStore

	batcherCfg    batcher.Config
	decomposerCfg decompose.Config
	parallelism   int
	eventBuffer   int
	routerSeed    *int64

	totalRequests atomic.Uint64

	mu     sync.Mutex
	closed bool
	// inflight tracks running Process calls so Close can drain them
	// before the event channel goes away.
	inflight sync.WaitGroup
}

// New wires an Orchestrator around the given generation backend and agent
// registry. If a profile store is attached, persisted profiles and beliefs
// are loaded before the first request.
func New(gen backend.Generator, registry *agent.Registry, opts ...Option) (*Orchestrator, error) {
	if gen == nil {
		return nil, errors.New("generation backend is required")
	}
	if registry == nil {
		registry = agent.NewRegistry()
	}

	o := &Orchestrator{
		registry:      registry,
		batcherCfg:    batcher.DefaultConfig(),
		decomposerCfg: decompose.DefaultConfig(),
		parallelism:   defaultParallelism,
		eventBuffer:   defaultEventBuffer,
		logger:        NopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.beliefs = router.NewStore()
	if o.store != nil {
		profiles, beliefs, err := o.store.LoadProfiles()
		if err != nil {
			return nil, fmt.Errorf("load persisted profiles: %w", err)
		}
		for _, p := range profiles {
			o.registry.Register(p)
		}
		o.beliefs.Restore(beliefs)
		o.logger.Log("loaded %d persisted profiles, %d beliefs", len(profiles), len(beliefs))
	}

	debugFn := o.logger.Log

	o.batcher = batcher.New(gen, o.batcherCfg)
	o.batcher.SetDebugLog(debugFn)

	o.decomposer = decompose.New(o.batcher, o.decomposerCfg)
	o.decomposer.SetDebugLog(debugFn)

	routerOpts := []router.Option{router.WithDebugLog(debugFn)}
	if o.routerSeed != nil {
		routerOpts = append(routerOpts, router.WithSeed(*o.routerSeed))
	}
	o.router = router.New(o.beliefs, routerOpts...)

	o.worker = agent.NewWorker(o.batcher, o.registry)
	o.learner = learning.New(o.beliefs, o.registry)
	o.learner.SetDebugLog(debugFn)

	o.emitter = newEventEmitter(o.eventBuffer)
	return o, nil
}

// Events returns the channel of pipeline events. The channel is closed when
// the orchestrator is closed.
func (o *Orchestrator) Events() <-chan Event {
	return o.emitter.events
}

// ProcessResult summarizes one processed request.
type ProcessResult struct {
	// RequestID identifies the request across events and logs.
	RequestID string
	// Subtasks is the executed plan, in ordinal order.
	Subtasks []*models.Subtask
	// Outputs maps subtask ID to the agent's output text.
	Outputs map[string]string
	// Assignments maps subtask ID to the agent it was routed to.
	Assignments map[string]string
	// Latencies maps subtask ID to its execution latency.
	Latencies map[string]time.Duration
	// Completed, Failed and Blocked count terminal subtask states.
	Completed int
	Failed    int
	Blocked   int
}

// Process runs one request through the full pipeline and returns when every
// subtask has reached a terminal state. Subtask failures do not fail the
// request; they surface in the result and block their dependents.
func (o *Orchestrator) Process(ctx context.Context, request string) (*ProcessResult, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	o.inflight.Add(1)
	o.mu.Unlock()
	defer o.inflight.Done()

	requestID := uuid.NewString()
	o.totalRequests.Add(1)
	o.emitter.emit(Event{Type: EventRequestReceived, RequestID: requestID})
	o.logger.Log("request %s received (%d bytes)", requestID, len(request))

	subtasks, err := o.decomposer.Decompose(ctx, requestID, request)
	if err != nil {
		return nil, fmt.Errorf("decompose request %s: %w", requestID, err)
	}

	result := &ProcessResult{
		RequestID:   requestID,
		Subtasks:    subtasks,
		Outputs:     make(map[string]string),
		Assignments: make(map[string]string),
		Latencies:   make(map[string]time.Duration),
	}
	if len(subtasks) == 0 {
		o.emitter.emit(Event{Type: EventRequestDone, RequestID: requestID})
		return result, nil
	}

	o.emitter.emit(Event{
		Type:      EventDecomposed,
		RequestID: requestID,
		Message:   fmt.Sprintf("%d subtasks", len(subtasks)),
	})

	g := graph.New()
	if err := g.Build(subtasks); err != nil {
		return nil, fmt.Errorf("build dependency graph for request %s: %w", requestID, err)
	}

	var outputsMu sync.Mutex
	for {
		ready := g.GetReady()
		if len(ready) == 0 {
			break
		}

		eg := &errgroup.Group{}
		eg.SetLimit(o.parallelism)
		for _, id := range ready {
			st := g.GetSubtask(id)
			st.Status = models.SubtaskStatusInProgress
			eg.Go(func() error {
				output, outcome := o.executeSubtask(ctx, requestID, g, st)
				outputsMu.Lock()
				if outcome != nil {
					result.Assignments[st.ID] = outcome.AgentID
					result.Latencies[st.ID] = outcome.Latency
					if outcome.Success {
						result.Outputs[st.ID] = output
					}
				}
				outputsMu.Unlock()
				return nil
			})
		}
		eg.Wait()

		if ctx.Err() != nil {
			return result, ctx.Err()
		}
	}

	for _, st := range subtasks {
		switch st.Status {
		case models.SubtaskStatusDone:
			result.Completed++
		case models.SubtaskStatusFailed:
			result.Failed++
		case models.SubtaskStatusBlocked:
			result.Blocked++
		}
	}

	o.emitter.emit(Event{
		Type:      EventRequestDone,
		RequestID: requestID,
		Message:   fmt.Sprintf("%d done, %d failed, %d blocked", result.Completed, result.Failed, result.Blocked),
	})
	o.logger.Log("request %s done: %d/%d subtasks completed", requestID, result.Completed, len(subtasks))
	return result, nil
}

// executeSubtask routes one subtask to an agent, runs it and records the
// outcome. The outcome is nil when routing itself failed.
func (o *Orchestrator) executeSubtask(ctx context.Context, requestID string, g *graph.DependencyGraph, st *models.Subtask) (string, *models.Outcome) {
	candidates := o.registry.CandidatesFor(st.Type)
	agentID, err := o.router.Select(st.Type, candidates)
	if err != nil {
		o.failSubtask(requestID, g, st, "", err)
		return "", nil
	}

	o.emitter.emit(Event{
		Type:        EventSubtaskStarted,
		RequestID:   requestID,
		SubtaskID:   st.ID,
		SubtaskType: st.Type,
		AgentID:     agentID,
	})
	o.logger.Log("subtask %s (%s) routed to agent %s", st.ID, st.Type, agentID)

	output, outcome := o.worker.Execute(ctx, agentID, st)
	o.learner.Record(st, agentID, outcome)

	if !outcome.Success {
		o.failSubtask(requestID, g, st, agentID, fmt.Errorf("agent %s produced no usable output", agentID))
		return "", outcome
	}

	st.Status = models.SubtaskStatusDone
	g.MarkComplete(st.ID)
	o.emitter.emit(Event{
		Type:        EventSubtaskCompleted,
		RequestID:   requestID,
		SubtaskID:   st.ID,
		SubtaskType: st.Type,
		AgentID:     agentID,
	})
	return output, outcome
}

// failSubtask marks a subtask failed and blocks all of its dependents that
// have not started yet.
func (o *Orchestrator) failSubtask(requestID string, g *graph.DependencyGraph, st *models.Subtask, agentID string, cause error) {
	st.Status = models.SubtaskStatusFailed
	st.Error = cause.Error()
	o.emitter.emit(Event{
		Type:        EventSubtaskFailed,
		RequestID:   requestID,
		SubtaskID:   st.ID,
		SubtaskType: st.Type,
		AgentID:     agentID,
		Error:       cause,
	})
	o.logger.Log("subtask %s failed: %v", st.ID, cause)

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, depID := range g.GetDependents(st.ID) {
		dep := g.GetSubtask(depID)
		if dep == nil || dep.Status != models.SubtaskStatusPending {
			continue
		}
		dep.Status = models.SubtaskStatusBlocked
		dep.Error = fmt.Sprintf("blocked by failed subtask %s", st.ID)
		o.emitter.emit(Event{
			Type:        EventSubtaskBlocked,
			RequestID:   requestID,
			SubtaskID:   dep.ID,
			SubtaskType: dep.Type,
			Message:     dep.Error,
		})
	}
}

// Close shuts the pipeline down. The batcher is closed first so in-flight
// backend calls unwind quickly, then running Process calls are drained to
// terminal states before profiles are persisted and the event channel is
// closed. Safe to call more than once and concurrently with Process.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	var errs []error
	if err := o.batcher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close batcher: %w", err))
	}

	// Requests that were mid-flight keep emitting until they finish;
	// the channel must outlive them.
	o.inflight.Wait()

	if o.store != nil {
		if err := o.store.SaveProfiles(o.registry.All(), o.beliefs.Snapshot()); err != nil {
			errs = append(errs, fmt.Errorf("persist profiles: %w", err))
		}
	}
	o.emitter.close()
	if err := o.logger.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close logger: %w", err))
	}
	return errors.Join(errs...)
}

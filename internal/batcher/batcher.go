// Package batcher owns access to the generative-model backend. It groups
// concurrent individual generate requests into batches so many logical
// callers share one latency-sensitive endpoint without overwhelming it.
package batcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loomery/loom/internal/backend"
)

// ErrOverloaded is returned by Submit when the pending queue exceeds
// maxBatchSize x maxBatchesInFlight. Callers should back off and retry.
var ErrOverloaded = errors.New("batcher overloaded")

// ErrClosed is returned by Submit after Close has been called.
var ErrClosed = errors.New("batcher closed")

// Config contains tuning parameters for the Batcher.
type Config struct {
	// MaxBatchSize is the maximum number of requests claimed per batch.
	MaxBatchSize int
	// MaxWait is how long the first request in an empty queue waits for
	// the batch to fill before processing is forced.
	MaxWait time.Duration
	// MaxBatchesInFlight bounds the pending queue: submissions beyond
	// MaxBatchSize*MaxBatchesInFlight are rejected with ErrOverloaded.
	MaxBatchesInFlight int
}

// DefaultConfig returns a Config with conservative defaults.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize:       8,
		MaxWait:            50 * time.Millisecond,
		MaxBatchesInFlight: 4,
	}
}

// result is the terminal value of one generate request.
type result struct {
	text string
	err  error
}

// request is one pending generate call. It is owned exclusively by the
// batcher until resolved; the buffered done channel guarantees exactly-once
// resolution even when the caller has abandoned its wait.
type request struct {
	id          string
	prompt      string
	maxTokens   int
	temperature float64
	submittedAt time.Time
	done        chan result
}

// Batcher groups concurrent generate requests into batches. The mutex
// guards only queue bookkeeping (append, claim, flag flip); it is never
// held across a backend call.
type Batcher struct {
	backend backend.BatchGenerator
	cfg     Config

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	pending    []*request
	processing bool
	timer      *time.Timer
	closed     bool

	// stats, guarded by mu
	totalRequests uint64
	totalBatches  uint64
	totalBatched  uint64

	debugLog func(format string, args ...interface{})
}

// New creates a Batcher over the given single-call backend. Calls are
// fanned out per batch while preserving the batch-wide failure contract.
func New(gen backend.Generator, cfg Config) *Batcher {
	return NewBatching(FanOut(gen), cfg)
}

// NewBatching creates a Batcher over a backend with native batching.
func NewBatching(gen backend.BatchGenerator, cfg Config) *Batcher {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultConfig().MaxBatchSize
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultConfig().MaxWait
	}
	if cfg.MaxBatchesInFlight <= 0 {
		cfg.MaxBatchesInFlight = DefaultConfig().MaxBatchesInFlight
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Batcher{
		backend:  gen,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		debugLog: func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (b *Batcher) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		b.debugLog = fn
	}
}

// Submit enqueues one generate request and waits for its resolution. If the
// caller's context expires first, Submit returns the context error; the
// request is still resolved by the batcher and simply goes unobserved.
func (b *Batcher) Submit(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	req := &request{
		id:          uuid.New().String()[:8],
		prompt:      prompt,
		maxTokens:   maxTokens,
		temperature: temperature,
		submittedAt: time.Now(),
		done:        make(chan result, 1),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return "", ErrClosed
	}
	if len(b.pending) >= b.cfg.MaxBatchSize*b.cfg.MaxBatchesInFlight {
		b.mu.Unlock()
		return "", ErrOverloaded
	}

	b.pending = append(b.pending, req)
	b.totalRequests++

	if len(b.pending) >= b.cfg.MaxBatchSize && !b.processing {
		// Batch is full: process immediately.
		b.processing = true
		b.stopTimerLocked()
		go b.process()
	} else if len(b.pending) == 1 && !b.processing {
		// First request in an empty queue: arm the max-wait deadline.
		b.timer = time.AfterFunc(b.cfg.MaxWait, b.flush)
	}
	b.mu.Unlock()

	b.debugLog("[batcher] request %s queued (prompt %d bytes)", req.id, len(prompt))

	select {
	case res := <-req.done:
		return res.text, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// flush is invoked by the max-wait timer when a batch never filled.
func (b *Batcher) flush() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.timer = nil
	if b.processing || len(b.pending) == 0 || b.closed {
		return
	}
	b.processing = true
	go b.process()
}

// process drains the pending queue batch by batch. The queue mutex is
// released before every backend call; if more requests arrive while a batch
// is in flight, the loop claims them in the next pass (continuous batching).
func (b *Batcher) process() {
	for {
		b.mu.Lock()
		if len(b.pending) == 0 || b.closed {
			b.processing = false
			b.mu.Unlock()
			return
		}

		n := len(b.pending)
		if n > b.cfg.MaxBatchSize {
			n = b.cfg.MaxBatchSize
		}
		batch := b.pending[:n:n]
		b.pending = b.pending[n:]
		b.stopTimerLocked()
		b.totalBatches++
		b.totalBatched += uint64(n)
		b.mu.Unlock()

		b.run(batch)
	}
}

// run executes one claimed batch against the backend and resolves every
// member exactly once. On backend failure all members receive the identical
// error; no request is silently dropped.
func (b *Batcher) run(batch []*request) {
	reqs := make([]backend.Request, len(batch))
	for i, r := range batch {
		reqs[i] = backend.Request{
			Prompt:      r.prompt,
			MaxTokens:   r.maxTokens,
			Temperature: r.temperature,
		}
	}

	b.debugLog("[batcher] dispatching batch of %d", len(batch))
	outs, err := b.backend.GenerateBatch(b.ctx, reqs)
	if err == nil && len(outs) != len(batch) {
		err = errors.New("backend returned short batch")
	}

	for i, r := range batch {
		if err != nil {
			r.done <- result{err: err}
			continue
		}
		r.done <- result{text: outs[i]}
	}
}

// stopTimerLocked stops the max-wait timer if armed. Caller must hold b.mu.
func (b *Batcher) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// Stats is a snapshot of batcher counters.
type Stats struct {
	// TotalRequests is the number of requests ever submitted.
	TotalRequests uint64 `json:"total_requests"`
	// TotalBatches is the number of batches dispatched to the backend.
	TotalBatches uint64 `json:"total_batches"`
	// AvgBatchSize is the running average batch size.
	AvgBatchSize float64 `json:"avg_batch_size"`
	// Pending is the current queue depth.
	Pending int `json:"pending"`
}

// Stats returns a snapshot of the batcher's counters.
func (b *Batcher) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		TotalRequests: b.totalRequests,
		TotalBatches:  b.totalBatches,
		Pending:       len(b.pending),
	}
	if b.totalBatches > 0 {
		s.AvgBatchSize = float64(b.totalBatched) / float64(b.totalBatches)
	}
	return s
}

// Close rejects future submissions, fails any unclaimed pending requests
// with ErrClosed, and cancels in-flight backend calls.
func (b *Batcher) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.stopTimerLocked()
	orphans := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, r := range orphans {
		r.done <- result{err: ErrClosed}
	}
	b.cancel()
	return nil
}

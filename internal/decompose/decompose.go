// Package decompose turns one free-form request into an ordered list of
// subtasks. Generation is delegated to the batcher; this package's job is
// parsing and repair. Decomposition failure never blocks execution: the
// fallback is a single subtask wrapping the whole request verbatim.
package decompose

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/loomery/loom/pkg/models"
)

// Generation parameters for decomposition calls. Decomposition wants
// near-deterministic output, hence the low temperature.
const (
	decomposeMaxTokens   = 2048
	decomposeTemperature = 0.2
)

// Submitter is the slice of the batcher the decomposer needs.
type Submitter interface {
	Submit(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}

// Config contains tuning parameters for the Decomposer.
type Config struct {
	// PromptBudgetTokens caps the request text embedded in the
	// decomposition prompt. Longer input is truncated and counted.
	PromptBudgetTokens int
}

// DefaultConfig returns a Config with conservative defaults.
func DefaultConfig() Config {
	return Config{PromptBudgetTokens: 4096}
}

// Decomposer breaks down user requests into ordered subtasks.
type Decomposer struct {
	submitter Submitter
	counter   *tokenCounter
	cfg       Config

	truncations uint64
	fallbacks   uint64

	debugLog func(format string, args ...interface{})
}

// New creates a Decomposer that generates through the given submitter.
func New(submitter Submitter, cfg Config) *Decomposer {
	if cfg.PromptBudgetTokens <= 0 {
		cfg.PromptBudgetTokens = DefaultConfig().PromptBudgetTokens
	}
	return &Decomposer{
		submitter: submitter,
		counter:   newTokenCounter(),
		cfg:       cfg,
		debugLog:  func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (d *Decomposer) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		d.debugLog = fn
	}
}

// Decompose turns a request into ordered subtasks. Empty input yields an
// empty list. Any generation or parse failure degrades to the single
// verbatim fallback subtask rather than surfacing an error.
func (d *Decomposer) Decompose(ctx context.Context, requestID, request string) ([]*models.Subtask, error) {
	if request == "" {
		return []*models.Subtask{}, nil
	}

	text, truncated := d.counter.Truncate(request, d.cfg.PromptBudgetTokens)
	if truncated {
		atomic.AddUint64(&d.truncations, 1)
		d.debugLog("[decompose] request %s truncated to %d-token budget", requestID, d.cfg.PromptBudgetTokens)
	}

	response, err := d.submitter.Submit(ctx, buildPrompt(text), decomposeMaxTokens, decomposeTemperature)
	if err != nil {
		d.debugLog("[decompose] generation failed for request %s: %v", requestID, err)
		atomic.AddUint64(&d.fallbacks, 1)
		return d.fallback(requestID, request), nil
	}

	parsed, err := ParseResponse(response)
	if err != nil || len(parsed) == 0 {
		d.debugLog("[decompose] unusable decomposition for request %s: %v", requestID, err)
		atomic.AddUint64(&d.fallbacks, 1)
		return d.fallback(requestID, request), nil
	}

	return buildSubtasks(requestID, parsed), nil
}

// fallback wraps the whole request in one general subtask.
func (d *Decomposer) fallback(requestID, request string) []*models.Subtask {
	return []*models.Subtask{{
		ID:        uuid.New().String(),
		ParentID:  requestID,
		Type:      models.SubtaskTypeGeneral,
		Ordinal:   0,
		Payload:   request,
		Status:    models.SubtaskStatusPending,
		CreatedAt: time.Now(),
	}}
}

// buildSubtasks converts parsed entries to Subtask models. Ordinal position
// encodes the suggested order; each subtask depends on its predecessor
// (ordering is the only dependency signal, no data-flow analysis).
func buildSubtasks(requestID string, parsed []parsedSubtask) []*models.Subtask {
	now := time.Now()
	subtasks := make([]*models.Subtask, len(parsed))
	for i, p := range parsed {
		st := &models.Subtask{
			ID:        uuid.New().String(),
			ParentID:  requestID,
			Type:      models.ParseSubtaskType(p.Type),
			Ordinal:   i,
			Payload:   p.Task,
			Status:    models.SubtaskStatusPending,
			CreatedAt: now,
		}
		if i > 0 {
			st.DependsOn = []string{subtasks[i-1].ID}
		}
		subtasks[i] = st
	}
	return subtasks
}

// Stats is a snapshot of decomposer counters, for observability.
type Stats struct {
	// Truncations counts requests cut down to the prompt budget.
	Truncations uint64 `json:"truncations"`
	// Fallbacks counts decompositions that degraded to the verbatim
	// single-subtask fallback.
	Fallbacks uint64 `json:"fallbacks"`
}

// Stats returns a snapshot of the decomposer's counters.
func (d *Decomposer) Stats() Stats {
	return Stats{
		Truncations: atomic.LoadUint64(&d.truncations),
		Fallbacks:   atomic.LoadUint64(&d.fallbacks),
	}
}

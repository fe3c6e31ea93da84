package batcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loomery/loom/internal/backend"
)

// fakeBackend is a controllable batch backend for tests.
type fakeBackend struct {
	mu      sync.Mutex
	calls   int32
	sizes   []int
	gate    chan struct{} // when non-nil, GenerateBatch blocks until closed
	failErr error
}

func (f *fakeBackend) GenerateBatch(ctx context.Context, reqs []backend.Request) ([]string, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.sizes = append(f.sizes, len(reqs))
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failErr != nil {
		return nil, f.failErr
	}

	outs := make([]string, len(reqs))
	for i, r := range reqs {
		outs[i] = "echo:" + r.Prompt
	}
	return outs, nil
}

func (f *fakeBackend) callCount() int {
	return int(atomic.LoadInt32(&f.calls))
}

func TestSubmit_SingleRequestFlushesOnTimer(t *testing.T) {
	fb := &fakeBackend{}
	b := NewBatching(fb, Config{MaxBatchSize: 10, MaxWait: 20 * time.Millisecond, MaxBatchesInFlight: 4})
	defer b.Close()

	start := time.Now()
	text, err := b.Submit(context.Background(), "hello", 128, 0.7)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if text != "echo:hello" {
		t.Errorf("text = %q, want %q", text, "echo:hello")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("single request took %v, expected to flush near max_wait", elapsed)
	}
	if fb.callCount() != 1 {
		t.Errorf("backend calls = %d, want 1", fb.callCount())
	}
}

func TestSubmit_FullBatchTriggersImmediately(t *testing.T) {
	fb := &fakeBackend{}
	// Long max_wait: if the full-batch trigger does not fire, the test
	// times out well before the timer would flush.
	b := NewBatching(fb, Config{MaxBatchSize: 4, MaxWait: 10 * time.Second, MaxBatchesInFlight: 4})
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := b.Submit(context.Background(), fmt.Sprintf("p%d", n), 64, 0.5); err != nil {
				t.Errorf("Submit p%d failed: %v", n, err)
			}
		}(i)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("full batch did not resolve without the timer")
	}
	if fb.callCount() != 1 {
		t.Errorf("backend calls = %d, want 1", fb.callCount())
	}
}

func TestSubmit_FortyRequestsFourBatches(t *testing.T) {
	gate := make(chan struct{})
	fb := &fakeBackend{gate: gate}
	b := NewBatching(fb, Config{MaxBatchSize: 10, MaxWait: 50 * time.Millisecond, MaxBatchesInFlight: 8})
	defer b.Close()

	const n = 40
	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, results[idx] = b.Submit(context.Background(), fmt.Sprintf("p%d", idx), 64, 0.5)
		}(i)
	}

	// Hold the backend until every submission is queued so batches are
	// claimed gap-free.
	deadline := time.Now().Add(2 * time.Second)
	for b.Stats().TotalRequests < n {
		if time.Now().After(deadline) {
			t.Fatal("submissions never all queued")
		}
		time.Sleep(time.Millisecond)
	}
	close(gate)
	wg.Wait()

	for i, err := range results {
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	if got := fb.callCount(); got != 4 {
		t.Errorf("backend calls = %d, want 4 (sizes %v)", got, fb.sizes)
	}

	stats := b.Stats()
	if stats.TotalRequests != n {
		t.Errorf("TotalRequests = %d, want %d", stats.TotalRequests, n)
	}
	if stats.TotalBatches != 4 {
		t.Errorf("TotalBatches = %d, want 4", stats.TotalBatches)
	}
	if stats.AvgBatchSize != 10 {
		t.Errorf("AvgBatchSize = %v, want 10", stats.AvgBatchSize)
	}
}

func TestSubmit_FailingBatchFailsIdentically(t *testing.T) {
	boom := errors.New("backend down")
	fb := &fakeBackend{failErr: boom}
	b := NewBatching(fb, Config{MaxBatchSize: 5, MaxWait: 10 * time.Millisecond, MaxBatchesInFlight: 4})
	defer b.Close()

	const n = 5
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = b.Submit(context.Background(), "p", 64, 0.5)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			t.Fatalf("request %d resolved without error", i)
		}
		if !errors.Is(err, boom) {
			t.Errorf("request %d error = %v, want the batch error", i, err)
		}
	}
}

func TestSubmit_Backpressure(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	fb := &fakeBackend{gate: gate}
	b := NewBatching(fb, Config{MaxBatchSize: 2, MaxWait: 10 * time.Second, MaxBatchesInFlight: 1})
	defer b.Close()

	// Fill one batch: it is claimed immediately and blocks in the backend.
	for i := 0; i < 2; i++ {
		go b.Submit(context.Background(), "claimed", 64, 0.5)
	}
	deadline := time.Now().Add(2 * time.Second)
	for b.Stats().TotalBatches < 1 {
		if time.Now().After(deadline) {
			t.Fatal("first batch never claimed")
		}
		time.Sleep(time.Millisecond)
	}

	// Fill the pending queue to its bound.
	for i := 0; i < 2; i++ {
		go b.Submit(context.Background(), "queued", 64, 0.5)
	}
	for b.Stats().Pending < 2 {
		if time.Now().After(deadline) {
			t.Fatal("queue never filled")
		}
		time.Sleep(time.Millisecond)
	}

	// The next submission must be rejected, not queued.
	_, err := b.Submit(context.Background(), "rejected", 64, 0.5)
	if !errors.Is(err, ErrOverloaded) {
		t.Errorf("Submit error = %v, want ErrOverloaded", err)
	}
}

func TestSubmit_AbandonedWaitStillResolves(t *testing.T) {
	gate := make(chan struct{})
	fb := &fakeBackend{gate: gate}
	b := NewBatching(fb, Config{MaxBatchSize: 1, MaxWait: 5 * time.Millisecond, MaxBatchesInFlight: 4})
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := b.Submit(ctx, "abandoned", 64, 0.5)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Submit error = %v, want deadline exceeded", err)
	}

	// Releasing the backend must not panic: the orphaned request's result
	// lands in its buffered channel unobserved.
	close(gate)
	time.Sleep(20 * time.Millisecond)

	if got := b.Stats().TotalRequests; got != 1 {
		t.Errorf("TotalRequests = %d, want 1", got)
	}
}

func TestClose_FailsPendingRequests(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	fb := &fakeBackend{gate: gate}
	b := NewBatching(fb, Config{MaxBatchSize: 2, MaxWait: 10 * time.Second, MaxBatchesInFlight: 4})

	// One in-flight batch plus one queued request.
	for i := 0; i < 2; i++ {
		go b.Submit(context.Background(), "claimed", 64, 0.5)
	}
	deadline := time.Now().Add(2 * time.Second)
	for b.Stats().TotalBatches < 1 {
		if time.Now().After(deadline) {
			t.Fatal("first batch never claimed")
		}
		time.Sleep(time.Millisecond)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := b.Submit(context.Background(), "queued", 64, 0.5)
		errCh <- err
	}()
	for b.Stats().Pending < 1 {
		if time.Now().After(deadline) {
			t.Fatal("queued request never pending")
		}
		time.Sleep(time.Millisecond)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("queued request error = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued request never resolved after Close")
	}

	if _, err := b.Submit(context.Background(), "late", 64, 0.5); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after Close error = %v, want ErrClosed", err)
	}
}

func TestFanOut_FailsWholeBatch(t *testing.T) {
	boom := errors.New("single call failed")
	var calls int32
	gen := backend.GeneratorFunc(func(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
		if atomic.AddInt32(&calls, 1) == 2 {
			return "", boom
		}
		return "ok", nil
	})

	outs, err := FanOut(gen).GenerateBatch(context.Background(), []backend.Request{
		{Prompt: "a"}, {Prompt: "b"}, {Prompt: "c"},
	})
	if err == nil {
		t.Fatal("expected batch error when one member fails")
	}
	if outs != nil {
		t.Errorf("outs = %v, want nil on batch failure", outs)
	}
}

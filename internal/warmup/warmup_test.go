package warmup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWarmupRunsAllTasksAndAggregatesOK(t *testing.T) {
	var calls int32
	tasks := []Task{
		{Name: "embedding", Run: func(ctx context.Context) error { atomic.AddInt32(&calls, 1); return nil }},
		{Name: "workspace", Run: func(ctx context.Context) error { atomic.AddInt32(&calls, 1); return nil }},
		{Name: "memory", Run: func(ctx context.Context) error { atomic.AddInt32(&calls, 1); return nil }},
	}
	c := New(tasks)
	status := c.Warmup(context.Background())

	if !status.OK {
		t.Fatalf("expected OK status, got %+v", status)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected all 3 tasks to run, got %d", calls)
	}
	if len(status.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(status.Results))
	}
}

func TestWarmupSettlesIndividualFailures(t *testing.T) {
	tasks := []Task{
		{Name: "ok-task", Run: func(ctx context.Context) error { return nil }},
		{Name: "bad-task", Run: func(ctx context.Context) error { return errors.New("boom") }},
	}
	c := New(tasks)
	status := c.Warmup(context.Background())

	if status.OK {
		t.Fatal("expected degraded status when one task fails")
	}
	if len(status.Results) != 2 {
		t.Fatalf("expected both results present even though one failed, got %+v", status.Results)
	}
}

func TestWarmupIsIdempotentAcrossConcurrentCallers(t *testing.T) {
	var runs int32
	tasks := []Task{
		{Name: "slow", Run: func(ctx context.Context) error {
			atomic.AddInt32(&runs, 1)
			time.Sleep(50 * time.Millisecond)
			return nil
		}},
	}
	c := New(tasks)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Warmup(context.Background())
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(&runs) != 1 {
		t.Fatalf("expected the task to run exactly once across concurrent callers, got %d", runs)
	}
	if !c.Ready() {
		t.Fatal("expected Ready() to report true after warmup completes")
	}

	// A subsequent call is a cached no-op.
	c.Warmup(context.Background())
	if atomic.LoadInt32(&runs) != 1 {
		t.Fatalf("expected a second call not to rerun the task, got %d runs", runs)
	}
}

func TestSummaryReportsFailedTaskNames(t *testing.T) {
	status := Status{
		OK: false,
		Results: []TaskResult{
			{Name: "embedding", Err: nil},
			{Name: "workspace", Err: errors.New("disk full")},
		},
		Total: time.Second,
	}
	summary := status.Summary()
	if summary == "" {
		t.Fatal("expected a non-empty summary")
	}
}

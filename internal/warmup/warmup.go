// Package warmup coordinates idempotent startup preloading: embedding
// model load, workspace preload, and memory-chunk preload. Concurrent
// callers share one execution via singleflight — the textbook use case
// for golang.org/x/sync/singleflight, a sibling package in the same
// module the teacher already depends on for its errgroup use.
package warmup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const warmupKey = "warmup"

// Task is one settling unit of warmup work: load the embedding model,
// preload the workspace, or preload memory chunks.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// TaskResult is one task's outcome and timing.
type TaskResult struct {
	Name     string
	Duration time.Duration
	Err      error
}

// Status is the aggregate warmup outcome, returned by Warmup and
// reused as-is by health reporting.
type Status struct {
	OK      bool
	Results []TaskResult
	Total   time.Duration
}

// Coordinator runs the warmup task set at most once; a second call after
// completion is a cached no-op returning the same Status.
type Coordinator struct {
	tasks []Task
	group singleflight.Group

	mu   sync.Mutex
	done *Status
}

// New builds a warmup coordinator over the given tasks.
func New(tasks []Task) *Coordinator {
	return &Coordinator{tasks: tasks}
}

// Warmup runs every task in parallel, settling (not failing the bot) on
// individual task errors, and returns the aggregate status. Concurrent
// callers share the same execution; subsequent calls return the cached
// result without rerunning the tasks.
func (c *Coordinator) Warmup(ctx context.Context) Status {
	c.mu.Lock()
	if c.done != nil {
		status := *c.done
		c.mu.Unlock()
		return status
	}
	c.mu.Unlock()

	v, _, _ := c.group.Do(warmupKey, func() (any, error) {
		status := c.run(ctx)
		c.mu.Lock()
		c.done = &status
		c.mu.Unlock()
		return status, nil
	})
	return v.(Status)
}

func (c *Coordinator) run(ctx context.Context) Status {
	start := time.Now()
	results := make([]TaskResult, len(c.tasks))

	var wg sync.WaitGroup
	for i, task := range c.tasks {
		i, task := i, task
		wg.Add(1)
		go func() {
			defer wg.Done()
			taskStart := time.Now()
			err := task.Run(ctx)
			results[i] = TaskResult{Name: task.Name, Duration: time.Since(taskStart), Err: err}
		}()
	}
	wg.Wait()

	ok := true
	for _, r := range results {
		if r.Err != nil {
			ok = false
		}
	}
	return Status{OK: ok, Results: results, Total: time.Since(start)}
}

// Ready reports whether warmup has completed (regardless of per-task
// outcome), for health-check wiring.
func (c *Coordinator) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done != nil
}

// Summary renders the last status as a one-line human-readable string,
// for health reporting.
func (s Status) Summary() string {
	if s.OK {
		return fmt.Sprintf("warmup ok in %s", s.Total)
	}
	var failed []string
	for _, r := range s.Results {
		if r.Err != nil {
			failed = append(failed, r.Name)
		}
	}
	return fmt.Sprintf("warmup degraded in %s: %v failed", s.Total, failed)
}

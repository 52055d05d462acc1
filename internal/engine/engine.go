// Package engine provides the parallel execution engine for generation tasks.
// A batch of independently schedulable tasks runs under a bounded worker pool:
// a fixed number of workers pull the next unclaimed task from a shared counter
// until the batch is exhausted. Concurrency is capped per format to respect
// vendor API rate limits, not CPU capacity.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/storyforge-api/internal/retry"
)

// ErrCancelled is recorded on tasks that were never started because the
// batch was cancelled before a worker claimed them.
var ErrCancelled = errors.New("engine: execution cancelled")

// movingAverageWindow bounds the number of completed-task durations used
// to project remaining time.
const movingAverageWindow = 10

// Task is one independently schedulable unit of generation work,
// typically one scene's visual or narration segment.
type Task struct {
	// ID uniquely identifies the task within a batch.
	ID string
	// Type describes the kind of work, e.g. "visual".
	Type string
	// Retryable indicates transient failures should be retried with backoff.
	Retryable bool
	// Run performs the work. It must honor context cancellation.
	Run func(ctx context.Context) (any, error)
}

// TaskResult records the outcome of a single task.
type TaskResult struct {
	// TaskID is the ID of the task this result belongs to.
	TaskID string
	// Success indicates the task completed without error.
	Success bool
	// Data is the task's payload on success.
	Data any
	// Err is the final error on failure.
	Err error
	// Attempts is the number of times the task was run.
	Attempts int
	// Duration is the total wall-clock time spent on the task.
	Duration time.Duration
}

// Progress is the aggregate state of a running batch.
type Progress struct {
	// TotalTasks is the number of tasks submitted to the batch.
	TotalTasks int
	// CompletedTasks is the number of tasks that succeeded.
	CompletedTasks int
	// FailedTasks is the number of tasks that failed permanently.
	FailedTasks int
	// EstimatedTimeRemaining projects the remaining batch time from a
	// moving average of completed-task durations.
	EstimatedTimeRemaining time.Duration
}

// Engine runs task batches under a bounded concurrency limit with
// per-task retry. A single Engine runs one batch at a time.
type Engine struct {
	concurrency int
	policy      retry.Policy
	logger      *slog.Logger

	cancelled atomic.Bool

	mu        sync.Mutex
	progress  Progress
	durations []time.Duration
}

// New creates an Engine with the given concurrency limit and retry policy.
// A limit below 1 is treated as 1.
func New(concurrency int, policy retry.Policy, logger *slog.Logger) *Engine {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		concurrency: concurrency,
		policy:      policy,
		logger:      logger,
	}
}

// Execute runs the batch and returns one TaskResult per submitted task,
// index-aligned with the input. A single task's permanent failure does not
// abort the batch; the engine completes with partial success. Tasks not yet
// claimed when Cancel is called settle with ErrCancelled.
func (e *Engine) Execute(ctx context.Context, tasks []Task) []TaskResult {
	e.cancelled.Store(false)
	e.mu.Lock()
	e.progress = Progress{TotalTasks: len(tasks)}
	e.durations = e.durations[:0]
	e.mu.Unlock()

	results := make([]TaskResult, len(tasks))
	for i := range tasks {
		// Default for tasks never claimed by a worker.
		results[i] = TaskResult{TaskID: tasks[i].ID, Err: ErrCancelled}
	}

	var next atomic.Int64
	g, gctx := errgroup.WithContext(ctx)

	for w := 0; w < e.concurrency; w++ {
		g.Go(func() error {
			for {
				// Cancellation is observed between task claims only;
				// in-flight tasks are allowed to finish.
				if e.cancelled.Load() || gctx.Err() != nil {
					return nil
				}

				idx := int(next.Add(1)) - 1
				if idx >= len(tasks) {
					return nil
				}

				// Each index is written by exactly one worker.
				results[idx] = e.runTask(gctx, tasks[idx])
				e.settle(results[idx])
			}
		})
	}

	// Workers never return errors; Wait only synchronizes completion.
	_ = g.Wait()

	return results
}

// Cancel requests cooperative cancellation: no new tasks are claimed,
// in-flight tasks run to completion.
func (e *Engine) Cancel() {
	e.cancelled.Store(true)
}

// GetProgress returns a snapshot of the batch progress.
func (e *Engine) GetProgress() Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress
}

// runTask executes one task, applying the retry policy when the task is
// marked retryable.
func (e *Engine) runTask(ctx context.Context, t Task) TaskResult {
	start := time.Now()

	var data any
	var attempts int
	var err error

	if t.Retryable {
		attempts, err = e.policy.Do(ctx, func(ctx context.Context) error {
			var runErr error
			data, runErr = t.Run(ctx)
			return runErr
		})
	} else {
		attempts = 1
		data, err = t.Run(ctx)
	}

	result := TaskResult{
		TaskID:   t.ID,
		Success:  err == nil,
		Attempts: attempts,
		Duration: time.Since(start),
	}
	if err != nil {
		result.Err = err
		e.logger.Warn("task failed",
			slog.String("task_id", t.ID),
			slog.String("type", t.Type),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()),
		)
	} else {
		result.Data = data
	}

	return result
}

// settle folds a finished task into the progress counters and recomputes
// the estimated time remaining.
func (e *Engine) settle(r TaskResult) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if r.Success {
		e.progress.CompletedTasks++
		e.durations = append(e.durations, r.Duration)
		if len(e.durations) > movingAverageWindow {
			e.durations = e.durations[len(e.durations)-movingAverageWindow:]
		}
	} else {
		e.progress.FailedTasks++
	}

	remaining := e.progress.TotalTasks - e.progress.CompletedTasks - e.progress.FailedTasks
	if remaining <= 0 || len(e.durations) == 0 {
		e.progress.EstimatedTimeRemaining = 0
		return
	}

	var sum time.Duration
	for _, d := range e.durations {
		sum += d
	}
	avg := sum / time.Duration(len(e.durations))
	e.progress.EstimatedTimeRemaining = avg * time.Duration(remaining) / time.Duration(e.concurrency)
}

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

// Worker runs tasks, retrying transient failures.
type Worker struct {
	log        *slog.Logger
	stats      *Stats
	maxRetries int
	backoff    func(attempt int) time.Duration
}

func NewWorker(log *slog.Logger, stats *Stats, maxRetries int, backoff func(int) time.Duration) *Worker {
	if backoff == nil {
		backoff = Backoff
	}
	return &Worker{
		log:        log,
		stats:      stats,
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

// Process runs a task to completion and resolves it. RetryableErrors are
// retried up to maxRetries times with backoff; a panic becomes a failure.
func (w *Worker) Process(ctx context.Context, task *Task) {
	log := w.log.With("task_id", task.ID, "kind", task.Kind, "session_id", task.SessionID)
	start := time.Now()

	var (
		value any
		err   error
	)
	for attempt := 0; ; attempt++ {
		task.setRunning()
		value, err = w.run(ctx, task)
		if err == nil || !IsRetryable(err) || attempt >= w.maxRetries {
			break
		}
		log.Warn("retryable task error", "attempt", attempt, "error", err)
		select {
		case <-time.After(w.backoff(attempt)):
		case <-ctx.Done():
			err = ctx.Err()
		}
		if ctx.Err() != nil {
			break
		}
	}

	elapsed := time.Since(start)
	if w.stats != nil {
		w.stats.Record(task.Kind, elapsed, err != nil)
	}
	if err != nil {
		log.Error("task failed", "error", err, "duration_ms", elapsed.Milliseconds())
	} else {
		log.Info("task complete", "duration_ms", elapsed.Milliseconds())
	}
	task.resolve(value, err)
}

func (w *Worker) run(ctx context.Context, task *Task) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("task panicked", "task_id", task.ID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task.fn(ctx)
}

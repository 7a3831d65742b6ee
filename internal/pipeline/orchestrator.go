package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/docmeta/internal/config"
)

var (
	// ErrQueueFull is returned by Submit when the queue has no room.
	ErrQueueFull = errors.New("task queue is full")

	// ErrStopped resolves tasks still queued when the orchestrator stops.
	ErrStopped = errors.New("orchestrator stopped")
)

// Orchestrator runs background tasks on a fixed pool of workers.
type Orchestrator struct {
	tasks *TaskStore
	queue chan *Task
	stats *Stats
	log   *slog.Logger
	cfg   config.Config

	// backoff is swapped out by tests.
	backoff func(attempt int) time.Duration

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Call Start to launch workers.
func NewOrchestrator(cfg config.Config, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		tasks:   NewTaskStore(cfg.TaskTTL),
		queue:   make(chan *Task, cfg.MaxQueueSize),
		stats:   NewStats(time.Hour),
		log:     log,
		cfg:     cfg,
		backoff: Backoff,
	}
}

// Start launches worker goroutines.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	for range o.cfg.WorkerCount {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			w := NewWorker(o.log, o.stats, o.cfg.CommitRetries, o.backoff)
			for {
				select {
				case <-workerCtx.Done():
					return
				case task, ok := <-o.queue:
					if !ok {
						return
					}
					w.Process(workerCtx, task)
				}
			}
		}()
	}

	// Start task store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.tasks.Cleanup()
			}
		}
	}()
}

// Stop shuts down the workers. Tasks still queued resolve with ErrStopped.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
	for task := range o.queue {
		task.resolve(nil, ErrStopped)
	}
}

// Submit queues a task for processing.
func (o *Orchestrator) Submit(task *Task) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return ErrStopped
	}
	o.tasks.Put(task)
	select {
	case o.queue <- task:
		return nil
	default:
		task.resolve(nil, ErrQueueFull)
		return fmt.Errorf("%w (%d)", ErrQueueFull, o.cfg.MaxQueueSize)
	}
}

// GetTask returns a task by ID.
func (o *Orchestrator) GetTask(id string) *Task {
	return o.tasks.Get(id)
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Stats returns per-kind latency aggregates.
func (o *Orchestrator) Stats() map[string]KindStats {
	return o.stats.Snapshot()
}

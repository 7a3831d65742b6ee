package pipeline

import (
	"context"
	"sync"
	"time"
)

// TaskStatus represents the state of a background task.
type TaskStatus string

const (
	StatusQueued    TaskStatus = "queued"
	StatusRunning   TaskStatus = "running"
	StatusSucceeded TaskStatus = "succeeded"
	StatusFailed    TaskStatus = "failed"
)

// Func is the blocking unit of work a task runs. It must only touch data it
// captured when the task was built.
type Func func(ctx context.Context) (any, error)

// Result is the single resolution of a task.
type Result struct {
	Value any
	Err   error
}

// Task is a unit of background work with a single-resolution result. The
// submitter keeps the Task and polls it or waits on it.
type Task struct {
	mu sync.Mutex

	ID        string     `json:"task_id"`
	Kind      string     `json:"kind"`
	SessionID string     `json:"session_id,omitempty"`
	Status    TaskStatus `json:"status"`
	Attempts  int        `json:"attempts"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// Internal: not serialized.
	fn       Func
	result   Result
	done     chan struct{}
	resolved bool
	started  time.Time
	finished time.Time
}

// NewTask builds a queued task around fn.
func NewTask(kind, sessionID string, fn Func) *Task {
	now := time.Now()
	return &Task{
		ID:        generateULID(),
		Kind:      kind,
		SessionID: sessionID,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
		fn:        fn,
		done:      make(chan struct{}),
	}
}

// Done is closed once the task has a result.
func (t *Task) Done() <-chan struct{} { return t.done }

// Poll returns the result without blocking. ok is false while the task is
// still queued or running.
func (t *Task) Poll() (res Result, ok bool) {
	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.result, true
	default:
		return Result{}, false
	}
}

// Wait blocks until the task resolves or ctx is done.
func (t *Task) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		res, _ := t.Poll()
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (t *Task) setRunning() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = StatusRunning
	t.Attempts++
	if t.started.IsZero() {
		t.started = time.Now()
	}
	t.UpdatedAt = time.Now()
}

// resolve records the result once; later calls are ignored.
func (t *Task) resolve(v any, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.resolved {
		return false
	}
	t.resolved = true
	t.result = Result{Value: v, Err: err}
	if err != nil {
		t.Status = StatusFailed
	} else {
		t.Status = StatusSucceeded
	}
	t.finished = time.Now()
	t.UpdatedAt = t.finished
	close(t.done)
	return true
}

// TaskSnapshot is a read-only, JSON-safe copy of task state.
type TaskSnapshot struct {
	ID         string     `json:"task_id"`
	Kind       string     `json:"kind"`
	SessionID  string     `json:"session_id,omitempty"`
	Status     TaskStatus `json:"status"`
	Attempts   int        `json:"attempts"`
	Error      string     `json:"error,omitempty"`
	Result     any        `json:"result,omitempty"`
	DurationMs int64      `json:"duration_ms"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the task state.
func (t *Task) Snapshot() TaskSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := TaskSnapshot{
		ID:        t.ID,
		Kind:      t.Kind,
		SessionID: t.SessionID,
		Status:    t.Status,
		Attempts:  t.Attempts,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	if t.resolved {
		if t.result.Err != nil {
			s.Error = t.result.Err.Error()
		} else {
			s.Result = t.result.Value
		}
		if !t.started.IsZero() {
			s.DurationMs = t.finished.Sub(t.started).Milliseconds()
		}
	}
	return s
}

// TaskStore is a thread-safe in-memory task registry with TTL eviction.
// Only resolved tasks expire.
type TaskStore struct {
	mu    sync.Mutex
	tasks map[string]*Task
	ttl   time.Duration
}

func NewTaskStore(ttl time.Duration) *TaskStore {
	return &TaskStore{
		tasks: make(map[string]*Task),
		ttl:   ttl,
	}
}

func (s *TaskStore) Put(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
}

func (s *TaskStore) Get(id string) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[id]
}

// Cleanup removes resolved tasks older than the TTL.
func (s *TaskStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, t := range s.tasks {
		t.mu.Lock()
		expired := t.resolved && now.Sub(t.UpdatedAt) > s.ttl
		t.mu.Unlock()
		if expired {
			delete(s.tasks, id)
		}
	}
}

// Len returns the number of tracked tasks.
func (s *TaskStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

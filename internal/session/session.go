// Package session owns opened documents. A Session serializes every model
// access behind one lock, which plays the role of the control thread:
// background work (commits, external edits) runs as pipeline tasks on
// snapshots and its results are applied back by Pump.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/docmeta/internal/editor"
	"github.com/dgallion1/docmeta/internal/mangle"
	"github.com/dgallion1/docmeta/internal/model"
	"github.com/dgallion1/docmeta/internal/pipeline"
	"github.com/dgallion1/docmeta/internal/sexpr"
)

var (
	// ErrSavePending is returned by Save while an earlier save is in flight.
	ErrSavePending = errors.New("save already in progress")

	// ErrStaleEdit is reported when an external edit finishes after the
	// model it was made from has changed.
	ErrStaleEdit = errors.New("model changed during external edit")

	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session closed")
)

// Store hands out writers that persist one document's changes.
type Store interface {
	Writer(doc string) model.Writer
}

// Submitter queues background tasks.
type Submitter interface {
	Submit(task *pipeline.Task) error
}

// Outcome is the control-thread result of a finished background task.
type Outcome struct {
	TaskID string
	Kind   string
	Err    error
}

const (
	KindSave        = "save"
	KindEditOutline = "edit-outline"
	KindEditText    = "edit-text"
)

type pending struct {
	task  *pipeline.Task
	apply func(pipeline.Result) error
}

// Session is one opened document.
type Session struct {
	ID       string
	Path     string
	OpenedAt time.Time

	mu      sync.Mutex
	doc     *model.Document
	store   Store
	tasks   Submitter
	editor  editor.Editor
	log     *slog.Logger
	save    *pending
	edits   []*pending
	closed  bool
	lastErr error
}

// New opens a session on acc. The document is not read until a model is
// first requested.
func New(path string, acc model.Accessor, poll time.Duration, store Store, tasks Submitter, ed editor.Editor, log *slog.Logger) *Session {
	id := newID()
	return &Session{
		ID:       id,
		Path:     path,
		OpenedAt: time.Now(),
		doc:      model.NewDocument(acc, poll),
		store:    store,
		tasks:    tasks,
		editor:   ed,
		log:      log.With("session_id", id, "path", path),
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Do runs fn with exclusive access to the document. Finished background
// results are applied first.
func (s *Session) Do(fn func(d *model.Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.pump()
	return fn(s.doc)
}

// Status is a point-in-time summary of the session.
type Status struct {
	ID           string    `json:"session_id"`
	Path         string    `json:"path"`
	Dirty        bool      `json:"dirty"`
	SavePending  bool      `json:"save_pending"`
	EditsPending int       `json:"edits_pending"`
	LastError    string    `json:"last_error,omitempty"`
	OpenedAt     time.Time `json:"opened_at"`
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pump()
	st := Status{
		ID:           s.ID,
		Path:         s.Path,
		Dirty:        s.doc.Dirty(),
		SavePending:  s.save != nil,
		EditsPending: len(s.edits),
		OpenedAt:     s.OpenedAt,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// Save exports every dirty model into a writer and commits it in the
// background. Only one save may be in flight; the models are marked clean by
// Pump once the commit succeeds and only if they did not change meanwhile.
func (s *Session) Save() (*pipeline.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	s.pump()
	if s.save != nil {
		return s.save.task, ErrSavePending
	}

	w := s.store.Writer(s.Path)
	saved, err := s.doc.Export(w)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	task := pipeline.NewTask(KindSave, s.ID, func(ctx context.Context) (any, error) {
		return w.Commit(ctx)
	})
	p := &pending{task: task, apply: func(res pipeline.Result) error {
		if res.Err != nil {
			return res.Err
		}
		if stale := model.MarkClean(saved); stale > 0 {
			s.log.Info("models changed during save", "stale", stale)
		}
		return nil
	}}
	if err := s.tasks.Submit(task); err != nil {
		return nil, err
	}
	s.save = p
	s.log.Info("save submitted", "task_id", task.ID, "models", len(saved))
	return task, nil
}

// EditOutline exports the outline as plaintext and opens it in the external
// editor in the background. The edited text is imported by Pump.
func (s *Session) EditOutline(ctx context.Context) (*pipeline.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	s.pump()

	o, err := s.doc.Outline(ctx)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := o.ExportPlaintext(&buf); err != nil {
		return nil, err
	}
	rev := o.Revision()
	ed := s.editor
	content := buf.Bytes()

	task := pipeline.NewTask(KindEditOutline, s.ID, func(ctx context.Context) (any, error) {
		return editor.RoundTrip(ctx, ed, "outline-*.txt", content)
	})
	return task, s.submitEdit(task, func(res pipeline.Result) error {
		if res.Err != nil {
			return res.Err
		}
		if o.Revision() != rev {
			return ErrStaleEdit
		}
		_, err := o.ImportPlaintext(bytes.NewReader(res.Value.([]byte)))
		return err
	})
}

// EditText exports page n's text layer one line per unit and opens it in the
// external editor in the background. Pump applies the edited layer.
func (s *Session) EditText(ctx context.Context, n int) (*pipeline.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	s.pump()

	pt, err := s.doc.PageText(ctx, n)
	if err != nil {
		return nil, err
	}
	if !pt.HasLayer() {
		return nil, model.ErrNoTextLayer
	}
	raw := pt.Raw()
	var buf bytes.Buffer
	if err := mangle.Export(raw, &buf); err != nil {
		return nil, err
	}
	rev := pt.Revision()
	ed := s.editor
	content := buf.Bytes()

	task := pipeline.NewTask(KindEditText, s.ID, func(ctx context.Context) (any, error) {
		edited, err := editor.RoundTrip(ctx, ed, fmt.Sprintf("page%d-*.txt", n+1), content)
		if err != nil {
			return nil, err
		}
		return mangle.Import(raw, bytes.NewReader(edited))
	})
	return task, s.submitEdit(task, func(res pipeline.Result) error {
		if res.Err != nil {
			return res.Err
		}
		if pt.Revision() != rev {
			return ErrStaleEdit
		}
		_, err := pt.SetRaw(res.Value.(sexpr.Value))
		return err
	})
}

func (s *Session) submitEdit(task *pipeline.Task, apply func(pipeline.Result) error) error {
	if s.editor == nil {
		return editor.ErrNoEditor
	}
	if err := s.tasks.Submit(task); err != nil {
		return err
	}
	s.edits = append(s.edits, &pending{task: task, apply: apply})
	s.log.Info("external edit started", "task_id", task.ID, "kind", task.Kind)
	return nil
}

// Pump applies the results of finished background tasks and returns their
// outcomes. Nothing-changed edits are reported with model.ErrNothingChanged.
func (s *Session) Pump() []Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pump()
}

func (s *Session) pump() []Outcome {
	var out []Outcome
	if s.save != nil {
		if o, ok := s.finish(s.save); ok {
			s.save = nil
			out = append(out, o)
		}
	}
	kept := s.edits[:0]
	for _, p := range s.edits {
		o, ok := s.finish(p)
		if !ok {
			kept = append(kept, p)
			continue
		}
		out = append(out, o)
	}
	clear(s.edits[len(kept):])
	s.edits = kept
	return out
}

func (s *Session) finish(p *pending) (Outcome, bool) {
	res, ok := p.task.Poll()
	if !ok {
		return Outcome{}, false
	}
	err := p.apply(res)
	o := Outcome{TaskID: p.task.ID, Kind: p.task.Kind, Err: err}
	log := s.log.With("task_id", p.task.ID, "kind", p.task.Kind)
	switch {
	case err == nil:
		log.Info("task applied")
	case errors.Is(err, model.ErrNothingChanged):
		log.Info("nothing changed")
	default:
		s.lastErr = err
		log.Warn("task failed", "error", err)
	}
	return o, true
}

// Await waits for task and then applies every finished result, returning
// task's own outcome.
func (s *Session) Await(ctx context.Context, task *pipeline.Task) (Outcome, error) {
	if _, err := task.Wait(ctx); err != nil {
		return Outcome{}, err
	}
	for _, o := range s.Pump() {
		if o.TaskID == task.ID {
			return o, nil
		}
	}
	// Applied by a concurrent Pump.
	res, _ := task.Poll()
	return Outcome{TaskID: task.ID, Kind: task.Kind, Err: res.Err}, nil
}

// Revert discards every unsaved change.
func (s *Session) Revert() error {
	return s.Do(func(d *model.Document) error {
		d.Revert()
		return nil
	})
}

// Close marks the session closed. Pending tasks still run but their results
// are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.log.Info("session closed", "dirty", s.doc.Dirty())
}

package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/docmeta/internal/config"
	"github.com/dgallion1/docmeta/internal/editor"
	"github.com/dgallion1/docmeta/internal/model"
	"github.com/dgallion1/docmeta/internal/pipeline"
	"github.com/dgallion1/docmeta/internal/sexpr"
)

const (
	testOutline = `(bookmarks ("Intro" "#1") ("Body" "#2"))`
	testText    = `(page 0 0 100 100 (line 0 0 100 10 (word 0 0 50 10 "hello") (word 50 0 50 10 "world")))`
)

type staticAccessor struct {
	outline sexpr.Value
	text    sexpr.Value
}

func (a *staticAccessor) PageCount(context.Context) (int, error) { return 2, nil }

func (a *staticAccessor) AcquireOutline(context.Context) (sexpr.Value, error) {
	return a.outline, nil
}

func (a *staticAccessor) AcquirePageText(context.Context, int) (sexpr.Value, error) {
	return a.text, nil
}

func (a *staticAccessor) AcquirePageAnnotations(context.Context, int) (sexpr.Value, error) {
	return sexpr.List{}, nil
}

func (a *staticAccessor) AcquireSharedAnnotations(context.Context) (sexpr.Value, error) {
	return sexpr.List{}, nil
}

// memStore records committed changes. A non-nil gate blocks Commit until it
// is closed.
type memStore struct {
	mu      sync.Mutex
	commits [][]model.Change
	gate    chan struct{}
	fail    error
}

type memWriter struct {
	model.Batch
	s *memStore
}

func (s *memStore) Writer(string) model.Writer { return &memWriter{s: s} }

func (w *memWriter) Commit(ctx context.Context) (model.CommitResult, error) {
	if w.s.gate != nil {
		select {
		case <-w.s.gate:
		case <-ctx.Done():
			return model.CommitResult{}, ctx.Err()
		}
	}
	changes, err := w.Changes()
	if err != nil {
		return model.CommitResult{}, err
	}
	if w.s.fail != nil {
		return model.CommitResult{}, w.s.fail
	}
	w.s.mu.Lock()
	w.s.commits = append(w.s.commits, changes)
	w.s.mu.Unlock()
	return model.CommitResult{Changes: len(changes), CommittedAt: time.Now()}, nil
}

func mustParse(t *testing.T, s string) sexpr.Value {
	t.Helper()
	v, err := sexpr.Parse(s)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func newTestSession(t *testing.T, store *memStore, ed editor.Editor) *Session {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Default()
	cfg.WorkerCount = 2
	o := pipeline.NewOrchestrator(cfg, log)
	o.Start(context.Background())
	t.Cleanup(o.Stop)
	acc := &staticAccessor{outline: mustParse(t, testOutline), text: mustParse(t, testText)}
	return New("doc.pdf", acc, time.Millisecond, store, o, ed, log)
}

func renameFirst(t *testing.T, s *Session, title string) {
	t.Helper()
	err := s.Do(func(d *model.Document) error {
		o, err := d.Outline(context.Background())
		if err != nil {
			return err
		}
		kids, _ := o.Children(o.Root())
		_, err = o.SetText(kids[0], title)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestSave_MarksClean(t *testing.T) {
	store := &memStore{}
	s := newTestSession(t, store, nil)
	renameFirst(t, s, "Preface")
	if !s.Status().Dirty {
		t.Fatal("expected dirty session")
	}

	task, err := s.Save()
	if err != nil {
		t.Fatal(err)
	}
	out, err := s.Await(context.Background(), task)
	if err != nil || out.Err != nil {
		t.Fatalf("unexpected save failure: %v %v", err, out.Err)
	}
	if s.Status().Dirty {
		t.Error("expected clean session after save")
	}
	if len(store.commits) != 1 || len(store.commits[0]) != 1 {
		t.Fatalf("expected one commit with one change, got %v", store.commits)
	}
	c := store.commits[0][0]
	if c.Kind != model.ChangeOutline || c.Scope != model.Shared {
		t.Errorf("unexpected change %+v", c)
	}
	if got := sexpr.Format(c.Value); got != `(bookmarks ("Preface" "#1") ("Body" "#2"))` {
		t.Errorf("unexpected committed outline %s", got)
	}
}

func TestSave_PendingAndConcurrentMutation(t *testing.T) {
	store := &memStore{gate: make(chan struct{})}
	s := newTestSession(t, store, nil)
	renameFirst(t, s, "Preface")

	task, err := s.Save()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(); !errors.Is(err, ErrSavePending) {
		t.Fatalf("expected ErrSavePending, got %v", err)
	}
	if !s.Status().SavePending {
		t.Error("expected save_pending in status")
	}

	// Mutated after the snapshot: the save must not mark it clean.
	renameFirst(t, s, "Foreword")
	close(store.gate)
	if _, err := s.Await(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	st := s.Status()
	if !st.Dirty {
		t.Error("expected the model to stay dirty")
	}
	if st.SavePending {
		t.Error("expected no pending save")
	}
	if got := sexpr.Format(store.commits[0][0].Value); !strings.Contains(got, "Preface") {
		t.Errorf("expected the snapshot to be committed, got %s", got)
	}
}

func TestSave_FailureKeepsDirty(t *testing.T) {
	store := &memStore{fail: errors.New("disk full")}
	s := newTestSession(t, store, nil)
	renameFirst(t, s, "Preface")
	task, _ := s.Save()
	out, _ := s.Await(context.Background(), task)
	if out.Err == nil {
		t.Fatal("expected the save to fail")
	}
	st := s.Status()
	if !st.Dirty || st.LastError == "" {
		t.Errorf("expected dirty with an error, got %+v", st)
	}
}

func rewrite(content string) editor.Editor {
	return editor.Func(func(ctx context.Context, path string) error {
		return os.WriteFile(path, []byte(content), 0o600)
	})
}

func TestEditOutline(t *testing.T) {
	s := newTestSession(t, &memStore{}, rewrite("#1 Start\n    #2 Nested\n"))
	task, err := s.EditOutline(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	out, err := s.Await(context.Background(), task)
	if err != nil || out.Err != nil {
		t.Fatalf("unexpected failure: %v %v", err, out.Err)
	}
	s.Do(func(d *model.Document) error {
		o, _ := d.Outline(context.Background())
		if got := sexpr.Format(o.Raw()); got != `(bookmarks ("Start" "#1" ("Nested" "#2")))` {
			t.Errorf("unexpected outline %s", got)
		}
		return nil
	})
}

func TestEditText(t *testing.T) {
	s := newTestSession(t, &memStore{}, rewrite("hello there\n"))
	task, err := s.EditText(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	out, _ := s.Await(context.Background(), task)
	if out.Err != nil {
		t.Fatal(out.Err)
	}
	s.Do(func(d *model.Document) error {
		pt, _ := d.PageText(context.Background(), 0)
		if got := sexpr.Format(pt.Raw()); got != `(page 0 0 100 100 (line 0 0 100 10 "hello there"))` {
			t.Errorf("unexpected text layer %s", got)
		}
		if !pt.Dirty() {
			t.Error("expected dirty page text")
		}
		return nil
	})
}

func TestEditText_NothingChanged(t *testing.T) {
	s := newTestSession(t, &memStore{}, rewrite("hello world\n"))
	task, _ := s.EditText(context.Background(), 0)
	out, _ := s.Await(context.Background(), task)
	if !errors.Is(out.Err, model.ErrNothingChanged) {
		t.Errorf("expected ErrNothingChanged, got %v", out.Err)
	}
	if s.Status().Dirty {
		t.Error("expected clean session")
	}
}

func TestEditText_Stale(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	ed := editor.Func(func(ctx context.Context, path string) error {
		close(started)
		<-release
		return os.WriteFile(path, []byte("hello there\n"), 0o600)
	})
	s := newTestSession(t, &memStore{}, ed)
	task, err := s.EditText(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	<-started
	s.Do(func(d *model.Document) error {
		pt, _ := d.PageText(context.Background(), 0)
		_, err := pt.SetX(pt.Root(), 5)
		return err
	})
	close(release)
	out, _ := s.Await(context.Background(), task)
	if !errors.Is(out.Err, ErrStaleEdit) {
		t.Errorf("expected ErrStaleEdit, got %v", out.Err)
	}
}

func TestEditWithoutEditor(t *testing.T) {
	s := newTestSession(t, &memStore{}, nil)
	if _, err := s.EditOutline(context.Background()); !errors.Is(err, editor.ErrNoEditor) {
		t.Errorf("expected ErrNoEditor, got %v", err)
	}
}

func TestClosedSession(t *testing.T) {
	s := newTestSession(t, &memStore{}, nil)
	s.Close()
	if _, err := s.Save(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestRevert(t *testing.T) {
	s := newTestSession(t, &memStore{}, nil)
	renameFirst(t, s, "Preface")
	if err := s.Revert(); err != nil {
		t.Fatal(err)
	}
	if s.Status().Dirty {
		t.Error("expected clean session after revert")
	}
}

func TestRevert_AfterSaveKeepsSaved(t *testing.T) {
	store := &memStore{}
	s := newTestSession(t, store, nil)
	renameFirst(t, s, "Preface")
	task, err := s.Save()
	if err != nil {
		t.Fatal(err)
	}
	if out, err := s.Await(context.Background(), task); err != nil || out.Err != nil {
		t.Fatalf("unexpected save failure: %v %v", err, out.Err)
	}

	renameFirst(t, s, "Draft")
	if err := s.Revert(); err != nil {
		t.Fatal(err)
	}
	var raw string
	s.Do(func(d *model.Document) error {
		o, err := d.Outline(context.Background())
		if err != nil {
			return err
		}
		raw = sexpr.Format(o.Raw())
		return nil
	})
	if want := `(bookmarks ("Preface" "#1") ("Body" "#2"))`; raw != want {
		t.Errorf("expected the saved outline after revert, got %s", raw)
	}
	if s.Status().Dirty {
		t.Error("expected clean session after revert")
	}
}

package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgallion1/docmeta/internal/config"
	"github.com/dgallion1/docmeta/internal/model"
	"github.com/dgallion1/docmeta/internal/pathstore"
	"github.com/dgallion1/docmeta/internal/session"
	"github.com/dgallion1/docmeta/internal/sexpr"
	"github.com/dgallion1/docmeta/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenBackend(t *testing.T) {
	cfg := config.Default()
	cfg.DBPath = ":memory:"
	b, closeFn, err := OpenBackend(cfg, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := b.(*store.Store); !ok {
		t.Errorf("expected *store.Store, got %T", b)
	}
	closeFn()

	cfg.Store = "pathstore"
	b, closeFn, err = OpenBackend(cfg, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := b.(*pathstore.Store); !ok {
		t.Errorf("expected *pathstore.Store, got %T", b)
	}
	closeFn()

	cfg.Store = "redis"
	if _, _, err := OpenBackend(cfg, testLogger()); err == nil {
		t.Error("expected an error for an unknown store")
	}
}

func TestApp_SaveAndReopen(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("one\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.DocumentRoot = root
	cfg.DBPath = filepath.Join(root, "meta.db")
	cfg.AcquirePoll = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, err := New(ctx, cfg, nil, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sess, err := a.Sessions.Open(ctx, "a.txt")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	err = sess.Do(func(d *model.Document) error {
		o, err := d.Outline(ctx)
		if err != nil {
			return err
		}
		_, _, err = o.AddBookmark(0)
		return err
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	task, err := sess.Save()
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if out, err := sess.Await(ctx, task); err != nil || out.Err != nil {
		t.Fatalf("expected a successful save, got %+v, %v", out, err)
	}
	a.Close()

	// A fresh app over the same database sees the saved outline.
	a, err = New(ctx, cfg, nil, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Close()
	sess, err = a.Sessions.Open(ctx, "a.txt")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var raw string
	sess.Do(func(d *model.Document) error {
		o, err := d.Outline(ctx)
		if err != nil {
			return err
		}
		raw = sexpr.Format(o.Raw())
		return nil
	})
	if want := `(bookmarks ("(no title)" "#1"))`; raw != want {
		t.Errorf("expected %s, got %s", want, raw)
	}
}

func outlineOf(t *testing.T, ctx context.Context, sess *session.Session) string {
	t.Helper()
	var raw string
	err := sess.Do(func(d *model.Document) error {
		o, err := d.Outline(ctx)
		if err != nil {
			return err
		}
		raw = sexpr.Format(o.Raw())
		return nil
	})
	if err != nil {
		t.Fatalf("read outline: %v", err)
	}
	return raw
}

func TestApp_RevertAfterSaveMatchesStore(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("one\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.DocumentRoot = root
	cfg.DBPath = filepath.Join(root, "meta.db")
	cfg.AcquirePoll = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, err := New(ctx, cfg, nil, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sess, err := a.Sessions.Open(ctx, "a.txt")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	bookmark := func() {
		t.Helper()
		err := sess.Do(func(d *model.Document) error {
			o, err := d.Outline(ctx)
			if err != nil {
				return err
			}
			_, _, err = o.AddBookmark(0)
			return err
		})
		if err != nil {
			t.Fatalf("edit: %v", err)
		}
	}
	save := func() {
		t.Helper()
		task, err := sess.Save()
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		if out, err := sess.Await(ctx, task); err != nil || out.Err != nil {
			t.Fatalf("expected a successful save, got %+v, %v", out, err)
		}
	}

	want := `(bookmarks ("(no title)" "#1"))`
	bookmark()
	save()
	bookmark()
	if err := sess.Revert(); err != nil {
		t.Fatalf("revert: %v", err)
	}
	if got := outlineOf(t, ctx, sess); got != want {
		t.Errorf("expected %s after revert, got %s", want, got)
	}
	if sess.Status().Dirty {
		t.Error("expected clean session after revert")
	}
	save()
	a.Close()

	a, err = New(ctx, cfg, nil, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer a.Close()
	sess, err = a.Sessions.Open(ctx, "a.txt")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := outlineOf(t, ctx, sess); got != want {
		t.Errorf("expected %s after reopen, got %s", want, got)
	}
}

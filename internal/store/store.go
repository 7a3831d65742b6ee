// Package store persists committed document edits in an SQLite sidecar
// database. Each scope (a page or the document) keeps its last committed
// text, outline and annotations.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/docmeta/internal/model"
	"github.com/dgallion1/docmeta/internal/pipeline"
	"github.com/dgallion1/docmeta/internal/sexpr"
)

// ErrNotFound is returned when a document has no commits.
var ErrNotFound = errors.New("not found")

// Store is the SQLite sidecar.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens or creates the database at path. Use ":memory:" for a
// throwaway store.
func Open(path string, log *slog.Logger) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Writer returns a writer whose Commit stores changes for doc.
func (s *Store) Writer(doc string) model.Writer {
	return &Writer{store: s, doc: doc}
}

// Load returns the last committed value of one scope.
func (s *Store) Load(ctx context.Context, doc string, scope int, kind model.ChangeKind) (sexpr.Value, bool, error) {
	var text string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM scopes WHERE doc = ? AND scope = ? AND kind = ?`,
		doc, scope, string(kind)).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load %s scope %d %s: %w", doc, scope, kind, err)
	}
	v, err := sexpr.Parse(text)
	if err != nil {
		return nil, false, fmt.Errorf("load %s scope %d %s: %w", doc, scope, kind, err)
	}
	return v, true, nil
}

// Commit is one row of a document's history.
type Commit struct {
	ID          int64     `json:"id"`
	Changes     int       `json:"changes"`
	CommittedAt time.Time `json:"committed_at"`
}

// History returns the most recent commits of doc, newest first.
func (s *Store) History(ctx context.Context, doc string, limit int) ([]Commit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, changes, committed_at FROM commits WHERE doc = ? ORDER BY id DESC LIMIT ?`,
		doc, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Commit
	for rows.Next() {
		var c Commit
		var at string
		if err := rows.Scan(&c.ID, &c.Changes, &at); err != nil {
			return nil, err
		}
		if c.CommittedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("commit %d: %w", c.ID, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// Writer collects changes through the embedded Batch and stores them in
// one transaction.
type Writer struct {
	model.Batch
	store *Store
	doc   string
}

// Commit stores every collected change atomically: either all scopes are
// replaced or none. A busy database yields a pipeline.RetryableError.
func (w *Writer) Commit(ctx context.Context) (model.CommitResult, error) {
	changes, err := w.Changes()
	if err != nil {
		return model.CommitResult{}, err
	}
	now := time.Now().UTC()

	err = w.store.tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO commits (doc, changes, committed_at) VALUES (?, ?, ?)`,
			w.doc, len(changes), now.Format(time.RFC3339Nano))
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for _, c := range changes {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO scopes (doc, scope, kind, value, commit_id) VALUES (?, ?, ?, ?, ?)
				 ON CONFLICT (doc, scope, kind) DO UPDATE SET value = excluded.value, commit_id = excluded.commit_id`,
				w.doc, c.Scope, string(c.Kind), sexpr.Format(c.Value), id)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isBusy(err) {
			return model.CommitResult{}, pipeline.Retryable(err)
		}
		return model.CommitResult{}, fmt.Errorf("commit %s: %w", w.doc, err)
	}
	if w.store.log != nil {
		w.store.log.Info("changes committed", "doc", w.doc, "changes", len(changes))
	}
	return model.CommitResult{Changes: len(changes), CommittedAt: now}, nil
}

func (s *Store) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

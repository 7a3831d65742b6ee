package pathstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/dgallion1/docmeta/internal/model"
	"github.com/dgallion1/docmeta/internal/sexpr"
)

// Keys are laid out as docmeta/<escaped doc>/<scope>/<kind>, with scope
// "shared" or a 0-based page number. Commits are recorded under
// docmeta/<escaped doc>/commits/<unix nanos>.
const keyPrefix = "docmeta"

// scopeValue is the stored node value.
type scopeValue struct {
	Sexpr     string    `json:"sexpr"`
	Committed time.Time `json:"committed_at"`
}

// Store keeps committed scopes in pathstore.
type Store struct {
	client *Client
	log    *slog.Logger
}

func NewStore(client *Client, log *slog.Logger) *Store {
	return &Store{client: client, log: log}
}

func docKey(doc string) string {
	return keyPrefix + "/" + url.PathEscape(doc)
}

func scopeKey(doc string, scope int, kind model.ChangeKind) string {
	s := "shared"
	if scope != model.Shared {
		s = strconv.Itoa(scope)
	}
	return docKey(doc) + "/" + s + "/" + string(kind)
}

// Writer returns a writer whose Commit stores changes for doc.
func (s *Store) Writer(doc string) model.Writer {
	return &Writer{store: s, doc: doc}
}

// Load returns the last committed value of one scope.
func (s *Store) Load(ctx context.Context, doc string, scope int, kind model.ChangeKind) (sexpr.Value, bool, error) {
	key := scopeKey(doc, scope, kind)
	node, err := s.client.GetNode(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if node == nil {
		return nil, false, nil
	}
	var sv scopeValue
	if err := json.Unmarshal(node.Value, &sv); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", key, err)
	}
	v, err := sexpr.Parse(sv.Sexpr)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, true, nil
}

// Forget deletes everything stored for doc.
func (s *Store) Forget(ctx context.Context, doc string) error {
	return s.client.DeleteNode(ctx, docKey(doc), true)
}

// Writer collects changes through the embedded Batch. Pathstore has no
// transactions: Commit writes every scope, then the commit record. A failed
// commit may leave some scopes written; retrying it writes the same values.
type Writer struct {
	model.Batch
	store *Store
	doc   string
}

func (w *Writer) Commit(ctx context.Context) (model.CommitResult, error) {
	changes, err := w.Changes()
	if err != nil {
		return model.CommitResult{}, err
	}
	now := time.Now().UTC()
	for _, c := range changes {
		req := NodeRequest{
			Value:  scopeValue{Sexpr: sexpr.Format(c.Value), Committed: now},
			Source: "docmeta",
		}
		if err := w.store.client.PutNode(ctx, scopeKey(w.doc, c.Scope, c.Kind), req); err != nil {
			return model.CommitResult{}, err
		}
	}
	record := NodeRequest{
		Value:  map[string]any{"changes": len(changes), "committed_at": now},
		Source: "docmeta",
	}
	key := fmt.Sprintf("%s/commits/%d", docKey(w.doc), now.UnixNano())
	if err := w.store.client.PutNode(ctx, key, record); err != nil {
		return model.CommitResult{}, err
	}
	if w.store.log != nil {
		w.store.log.Info("changes committed to pathstore", "doc", w.doc, "changes", len(changes))
	}
	return model.CommitResult{Changes: len(changes), CommittedAt: now}, nil
}

// History lists the commit records of doc.
func (s *Store) History(ctx context.Context, doc string, limit int) ([]ListChildrenResponse, error) {
	return s.client.ListChildren(ctx, docKey(doc)+"/commits", limit)
}

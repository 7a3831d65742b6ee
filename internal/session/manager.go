package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/docmeta/internal/editor"
	"github.com/dgallion1/docmeta/internal/model"
)

var (
	// ErrNotFound is returned for an unknown session id.
	ErrNotFound = errors.New("session not found")

	// ErrOutsideRoot is returned for paths that escape the document root.
	ErrOutsideRoot = errors.New("path outside document root")
)

// Opener builds the accessor for a document path.
type Opener func(ctx context.Context, path string) (model.Accessor, error)

// Manager tracks open sessions by id.
type Manager struct {
	root   string
	poll   time.Duration
	open   Opener
	store  Store
	tasks  Submitter
	editor editor.Editor
	log    *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager. Relative paths passed to Open are resolved
// against root; an empty root accepts any path, relative to the working
// directory. Sessions key their stored changes by the resolved path.
func NewManager(root string, poll time.Duration, open Opener, store Store, tasks Submitter, ed editor.Editor, log *slog.Logger) *Manager {
	return &Manager{
		root:     root,
		poll:     poll,
		open:     open,
		store:    store,
		tasks:    tasks,
		editor:   ed,
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// Resolve maps a request path to a file path under the document root.
func (m *Manager) Resolve(path string) (string, error) {
	if m.root == "" {
		return filepath.Abs(path)
	}
	root, err := filepath.Abs(m.root)
	if err != nil {
		return "", err
	}
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(root, path)
	}
	full = filepath.Clean(full)
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", path, ErrOutsideRoot)
	}
	return full, nil
}

// Open starts a session on path.
func (m *Manager) Open(ctx context.Context, path string) (*Session, error) {
	full, err := m.Resolve(path)
	if err != nil {
		return nil, err
	}
	acc, err := m.open(ctx, full)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	s := New(full, acc, m.poll, m.store, m.tasks, m.editor, m.log)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	s.log.Info("session opened")
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Close closes and forgets a session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.Close()
	return nil
}

// List returns the status of every open session, oldest first.
func (m *Manager) List() []Status {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	out := make([]Status, 0, len(all))
	for _, s := range all {
		out = append(out, s.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}

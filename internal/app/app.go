// Package app wires configuration into the running pieces shared by the
// server and the CLI: the sidecar store, the task pipeline and the session
// manager.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgallion1/docmeta/internal/config"
	"github.com/dgallion1/docmeta/internal/editor"
	"github.com/dgallion1/docmeta/internal/model"
	"github.com/dgallion1/docmeta/internal/pathstore"
	"github.com/dgallion1/docmeta/internal/pipeline"
	"github.com/dgallion1/docmeta/internal/session"
	"github.com/dgallion1/docmeta/internal/source"
	"github.com/dgallion1/docmeta/internal/store"
)

// Backend persists committed changes and serves them back to new sessions.
type Backend interface {
	session.Store
	source.Snapshots
}

type App struct {
	Sessions *session.Manager
	Tasks    *pipeline.Orchestrator
	Backend  Backend

	closeBackend func()
	log          *slog.Logger
}

// OpenBackend opens the sidecar store selected by cfg.Store.
func OpenBackend(cfg config.Config, log *slog.Logger) (Backend, func(), error) {
	switch cfg.Store {
	case "sqlite":
		st, err := store.Open(cfg.DBPath, log)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	case "pathstore":
		client := pathstore.NewClient(cfg.PathstoreURL, cfg.PathstoreAPIKey)
		return pathstore.NewStore(client, log), client.Close, nil
	}
	return nil, nil, fmt.Errorf("unsupported store %q", cfg.Store)
}

// New opens the backend and starts the task workers. ed may be nil when no
// external editing is wanted.
func New(ctx context.Context, cfg config.Config, ed editor.Editor, log *slog.Logger) (*App, error) {
	backend, closeBackend, err := OpenBackend(cfg, log)
	if err != nil {
		return nil, err
	}

	orch := pipeline.NewOrchestrator(cfg, log)
	orch.Start(ctx)

	open := func(ctx context.Context, path string) (model.Accessor, error) {
		src, err := source.Load(path)
		if err != nil {
			return nil, err
		}
		return source.NewOverlay(src, backend, path), nil
	}
	mgr := session.NewManager(cfg.DocumentRoot, cfg.AcquirePoll, open, backend, orch, ed, log)

	log.Info("app ready", "store", cfg.Store, "workers", cfg.WorkerCount, "document_root", cfg.DocumentRoot)
	return &App{
		Sessions:     mgr,
		Tasks:        orch,
		Backend:      backend,
		closeBackend: closeBackend,
		log:          log,
	}, nil
}

// Close closes every session, drains the workers and closes the backend.
func (a *App) Close() {
	a.Sessions.CloseAll()
	a.Tasks.Stop()
	a.closeBackend()
}

package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/docmeta/internal/config"
	"github.com/dgallion1/docmeta/internal/pipeline"
	"github.com/dgallion1/docmeta/internal/session"
)

// Server is the HTTP API server for docmeta.
type Server struct {
	router   chi.Router
	sessions *session.Manager
	tasks    *pipeline.Orchestrator
	log      *slog.Logger
	cfg      config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(sessions *session.Manager, tasks *pipeline.Orchestrator, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		sessions: sessions,
		tasks:    tasks,
		log:      log,
		cfg:      cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))
		r.Use(AcquireTimeout(s.cfg.AcquireTimeout))

		r.Get("/api/sessions", s.handleListSessions)
		r.Post("/api/sessions", s.handleOpenSession)

		r.Route("/api/sessions/{sid}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleCloseSession)
			r.Post("/revert", s.handleRevert)
			r.Post("/save", s.handleSave)

			r.Get("/outline", s.handleGetOutline)
			r.Delete("/outline", s.handleRemoveOutline)
			r.Get("/outline/plain", s.handleGetOutlinePlain)
			r.Put("/outline/plain", s.handlePutOutlinePlain)
			r.Post("/outline/bookmarks", s.handleAddBookmark)
			r.Patch("/outline/nodes/{nid}", s.handlePatchEntry)
			r.Delete("/outline/nodes/{nid}", s.handleDeleteEntry)
			r.Post("/outline/nodes/{nid}/children", s.handleAddEntry)
			r.Post("/outline/nodes/{nid}/move", s.handleMoveEntry)
			r.Get("/outline.pdf", s.handleOutlinePDF)

			r.Get("/pages/{page}/text", s.handleGetText)
			r.Get("/pages/{page}/text/plain", s.handleGetTextPlain)
			r.Put("/pages/{page}/text/plain", s.handlePutTextPlain)
			r.Patch("/pages/{page}/text/nodes/{nid}", s.handlePatchZone)
			r.Post("/pages/{page}/text/strip", s.handleStrip)

			r.Get("/pages/{page}/annotations", s.handleGetAnnotations)
		})

		r.Get("/api/tasks/{tid}", s.handleGetTask)
		r.Get("/api/stats/tasks", s.handleTaskStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

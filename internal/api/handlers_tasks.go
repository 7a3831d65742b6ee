package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task := s.tasks.GetTask(chi.URLParam(r, "tid"))
	if task == nil {
		jsonError(w, "task not found", http.StatusNotFound)
		return
	}
	// Apply the result to its session so a finished save shows up clean.
	if sess, err := s.sessions.Get(task.SessionID); err == nil {
		sess.Pump()
	}
	writeJSON(w, http.StatusOK, task.Snapshot())
}

func (s *Server) handleTaskStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"queue_depth": s.tasks.QueueDepth(),
		"sessions":    len(s.sessions.List()),
		"stats":       s.tasks.Stats(),
	})
}

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/docmeta/internal/model"
	"github.com/dgallion1/docmeta/internal/parser"
	"github.com/dgallion1/docmeta/internal/session"
)

type openRequest struct {
	Path string `json:"path"`
}

type sessionResponse struct {
	session.Status
	PageCount int `json:"page_count"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.sessions.List()})
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		jsonError(w, "path is required", http.StatusBadRequest)
		return
	}
	if !parser.IsSupportedExtension(req.Path) {
		jsonError(w, "unsupported file type: "+req.Path, http.StatusBadRequest)
		return
	}
	sess, err := s.sessions.Open(r.Context(), req.Path)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Status())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var pages int
	err := sess.Do(func(d *model.Document) error {
		var err error
		pages, err = d.PageCount(r.Context())
		return err
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Status: sess.Status(), PageCount: pages})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(chi.URLParam(r, "sid")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRevert(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if err := sess.Revert(); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Status())
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	task, err := sess.Save()
	if errors.Is(err, session.ErrSavePending) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":    err.Error(),
			"task_id":  task.ID,
			"poll_url": fmt.Sprintf("/api/tasks/%s", task.ID),
		})
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id":  task.ID,
		"status":   task.Snapshot().Status,
		"poll_url": fmt.Sprintf("/api/tasks/%s", task.ID),
	})
}

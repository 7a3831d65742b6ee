package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/docmeta/internal/doctree"
	"github.com/dgallion1/docmeta/internal/mangle"
	"github.com/dgallion1/docmeta/internal/model"
	"github.com/dgallion1/docmeta/internal/parser"
	"github.com/dgallion1/docmeta/internal/pipeline"
	"github.com/dgallion1/docmeta/internal/session"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var se *model.StructureError
	switch {
	case errors.As(err, &se):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, doctree.ErrNotFound),
		errors.Is(err, model.ErrPageRange),
		errors.Is(err, model.ErrNoAnnotation):
		return http.StatusNotFound
	case errors.Is(err, session.ErrOutsideRoot):
		return http.StatusForbidden
	case errors.Is(err, session.ErrClosed):
		return http.StatusGone
	case errors.Is(err, session.ErrSavePending),
		errors.Is(err, session.ErrStaleEdit),
		errors.Is(err, mangle.ErrCharacterZoneFound),
		errors.Is(err, mangle.ErrLengthChanged),
		errors.Is(err, doctree.ErrCycle),
		errors.Is(err, doctree.ErrAttached),
		errors.Is(err, model.ErrNoTextLayer),
		errors.Is(err, parser.ErrEmptyOutline):
		return http.StatusConflict
	case errors.Is(err, doctree.ErrRoot),
		errors.Is(err, doctree.ErrNoChildren),
		errors.Is(err, doctree.ErrNoText),
		errors.Is(err, doctree.ErrNoURI),
		errors.Is(err, doctree.ErrNoGeometry),
		errors.Is(err, doctree.ErrBadGeometry),
		errors.Is(err, doctree.ErrKindMismatch),
		errors.Is(err, model.ErrUnknownZone):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrQueueFull),
		errors.Is(err, pipeline.ErrStopped),
		errors.Is(err, model.ErrNotAvailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	jsonError(w, err.Error(), code)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		jsonError(w, "invalid json body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// lookupSession looks up the {sid} URL parameter.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "sid"))
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return sess, true
}

func nodeParam(w http.ResponseWriter, r *http.Request) (doctree.NodeID, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "nid"))
	if err != nil {
		jsonError(w, "invalid node id", http.StatusBadRequest)
		return doctree.None, false
	}
	return doctree.NodeID(n), true
}

// pageParam reads the 1-based {page} URL parameter as a 0-based index.
// "shared" selects the document-wide scope when allowShared is set.
func pageParam(w http.ResponseWriter, r *http.Request, allowShared bool) (int, bool) {
	raw := chi.URLParam(r, "page")
	if raw == "shared" && allowShared {
		return model.Shared, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		jsonError(w, "invalid page: "+raw, http.StatusBadRequest)
		return 0, false
	}
	return n - 1, true
}

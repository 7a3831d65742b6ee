package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/docmeta/internal/doctree"
	"github.com/dgallion1/docmeta/internal/model"
	"github.com/dgallion1/docmeta/internal/parser"
	"github.com/dgallion1/docmeta/internal/sexpr"
	"github.com/dgallion1/docmeta/internal/source"
)

type outlineResponse struct {
	Dirty bool      `json:"dirty"`
	Raw   string    `json:"sexpr"`
	Tree  *treeNode `json:"tree"`
}

type entryRequest struct {
	Text *string `json:"text"`
	URI  *string `json:"uri"`
}

type moveRequest struct {
	Parent doctree.NodeID `json:"parent"`
}

type bookmarkRequest struct {
	Page int `json:"page"`
}

// withOutline runs fn on the session's outline and replies with the
// resulting outline, or 204 when fn reports that nothing changed.
func (s *Server) withOutline(w http.ResponseWriter, r *http.Request, code int, fn func(o *model.Outline) error) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var resp outlineResponse
	err := sess.Do(func(d *model.Document) error {
		o, err := d.Outline(r.Context())
		if err != nil {
			return err
		}
		if fn != nil {
			if err := fn(o); err != nil {
				return err
			}
		}
		resp = outlineResponse{Dirty: o.Dirty(), Raw: sexpr.Format(o.Raw()), Tree: outlineTree(o)}
		return nil
	})
	if errors.Is(err, model.ErrNothingChanged) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleGetOutline(w http.ResponseWriter, r *http.Request) {
	s.withOutline(w, r, http.StatusOK, nil)
}

func (s *Server) handleRemoveOutline(w http.ResponseWriter, r *http.Request) {
	s.withOutline(w, r, http.StatusOK, func(o *model.Outline) error {
		o.Remove()
		return nil
	})
}

func (s *Server) handleAddBookmark(w http.ResponseWriter, r *http.Request) {
	var req bookmarkRequest
	if !decode(w, r, &req) {
		return
	}
	s.withOutline(w, r, http.StatusCreated, func(o *model.Outline) error {
		// Pages are 1-based on the wire.
		_, _, err := o.AddBookmark(req.Page - 1)
		return err
	})
}

func (s *Server) handlePatchEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeParam(w, r)
	if !ok {
		return
	}
	var req entryRequest
	if !decode(w, r, &req) {
		return
	}
	s.withOutline(w, r, http.StatusOK, func(o *model.Outline) error {
		// Both fields apply or neither does.
		kind, err := o.Kind(id)
		if err != nil {
			return err
		}
		if kind != doctree.KindEntry && (req.Text != nil || req.URI != nil) {
			if req.Text != nil {
				return doctree.ErrNoText
			}
			return doctree.ErrNoURI
		}
		if req.Text != nil {
			if _, err := o.SetText(id, *req.Text); err != nil {
				return err
			}
		}
		if req.URI != nil {
			if _, err := o.SetURI(id, *req.URI); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Server) handleAddEntry(w http.ResponseWriter, r *http.Request) {
	parent, ok := nodeParam(w, r)
	if !ok {
		return
	}
	var req entryRequest
	if !decode(w, r, &req) {
		return
	}
	title := model.NoTitle
	if req.Text != nil {
		title = *req.Text
	}
	var uri string
	if req.URI != nil {
		uri = *req.URI
	}
	s.withOutline(w, r, http.StatusCreated, func(o *model.Outline) error {
		_, _, err := o.AddEntry(parent, title, uri)
		return err
	})
}

func (s *Server) handleMoveEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeParam(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if !decode(w, r, &req) {
		return
	}
	s.withOutline(w, r, http.StatusOK, func(o *model.Outline) error {
		_, err := o.Move(id, req.Parent)
		return err
	})
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeParam(w, r)
	if !ok {
		return
	}
	s.withOutline(w, r, http.StatusOK, func(o *model.Outline) error {
		_, err := o.Delete(id)
		return err
	})
}

func (s *Server) handleGetOutlinePlain(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	err := sess.Do(func(d *model.Document) error {
		o, err := d.Outline(r.Context())
		if err != nil {
			return err
		}
		return o.ExportPlaintext(&buf)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) handlePutOutlinePlain(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes))
	if err != nil {
		jsonError(w, "failed to read body: "+err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	s.withOutline(w, r, http.StatusOK, func(o *model.Outline) error {
		_, err := o.ImportPlaintext(bytes.NewReader(body))
		return err
	})
}

// handleOutlinePDF streams a copy of the source PDF carrying the current
// outline as its bookmarks.
func (s *Server) handleOutlinePDF(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if !strings.EqualFold(filepath.Ext(sess.Path), ".pdf") {
		jsonError(w, "outline export needs a pdf source", http.StatusBadRequest)
		return
	}
	var bms []*parser.Bookmark
	err := sess.Do(func(d *model.Document) error {
		o, err := d.Outline(r.Context())
		if err != nil {
			return err
		}
		bms = source.BookmarksFromOutline(o.Raw())
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	f, err := os.Open(sess.Path)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer f.Close()

	var out bytes.Buffer
	if err := parser.WriteOutline(f, &out, bms); err != nil {
		s.fail(w, r, err)
		return
	}
	name := strings.TrimSuffix(filepath.Base(sess.Path), filepath.Ext(sess.Path)) + "-outline.pdf"
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Write(out.Bytes())
}

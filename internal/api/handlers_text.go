package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/dgallion1/docmeta/internal/mangle"
	"github.com/dgallion1/docmeta/internal/model"
	"github.com/dgallion1/docmeta/internal/sexpr"
)

type textResponse struct {
	Page  int       `json:"page"`
	Dirty bool      `json:"dirty"`
	Raw   string    `json:"sexpr"`
	Tree  *treeNode `json:"tree,omitempty"`
}

type zoneRequest struct {
	Text *string `json:"text"`
	X    *int    `json:"x"`
	Y    *int    `json:"y"`
	W    *int    `json:"w"`
	H    *int    `json:"h"`
}

type stripRequest struct {
	Zone string `json:"zone"`
}

// withText runs fn on the text layer of the {page} parameter and replies
// with the resulting layer, or 204 when fn reports that nothing changed.
func (s *Server) withText(w http.ResponseWriter, r *http.Request, fn func(p *model.PageText) error) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	n, ok := pageParam(w, r, false)
	if !ok {
		return
	}
	var resp textResponse
	err := sess.Do(func(d *model.Document) error {
		p, err := d.PageText(r.Context(), n)
		if err != nil {
			return err
		}
		if fn != nil {
			if err := fn(p); err != nil {
				return err
			}
		}
		resp = textResponse{Page: n + 1, Dirty: p.Dirty(), Raw: sexpr.Format(p.Raw()), Tree: textTree(p)}
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
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetText(w http.ResponseWriter, r *http.Request) {
	s.withText(w, r, nil)
}

func (s *Server) handleGetTextPlain(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	n, ok := pageParam(w, r, false)
	if !ok {
		return
	}
	var buf bytes.Buffer
	err := sess.Do(func(d *model.Document) error {
		p, err := d.PageText(r.Context(), n)
		if err != nil {
			return err
		}
		if !p.HasLayer() {
			return model.ErrNoTextLayer
		}
		return mangle.Export(p.Raw(), &buf)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(buf.Bytes())
}

// handlePutTextPlain applies an edited plaintext rendition of the page, one
// line per text unit, as produced by the GET route.
func (s *Server) handlePutTextPlain(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes))
	if err != nil {
		jsonError(w, "failed to read body: "+err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	s.withText(w, r, func(p *model.PageText) error {
		if !p.HasLayer() {
			return model.ErrNoTextLayer
		}
		v, err := mangle.Import(p.Raw(), bytes.NewReader(body))
		if err != nil {
			return err
		}
		_, err = p.SetRaw(v)
		return err
	})
}

func (s *Server) handlePatchZone(w http.ResponseWriter, r *http.Request) {
	id, ok := nodeParam(w, r)
	if !ok {
		return
	}
	var req zoneRequest
	if !decode(w, r, &req) {
		return
	}
	s.withText(w, r, func(p *model.PageText) error {
		if req.X != nil || req.Y != nil || req.W != nil || req.H != nil {
			rect, err := p.Rect(id)
			if err != nil {
				return err
			}
			set := func(dst *int, v *int) {
				if v != nil {
					*dst = *v
				}
			}
			set(&rect.X, req.X)
			set(&rect.Y, req.Y)
			set(&rect.W, req.W)
			set(&rect.H, req.H)
			if _, err := p.SetRect(id, rect); err != nil {
				return err
			}
		}
		if req.Text != nil {
			if _, err := p.SetText(id, *req.Text); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Server) handleStrip(w http.ResponseWriter, r *http.Request) {
	var req stripRequest
	if !decode(w, r, &req) {
		return
	}
	s.withText(w, r, func(p *model.PageText) error {
		_, err := p.Strip(req.Zone)
		return err
	})
}

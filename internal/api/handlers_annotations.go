package api

import (
	"net/http"

	"github.com/dgallion1/docmeta/internal/model"
	"github.com/dgallion1/docmeta/internal/sexpr"
)

type mapAreaJSON struct {
	ID model.AnnotationID `json:"id"`
	model.MapArea
	Shape string `json:"shape"`
}

type annotationsResponse struct {
	Page     any                   `json:"page"`
	Dirty    bool                  `json:"dirty"`
	Raw      string                `json:"sexpr"`
	Metadata []model.MetadataEntry `json:"metadata"`
	MapAreas []mapAreaJSON         `json:"mapareas"`
}

func (s *Server) handleGetAnnotations(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	n, ok := pageParam(w, r, true)
	if !ok {
		return
	}
	var resp annotationsResponse
	err := sess.Do(func(d *model.Document) error {
		a, err := d.PageAnnotations(r.Context(), n)
		if err != nil {
			return err
		}
		resp = annotationsResponse{
			Dirty:    a.Dirty(),
			Raw:      sexpr.Format(a.Raw()),
			Metadata: a.Metadata(),
			MapAreas: []mapAreaJSON{},
		}
		for _, id := range a.MapAreas() {
			m, err := a.MapArea(id)
			if err != nil {
				return err
			}
			resp.MapAreas = append(resp.MapAreas, mapAreaJSON{ID: id, MapArea: m, Shape: sexpr.Format(m.Shape)})
		}
		return nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if n == model.Shared {
		resp.Page = "shared"
	} else {
		resp.Page = n + 1
	}
	writeJSON(w, http.StatusOK, resp)
}

package parser

import (
	"errors"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrEmptyOutline is returned when there is no bookmark with a page target
// to write.
var ErrEmptyOutline = errors.New("outline has no page bookmarks")

// WriteOutline copies the PDF in src to w with its outline replaced by
// bookmarks. Bookmarks without a page target inherit their parent's page;
// top-level ones without a target are dropped.
func WriteOutline(src io.ReadSeeker, w io.Writer, bookmarks []*Bookmark) error {
	bms := toPDFBookmarks(bookmarks, 0)
	if len(bms) == 0 {
		return ErrEmptyOutline
	}
	if err := api.AddBookmarks(src, w, bms, true, model.NewDefaultConfiguration()); err != nil {
		return fmt.Errorf("write bookmarks: %w", err)
	}
	return nil
}

func toPDFBookmarks(bookmarks []*Bookmark, parentPage int) []pdfcpu.Bookmark {
	var out []pdfcpu.Bookmark
	for _, b := range bookmarks {
		page := b.Page + 1
		if b.Page < 0 {
			page = parentPage
		}
		if page < 1 {
			continue
		}
		out = append(out, pdfcpu.Bookmark{
			Title:    b.Title,
			PageFrom: page,
			Kids:     toPDFBookmarks(b.Children, page),
		})
	}
	return out
}

// Package source serves document data to the models: an Accessor over a file
// parsed in the background, and an overlay that prefers previously committed
// edits.
package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dgallion1/docmeta/internal/model"
	"github.com/dgallion1/docmeta/internal/parser"
	"github.com/dgallion1/docmeta/internal/sexpr"
)

// Source is an Accessor over one parsed file. Parsing runs in the
// background; until it finishes the Acquire methods report
// model.ErrNotAvailable and PageCount blocks.
type Source struct {
	path  string
	ready chan struct{}

	mu     sync.Mutex
	layout *parser.Document
	err    error
}

// Load opens path with the parser for its extension.
func Load(path string) (*Source, error) {
	p, err := parser.ForFile(path)
	if err != nil {
		return nil, err
	}
	return Open(path, p), nil
}

// Open starts parsing path with p.
func Open(path string, p parser.Parser) *Source {
	s := &Source{path: path, ready: make(chan struct{})}
	go func() {
		doc, err := parseFile(path, p)
		s.finish(doc, err)
	}()
	return s
}

// FromLayout wraps an already parsed document.
func FromLayout(doc *parser.Document) *Source {
	s := &Source{ready: make(chan struct{})}
	s.finish(doc, nil)
	return s
}

func parseFile(path string, p parser.Parser) (*parser.Document, error) {
	if pp, ok := p.(*parser.PDFParser); ok {
		base := filepath.Base(path)
		return pp.ParseFile(path, strings.TrimSuffix(base, filepath.Ext(base)))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return p.Parse(f, path)
}

func (s *Source) finish(doc *parser.Document, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		err = fmt.Errorf("parse %s: %w", s.path, err)
	} else if len(doc.Pages) == 0 {
		// Every document has at least one page.
		doc.Pages = []*parser.Page{{Width: 612, Height: 792}}
	}
	s.layout, s.err = doc, err
	close(s.ready)
}

// Path returns the file path, empty for FromLayout sources.
func (s *Source) Path() string { return s.path }

// Layout blocks until parsing finishes.
func (s *Source) Layout(ctx context.Context) (*parser.Document, error) {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layout, s.err
}

// current returns the parsed document without blocking.
func (s *Source) current() (*parser.Document, error) {
	select {
	case <-s.ready:
	default:
		return nil, model.ErrNotAvailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layout, s.err
}

func (s *Source) PageCount(ctx context.Context) (int, error) {
	doc, err := s.Layout(ctx)
	if err != nil {
		return 0, err
	}
	return len(doc.Pages), nil
}

func (s *Source) AcquireOutline(context.Context) (sexpr.Value, error) {
	doc, err := s.current()
	if err != nil {
		return nil, err
	}
	return OutlineValue(doc.Bookmarks), nil
}

func (s *Source) AcquirePageText(_ context.Context, n int) (sexpr.Value, error) {
	doc, err := s.current()
	if err != nil {
		return nil, err
	}
	if n < 0 || n >= len(doc.Pages) {
		return nil, fmt.Errorf("page %d of %d: %w", n, len(doc.Pages), model.ErrPageRange)
	}
	return PageTextValue(doc.Pages[n]), nil
}

// Parsed pages carry no annotations of their own.
func (s *Source) AcquirePageAnnotations(_ context.Context, n int) (sexpr.Value, error) {
	doc, err := s.current()
	if err != nil {
		return nil, err
	}
	if n < 0 || n >= len(doc.Pages) {
		return nil, fmt.Errorf("page %d of %d: %w", n, len(doc.Pages), model.ErrPageRange)
	}
	return sexpr.List{}, nil
}

// AcquireSharedAnnotations returns the document title as metadata.
func (s *Source) AcquireSharedAnnotations(context.Context) (sexpr.Value, error) {
	doc, err := s.current()
	if err != nil {
		return nil, err
	}
	if doc.Title == "" {
		return sexpr.List{}, nil
	}
	return sexpr.List{
		sexpr.List{sexpr.Symbol("metadata"), sexpr.List{sexpr.Symbol("title"), sexpr.String(doc.Title)}},
	}, nil
}

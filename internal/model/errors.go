package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotAvailable is returned by an Accessor while the requested data is
	// still being decoded. Callers wait and retry.
	ErrNotAvailable = errors.New("data not available yet")

	// ErrNoTextLayer indicates an edit on a page without a text layer.
	ErrNoTextLayer = errors.New("page has no text layer")

	// ErrNothingChanged is returned by imports whose result equals the
	// current tree, so callers can skip the write.
	ErrNothingChanged = errors.New("nothing changed")

	// ErrInvalidObserver is returned when subscribing a nil observer.
	ErrInvalidObserver = errors.New("invalid observer")

	// ErrUnknownZone indicates a zone type outside the text zone hierarchy.
	ErrUnknownZone = errors.New("unknown zone type")

	// ErrPageRange indicates a page index outside the document.
	ErrPageRange = errors.New("page index out of range")

	// ErrNoAnnotation indicates an unknown annotation id or metadata key.
	ErrNoAnnotation = errors.New("no such annotation")

	// ErrNoCursor indicates a writer call before SelectPage or SelectShared.
	ErrNoCursor = errors.New("writer has no page selected")
)

// StructureError reports malformed input to a parse or plaintext import.
// Path is the index path to the offending element inside the parsed value;
// Line is the 1-based line number for plaintext input.
type StructureError struct {
	Path     []int
	Line     int
	Fragment string
	Reason   string
}

func (e *StructureError) Error() string {
	var sb strings.Builder
	sb.WriteString("structure error")
	if e.Line > 0 {
		fmt.Fprintf(&sb, " at line %d", e.Line)
	}
	if e.Path != nil {
		fmt.Fprintf(&sb, " at %v", e.Path)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Reason)
	if e.Fragment != "" {
		fmt.Fprintf(&sb, " in %s", e.Fragment)
	}
	return sb.String()
}

func pathOf(path []int, i int) []int {
	out := make([]int, len(path)+1)
	copy(out, path)
	out[len(path)] = i
	return out
}

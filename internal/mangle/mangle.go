// Package mangle converts a page text layer to plain lines for editing in
// an external editor, and folds the edited lines back into the layer.
package mangle

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/dgallion1/docmeta/internal/model"
	"github.com/dgallion1/docmeta/internal/sexpr"
)

var (
	// ErrCharacterZoneFound is returned by Import when the layer has zones
	// below word granularity, which the line format cannot carry.
	ErrCharacterZoneFound = errors.New("text layer has character zones")

	// ErrLengthChanged is returned by Import when the number of lines
	// differs from the number exported.
	ErrLengthChanged = errors.New("number of lines changed")

	// ErrNothingChanged is returned by Import when every line is unchanged
	// after normalization.
	ErrNothingChanged = model.ErrNothingChanged
)

const tabWidth = 8

// unit is one exported line: a text leaf, or a line zone whose words are
// joined with spaces.
type unit struct {
	path []int
	text string
}

// Export writes one line per text unit of the layer v.
func Export(v sexpr.Value, w io.Writer) error {
	l, ok := v.(sexpr.List)
	if !ok || len(l) == 0 {
		return model.ErrNoTextLayer
	}
	units, err := collect(l)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	for _, u := range units {
		bw.WriteString(u.text)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// Import reads edited lines for the layer v and returns the updated layer.
// Changed line zones collapse into a single leaf holding the new text.
func Import(v sexpr.Value, r io.Reader) (sexpr.Value, error) {
	l, ok := v.(sexpr.List)
	if !ok || len(l) == 0 {
		return nil, model.ErrNoTextLayer
	}
	if hasCharZones(l) {
		return nil, ErrCharacterZoneFound
	}
	units, err := collect(l)
	if err != nil {
		return nil, err
	}

	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		lines = append(lines, Normalize(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(lines) != len(units) {
		return nil, fmt.Errorf("%w: exported %d, got %d", ErrLengthChanged, len(units), len(lines))
	}

	out := sexpr.Clone(l).(sexpr.List)
	changed := false
	for i, u := range units {
		if Normalize(u.text) == lines[i] {
			continue
		}
		changed = true
		out = replace(out, u.path, lines[i])
	}
	if !changed {
		return nil, ErrNothingChanged
	}
	return out, nil
}

// Normalize expands tabs, trims trailing whitespace and applies NFC, the
// comparison form of an edited line.
func Normalize(s string) string {
	s = strings.TrimSuffix(s, "\r")
	s = expandTabs(s)
	s = strings.TrimRightFunc(s, unicode.IsSpace)
	return norm.NFC.String(s)
}

func collect(l sexpr.List) ([]unit, error) {
	var units []unit
	var walk func(z sexpr.List, path []int) error
	walk = func(z sexpr.List, path []int) error {
		if len(z) < 5 {
			return &model.StructureError{Path: path, Fragment: sexpr.Describe(z), Reason: "text zone must be a list of type, x0, y0, x1, y1 and contents"}
		}
		if s, ok := leafText(z); ok {
			units = append(units, unit{path: path, text: oneLine(s)})
			return nil
		}
		if zoneType(z) == "line" {
			units = append(units, unit{path: path, text: oneLine(joinWords(z))})
			return nil
		}
		for i, c := range z[5:] {
			cl, ok := c.(sexpr.List)
			if !ok {
				return &model.StructureError{Path: append(append([]int{}, path...), i+5), Fragment: sexpr.Describe(c), Reason: "text zone child must be a list"}
			}
			if err := walk(cl, append(append([]int{}, path...), i+5)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(l, []int{}); err != nil {
		return nil, err
	}
	return units, nil
}

func joinWords(z sexpr.List) string {
	var words []string
	for _, c := range z[5:] {
		cl, ok := c.(sexpr.List)
		if !ok || len(cl) < 5 {
			continue
		}
		if s, ok := leafText(cl); ok {
			words = append(words, s)
			continue
		}
		if zoneType(cl) != "char" {
			words = append(words, joinWords(cl))
		}
	}
	return strings.Join(words, " ")
}

func hasCharZones(z sexpr.List) bool {
	if zoneType(z) == "char" {
		return true
	}
	if len(z) < 5 {
		return false
	}
	for _, c := range z[5:] {
		if cl, ok := c.(sexpr.List); ok && hasCharZones(cl) {
			return true
		}
	}
	return false
}

// replace turns the zone at path into a leaf holding text and returns the
// possibly new root.
func replace(root sexpr.List, path []int, text string) sexpr.List {
	z := root
	var parent sexpr.List
	idx := -1
	for _, i := range path {
		parent, idx = z, i
		z = z[i].(sexpr.List)
	}
	leaf := append(sexpr.List{}, z[:5]...)
	leaf = append(leaf, sexpr.String(text))
	if parent == nil {
		return leaf
	}
	parent[idx] = leaf
	return root
}

func leafText(z sexpr.List) (string, bool) {
	if len(z) != 6 {
		return "", false
	}
	s, ok := z[5].(sexpr.String)
	return string(s), ok
}

func zoneType(z sexpr.List) string {
	if len(z) == 0 {
		return ""
	}
	s, _ := z[0].(sexpr.Symbol)
	return string(s)
}

func oneLine(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}

func expandTabs(s string) string {
	if !strings.Contains(s, "\t") {
		return s
	}
	var sb strings.Builder
	col := 0
	for _, r := range s {
		if r == '\t' {
			n := tabWidth - col%tabWidth
			sb.WriteString(strings.Repeat(" ", n))
			col += n
			continue
		}
		sb.WriteRune(r)
		col++
	}
	return sb.String()
}

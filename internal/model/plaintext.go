package model

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/dgallion1/docmeta/internal/doctree"
	"github.com/dgallion1/docmeta/internal/sexpr"
)

// IndentUnit is one level of depth in the outline plaintext format.
const IndentUnit = "    "

const tabWidth = 8

// ExportPlaintext writes one line per entry as "<indent><uri> <title>",
// indented one unit per level below the root. Line breaks inside a title are
// written as spaces.
func (o *Outline) ExportPlaintext(w io.Writer) error {
	bw := bufio.NewWriter(w)
	o.tree.Walk(o.Root(), func(id doctree.NodeID, depth int) bool {
		if id == o.Root() {
			return true
		}
		uri, _ := o.tree.URI(id)
		title, _ := o.tree.Text(id)
		bw.WriteString(strings.Repeat(IndentUnit, depth-1))
		bw.WriteString(uri)
		bw.WriteByte(' ')
		bw.WriteString(oneLine(title))
		bw.WriteByte('\n')
		return true
	})
	return bw.Flush()
}

// ImportPlaintext replaces the outline with one read back from the plaintext
// format. It returns ErrNothingChanged when the result equals the current
// outline, and a *StructureError for bad indentation or a line without a
// uri/title separator. On error the outline is unchanged.
//
// An entry whose title reads the same as the current title at the same
// position keeps the current title, so line breaks and the Unicode form of
// untouched titles survive.
func (o *Outline) ImportPlaintext(r io.Reader) (doctree.Event, error) {
	v, err := ParseOutlinePlaintext(r, o.tree.Type(o.Root()))
	if err != nil {
		return doctree.Event{}, err
	}
	cur := o.Raw()
	keepTitles(v.(sexpr.List), cur.(sexpr.List), 1)
	if sexpr.Equal(v, cur) {
		return doctree.Event{}, ErrNothingChanged
	}
	return o.SetRaw(v)
}

func keepTitles(in, cur sexpr.List, from int) {
	for i := from; i < len(in) && i < len(cur); i++ {
		e, ok := in[i].(sexpr.List)
		c, cok := cur[i].(sexpr.List)
		if !ok || !cok || len(e) < 2 || len(c) < 2 {
			continue
		}
		title, _ := e[0].(sexpr.String)
		if old, ok := c[0].(sexpr.String); ok && plainTitle(string(old)) == plainTitle(string(title)) {
			e[0] = old
		}
		keepTitles(e, c, 2)
	}
}

// plainTitle is the form a title takes after a plaintext round trip.
func plainTitle(s string) string {
	return norm.NFC.String(oneLine(s))
}

func oneLine(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}

type plainEntry struct {
	title, uri string
	kids       []*plainEntry
}

func (e *plainEntry) value() sexpr.Value {
	out := sexpr.List{sexpr.String(e.title), sexpr.String(e.uri)}
	for _, k := range e.kids {
		out = append(out, k.value())
	}
	return out
}

// ParseOutlinePlaintext converts the plaintext format into a serialized
// outline with the given root type. Blank lines are skipped; tabs in the
// indentation expand to 8 columns; titles are NFC-normalized.
func ParseOutlinePlaintext(r io.Reader, rootType string) (sexpr.Value, error) {
	if rootType == "" {
		rootType = string(EmptyOutline[0].(sexpr.Symbol))
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	root := &plainEntry{}
	// stack[0] is the root; stack[d+1] is the open entry at depth d.
	stack := []*plainEntry{root}
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		body := strings.TrimLeft(line, " \t")
		indent := len(expandTabs(line[:len(line)-len(body)]))
		if indent%len(IndentUnit) != 0 {
			return nil, lineError(lineNo, line, "indentation is not a multiple of 4 spaces")
		}
		depth := indent / len(IndentUnit)
		if depth > len(stack)-1 {
			return nil, lineError(lineNo, line, "indentation increases by more than one level")
		}
		uri, title, ok := strings.Cut(body, " ")
		if !ok {
			return nil, lineError(lineNo, line, "line has no uri and title separated by a space")
		}

		stack = stack[:depth+1]
		e := &plainEntry{title: norm.NFC.String(title), uri: FixURI(uri)}
		parent := stack[depth]
		parent.kids = append(parent.kids, e)
		stack = append(stack, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	out := sexpr.List{sexpr.Symbol(rootType)}
	for _, k := range root.kids {
		out = append(out, k.value())
	}
	return out, nil
}

func lineError(n int, line, reason string) error {
	return &StructureError{Line: n, Fragment: fmt.Sprintf("%q", line), Reason: reason}
}

// expandTabs replaces each tab with spaces up to the next multiple of 8.
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
